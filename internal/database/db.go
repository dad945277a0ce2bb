package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	driverName = "sqlite3"
	dbFileName = "research_token.db"
)

// DB represents the database connection with pooling
type DB struct {
	*sqlx.DB
	pool *ConnectionPool
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens the sqlite database under dataDir and runs migrations
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	sqlDB, err := sqlx.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := Wrap(sqlDB.DB)

	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"path", dbPath,
		"max_open_conns", database.pool.maxOpenConns,
		"max_idle_conns", database.pool.maxIdleConns,
		"max_lifetime", database.pool.maxLifetime)

	return database, nil
}

// Wrap adopts an already open connection. Migrations are not run.
func Wrap(db *sql.DB) *DB {
	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)
	return &DB{
		DB:   sqlx.NewDb(db, driverName),
		pool: pool,
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS research_accounts (
		address TEXT PRIMARY KEY,
		authority TEXT NOT NULL,
		title TEXT NOT NULL,
		authors TEXT NOT NULL, -- JSON array
		doi TEXT NOT NULL,
		impact_score REAL NOT NULL,
		token_supply TEXT NOT NULL, -- u64 as decimal
		funding_goal TEXT NOT NULL,
		current_funding TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS publication_accounts (
		publication_id TEXT PRIMARY KEY,
		address TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (address) REFERENCES research_accounts(address)
	)`,

	`CREATE TABLE IF NOT EXISTS fundings (
		id TEXT PRIMARY KEY,
		publication_id TEXT NOT NULL,
		account_address TEXT NOT NULL DEFAULT '',
		funder TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL, -- 'crypto', 'fiat'
		amount REAL NOT NULL,
		token_amount REAL NOT NULL,
		impact_score REAL NOT NULL,
		tx_signature TEXT NOT NULL DEFAULT '',
		payment_ref TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_fundings_publication ON fundings(publication_id, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_fundings_payment_ref ON fundings(payment_ref) WHERE payment_ref != ''`,
}

// Migrate creates the necessary tables
func (db *DB) Migrate() error {
	for _, query := range migrations {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}
