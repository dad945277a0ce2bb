package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ZanzyTHEbar/research-token/internal/ledger"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `address, authority, title, authors, doi, impact_score,
	token_supply, funding_goal, current_funding, is_active, created_at, updated_at`

// GetAccount loads a research account by address
func (r *Repository) GetAccount(ctx context.Context, address string) (ledger.ResearchAccount, error) {
	var row accountRow
	err := r.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM research_accounts WHERE address = ?`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ResearchAccount{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.ResearchAccount{}, fmt.Errorf("failed to query account: %w", err)
	}
	return row.account()
}

// SaveAccount inserts or updates a research account
func (r *Repository) SaveAccount(ctx context.Context, account ledger.ResearchAccount) error {
	row, err := newAccountRow(account)
	if err != nil {
		return err
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO research_accounts (`+accountColumns+`)
		VALUES (:address, :authority, :title, :authors, :doi, :impact_score,
			:token_supply, :funding_goal, :current_funding, :is_active, :created_at, :updated_at)
		ON CONFLICT(address) DO UPDATE SET
			impact_score = excluded.impact_score,
			token_supply = excluded.token_supply,
			current_funding = excluded.current_funding,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, row)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// ListAccounts returns all research accounts, oldest first
func (r *Repository) ListAccounts(ctx context.Context) ([]ledger.ResearchAccount, error) {
	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+accountColumns+` FROM research_accounts ORDER BY created_at, address`); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	out := make([]ledger.ResearchAccount, 0, len(rows))
	for _, row := range rows {
		acct, err := row.account()
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

// AccountForPublication returns the account address linked to a publication
func (r *Repository) AccountForPublication(ctx context.Context, publicationID string) (string, error) {
	var address string
	err := r.db.GetContext(ctx, &address, `SELECT address FROM publication_accounts WHERE publication_id = ?`, publicationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query publication account: %w", err)
	}
	return address, nil
}

// LinkPublication records which account backs a publication
func (r *Repository) LinkPublication(ctx context.Context, publicationID, address string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO publication_accounts (publication_id, address, created_at)
		VALUES (?, ?, ?)
	`, publicationID, address, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link publication: %w", err)
	}
	return nil
}

// RecordFunding stores a funding. A payment reference can be recorded once.
func (r *Repository) RecordFunding(ctx context.Context, f types.Funding) error {
	if f.PaymentRef != "" {
		seen, err := r.HasPaymentRef(ctx, f.PaymentRef)
		if err != nil {
			return err
		}
		if seen {
			return types.ErrDuplicatePayment
		}
	}

	return r.insertFunding(ctx, f)
}

// insertFunding writes the row. A concurrent writer that recorded the same
// payment reference first trips the unique index.
func (r *Repository) insertFunding(ctx context.Context, f types.Funding) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO fundings (id, publication_id, account_address, funder, payment_method,
			amount, token_amount, impact_score, tx_signature, payment_ref, created_at)
		VALUES (:id, :publication_id, :account_address, :funder, :payment_method,
			:amount, :token_amount, :impact_score, :tx_signature, :payment_ref, :created_at)
	`, f)
	if err != nil {
		var sqliteErr sqlite3.Error
		if f.PaymentRef != "" && errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return types.ErrDuplicatePayment
		}
		return fmt.Errorf("failed to record funding: %w", err)
	}
	return nil
}

// HasPaymentRef reports whether a funding with this payment reference exists
func (r *Repository) HasPaymentRef(ctx context.Context, ref string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM fundings WHERE payment_ref = ?`, ref); err != nil {
		return false, fmt.Errorf("failed to query payment ref: %w", err)
	}
	return n > 0, nil
}

// FundingsForPublication returns the most recent fundings of a publication
func (r *Repository) FundingsForPublication(ctx context.Context, publicationID string, limit int) ([]types.Funding, error) {
	if limit <= 0 {
		limit = 50
	}

	fundings := []types.Funding{}
	err := r.db.SelectContext(ctx, &fundings, `
		SELECT id, publication_id, account_address, funder, payment_method, amount,
			token_amount, impact_score, tx_signature, payment_ref, created_at
		FROM fundings
		WHERE publication_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, publicationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundings: %w", err)
	}
	return fundings, nil
}

// FundingTotals aggregates fundings per publication
func (r *Repository) FundingTotals(ctx context.Context) ([]types.FundingTotal, error) {
	totals := []types.FundingTotal{}
	err := r.db.SelectContext(ctx, &totals, `
		SELECT publication_id,
			SUM(amount) AS total_amount,
			SUM(token_amount) AS total_tokens,
			COUNT(*) AS fundings
		FROM fundings
		GROUP BY publication_id
		ORDER BY total_amount DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate fundings: %w", err)
	}
	return totals, nil
}

var _ ledger.AccountStore = (*Repository)(nil)
