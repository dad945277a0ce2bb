// Package ledger simulates the research-token program: research accounts,
// the four instructions that mutate them and a cluster that confirms
// submitted instructions.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

var (
	ErrNotActive          = errors.New("research is not active")
	ErrOverflow           = errors.New("arithmetic overflow")
	ErrInvalidAuthority   = errors.New("invalid authority")
	ErrAccountNotFound    = errors.New("account not found")
	ErrFieldTooLong       = errors.New("field exceeds allocated space")
	ErrClusterUnavailable = errors.New("cluster unavailable")
)

// Account space layout
const (
	MaxTitleLen  = 100
	MaxAuthors   = 10
	MaxAuthorLen = 50
	MaxDOILen    = 50
)

const (
	LamportsPerSOL = 1_000_000_000
	// TokenDecimals is the number of decimals of the RES mint
	TokenDecimals = 2
	tokenUnit     = 100
)

// ResearchAccount is the on-chain state of one funded publication
type ResearchAccount struct {
	Address        string    `json:"address" db:"address"`
	Authority      string    `json:"authority" db:"authority"`
	Title          string    `json:"title" db:"title"`
	Authors        []string  `json:"authors" db:"-"`
	DOI            string    `json:"doi" db:"doi"`
	ImpactScore    float64   `json:"impact_score" db:"impact_score"`
	TokenSupply    uint64    `json:"token_supply" db:"token_supply"`
	FundingGoal    uint64    `json:"funding_goal" db:"funding_goal"`
	CurrentFunding uint64    `json:"current_funding" db:"current_funding"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// InitializeParams are the arguments of the initialize instruction
type InitializeParams struct {
	Authority   string   `json:"authority"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	DOI         string   `json:"doi"`
	ImpactScore float64  `json:"impact_score"`
	FundingGoal uint64   `json:"funding_goal"`
}

// Validate checks the params against the account space layout. Lengths are
// in bytes.
func (p InitializeParams) Validate() error {
	if p.Authority == "" {
		return fmt.Errorf("%w: authority is required", ErrInvalidAuthority)
	}
	if len(p.Title) > MaxTitleLen {
		return fmt.Errorf("%w: title is %d bytes, max %d", ErrFieldTooLong, len(p.Title), MaxTitleLen)
	}
	if len(p.Authors) > MaxAuthors {
		return fmt.Errorf("%w: %d authors, max %d", ErrFieldTooLong, len(p.Authors), MaxAuthors)
	}
	for i, a := range p.Authors {
		if len(a) > MaxAuthorLen {
			return fmt.Errorf("%w: author %d is %d bytes, max %d", ErrFieldTooLong, i, len(a), MaxAuthorLen)
		}
	}
	if len(p.DOI) > MaxDOILen {
		return fmt.Errorf("%w: doi is %d bytes, max %d", ErrFieldTooLong, len(p.DOI), MaxDOILen)
	}
	return nil
}

// TruncateParams fits publication metadata into the account layout. Titles
// and author names are cut at a rune boundary and extra authors are dropped.
func TruncateParams(p InitializeParams) InitializeParams {
	p.Title = truncateBytes(p.Title, MaxTitleLen)
	p.DOI = truncateBytes(p.DOI, MaxDOILen)
	if len(p.Authors) > MaxAuthors {
		p.Authors = p.Authors[:MaxAuthors]
	}
	authors := make([]string, len(p.Authors))
	for i, a := range p.Authors {
		authors[i] = truncateBytes(a, MaxAuthorLen)
	}
	p.Authors = authors
	return p
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SOLToLamports converts a SOL amount into lamports, rounding to the nearest
// lamport.
func SOLToLamports(sol float64) (uint64, error) {
	return toBaseUnits(sol, LamportsPerSOL)
}

// LamportsToSOL converts lamports back to SOL
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// TokensToBaseUnits converts a token amount with TokenDecimals decimals into
// base units.
func TokensToBaseUnits(tokens float64) (uint64, error) {
	return toBaseUnits(tokens, tokenUnit)
}

// BaseUnitsToTokens converts base units back to tokens
func BaseUnitsToTokens(units uint64) float64 {
	return float64(units) / tokenUnit
}

func toBaseUnits(v float64, unit float64) (uint64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("invalid amount %v", v)
	}
	scaled := math.Round(v * unit)
	if scaled >= math.MaxUint64 {
		return 0, ErrOverflow
	}
	return uint64(scaled), nil
}
