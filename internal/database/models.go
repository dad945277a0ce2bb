package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/research-token/internal/ledger"
)

// accountRow is the research_accounts row. sqlite integers are signed, so
// u64 counters are stored as decimal text.
type accountRow struct {
	Address        string    `db:"address"`
	Authority      string    `db:"authority"`
	Title          string    `db:"title"`
	Authors        string    `db:"authors"`
	DOI            string    `db:"doi"`
	ImpactScore    float64   `db:"impact_score"`
	TokenSupply    string    `db:"token_supply"`
	FundingGoal    string    `db:"funding_goal"`
	CurrentFunding string    `db:"current_funding"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func newAccountRow(a ledger.ResearchAccount) (accountRow, error) {
	authors := a.Authors
	if authors == nil {
		authors = []string{}
	}
	encoded, err := json.Marshal(authors)
	if err != nil {
		return accountRow{}, fmt.Errorf("failed to encode authors: %w", err)
	}

	return accountRow{
		Address:        a.Address,
		Authority:      a.Authority,
		Title:          a.Title,
		Authors:        string(encoded),
		DOI:            a.DOI,
		ImpactScore:    a.ImpactScore,
		TokenSupply:    strconv.FormatUint(a.TokenSupply, 10),
		FundingGoal:    strconv.FormatUint(a.FundingGoal, 10),
		CurrentFunding: strconv.FormatUint(a.CurrentFunding, 10),
		IsActive:       a.IsActive,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}, nil
}

func (r accountRow) account() (ledger.ResearchAccount, error) {
	var authors []string
	if err := json.Unmarshal([]byte(r.Authors), &authors); err != nil {
		return ledger.ResearchAccount{}, fmt.Errorf("failed to decode authors of %s: %w", r.Address, err)
	}

	counters := make([]uint64, 3)
	for i, s := range []string{r.TokenSupply, r.FundingGoal, r.CurrentFunding} {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return ledger.ResearchAccount{}, fmt.Errorf("corrupt counter on %s: %w", r.Address, err)
		}
		counters[i] = v
	}

	return ledger.ResearchAccount{
		Address:        r.Address,
		Authority:      r.Authority,
		Title:          r.Title,
		Authors:        authors,
		DOI:            r.DOI,
		ImpactScore:    r.ImpactScore,
		TokenSupply:    counters[0],
		FundingGoal:    counters[1],
		CurrentFunding: counters[2],
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}
