package database

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/research-token/internal/ledger"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewRepository(Wrap(mockDB)), mock
}

var accountCols = []string{
	"address", "authority", "title", "authors", "doi", "impact_score",
	"token_supply", "funding_goal", "current_funding", "is_active", "created_at", "updated_at",
}

func TestGetAccount(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM research_accounts WHERE address = \?`).
		WithArgs("addr1").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(
			"addr1", "auth", "CRISPR", `["Sarah Johnson","Michael Chen"]`, "10.1038/x", 6.37,
			"18446744073709551615", "100000000000", "2500000000", true, now, now,
		))

	acct, err := repo.GetAccount(context.Background(), "addr1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sarah Johnson", "Michael Chen"}, acct.Authors)
	assert.Equal(t, uint64(math.MaxUint64), acct.TokenSupply)
	assert.Equal(t, uint64(100*ledger.LamportsPerSOL), acct.FundingGoal)
	assert.Equal(t, uint64(2_500_000_000), acct.CurrentFunding)
	assert.True(t, acct.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT .+ FROM research_accounts`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, err := repo.GetAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountCorruptCounter(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM research_accounts`).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(
			"addr1", "auth", "t", `[]`, "", 0.0, "-1", "0", "0", true, now, now,
		))

	_, err := repo.GetAccount(context.Background(), "addr1")
	assert.Error(t, err)
}

func TestSaveAccount(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO research_accounts .+ ON CONFLICT\(address\) DO UPDATE`).
		WithArgs("addr1", "auth", "CRISPR", `["A"]`, "doi", 6.37,
			"1062", "0", "2500000000", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveAccount(context.Background(), ledger.ResearchAccount{
		Address:        "addr1",
		Authority:      "auth",
		Title:          "CRISPR",
		Authors:        []string{"A"},
		DOI:            "doi",
		ImpactScore:    6.37,
		TokenSupply:    1062,
		CurrentFunding: 2_500_000_000,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAccountNilAuthors(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`INSERT INTO research_accounts`).
		WithArgs("addr1", "", "", `[]`, "", 0.0, "0", "0", "0", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SaveAccount(context.Background(), ledger.ResearchAccount{Address: "addr1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAccounts(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM research_accounts ORDER BY created_at`).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow("a", "auth", "t1", `[]`, "", 1.0, "0", "0", "0", true, now, now).
			AddRow("b", "auth", "t2", `["x"]`, "", 2.0, "5", "0", "7", false, now, now))

	accounts, err := repo.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "b", accounts[1].Address)
	assert.Equal(t, uint64(7), accounts[1].CurrentFunding)
	assert.False(t, accounts[1].IsActive)
}

func TestAccountForPublication(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT address FROM publication_accounts WHERE publication_id = \?`).
		WithArgs("2").
		WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow("addr2"))
	mock.ExpectQuery(`SELECT address FROM publication_accounts`).
		WithArgs("9").
		WillReturnRows(sqlmock.NewRows([]string{"address"}))

	address, err := repo.AccountForPublication(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "addr2", address)

	_, err = repo.AccountForPublication(context.Background(), "9")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkPublication(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`INSERT INTO publication_accounts`).
		WithArgs("2", "addr2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.LinkPublication(context.Background(), "2", "addr2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFunding(t *testing.T) {
	repo, mock := newMockRepository(t)

	f := types.Funding{
		ID:             "f-1",
		PublicationID:  "2",
		AccountAddress: "addr2",
		Funder:         "wallet",
		PaymentMethod:  types.PaymentCrypto,
		Amount:         1.5,
		TokenAmount:    15.93,
		ImpactScore:    6.37,
		TxSignature:    "sig",
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO fundings`).
		WithArgs("f-1", "2", "addr2", "wallet", "crypto", 1.5, 15.93, 6.37, "sig", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.RecordFunding(context.Background(), f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFundingDuplicatePaymentRef(t *testing.T) {
	repo, mock := newMockRepository(t)

	f := types.Funding{ID: "f-2", PublicationID: "2", PaymentMethod: types.PaymentFiat, Amount: 25, PaymentRef: "cs_test_123"}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM fundings WHERE payment_ref = \?`).
		WithArgs("cs_test_123").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := repo.RecordFunding(context.Background(), f)
	assert.ErrorIs(t, err, types.ErrDuplicatePayment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFundingConcurrentDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)

	f := types.Funding{ID: "f-3", PublicationID: "2", PaymentMethod: types.PaymentFiat, Amount: 25, PaymentRef: "cs_test_race"}

	// the other delivery commits between the check and the insert
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM fundings WHERE payment_ref = \?`).
		WithArgs("cs_test_race").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO fundings`).
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})

	err := repo.RecordFunding(context.Background(), f)
	assert.ErrorIs(t, err, types.ErrDuplicatePayment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertFundingUniquePaymentRef(t *testing.T) {
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := NewRepository(db)
	ctx := context.Background()

	first := types.Funding{ID: "f-a", PublicationID: "2", PaymentMethod: types.PaymentFiat, Amount: 25,
		PaymentRef: "cs_live_1", CreatedAt: time.Now().UTC()}
	second := first
	second.ID = "f-b"

	require.NoError(t, repo.insertFunding(ctx, first))
	assert.ErrorIs(t, repo.insertFunding(ctx, second), types.ErrDuplicatePayment)

	// rows without a payment reference are not constrained
	first.ID, first.PaymentRef = "f-c", ""
	second.ID, second.PaymentRef = "f-d", ""
	require.NoError(t, repo.insertFunding(ctx, first))
	require.NoError(t, repo.insertFunding(ctx, second))
}

func TestFundingsForPublication(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now()

	cols := []string{"id", "publication_id", "account_address", "funder", "payment_method", "amount",
		"token_amount", "impact_score", "tx_signature", "payment_ref", "created_at"}
	mock.ExpectQuery(`SELECT .+ FROM fundings\s+WHERE publication_id = \?`).
		WithArgs("2", 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("f1", "2", "addr2", "w", "crypto", 1.0, 10.62, 6.37, "sig", "", now).
			AddRow("f2", "2", "", "", "fiat", 20.0, 212.4, 6.37, "", "cs_1", now))

	fundings, err := repo.FundingsForPublication(context.Background(), "2", 0)
	require.NoError(t, err)
	require.Len(t, fundings, 2)
	assert.Equal(t, types.PaymentFiat, fundings[1].PaymentMethod)
	assert.Equal(t, "cs_1", fundings[1].PaymentRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFundingTotals(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT publication_id,\s+SUM\(amount\)`).
		WillReturnRows(sqlmock.NewRows([]string{"publication_id", "total_amount", "total_tokens", "fundings"}).
			AddRow("2", 21.0, 223.02, 2).
			AddRow("1", 3.0, 0.0, 1))

	totals, err := repo.FundingTotals(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, types.FundingTotal{PublicationID: "2", TotalAmount: 21, TotalTokens: 223.02, Fundings: 2}, totals[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	for range migrations {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Wrap(mockDB).Migrate())
	assert.NoError(t, mock.ExpectationsWereMet())
}
