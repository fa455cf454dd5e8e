package credit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichlayer/core/internal/app/apierr"
	domaincredit "github.com/enrichlayer/core/internal/app/domain/credit"
	"github.com/enrichlayer/core/pkg/logger"
)

// fakeStore exercises the Service's control flow without a real database;
// BeginTx/Commit/Rollback still go through a sqlmock-backed *sqlx.DB so the
// Service's transaction lifecycle calls are real, while the row data lives
// in a plain map (the row-locking SQL itself lives in
// internal/app/storage/postgres and is not exercised here).
type fakeStore struct {
	db       *sqlx.DB
	billing  map[string]domaincredit.BillingRecord
	txns     []domaincredit.Transaction
}

func newFakeStore(t *testing.T) (*fakeStore, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(rawDB, "sqlmock")
	return &fakeStore{db: db, billing: make(map[string]domaincredit.BillingRecord)}, mock
}

func (f *fakeStore) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return f.db.BeginTxx(ctx, nil)
}

func (f *fakeStore) GetBillingForUpdate(ctx context.Context, tx *sqlx.Tx, workspaceID string) (domaincredit.BillingRecord, error) {
	b, ok := f.billing[workspaceID]
	if !ok {
		b = domaincredit.BillingRecord{WorkspaceID: workspaceID}
		f.billing[workspaceID] = b
	}
	return b, nil
}

func (f *fakeStore) UpdateBalance(ctx context.Context, tx *sqlx.Tx, workspaceID string, newBalance int) error {
	b := f.billing[workspaceID]
	b.WorkspaceID = workspaceID
	b.CurrentBalance = newBalance
	f.billing[workspaceID] = b
	return nil
}

func (f *fakeStore) InsertTransaction(ctx context.Context, tx *sqlx.Tx, txn domaincredit.Transaction) error {
	f.txns = append(f.txns, txn)
	return nil
}

func (f *fakeStore) GetBilling(ctx context.Context, workspaceID string) (domaincredit.BillingRecord, bool, error) {
	b, ok := f.billing[workspaceID]
	return b, ok, nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, workspaceID string, page, limit int) (domaincredit.Page, error) {
	var out []domaincredit.Transaction
	for i := len(f.txns) - 1; i >= 0; i-- {
		if f.txns[i].WorkspaceID == workspaceID {
			out = append(out, f.txns[i])
		}
	}
	return domaincredit.Page{Transactions: out, Total: len(out)}, nil
}

func newTestService(mock sqlmock.Sqlmock, store Store) *Service {
	mock.MatchExpectationsInOrder(false)
	return New(store, logger.NewDefault("credit_test"), WithClock(func() time.Time { return time.Unix(0, 0) }))
}

func TestAddCredits_IncreasesBalanceAndAppendsPurchase(t *testing.T) {
	store, mock := newFakeStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := newTestService(mock, store)

	txn, err := svc.AddCredits(context.Background(), "ws-1", 100, "top-up")
	require.NoError(t, err)
	assert.Equal(t, domaincredit.TransactionPurchase, txn.Type)
	assert.Equal(t, 100, txn.Amount)

	billing, _, _ := store.GetBilling(context.Background(), "ws-1")
	assert.Equal(t, 100, billing.CurrentBalance)
}

func TestAddCredits_RejectsNonPositiveAmount(t *testing.T) {
	store, _ := newFakeStore(t)
	svc := New(store, logger.NewDefault("credit_test"))

	_, err := svc.AddCredits(context.Background(), "ws-1", 0, "bad")
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
}

func TestDebit_InsufficientBalanceRollsBackWithNoMutation(t *testing.T) {
	store, mock := newFakeStore(t)
	store.billing["ws-1"] = domaincredit.BillingRecord{WorkspaceID: "ws-1", CurrentBalance: 5}
	mock.ExpectBegin()
	mock.ExpectRollback()
	svc := newTestService(mock, store)

	_, err := svc.Debit(context.Background(), "ws-1", 10, "usage", "job-1")
	require.Error(t, err)
	assert.Equal(t, apierr.CodeInsufficientCredits, apierr.CodeOf(err))

	billing, _, _ := store.GetBilling(context.Background(), "ws-1")
	assert.Equal(t, 5, billing.CurrentBalance, "balance must not change on insufficient credits")
	assert.Empty(t, store.txns, "no ledger entry on a rejected debit")
}

func TestDebit_SufficientBalanceAppendsUsageEntry(t *testing.T) {
	store, mock := newFakeStore(t)
	store.billing["ws-1"] = domaincredit.BillingRecord{WorkspaceID: "ws-1", CurrentBalance: 1000}
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := newTestService(mock, store)

	txn, err := svc.Debit(context.Background(), "ws-1", 1, "enrichment", "job-1:0:email:hunter")
	require.NoError(t, err)
	assert.Equal(t, domaincredit.TransactionUsage, txn.Type)
	assert.Equal(t, -1, txn.Amount)

	billing, _, _ := store.GetBilling(context.Background(), "ws-1")
	assert.Equal(t, 999, billing.CurrentBalance)
}

func TestDebit_AutoRechargeFiresWhenBelowThreshold(t *testing.T) {
	store, mock := newFakeStore(t)
	store.billing["ws-1"] = domaincredit.BillingRecord{
		WorkspaceID:    "ws-1",
		CurrentBalance: 10,
		AutoRecharge:   true,
		Threshold:      5,
		RechargeAmount: 500,
	}
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := newTestService(mock, store)

	usageTxn, err := svc.Debit(context.Background(), "ws-1", 8, "enrichment", "job-2")
	require.NoError(t, err)
	assert.Equal(t, -8, usageTxn.Amount)

	billing, _, _ := store.GetBilling(context.Background(), "ws-1")
	assert.Equal(t, 2+500, billing.CurrentBalance)

	var purchaseCount int
	for _, txn := range store.txns {
		if txn.Type == domaincredit.TransactionPurchase {
			purchaseCount++
			assert.Equal(t, "Auto-recharge", txn.Description)
		}
	}
	assert.Equal(t, 1, purchaseCount)
}

func TestRefund_IsAnAppendOnlyPurchaseReferencingOriginalDebit(t *testing.T) {
	store, mock := newFakeStore(t)
	store.billing["ws-1"] = domaincredit.BillingRecord{WorkspaceID: "ws-1", CurrentBalance: 100}
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := newTestService(mock, store)

	txn, err := svc.Refund(context.Background(), "ws-1", 2, "refund: schema validation failed", "job-1:0:email:apollo")
	require.NoError(t, err)
	assert.Equal(t, domaincredit.TransactionPurchase, txn.Type)
	assert.Equal(t, "job-1:0:email:apollo", txn.ReferenceID)

	billing, _, _ := store.GetBilling(context.Background(), "ws-1")
	assert.Equal(t, 102, billing.CurrentBalance)
}

func TestGetBilling_NotFound(t *testing.T) {
	store, _ := newFakeStore(t)
	svc := New(store, logger.NewDefault("credit_test"))

	_, err := svc.GetBilling(context.Background(), "ghost-workspace")
	require.Error(t, err)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}
