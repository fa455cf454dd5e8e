package credit

import (
	"context"

	"github.com/jmoiron/sqlx"

	domaincredit "github.com/enrichlayer/core/internal/app/domain/credit"
)

// Store is the Credit Ledger's persistence boundary. BeginTx/GetBillingForUpdate
// together implement spec 4.4's row-locking requirement: every mutation runs
// inside one transaction that SELECT ... FOR UPDATEs the billing row before
// reading currentBalance, grounded on internal/app/jam/store_pg.go's
// BeginTx-then-FOR-UPDATE idiom (the only row-locking code in the pack).
type Store interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	// GetBillingForUpdate locks and returns the billing row, creating a
	// zero-balance row first if the workspace has never been billed.
	GetBillingForUpdate(ctx context.Context, tx *sqlx.Tx, workspaceID string) (domaincredit.BillingRecord, error)
	UpdateBalance(ctx context.Context, tx *sqlx.Tx, workspaceID string, newBalance int) error
	InsertTransaction(ctx context.Context, tx *sqlx.Tx, txn domaincredit.Transaction) error

	GetBilling(ctx context.Context, workspaceID string) (domaincredit.BillingRecord, bool, error)
	ListTransactions(ctx context.Context, workspaceID string, page, limit int) (domaincredit.Page, error)
}
