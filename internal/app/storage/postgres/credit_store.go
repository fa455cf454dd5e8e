package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	domaincredit "github.com/enrichlayer/core/internal/app/domain/credit"
)

// CreditStore implements credit.Store on PostgreSQL, grounded on
// internal/app/jam/store_pg.go's BeginTx-then-FOR-UPDATE idiom.
type CreditStore struct {
	db *sqlx.DB
}

func NewCreditStore(db *sqlx.DB) *CreditStore {
	return &CreditStore{db: db}
}

func (s *CreditStore) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}

// GetBillingForUpdate locks the billing row, creating a zero-balance row
// first if the workspace has never been billed.
func (s *CreditStore) GetBillingForUpdate(ctx context.Context, tx *sqlx.Tx, workspaceID string) (domaincredit.BillingRecord, error) {
	var b domaincredit.BillingRecord
	err := tx.QueryRowxContext(ctx, `
		SELECT workspace_id, current_balance, auto_recharge, threshold, recharge_amount, updated_at
		FROM billing
		WHERE workspace_id = $1
		FOR UPDATE
	`, workspaceID).Scan(&b.WorkspaceID, &b.CurrentBalance, &b.AutoRecharge, &b.Threshold, &b.RechargeAmount, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO billing (workspace_id, current_balance, auto_recharge, threshold, recharge_amount)
			VALUES ($1, 0, false, 0, 0)
			ON CONFLICT (workspace_id) DO NOTHING
		`, workspaceID); err != nil {
			return domaincredit.BillingRecord{}, err
		}
		err = tx.QueryRowxContext(ctx, `
			SELECT workspace_id, current_balance, auto_recharge, threshold, recharge_amount, updated_at
			FROM billing
			WHERE workspace_id = $1
			FOR UPDATE
		`, workspaceID).Scan(&b.WorkspaceID, &b.CurrentBalance, &b.AutoRecharge, &b.Threshold, &b.RechargeAmount, &b.UpdatedAt)
	}
	if err != nil {
		return domaincredit.BillingRecord{}, err
	}
	return b, nil
}

func (s *CreditStore) UpdateBalance(ctx context.Context, tx *sqlx.Tx, workspaceID string, newBalance int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE billing SET current_balance = $1, updated_at = now() WHERE workspace_id = $2
	`, newBalance, workspaceID)
	return err
}

func (s *CreditStore) InsertTransaction(ctx context.Context, tx *sqlx.Tx, txn domaincredit.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions
			(id, workspace_id, type, amount, description, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, txn.ID, txn.WorkspaceID, txn.Type, txn.Amount, txn.Description, txn.ReferenceID, txn.CreatedAt)
	return err
}

func (s *CreditStore) GetBilling(ctx context.Context, workspaceID string) (domaincredit.BillingRecord, bool, error) {
	var b domaincredit.BillingRecord
	err := s.db.QueryRowxContext(ctx, `
		SELECT workspace_id, current_balance, auto_recharge, threshold, recharge_amount, updated_at
		FROM billing
		WHERE workspace_id = $1
	`, workspaceID).Scan(&b.WorkspaceID, &b.CurrentBalance, &b.AutoRecharge, &b.Threshold, &b.RechargeAmount, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domaincredit.BillingRecord{}, false, nil
	}
	if err != nil {
		return domaincredit.BillingRecord{}, false, err
	}
	return b, true, nil
}

func (s *CreditStore) ListTransactions(ctx context.Context, workspaceID string, page, limit int) (domaincredit.Page, error) {
	offset := (page - 1) * limit

	var total int
	if err := s.db.GetContext(ctx, &total, `
		SELECT count(*) FROM credit_transactions WHERE workspace_id = $1
	`, workspaceID); err != nil {
		return domaincredit.Page{}, err
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, workspace_id, type, amount, description, reference_id, created_at
		FROM credit_transactions
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, workspaceID, limit, offset)
	if err != nil {
		return domaincredit.Page{}, err
	}
	defer rows.Close()

	var txns []domaincredit.Transaction
	for rows.Next() {
		var t domaincredit.Transaction
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Type, &t.Amount, &t.Description, &t.ReferenceID, &t.CreatedAt); err != nil {
			return domaincredit.Page{}, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return domaincredit.Page{}, err
	}

	return domaincredit.Page{Transactions: txns, Total: total}, nil
}
