// Package credit implements the Credit Ledger: row-locking transactional
// debit/credit with auto-recharge. Grounded on internal/app/services/gasbank's
// Deposit/Withdraw/Summary shape and internal/app/jam/store_pg.go's
// SELECT ... FOR UPDATE-inside-a-transaction idiom, the latter chosen over
// the gasbank service's own in-process sync.Mutex because this ledger must
// linearize across replicas, not just goroutines in one process.
package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enrichlayer/core/internal/app/apierr"
	domaincredit "github.com/enrichlayer/core/internal/app/domain/credit"
	"github.com/enrichlayer/core/pkg/logger"
)

type Service struct {
	store     Store
	publisher EventPublisher
	log       *logger.Logger
	clock     func() time.Time
}

type Option func(*Service)

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func New(store Store, log *logger.Logger, opts ...Option) *Service {
	s := &Service{store: store, publisher: NoopPublisher{}, log: log, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddCredits implements spec 4.4's addCredits: lock row, read
// currentBalance, write currentBalance+amount, append a purchase
// transaction, commit. Returns the transaction.
func (s *Service) AddCredits(ctx context.Context, workspaceID string, amount int, description string) (domaincredit.Transaction, error) {
	return s.addCredits(ctx, workspaceID, amount, description, "")
}

func (s *Service) addCredits(ctx context.Context, workspaceID string, amount int, description, referenceID string) (domaincredit.Transaction, error) {
	if amount <= 0 {
		return domaincredit.Transaction{}, apierr.Validation("amount must be a positive integer, got %d", amount)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	billing, err := s.store.GetBillingForUpdate(ctx, tx, workspaceID)
	if err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("lock billing row: %w", err))
	}

	newBalance := billing.CurrentBalance + amount
	if err := s.store.UpdateBalance(ctx, tx, workspaceID, newBalance); err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("update balance: %w", err))
	}

	txn := domaincredit.Transaction{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Type:        domaincredit.TransactionPurchase,
		Amount:      amount,
		Description: description,
		ReferenceID: referenceID,
		CreatedAt:   s.clock(),
	}
	if err := s.store.InsertTransaction(ctx, tx, txn); err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("insert transaction: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("commit: %w", err))
	}

	s.publisher.Publish(ctx, txn, newBalance)
	s.log.WithFields(map[string]interface{}{
		"workspace_id": workspaceID,
		"amount":       amount,
		"balance":      newBalance,
	}).Info("credits added")

	return txn, nil
}

// Debit implements spec 4.4's debit, including the auto-recharge
// side-effect. Returns the usage transaction (never the auto-recharge
// purchase transaction, which is recorded but not returned).
func (s *Service) Debit(ctx context.Context, workspaceID string, amount int, description, referenceID string) (domaincredit.Transaction, error) {
	if amount <= 0 {
		return domaincredit.Transaction{}, apierr.Validation("amount must be a positive integer, got %d", amount)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	billing, err := s.store.GetBillingForUpdate(ctx, tx, workspaceID)
	if err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("lock billing row: %w", err))
	}

	if billing.CurrentBalance < amount {
		return domaincredit.Transaction{}, apierr.InsufficientCredits(
			"workspace %s has %d credits, needs %d", workspaceID, billing.CurrentBalance, amount)
	}

	balanceAfterDebit := billing.CurrentBalance - amount
	if err := s.store.UpdateBalance(ctx, tx, workspaceID, balanceAfterDebit); err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("update balance: %w", err))
	}

	usageTxn := domaincredit.Transaction{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Type:        domaincredit.TransactionUsage,
		Amount:      -amount,
		Description: description,
		ReferenceID: referenceID,
		CreatedAt:   s.clock(),
	}
	if err := s.store.InsertTransaction(ctx, tx, usageTxn); err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("insert usage transaction: %w", err))
	}

	finalBalance := balanceAfterDebit
	if billing.AutoRecharge && balanceAfterDebit < billing.Threshold {
		finalBalance = balanceAfterDebit + billing.RechargeAmount
		if err := s.store.UpdateBalance(ctx, tx, workspaceID, finalBalance); err != nil {
			return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("update balance for auto-recharge: %w", err))
		}
		rechargeTxn := domaincredit.Transaction{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Type:        domaincredit.TransactionPurchase,
			Amount:      billing.RechargeAmount,
			Description: "Auto-recharge",
			CreatedAt:   s.clock(),
		}
		if err := s.store.InsertTransaction(ctx, tx, rechargeTxn); err != nil {
			return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("insert auto-recharge transaction: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return domaincredit.Transaction{}, apierr.Internal(fmt.Errorf("commit: %w", err))
	}

	s.publisher.Publish(ctx, usageTxn, finalBalance)
	s.log.WithFields(map[string]interface{}{
		"workspace_id": workspaceID,
		"amount":       amount,
		"balance":      finalBalance,
		"reference_id": referenceID,
	}).Info("credits debited")

	return usageTxn, nil
}

// Refund is a convenience wrapper the enrichment activity uses to reverse
// a debit (spec 4.7's refund-on-failure step). It is implemented as an
// ordinary addCredits call tagged with the original referenceId, preserving
// the append-only ledger invariant rather than mutating the original entry.
func (s *Service) Refund(ctx context.Context, workspaceID string, amount int, description, referenceID string) (domaincredit.Transaction, error) {
	return s.addCredits(ctx, workspaceID, amount, description, referenceID)
}

// GetBilling implements spec 4.4's getBilling.
func (s *Service) GetBilling(ctx context.Context, workspaceID string) (domaincredit.BillingRecord, error) {
	billing, ok, err := s.store.GetBilling(ctx, workspaceID)
	if err != nil {
		return domaincredit.BillingRecord{}, apierr.Internal(fmt.Errorf("get billing: %w", err))
	}
	if !ok {
		return domaincredit.BillingRecord{}, apierr.NotFound("no billing record for workspace %s", workspaceID)
	}
	return billing, nil
}

// GetTransactions implements spec 4.4's getTransactions with
// reverse-chronological pagination.
func (s *Service) GetTransactions(ctx context.Context, workspaceID string, page, limit int) (domaincredit.Page, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 25
	}
	result, err := s.store.ListTransactions(ctx, workspaceID, page, limit)
	if err != nil {
		return domaincredit.Page{}, apierr.Internal(fmt.Errorf("list transactions: %w", err))
	}
	return result, nil
}
