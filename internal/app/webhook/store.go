package webhook

import (
	"context"

	domainwebhook "github.com/enrichlayer/core/internal/app/domain/webhook"
)

// Store persists subscriptions and the dead-letter backlog. Grounded on
// storage.GasBankStore's dead-letter methods (UpsertDeadLetter/
// GetDeadLetter/ListDeadLetters/RemoveDeadLetter), repurposed here for
// undeliverable webhook events instead of failed withdrawals.
type Store interface {
	InsertSubscription(ctx context.Context, s domainwebhook.Subscription) error
	ActiveSubscriptionsForWorkspace(ctx context.Context, workspaceID string) ([]domainwebhook.Subscription, error)
	GetSubscription(ctx context.Context, id string) (domainwebhook.Subscription, bool, error)

	UpsertDeadLetter(ctx context.Context, dl domainwebhook.DeadLetter) error
	ListDeadLetters(ctx context.Context, maxSweeps int) ([]domainwebhook.DeadLetter, error)
	RemoveDeadLetter(ctx context.Context, id string) error
	IncrementSweepCount(ctx context.Context, id string) error
}
