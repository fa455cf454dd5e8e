package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	domainwebhook "github.com/enrichlayer/core/internal/app/domain/webhook"
)

// WebhookStore implements webhook.Store on PostgreSQL, grounded on
// com.r3e.services.gasbank's dead-letter table handling, repurposed here
// for undeliverable webhook events.
type WebhookStore struct {
	db *sqlx.DB
}

func NewWebhookStore(db *sqlx.DB) *WebhookStore {
	return &WebhookStore{db: db}
}

func (s *WebhookStore) InsertSubscription(ctx context.Context, sub domainwebhook.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions
			(id, workspace_id, user_id, callback_url, event_types, secret_key, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sub.ID, sub.WorkspaceID, sub.UserID, sub.CallbackURL, pq.Array(sub.EventTypes), sub.SecretKey, sub.Active, sub.CreatedAt)
	return err
}

func (s *WebhookStore) ActiveSubscriptionsForWorkspace(ctx context.Context, workspaceID string) ([]domainwebhook.Subscription, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, workspace_id, user_id, callback_url, event_types, secret_key, active, created_at
		FROM webhook_subscriptions
		WHERE workspace_id = $1 AND active = true
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domainwebhook.Subscription
	for rows.Next() {
		var sub domainwebhook.Subscription
		if err := rows.Scan(&sub.ID, &sub.WorkspaceID, &sub.UserID, &sub.CallbackURL, pq.Array(&sub.EventTypes), &sub.SecretKey, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *WebhookStore) GetSubscription(ctx context.Context, id string) (domainwebhook.Subscription, bool, error) {
	var sub domainwebhook.Subscription
	err := s.db.QueryRowxContext(ctx, `
		SELECT id, workspace_id, user_id, callback_url, event_types, secret_key, active, created_at
		FROM webhook_subscriptions WHERE id = $1
	`, id).Scan(&sub.ID, &sub.WorkspaceID, &sub.UserID, &sub.CallbackURL, pq.Array(&sub.EventTypes), &sub.SecretKey, &sub.Active, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domainwebhook.Subscription{}, false, nil
	}
	if err != nil {
		return domainwebhook.Subscription{}, false, err
	}
	return sub, true, nil
}

func (s *WebhookStore) UpsertDeadLetter(ctx context.Context, dl domainwebhook.DeadLetter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_dead_letters
			(id, subscription_id, workspace_id, payload, last_error, attempts, sweep_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    last_error = EXCLUDED.last_error,
		    attempts = EXCLUDED.attempts
	`, dl.ID, dl.SubscriptionID, dl.WorkspaceID, dl.Payload, dl.LastError, dl.Attempts, dl.SweepCount, dl.CreatedAt)
	return err
}

func (s *WebhookStore) ListDeadLetters(ctx context.Context, maxSweeps int) ([]domainwebhook.DeadLetter, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, subscription_id, workspace_id, payload, last_error, attempts, sweep_count, created_at
		FROM webhook_dead_letters
		WHERE sweep_count < $1
		ORDER BY created_at
	`, maxSweeps)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domainwebhook.DeadLetter
	for rows.Next() {
		var dl domainwebhook.DeadLetter
		if err := rows.Scan(&dl.ID, &dl.SubscriptionID, &dl.WorkspaceID, &dl.Payload, &dl.LastError, &dl.Attempts, &dl.SweepCount, &dl.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

func (s *WebhookStore) RemoveDeadLetter(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhook_dead_letters WHERE id = $1`, id)
	return err
}

func (s *WebhookStore) IncrementSweepCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE webhook_dead_letters SET sweep_count = sweep_count + 1 WHERE id = $1`, id)
	return err
}
