package memory

import (
	"context"
	"sync"

	domainwebhook "github.com/enrichlayer/core/internal/app/domain/webhook"
)

type WebhookStore struct {
	mu            sync.Mutex
	subscriptions map[string]domainwebhook.Subscription
	deadLetters   map[string]domainwebhook.DeadLetter
}

func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		subscriptions: make(map[string]domainwebhook.Subscription),
		deadLetters:   make(map[string]domainwebhook.DeadLetter),
	}
}

func (s *WebhookStore) InsertSubscription(ctx context.Context, sub domainwebhook.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = sub
	return nil
}

func (s *WebhookStore) ActiveSubscriptionsForWorkspace(ctx context.Context, workspaceID string) ([]domainwebhook.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domainwebhook.Subscription
	for _, sub := range s.subscriptions {
		if sub.WorkspaceID == workspaceID && sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *WebhookStore) GetSubscription(ctx context.Context, id string) (domainwebhook.Subscription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	return sub, ok, nil
}

func (s *WebhookStore) UpsertDeadLetter(ctx context.Context, dl domainwebhook.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetters[dl.ID] = dl
	return nil
}

func (s *WebhookStore) ListDeadLetters(ctx context.Context, maxSweeps int) ([]domainwebhook.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domainwebhook.DeadLetter
	for _, dl := range s.deadLetters {
		if dl.SweepCount < maxSweeps {
			out = append(out, dl)
		}
	}
	return out, nil
}

func (s *WebhookStore) RemoveDeadLetter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deadLetters, id)
	return nil
}

func (s *WebhookStore) IncrementSweepCount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dl, ok := s.deadLetters[id]
	if !ok {
		return nil
	}
	dl.SweepCount++
	s.deadLetters[id] = dl
	return nil
}
