package webhook

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainwebhook "github.com/enrichlayer/core/internal/app/domain/webhook"
	"github.com/enrichlayer/core/pkg/logger"
)

func publicIP() net.IP { return net.ParseIP("93.184.216.34") }

type memStore struct {
	mu          sync.Mutex
	subs        map[string]domainwebhook.Subscription
	deadLetters map[string]domainwebhook.DeadLetter
}

func newMemStore() *memStore {
	return &memStore{subs: make(map[string]domainwebhook.Subscription), deadLetters: make(map[string]domainwebhook.DeadLetter)}
}

func (m *memStore) InsertSubscription(ctx context.Context, s domainwebhook.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.ID] = s
	return nil
}

func (m *memStore) ActiveSubscriptionsForWorkspace(ctx context.Context, workspaceID string) ([]domainwebhook.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domainwebhook.Subscription
	for _, s := range m.subs {
		if s.WorkspaceID == workspaceID && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetSubscription(ctx context.Context, id string) (domainwebhook.Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	return s, ok, nil
}

func (m *memStore) UpsertDeadLetter(ctx context.Context, dl domainwebhook.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters[dl.ID] = dl
	return nil
}

func (m *memStore) ListDeadLetters(ctx context.Context, maxSweeps int) ([]domainwebhook.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domainwebhook.DeadLetter
	for _, dl := range m.deadLetters {
		if dl.SweepCount < maxSweeps {
			out = append(out, dl)
		}
	}
	return out, nil
}

func (m *memStore) RemoveDeadLetter(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deadLetters, id)
	return nil
}

func (m *memStore) IncrementSweepCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl := m.deadLetters[id]
	dl.SweepCount++
	m.deadLetters[id] = dl
	return nil
}

func fastRetrySchedule(t *testing.T) {
	t.Helper()
	original := retrySchedule
	retrySchedule = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retrySchedule = original })
}

func TestCreateSubscription_RejectsInsecureURL(t *testing.T) {
	svc := New(newMemStore(), logger.NewDefault("webhook_test"))
	_, err := svc.CreateSubscription(context.Background(), "ws-1", "user-1", "http://example.com", []string{"job.completed"})
	require.Error(t, err)
}

func TestCreateSubscription_GeneratesSixtyFourCharHexSecret(t *testing.T) {
	withFakeResolver(t, map[string][]net.IP{"api.example.com": {publicIP()}})
	svc := New(newMemStore(), logger.NewDefault("webhook_test"))
	sub, err := svc.CreateSubscription(context.Background(), "ws-1", "user-1", "https://api.example.com/hook", []string{"job.completed"})
	require.NoError(t, err)
	assert.Len(t, sub.SecretKey, 64)
}

func TestDeliverEvent_SucceedsOnFirstAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Webhook-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemStore()
	sub := domainwebhook.Subscription{ID: "sub-1", WorkspaceID: "ws-1", CallbackURL: srv.URL, EventTypes: []string{"job.completed"}, SecretKey: "s3cr3t", Active: true}
	require.NoError(t, store.InsertSubscription(context.Background(), sub))

	svc := New(store, logger.NewDefault("webhook_test"))
	svc.DeliverEvent(context.Background(), "ws-1", domainwebhook.Payload{Event: "job.completed", Data: map[string]interface{}{"jobId": "job-1"}})

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, store.deadLetters)
}

func TestDeliverEvent_RetriesThenDeadLettersOnPersistentFailure(t *testing.T) {
	fastRetrySchedule(t)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newMemStore()
	sub := domainwebhook.Subscription{ID: "sub-1", WorkspaceID: "ws-1", CallbackURL: srv.URL, EventTypes: []string{"job.completed"}, SecretKey: "s3cr3t", Active: true}
	require.NoError(t, store.InsertSubscription(context.Background(), sub))

	svc := New(store, logger.NewDefault("webhook_test"))
	svc.DeliverEvent(context.Background(), "ws-1", domainwebhook.Payload{Event: "job.completed"})

	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "expect 4 total attempts")
	assert.Len(t, store.deadLetters, 1)
}

func TestDeliverEvent_SkipsSubscriptionsNotInterestedInEvent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemStore()
	sub := domainwebhook.Subscription{ID: "sub-1", WorkspaceID: "ws-1", CallbackURL: srv.URL, EventTypes: []string{"job.failed"}, SecretKey: "s3cr3t", Active: true}
	require.NoError(t, store.InsertSubscription(context.Background(), sub))

	svc := New(store, logger.NewDefault("webhook_test"))
	svc.DeliverEvent(context.Background(), "ws-1", domainwebhook.Payload{Event: "job.completed"})

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
