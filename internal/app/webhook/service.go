// Package webhook implements best-effort, signed, retried webhook delivery
// with SSRF-safe destination validation. Grounded on
// infrastructure/resilience's retry-with-backoff idiom for the fixed
// 5s/10s/20s schedule, internal/app/httpapi/handler.go's use of
// crypto/subtle for constant-time comparison, and the teacher's gasbank
// dead-letter concept for undeliverable events.
package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enrichlayer/core/infrastructure/metrics"
	"github.com/enrichlayer/core/internal/app/apierr"
	domainwebhook "github.com/enrichlayer/core/internal/app/domain/webhook"
	"github.com/enrichlayer/core/pkg/logger"
)

// retrySchedule is spec 4.5's fixed backoff: 4 total attempts (the initial
// try plus 3 retries delayed 5s, 10s, 20s).
var retrySchedule = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

const deliveryTimeout = 10 * time.Second

type Service struct {
	store   Store
	client  *http.Client
	log     *logger.Logger
	clock   func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithMetrics attaches a Metrics instance so every delivery attempt and
// dead-letter also updates the Prometheus series cmd/appserver exposes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		client: &http.Client{Timeout: deliveryTimeout},
		log:    log,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSubscription implements spec 4.5's createSubscription.
func (s *Service) CreateSubscription(ctx context.Context, workspaceID, userID, callbackURL string, eventTypes []string) (domainwebhook.Subscription, error) {
	if err := validateCallbackURL(callbackURL); err != nil {
		return domainwebhook.Subscription{}, err
	}
	if len(eventTypes) == 0 {
		return domainwebhook.Subscription{}, apierr.Validation("at least one event type is required")
	}

	secret, err := generateSecret()
	if err != nil {
		return domainwebhook.Subscription{}, apierr.Internal(fmt.Errorf("generate secret: %w", err))
	}

	sub := domainwebhook.Subscription{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		CallbackURL: callbackURL,
		EventTypes:  eventTypes,
		SecretKey:   secret,
		Active:      true,
		CreatedAt:   s.clock(),
	}
	if err := s.store.InsertSubscription(ctx, sub); err != nil {
		return domainwebhook.Subscription{}, apierr.Internal(fmt.Errorf("insert subscription: %w", err))
	}
	return sub, nil
}

// generateSecret returns a 32-byte random secret encoded as 64 hex chars.
func generateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// DeliverEvent implements spec 4.5's deliverEvent: looks up every active
// subscription interested in payload.Event and fans out concurrently,
// never returning an error to the caller — every failure is logged and,
// once retries are exhausted, dead-lettered.
func (s *Service) DeliverEvent(ctx context.Context, workspaceID string, payload domainwebhook.Payload) {
	subs, err := s.store.ActiveSubscriptionsForWorkspace(ctx, workspaceID)
	if err != nil {
		s.log.WithField("workspace_id", workspaceID).Warnf("failed to list subscriptions: %v", err)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Warnf("failed to marshal webhook payload: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		if !sub.SupportsEvent(payload.Event) {
			continue
		}
		wg.Add(1)
		go func(sub domainwebhook.Subscription) {
			defer wg.Done()
			s.deliverWithRetry(ctx, sub, body)
		}(sub)
	}
	wg.Wait()
}

func (s *Service) deliverWithRetry(ctx context.Context, sub domainwebhook.Subscription, body []byte) {
	attempts := 1 + len(retrySchedule)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retrySchedule[attempt-1]):
			case <-ctx.Done():
				return
			}
		}

		err := s.attemptDelivery(ctx, sub, body)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordWebhookDelivery("delivered")
			}
			return
		}
		lastErr = err
		if s.metrics != nil {
			s.metrics.RecordWebhookDelivery("retrying")
		}
		s.log.WithFields(map[string]interface{}{
			"subscription_id": sub.ID,
			"attempt":         attempt + 1,
		}).Warnf("webhook delivery attempt failed: %v", err)
	}

	s.log.WithField("subscription_id", sub.ID).Errorf("webhook delivery exhausted all attempts: %v", lastErr)
	dl := domainwebhook.DeadLetter{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		WorkspaceID:    sub.WorkspaceID,
		Payload:        body,
		LastError:      errString(lastErr),
		Attempts:       attempts,
		CreatedAt:      s.clock(),
	}
	if err := s.store.UpsertDeadLetter(ctx, dl); err != nil {
		s.log.WithField("subscription_id", sub.ID).Errorf("failed to persist dead letter: %v", err)
	}
	if s.metrics != nil {
		s.metrics.RecordWebhookDelivery("dead_letter")
	}
}

func (s *Service) attemptDelivery(ctx context.Context, sub domainwebhook.Subscription, body []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	timestamp := s.clock().Unix()
	signature := sign(sub.SecretKey, timestamp, body)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", timestamp))
	req.Header.Set("X-Webhook-Signature", "sha256="+signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
