package webhook

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/enrichlayer/core/pkg/logger"
)

// DefaultMaxSweeps bounds how many extra attempts a dead-lettered delivery
// gets before permanent abandonment (SPEC_FULL §C.3).
const DefaultMaxSweeps = 5

// RetrySweeper periodically gives dead-lettered deliveries one more
// attempt, a crash-recovery complement to the in-process retry goroutine
// in deliverWithRetry. Grounded on robfig/cron/v3 (teacher go.mod, unused
// in the teacher's own code).
type RetrySweeper struct {
	svc       *Service
	store     Store
	log       *logger.Logger
	cron      *cron.Cron
	maxSweeps int
}

func NewRetrySweeper(svc *Service, store Store, log *logger.Logger, maxSweeps int) *RetrySweeper {
	if maxSweeps <= 0 {
		maxSweeps = DefaultMaxSweeps
	}
	return &RetrySweeper{
		svc:       svc,
		store:     store,
		log:       log,
		cron:      cron.New(),
		maxSweeps: maxSweeps,
	}
}

// Start schedules the sweep on spec, e.g. "@every 5m", and begins running it
// in the background. Callers stop it via Stop at shutdown.
func (r *RetrySweeper) Start(spec string) error {
	_, err := r.cron.AddFunc(spec, r.sweepOnce)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *RetrySweeper) Stop() {
	r.cron.Stop()
}

func (r *RetrySweeper) sweepOnce() {
	ctx := context.Background()
	backlog, err := r.store.ListDeadLetters(ctx, r.maxSweeps)
	if err != nil {
		r.log.Warnf("retry sweeper: failed to list dead letters: %v", err)
		return
	}

	for _, dl := range backlog {
		sub, ok, err := r.store.GetSubscription(ctx, dl.SubscriptionID)
		if err != nil || !ok || !sub.Active {
			continue
		}
		if err := r.svc.attemptDelivery(ctx, sub, dl.Payload); err != nil {
			if incErr := r.store.IncrementSweepCount(ctx, dl.ID); incErr != nil {
				r.log.Warnf("retry sweeper: failed to increment sweep count for %s: %v", dl.ID, incErr)
			}
			continue
		}
		if err := r.store.RemoveDeadLetter(ctx, dl.ID); err != nil {
			r.log.Warnf("retry sweeper: failed to remove delivered dead letter %s: %v", dl.ID, err)
		}
	}
}
