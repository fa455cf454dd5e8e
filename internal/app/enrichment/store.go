package enrichment

import (
	"context"

	domainenrichment "github.com/enrichlayer/core/internal/app/domain/enrichment"
)

// JobStore persists EnrichmentJob rows. Grounded on the teacher's
// repository-interface-per-aggregate shape (internal/app/services/*/store.go).
type JobStore interface {
	Insert(ctx context.Context, job domainenrichment.Job) error
	Get(ctx context.Context, workspaceID, jobID string) (domainenrichment.Job, bool, error)
	ListByWorkspace(ctx context.Context, workspaceID string, page, limit int) ([]domainenrichment.Job, int, error)
	UpdateStatus(ctx context.Context, job domainenrichment.Job) error
}

// RecordStore persists EnrichmentRecord rows, enforcing the UNIQUE
// idempotencyKey constraint at the storage layer (spec 5's "INSERT ... ON
// CONFLICT DO NOTHING followed by a read-back").
type RecordStore interface {
	// GetByIdempotencyKey is the activity's step-1 idempotency probe.
	GetByIdempotencyKey(ctx context.Context, key string) (domainenrichment.EnrichmentRecord, bool, error)
	// InsertIfAbsent performs the INSERT ... ON CONFLICT DO NOTHING dance:
	// if a row with rec.IdempotencyKey already exists, the existing row is
	// returned instead of rec; inserted reports which happened.
	InsertIfAbsent(ctx context.Context, rec domainenrichment.EnrichmentRecord) (stored domainenrichment.EnrichmentRecord, inserted bool, err error)
	Get(ctx context.Context, workspaceID, recordID string) (domainenrichment.EnrichmentRecord, bool, error)
	ListByJob(ctx context.Context, workspaceID, jobID string, page, limit int) ([]domainenrichment.EnrichmentRecord, int, error)
}
