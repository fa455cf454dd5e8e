// Package enrichment holds the data shapes for jobs and records. Behavior
// lives in internal/app/enrichment (service, activity, workflow driver).
package enrichment

import (
	"time"

	"github.com/enrichlayer/core/internal/app/domain/provider"
)

// JobStatus is the EnrichmentJob lifecycle stage.
type JobStatus string

const (
	JobPending            JobStatus = "pending"
	JobRunning            JobStatus = "running"
	JobCompleted          JobStatus = "completed"
	JobFailed             JobStatus = "failed"
	JobPartiallyCompleted JobStatus = "partially_completed"
	JobCancelled          JobStatus = "cancelled"
)

// Record is one input row submitted in a job, keyed by its absolute index
// across all batches.
type Record map[string]interface{}

// Job is an EnrichmentJob per spec §3.
type Job struct {
	ID               string
	WorkspaceID      string
	Status           JobStatus
	RequestedFields  []provider.Field
	WaterfallConfig  provider.WaterfallConfig
	Records          []Record
	FieldProviders   map[provider.Field][]string
	TotalRecords     int
	CompletedRecords int
	FailedRecords    int
	EstimatedCredits int
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	Cancelled        bool
}

// RecordStatus is an EnrichmentRecord's terminal outcome.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// EnrichmentRecord is the per-(record,field,provider) persisted outcome,
// uniquely keyed by IdempotencyKey.
type EnrichmentRecord struct {
	ID                string
	JobID             string
	WorkspaceID       string
	RecordIndex       int
	FieldName         provider.Field
	InputData         map[string]interface{}
	OutputData        map[string]interface{}
	ProviderSlug        string
	CreditsConsumed     int
	Status              RecordStatus
	IsComplete          bool
	ErrorReason         string
	IdempotencyKey      string
	CreditTransactionID string
	CreatedAt           time.Time
}

// BatchesOf splits records into batches of at most size, preserving order.
func BatchesOf(records []Record, size int) [][]Record {
	if size <= 0 {
		size = 1000
	}
	var batches [][]Record
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[i:end])
	}
	return batches
}
