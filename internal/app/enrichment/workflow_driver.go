package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/enrichlayer/core/internal/app/apierr"
	"github.com/enrichlayer/core/internal/app/core/service"
	domainenrichment "github.com/enrichlayer/core/internal/app/domain/enrichment"
	"github.com/enrichlayer/core/internal/app/domain/provider"
	domainwebhook "github.com/enrichlayer/core/internal/app/domain/webhook"
	"github.com/enrichlayer/core/internal/app/workflow"
	"github.com/enrichlayer/core/pkg/logger"
)

// WebhookDelivery is the narrow slice of webhook.Service the workflow driver
// needs, kept as an interface so tests can substitute a recorder instead of
// standing up a real webhook.Service.
type WebhookDelivery interface {
	DeliverEvent(ctx context.Context, workspaceID string, payload domainwebhook.Payload)
}

// enrichRecordTimeout and enrichRecordRetry are spec 4.8's activity proxy
// settings for enrichRecord: 30s start-to-close, 3 attempts, 1s initial
// backoff, 2x multiplier.
var enrichRecordRetry = service.RetryPolicy{Attempts: 3, InitialBackoff: time.Second, Multiplier: 2}

const enrichRecordTimeout = 30 * time.Second

// WorkflowDriver is the deterministic Enrichment Workflow of spec 4.8. It
// touches external state only through Activity and the job/webhook
// collaborators passed at construction, mirroring spec 6's "core depends on
// a durable task engine" contract: the Handler this type exposes is what
// workflow.Client.Start/Worker.Run actually execute.
type WorkflowDriver struct {
	activity *Activity
	jobs     JobStore
	webhooks WebhookDelivery
	log      *logger.Logger
	clock    func() time.Time
}

func NewWorkflowDriver(activity *Activity, jobs JobStore, webhooks WebhookDelivery, log *logger.Logger) *WorkflowDriver {
	return &WorkflowDriver{activity: activity, jobs: jobs, webhooks: webhooks, log: log, clock: time.Now}
}

// Handler adapts Run to the workflow.Handler signature the engine invokes.
func (d *WorkflowDriver) Handler() workflow.Handler {
	return d.Run
}

// Run implements spec 4.8's algorithm.
func (d *WorkflowDriver) Run(ctx context.Context, input workflow.Input, cancelled func() bool) error {
	job, ok, err := d.jobs.Get(ctx, input.WorkspaceID, input.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.NotFound("job %s no longer exists", input.JobID)
	}

	// Step 1: mark running.
	job.Status = domainenrichment.JobRunning
	job.UpdatedAt = d.clock()
	if err := d.jobs.UpdateStatus(ctx, job); err != nil {
		return err
	}

	completedRecords := 0
	failedRecords := 0
	wasCancelled := false

	globalIdx := 0
batchLoop:
	for _, batch := range input.Batches {
		for localIdx, record := range batch {
			if cancelled() {
				wasCancelled = true
				break batchLoop
			}
			recordIndex := globalIdx + localIdx
			satisfied, midRecordCancel := d.enrichOneRecord(ctx, input, record, recordIndex, cancelled)
			if midRecordCancel {
				wasCancelled = true
				break batchLoop
			}
			if satisfied {
				completedRecords++
			} else {
				failedRecords++
			}
		}
		globalIdx += len(batch)
	}

	finalStatus := deriveFinalStatus(wasCancelled, job.TotalRecords, completedRecords, failedRecords)

	job.Status = finalStatus
	job.CompletedRecords = completedRecords
	job.FailedRecords = failedRecords
	job.Cancelled = wasCancelled
	now := d.clock()
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := d.jobs.UpdateStatus(ctx, job); err != nil {
		return err
	}

	if d.webhooks != nil {
		d.webhooks.DeliverEvent(ctx, input.WorkspaceID, domainwebhook.Payload{
			Event: "job." + string(finalStatus),
			Data: map[string]interface{}{
				"jobId":            input.JobID,
				"totalRecords":     job.TotalRecords,
				"completedRecords": completedRecords,
				"failedRecords":    failedRecords,
			},
		})
	}

	return nil
}

// enrichOneRecord resolves every requested field for one record in order,
// walking each field's waterfall until a provider satisfies it. It reports
// whether every field was satisfied (the record counts as completed) per
// spec 4.8 step 2, and separately whether cancellation was observed partway
// through — a record left half-done by cancellation must not count toward
// either completedRecords or failedRecords.
func (d *WorkflowDriver) enrichOneRecord(ctx context.Context, input workflow.Input, record domainenrichment.Record, recordIndex int, cancelled func() bool) (satisfied, midRecordCancel bool) {
	recordAllFieldsSuccess := true

	for _, field := range input.RequestedFields {
		if cancelled() {
			return false, true
		}
		providers := input.FieldProviders[field]
		if len(providers) == 0 {
			recordAllFieldsSuccess = false
			continue
		}

		fieldSatisfied := false
		for _, slug := range providers {
			if cancelled() {
				return false, true
			}
			idempotencyKey := fieldIdempotencyKey(input.JobID, recordIndex, field, slug)
			result, err := d.callEnrichRecord(ctx, ActivityInput{
				JobID:          input.JobID,
				WorkspaceID:    input.WorkspaceID,
				RecordIndex:    recordIndex,
				InputData:      record,
				FieldName:      field,
				ProviderSlug:   slug,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				// Activity exceptions that aren't cancellations are
				// swallowed here; the waterfall tries the next provider.
				d.log.WithField("idempotency_key", idempotencyKey).Warnf("enrichRecord failed after retries: %v", err)
				continue
			}
			if result.Success && result.IsComplete {
				fieldSatisfied = true
				break
			}
		}
		if !fieldSatisfied {
			recordAllFieldsSuccess = false
		}
	}

	return recordAllFieldsSuccess, false
}

// callEnrichRecord proxies Activity.EnrichRecord with spec 4.8's retry
// policy and 30s start-to-close bound for the enrichRecord activity.
func (d *WorkflowDriver) callEnrichRecord(ctx context.Context, in ActivityInput) (ActivityResult, error) {
	var result ActivityResult
	err := service.Retry(ctx, enrichRecordRetry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, enrichRecordTimeout)
		defer cancel()
		r, err := d.activity.EnrichRecord(callCtx, in)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// fieldIdempotencyKey implements spec 4.8's "{jobId}:{recordIndex}:{field}:{slug}".
func fieldIdempotencyKey(jobID string, recordIndex int, field provider.Field, slug string) string {
	return fmt.Sprintf("%s:%d:%s:%s", jobID, recordIndex, field, slug)
}

func deriveFinalStatus(cancelled bool, totalRecords, completedRecords, failedRecords int) domainenrichment.JobStatus {
	switch {
	case cancelled:
		return domainenrichment.JobCancelled
	case failedRecords == 0 && completedRecords == totalRecords:
		return domainenrichment.JobCompleted
	case completedRecords == 0:
		return domainenrichment.JobFailed
	default:
		return domainenrichment.JobPartiallyCompleted
	}
}
