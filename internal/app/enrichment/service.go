package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/enrichlayer/core/internal/app/apierr"
	"github.com/enrichlayer/core/internal/app/credit"
	domainenrichment "github.com/enrichlayer/core/internal/app/domain/enrichment"
	"github.com/enrichlayer/core/internal/app/domain/provider"
	"github.com/enrichlayer/core/internal/app/registry"
	"github.com/enrichlayer/core/internal/app/workflow"
	"github.com/enrichlayer/core/pkg/logger"
)

// maxBatchSize is spec 4.6 step 6's "at most 1000" batch bound.
const maxBatchSize = 1000

// CreateJobInput is spec 4.6's createJob argument shape.
type CreateJobInput struct {
	WorkspaceID     string
	UserID          string
	Records         []domainenrichment.Record
	Fields          []provider.Field
	WaterfallConfig provider.WaterfallConfig
}

// Service implements the Enrichment Service: job intake (createJob), job
// lifecycle (cancelJob), and the scoped read operations. Grounded on
// internal/app/services' service-wraps-store-plus-collaborators shape,
// generalized to the registry/credit/workflow fan-out spec 4.6 requires.
type Service struct {
	registry *registry.Registry
	credits  *credit.Service
	workflow workflow.Client
	jobs     JobStore
	records  RecordStore
	log      *logger.Logger
	clock    func() time.Time
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func NewService(reg *registry.Registry, credits *credit.Service, wf workflow.Client, jobs JobStore, records RecordStore, log *logger.Logger, opts ...Option) *Service {
	s := &Service{registry: reg, credits: credits, workflow: wf, jobs: jobs, records: records, log: log, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob implements spec 4.6's ten-step createJob.
func (s *Service) CreateJob(ctx context.Context, in CreateJobInput) (domainenrichment.Job, error) {
	// Step 1: every requested field needs at least one supporting provider.
	for _, field := range in.Fields {
		if len(s.registry.GetProvidersForField(field)) == 0 {
			return domainenrichment.Job{}, apierr.Validation("no provider supports field %s", field)
		}
	}

	// Step 2: validate every waterfall-named slug against the catalog.
	if len(in.WaterfallConfig) > 0 {
		var allSlugs []string
		for _, cfg := range in.WaterfallConfig {
			allSlugs = append(allSlugs, cfg.Providers...)
		}
		if err := s.registry.ValidateProviders(allSlugs); err != nil {
			return domainenrichment.Job{}, err
		}
	}

	// Step 3: for each field, validate every record against the first
	// resolved provider's input schema. Every failing record across every
	// field is collected before failing the whole call, so a caller with a
	// typo in one field doesn't have to fix-and-resubmit one record at a
	// time.
	fieldProviders := make(map[provider.Field][]string, len(in.Fields))
	var validationErrs *multierror.Error
	for _, field := range in.Fields {
		slugs := s.registry.ResolveFieldProviders(field, in.WaterfallConfig)
		fieldProviders[field] = slugs
		if len(slugs) == 0 {
			continue
		}
		def, ok := s.registry.GetProvider(slugs[0])
		if !ok {
			continue
		}
		for i, rec := range in.Records {
			if issues := missingRequiredFields(def.InputSchema, rec); len(issues) > 0 {
				validationErrs = multierror.Append(validationErrs, fmt.Errorf(
					"Record %d fails validation for provider %s: %v", i, def.Slug, issues))
			}
		}
	}
	if validationErrs.ErrorOrNil() != nil {
		return domainenrichment.Job{}, apierr.Validation("%v", validationErrs)
	}

	// Step 4: estimate credits.
	estimated, err := s.registry.EstimateCredits(len(in.Records), in.Fields, in.WaterfallConfig)
	if err != nil {
		return domainenrichment.Job{}, err
	}

	// Step 5: check balance.
	billing, err := s.credits.GetBilling(ctx, in.WorkspaceID)
	if err != nil {
		return domainenrichment.Job{}, err
	}
	if billing.CurrentBalance < estimated {
		return domainenrichment.Job{}, apierr.InsufficientCredits(
			"workspace %s has %d credits, needs %d to run this job", in.WorkspaceID, billing.CurrentBalance, estimated)
	}

	// Step 6: batch.
	batches := domainenrichment.BatchesOf(in.Records, maxBatchSize)

	// Step 7: persist the job row.
	now := s.clock()
	job := domainenrichment.Job{
		ID:               uuid.NewString(),
		WorkspaceID:      in.WorkspaceID,
		Status:           domainenrichment.JobPending,
		RequestedFields:  in.Fields,
		WaterfallConfig:  in.WaterfallConfig,
		Records:          in.Records,
		FieldProviders:   fieldProviders,
		TotalRecords:     len(in.Records),
		EstimatedCredits: estimated,
		CreatedBy:        in.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.jobs.Insert(ctx, job); err != nil {
		return domainenrichment.Job{}, apierr.Internal(fmt.Errorf("insert job: %w", err))
	}

	// Step 9: start the durable workflow. (Step 8, fieldProviders, was
	// already computed above for use in the input validation loop.)
	wfInput := workflow.Input{
		JobID:           job.ID,
		WorkspaceID:     job.WorkspaceID,
		Batches:         batches,
		RequestedFields: job.RequestedFields,
		WaterfallConfig: job.WaterfallConfig,
		FieldProviders:  fieldProviders,
	}
	if err := s.workflow.Start(ctx, workflowID(job.ID), wfInput); err != nil {
		return domainenrichment.Job{}, apierr.Internal(fmt.Errorf("start workflow: %w", err))
	}

	s.log.WithFields(map[string]interface{}{
		"job_id":       job.ID,
		"workspace_id": job.WorkspaceID,
		"records":      job.TotalRecords,
		"estimated":    estimated,
	}).Info("enrichment job created")

	return job, nil
}

// CancelJob implements spec 4.6's cancelJob.
func (s *Service) CancelJob(ctx context.Context, workspaceID, jobID string) error {
	job, ok, err := s.jobs.Get(ctx, workspaceID, jobID)
	if err != nil {
		return apierr.Internal(fmt.Errorf("get job: %w", err))
	}
	if !ok {
		return apierr.NotFound("job %s not found", jobID)
	}
	if err := s.workflow.Cancel(ctx, workflowID(job.ID)); err != nil {
		return apierr.Internal(fmt.Errorf("signal cancel: %w", err))
	}
	job.Status = domainenrichment.JobCancelled
	job.Cancelled = true
	job.UpdatedAt = s.clock()
	if err := s.jobs.UpdateStatus(ctx, job); err != nil {
		return apierr.Internal(fmt.Errorf("update job status: %w", err))
	}
	return nil
}

// GetJob implements spec 4.6's getJob.
func (s *Service) GetJob(ctx context.Context, workspaceID, jobID string) (domainenrichment.Job, error) {
	job, ok, err := s.jobs.Get(ctx, workspaceID, jobID)
	if err != nil {
		return domainenrichment.Job{}, apierr.Internal(fmt.Errorf("get job: %w", err))
	}
	if !ok {
		return domainenrichment.Job{}, apierr.NotFound("job %s not found", jobID)
	}
	return job, nil
}

// ListJobs implements spec 4.6's listJobs.
func (s *Service) ListJobs(ctx context.Context, workspaceID string, page, limit int) ([]domainenrichment.Job, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 25
	}
	jobs, total, err := s.jobs.ListByWorkspace(ctx, workspaceID, page, limit)
	if err != nil {
		return nil, 0, apierr.Internal(fmt.Errorf("list jobs: %w", err))
	}
	return jobs, total, nil
}

// GetRecord implements spec 4.6's getRecord.
func (s *Service) GetRecord(ctx context.Context, workspaceID, recordID string) (domainenrichment.EnrichmentRecord, error) {
	rec, ok, err := s.records.Get(ctx, workspaceID, recordID)
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, apierr.Internal(fmt.Errorf("get record: %w", err))
	}
	if !ok {
		return domainenrichment.EnrichmentRecord{}, apierr.NotFound("record %s not found", recordID)
	}
	return rec, nil
}

// ListRecords implements spec 4.6's listRecords.
func (s *Service) ListRecords(ctx context.Context, workspaceID, jobID string, page, limit int) ([]domainenrichment.EnrichmentRecord, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 25
	}
	recs, total, err := s.records.ListByJob(ctx, workspaceID, jobID, page, limit)
	if err != nil {
		return nil, 0, apierr.Internal(fmt.Errorf("list records: %w", err))
	}
	return recs, total, nil
}

// workflowID implements spec 4.6 step 9's "enrichment-job-{jobId}" naming.
func workflowID(jobID string) string {
	return fmt.Sprintf("enrichment-job-%s", jobID)
}

// missingRequiredFields reports which required input-schema field names are
// absent or nil in rec.
func missingRequiredFields(schema provider.Schema, rec domainenrichment.Record) []string {
	var missing []string
	for _, name := range schema.RequiredFieldNames() {
		v, ok := rec[name]
		if !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}
