package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/enrichlayer/core/internal/app/core/service"
	domainenrichment "github.com/enrichlayer/core/internal/app/domain/enrichment"
	"github.com/enrichlayer/core/internal/app/domain/provider"
)

// JobStore implements enrichment.JobStore on PostgreSQL.
type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

func fieldsToStrings(fields []provider.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

func stringsToFields(strs []string) []provider.Field {
	out := make([]provider.Field, len(strs))
	for i, s := range strs {
		out[i] = provider.Field(s)
	}
	return out
}

func (s *JobStore) Insert(ctx context.Context, job domainenrichment.Job) error {
	waterfallJSON, err := json.Marshal(job.WaterfallConfig)
	if err != nil {
		return err
	}
	recordsJSON, err := json.Marshal(job.Records)
	if err != nil {
		return err
	}
	fieldProvidersJSON, err := json.Marshal(job.FieldProviders)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_jobs
			(id, workspace_id, status, requested_fields, waterfall_config, records, field_providers,
			 total_records, completed_records, failed_records, estimated_credits, created_by, created_at, updated_at, cancelled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, job.ID, job.WorkspaceID, job.Status, pq.Array(fieldsToStrings(job.RequestedFields)), waterfallJSON, recordsJSON, fieldProvidersJSON,
		job.TotalRecords, job.CompletedRecords, job.FailedRecords, job.EstimatedCredits, job.CreatedBy, job.CreatedAt, job.UpdatedAt, job.Cancelled)
	return err
}

func (s *JobStore) scanJob(row interface{ Scan(dest ...interface{}) error }) (domainenrichment.Job, error) {
	var job domainenrichment.Job
	var requestedFields []string
	var waterfallJSON, recordsJSON, fieldProvidersJSON []byte
	err := row.Scan(&job.ID, &job.WorkspaceID, &job.Status, pq.Array(&requestedFields), &waterfallJSON, &recordsJSON, &fieldProvidersJSON,
		&job.TotalRecords, &job.CompletedRecords, &job.FailedRecords, &job.EstimatedCredits, &job.CreatedBy, &job.CreatedAt, &job.UpdatedAt,
		&job.CompletedAt, &job.Cancelled)
	if err != nil {
		return domainenrichment.Job{}, err
	}
	job.RequestedFields = stringsToFields(requestedFields)
	if err := json.Unmarshal(waterfallJSON, &job.WaterfallConfig); err != nil {
		return domainenrichment.Job{}, err
	}
	if err := json.Unmarshal(recordsJSON, &job.Records); err != nil {
		return domainenrichment.Job{}, err
	}
	if err := json.Unmarshal(fieldProvidersJSON, &job.FieldProviders); err != nil {
		return domainenrichment.Job{}, err
	}
	return job, nil
}

const jobColumns = `id, workspace_id, status, requested_fields, waterfall_config, records, field_providers,
		total_records, completed_records, failed_records, estimated_credits, created_by, created_at, updated_at,
		completed_at, cancelled`

func (s *JobStore) Get(ctx context.Context, workspaceID, jobID string) (domainenrichment.Job, bool, error) {
	row := s.db.QueryRowxContext(ctx, `SELECT `+jobColumns+` FROM enrichment_jobs WHERE id = $1 AND workspace_id = $2`, jobID, workspaceID)
	job, err := s.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domainenrichment.Job{}, false, nil
	}
	if err != nil {
		return domainenrichment.Job{}, false, err
	}
	return job, true, nil
}

func (s *JobStore) ListByWorkspace(ctx context.Context, workspaceID string, page, limit int) ([]domainenrichment.Job, int, error) {
	if page <= 0 {
		page = 1
	}
	limit = service.ClampLimit(limit, service.DefaultListLimit, service.MaxListLimit)
	offset := (page - 1) * limit

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT count(*) FROM enrichment_jobs WHERE workspace_id = $1`, workspaceID); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+jobColumns+`
		FROM enrichment_jobs
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, workspaceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []domainenrichment.Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func (s *JobStore) UpdateStatus(ctx context.Context, job domainenrichment.Job) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_jobs
		SET status = $2, completed_records = $3, failed_records = $4, updated_at = $5, completed_at = $6, cancelled = $7
		WHERE id = $1
	`, job.ID, job.Status, job.CompletedRecords, job.FailedRecords, job.UpdatedAt, job.CompletedAt, job.Cancelled)
	return err
}

// RecordStore implements enrichment.RecordStore on PostgreSQL, enforcing the
// idempotency_key UNIQUE constraint at the database layer.
type RecordStore struct {
	db *sqlx.DB
}

func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

const recordColumns = `id, job_id, workspace_id, record_index, field_name, input_data, output_data,
		provider_slug, credits_consumed, status, is_complete, error_reason, idempotency_key, credit_transaction_id, created_at`

func (s *RecordStore) scanRecord(row interface{ Scan(dest ...interface{}) error }) (domainenrichment.EnrichmentRecord, error) {
	var rec domainenrichment.EnrichmentRecord
	var inputJSON, outputJSON []byte
	err := row.Scan(&rec.ID, &rec.JobID, &rec.WorkspaceID, &rec.RecordIndex, &rec.FieldName, &inputJSON, &outputJSON,
		&rec.ProviderSlug, &rec.CreditsConsumed, &rec.Status, &rec.IsComplete, &rec.ErrorReason, &rec.IdempotencyKey,
		&rec.CreditTransactionID, &rec.CreatedAt)
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, err
	}
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &rec.InputData); err != nil {
			return domainenrichment.EnrichmentRecord{}, err
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &rec.OutputData); err != nil {
			return domainenrichment.EnrichmentRecord{}, err
		}
	}
	return rec, nil
}

func (s *RecordStore) GetByIdempotencyKey(ctx context.Context, key string) (domainenrichment.EnrichmentRecord, bool, error) {
	row := s.db.QueryRowxContext(ctx, `SELECT `+recordColumns+` FROM enrichment_records WHERE idempotency_key = $1`, key)
	rec, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domainenrichment.EnrichmentRecord{}, false, nil
	}
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, false, err
	}
	return rec, true, nil
}

// InsertIfAbsent implements the INSERT ... ON CONFLICT DO NOTHING followed
// by a read-back idiom spec 5 requires: if idempotencyKey already exists,
// the pre-existing row wins and inserted is false.
func (s *RecordStore) InsertIfAbsent(ctx context.Context, rec domainenrichment.EnrichmentRecord) (domainenrichment.EnrichmentRecord, bool, error) {
	inputJSON, err := json.Marshal(rec.InputData)
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, false, err
	}
	outputJSON, err := json.Marshal(rec.OutputData)
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO enrichment_records
			(id, job_id, workspace_id, record_index, field_name, input_data, output_data, provider_slug,
			 credits_consumed, status, is_complete, error_reason, idempotency_key, credit_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, rec.ID, rec.JobID, rec.WorkspaceID, rec.RecordIndex, rec.FieldName, inputJSON, outputJSON, rec.ProviderSlug,
		rec.CreditsConsumed, rec.Status, rec.IsComplete, rec.ErrorReason, rec.IdempotencyKey, rec.CreditTransactionID, rec.CreatedAt)
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, false, err
	}
	if affected == 1 {
		return rec, true, nil
	}

	existing, ok, err := s.GetByIdempotencyKey(ctx, rec.IdempotencyKey)
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, false, err
	}
	if !ok {
		return domainenrichment.EnrichmentRecord{}, false, errors.New("record vanished after conflicting insert")
	}
	return existing, false, nil
}

func (s *RecordStore) Get(ctx context.Context, workspaceID, recordID string) (domainenrichment.EnrichmentRecord, bool, error) {
	row := s.db.QueryRowxContext(ctx, `SELECT `+recordColumns+` FROM enrichment_records WHERE id = $1 AND workspace_id = $2`, recordID, workspaceID)
	rec, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domainenrichment.EnrichmentRecord{}, false, nil
	}
	if err != nil {
		return domainenrichment.EnrichmentRecord{}, false, err
	}
	return rec, true, nil
}

func (s *RecordStore) ListByJob(ctx context.Context, workspaceID, jobID string, page, limit int) ([]domainenrichment.EnrichmentRecord, int, error) {
	if page <= 0 {
		page = 1
	}
	limit = service.ClampLimit(limit, service.DefaultListLimit, service.MaxListLimit)
	offset := (page - 1) * limit

	var total int
	if err := s.db.GetContext(ctx, &total, `
		SELECT count(*) FROM enrichment_records WHERE workspace_id = $1 AND job_id = $2
	`, workspaceID, jobID); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+recordColumns+`
		FROM enrichment_records
		WHERE workspace_id = $1 AND job_id = $2
		ORDER BY record_index
		LIMIT $3 OFFSET $4
	`, workspaceID, jobID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domainenrichment.EnrichmentRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
