package enrichment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichlayer/core/internal/app/apierr"
	"github.com/enrichlayer/core/internal/app/credit"
	domainenrichment "github.com/enrichlayer/core/internal/app/domain/enrichment"
	"github.com/enrichlayer/core/internal/app/domain/provider"
	"github.com/enrichlayer/core/internal/app/registry"
	"github.com/enrichlayer/core/internal/app/workflow"
	"github.com/enrichlayer/core/pkg/logger"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]domainenrichment.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]domainenrichment.Job)}
}

func (s *memJobStore) Insert(ctx context.Context, job domainenrichment.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobStore) Get(ctx context.Context, workspaceID, jobID string) (domainenrichment.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.WorkspaceID != workspaceID {
		return domainenrichment.Job{}, false, nil
	}
	return j, true, nil
}

func (s *memJobStore) ListByWorkspace(ctx context.Context, workspaceID string, page, limit int) ([]domainenrichment.Job, int, error) {
	return nil, 0, nil
}

func (s *memJobStore) UpdateStatus(ctx context.Context, job domainenrichment.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

type fakeWorkflowClient struct {
	mu        sync.Mutex
	started   []workflow.Input
	startIDs  []string
	cancelled []string
}

func (f *fakeWorkflowClient) Start(ctx context.Context, workflowID string, input workflow.Input) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startIDs = append(f.startIDs, workflowID)
	f.started = append(f.started, input)
	return nil
}

func (f *fakeWorkflowClient) Cancel(ctx context.Context, workflowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, workflowID)
	return nil
}

func emailProviderDefinition() provider.Definition {
	return provider.Definition{
		Slug:              "hunter",
		SupportedFields:   []provider.Field{"email"},
		CreditCostPerCall: 1,
		InputSchema: provider.Schema{
			Fields: []provider.SchemaField{{Name: "email", Required: true}},
		},
	}
}

func newTestService(t *testing.T, startingBalance int) (*Service, *fakeCreditStore, *fakeWorkflowClient, *memJobStore) {
	t.Helper()
	reg, err := registry.New([]provider.Definition{emailProviderDefinition()})
	require.NoError(t, err)
	creditStore := newFakeCreditStore(t, startingBalance)
	creditSvc := credit.New(creditStore, logger.NewDefault("service_test"))
	wf := &fakeWorkflowClient{}
	jobs := newMemJobStore()
	records := newMemRecordStore()
	svc := NewService(reg, creditSvc, wf, jobs, records, logger.NewDefault("service_test"),
		WithClock(func() time.Time { return time.Unix(0, 0) }))
	return svc, creditStore, wf, jobs
}

func TestCreateJob_RejectsFieldWithNoProvider(t *testing.T) {
	svc, _, _, _ := newTestService(t, 1000)

	_, err := svc.CreateJob(context.Background(), CreateJobInput{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Records:     []domainenrichment.Record{{"email": "a@b.com"}},
		Fields:      []provider.Field{"phone_number"},
	})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
}

func TestCreateJob_RejectsUnknownWaterfallSlug(t *testing.T) {
	svc, _, _, _ := newTestService(t, 1000)

	_, err := svc.CreateJob(context.Background(), CreateJobInput{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Records:     []domainenrichment.Record{{"email": "a@b.com"}},
		Fields:      []provider.Field{"email"},
		WaterfallConfig: provider.WaterfallConfig{
			"email": provider.WaterfallFieldConfig{Providers: []string{"does-not-exist"}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
}

func TestCreateJob_RejectsRecordFailingInputSchema(t *testing.T) {
	svc, _, _, _ := newTestService(t, 1000)

	_, err := svc.CreateJob(context.Background(), CreateJobInput{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Records:     []domainenrichment.Record{{"not_email": "a@b.com"}},
		Fields:      []provider.Field{"email"},
	})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
	assert.Contains(t, err.Error(), "Record 0 fails validation")
}

func TestCreateJob_RejectsWhenBalanceBelowEstimate(t *testing.T) {
	svc, _, _, _ := newTestService(t, 0)

	_, err := svc.CreateJob(context.Background(), CreateJobInput{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Records:     []domainenrichment.Record{{"email": "a@b.com"}},
		Fields:      []provider.Field{"email"},
	})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeInsufficientCredits, apierr.CodeOf(err))
}

func TestCreateJob_HappyPathPersistsAndStartsWorkflow(t *testing.T) {
	svc, _, wf, jobs := newTestService(t, 1000)

	job, err := svc.CreateJob(context.Background(), CreateJobInput{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Records:     []domainenrichment.Record{{"email": "a@b.com"}},
		Fields:      []provider.Field{"email"},
	})
	require.NoError(t, err)
	assert.Equal(t, domainenrichment.JobPending, job.Status)
	assert.Equal(t, 1, job.EstimatedCredits)
	assert.Equal(t, []string{"hunter"}, job.FieldProviders["email"])

	stored, ok, err := jobs.Get(context.Background(), "ws-1", job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job.ID, stored.ID)

	require.Len(t, wf.startIDs, 1)
	assert.Equal(t, "enrichment-job-"+job.ID, wf.startIDs[0])
	assert.Equal(t, 1, len(wf.started[0].Batches))
}

func TestCancelJob_SignalsWorkflowAndMarksCancelled(t *testing.T) {
	svc, _, wf, jobs := newTestService(t, 1000)

	job, err := svc.CreateJob(context.Background(), CreateJobInput{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Records:     []domainenrichment.Record{{"email": "a@b.com"}},
		Fields:      []provider.Field{"email"},
	})
	require.NoError(t, err)

	err = svc.CancelJob(context.Background(), "ws-1", job.ID)
	require.NoError(t, err)

	assert.Contains(t, wf.cancelled, "enrichment-job-"+job.ID)
	stored, _, _ := jobs.Get(context.Background(), "ws-1", job.ID)
	assert.Equal(t, domainenrichment.JobCancelled, stored.Status)
	assert.True(t, stored.Cancelled)
}

func TestCancelJob_UnknownJobIsNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t, 1000)

	err := svc.CancelJob(context.Background(), "ws-1", "nonexistent")
	require.Error(t, err)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}
