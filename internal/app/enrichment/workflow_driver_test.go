package enrichment

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichlayer/core/internal/app/breaker"
	"github.com/enrichlayer/core/internal/app/credit"
	domainenrichment "github.com/enrichlayer/core/internal/app/domain/enrichment"
	"github.com/enrichlayer/core/internal/app/domain/provider"
	domainwebhook "github.com/enrichlayer/core/internal/app/domain/webhook"
	"github.com/enrichlayer/core/internal/app/registry"
	"github.com/enrichlayer/core/internal/app/vault"
	"github.com/enrichlayer/core/internal/app/workflow"
	"github.com/enrichlayer/core/pkg/logger"
)

type recordingWebhookDelivery struct {
	mu       sync.Mutex
	payloads []domainwebhook.Payload
}

func (r *recordingWebhookDelivery) DeliverEvent(ctx context.Context, workspaceID string, payload domainwebhook.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
}

func alwaysFalse() bool { return false }

func newTestDriver(t *testing.T, def provider.Definition, startingBalance int) (*WorkflowDriver, *memJobStore, *fakeCreditStore, *recordingWebhookDelivery) {
	t.Helper()
	reg, err := registry.New([]provider.Definition{def})
	require.NoError(t, err)
	breakers := breaker.NewRegistry(breaker.Config{})
	creditStore := newFakeCreditStore(t, startingBalance)
	creditSvc := credit.New(creditStore, logger.NewDefault("workflow_test"))
	vaultStore := newMemVaultStore()
	storeCredential(t, vaultStore, "ws-1", def.Slug)
	vaultSvc := vault.New(vaultStore, logger.NewDefault("workflow_test"))
	records := newMemRecordStore()
	act := NewActivity(reg, breakers, creditSvc, vaultSvc, testMasterKey(), records, logger.NewDefault("workflow_test"))

	jobs := newMemJobStore()
	hooks := &recordingWebhookDelivery{}
	driver := NewWorkflowDriver(act, jobs, hooks, logger.NewDefault("workflow_test"))
	return driver, jobs, creditStore, hooks
}

func seedJob(t *testing.T, jobs *memJobStore, jobID string, totalRecords int) {
	t.Helper()
	err := jobs.Insert(context.Background(), domainenrichment.Job{
		ID:           jobID,
		WorkspaceID:  "ws-1",
		Status:       domainenrichment.JobPending,
		TotalRecords: totalRecords,
	})
	require.NoError(t, err)
}

func TestWorkflowRun_AllRecordsSucceed(t *testing.T) {
	adapter := provider.AdapterFunc(func(ctx context.Context, creds provider.Credentials, input map[string]interface{}) (provider.AdapterResult, error) {
		return provider.AdapterResult{Success: true, IsComplete: true, Data: map[string]interface{}{"email": "a@b.com"}}, nil
	})
	def := apolloDefinition(adapter)
	driver, jobs, creditStore, hooks := newTestDriver(t, def, 100)
	creditStore.expectTx() // record 0 debit
	creditStore.expectTx() // record 1 debit
	seedJob(t, jobs, "job-1", 2)

	input := workflow.Input{
		JobID:           "job-1",
		WorkspaceID:     "ws-1",
		Batches:         [][]domainenrichment.Record{{{"email": "a@b.com"}, {"email": "c@d.com"}}},
		RequestedFields: []provider.Field{"email"},
		FieldProviders:  map[provider.Field][]string{"email": {"apollo"}},
	}

	err := driver.Run(context.Background(), input, alwaysFalse)
	require.NoError(t, err)

	job, ok, err := jobs.Get(context.Background(), "ws-1", "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domainenrichment.JobCompleted, job.Status)
	assert.Equal(t, 2, job.CompletedRecords)
	assert.Equal(t, 0, job.FailedRecords)
	assert.Equal(t, 96, creditStore.balance())

	require.Len(t, hooks.payloads, 1)
	assert.Equal(t, "job.completed", hooks.payloads[0].Event)
}

func TestWorkflowRun_UnsatisfiedFieldFailsRecord(t *testing.T) {
	def := apolloDefinition(nil)
	driver, jobs, _, hooks := newTestDriver(t, def, 100)
	seedJob(t, jobs, "job-1", 1)

	input := workflow.Input{
		JobID:           "job-1",
		WorkspaceID:     "ws-1",
		Batches:         [][]domainenrichment.Record{{{"email": "a@b.com"}}},
		RequestedFields: []provider.Field{"email"},
		FieldProviders:  map[provider.Field][]string{"email": {}}, // no providers resolved
	}

	err := driver.Run(context.Background(), input, alwaysFalse)
	require.NoError(t, err)

	job, _, err := jobs.Get(context.Background(), "ws-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, domainenrichment.JobFailed, job.Status)
	assert.Equal(t, 0, job.CompletedRecords)
	assert.Equal(t, 1, job.FailedRecords)

	require.Len(t, hooks.payloads, 1)
	assert.Equal(t, "job.failed", hooks.payloads[0].Event)
}

func TestWorkflowRun_CancellationBeforeFirstRecordStopsEverything(t *testing.T) {
	def := apolloDefinition(nil)
	driver, jobs, creditStore, hooks := newTestDriver(t, def, 100)
	seedJob(t, jobs, "job-1", 1)

	input := workflow.Input{
		JobID:           "job-1",
		WorkspaceID:     "ws-1",
		Batches:         [][]domainenrichment.Record{{{"email": "a@b.com"}}},
		RequestedFields: []provider.Field{"email"},
		FieldProviders:  map[provider.Field][]string{"email": {"apollo"}},
	}

	err := driver.Run(context.Background(), input, func() bool { return true })
	require.NoError(t, err)

	job, _, err := jobs.Get(context.Background(), "ws-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, domainenrichment.JobCancelled, job.Status)
	assert.True(t, job.Cancelled)
	assert.Equal(t, 100, creditStore.balance(), "no activity should run once cancelled")

	require.Len(t, hooks.payloads, 1)
	assert.Equal(t, "job.cancelled", hooks.payloads[0].Event)
}

func TestWorkflowRun_PartialSuccessAcrossRecords(t *testing.T) {
	callCount := 0
	adapter := provider.AdapterFunc(func(ctx context.Context, creds provider.Credentials, input map[string]interface{}) (provider.AdapterResult, error) {
		callCount++
		if callCount == 1 {
			return provider.AdapterResult{Success: true, IsComplete: true, Data: map[string]interface{}{"email": "a@b.com"}}, nil
		}
		return provider.AdapterResult{Success: false, Error: "down"}, nil
	})
	def := apolloDefinition(adapter)
	driver, jobs, creditStore, hooks := newTestDriver(t, def, 100)
	creditStore.expectTx() // record 0 debit (success, no refund)
	creditStore.expectTx() // record 1 debit
	creditStore.expectTx() // record 1 refund
	seedJob(t, jobs, "job-1", 2)

	input := workflow.Input{
		JobID:           "job-1",
		WorkspaceID:     "ws-1",
		Batches:         [][]domainenrichment.Record{{{"email": "a@b.com"}, {"email": "c@d.com"}}},
		RequestedFields: []provider.Field{"email"},
		FieldProviders:  map[provider.Field][]string{"email": {"apollo"}},
	}

	err := driver.Run(context.Background(), input, alwaysFalse)
	require.NoError(t, err)

	job, _, err := jobs.Get(context.Background(), "ws-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, domainenrichment.JobPartiallyCompleted, job.Status)
	assert.Equal(t, 1, job.CompletedRecords)
	assert.Equal(t, 1, job.FailedRecords)

	require.Len(t, hooks.payloads, 1)
	assert.Equal(t, "job.partially_completed", hooks.payloads[0].Event)
}
