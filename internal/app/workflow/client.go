// Package workflow abstracts the durable execution engine the Enrichment
// Workflow runs on. Per spec §9's redesign note ("Dynamic mock injection in
// tests... expose the enrichment service as a value parameterised by a
// WorkflowClient interface"), the core depends only on Client; RedisClient,
// backed by a go-redis/redis/v8 list, and InProcessClient, which runs each
// workflow on a goroutine, stand in for an external workflow engine (spec §6 explicitly allows "any engine
// providing these primitives").
package workflow

import (
	"context"

	"github.com/enrichlayer/core/internal/app/domain/enrichment"
	"github.com/enrichlayer/core/internal/app/domain/provider"
)

// Input is the payload the Enrichment Service hands to the workflow engine
// at step 9 of createJob: {jobId, workspaceId, batches, requestedFields,
// waterfallConfig, fieldProviders}.
type Input struct {
	JobID           string
	WorkspaceID     string
	Batches         [][]enrichment.Record
	RequestedFields []provider.Field
	WaterfallConfig provider.WaterfallConfig
	FieldProviders  map[provider.Field][]string
}

// Handler is the deterministic workflow driver function the engine invokes
// for a started workflow. cancelled reports whether a cancellation signal
// has been received; the driver must check it "at every level" per spec
// 4.8.
type Handler func(ctx context.Context, input Input, cancelled func() bool) error

// Client is the narrow interface the Enrichment Service depends on. It
// never touches persistence or credits directly — those are the activity's
// job.
type Client interface {
	// Start begins a workflow keyed by workflowID (spec's
	// "enrichment-job-{jobId}" naming) on a known task queue.
	Start(ctx context.Context, workflowID string, input Input) error
	// Cancel sets the cancellation signal for a running workflow.
	Cancel(ctx context.Context, workflowID string) error
}
