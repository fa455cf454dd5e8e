package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/enrichlayer/core/pkg/logger"
)

const (
	queueKey        = "enrichlayer:workflow:queue"
	cancelKeyPrefix = "enrichlayer:workflow:cancelled:"
)

// task is the JSON envelope pushed onto the Redis list.
type task struct {
	WorkflowID string `json:"workflowId"`
	Input      Input  `json:"input"`
}

// RedisClient implements Client over a go-redis list: Start does an LPUSH
// onto one shared queue key, Cancel sets a per-workflow flag key (a plain
// SET with a 24h expiry) that Worker checks with EXISTS and IsCancelled
// reports. No idempotency cache is kept in Redis.
type RedisClient struct {
	rdb *redis.Client
	log *logger.Logger
}

func NewRedisClient(rdb *redis.Client, log *logger.Logger) *RedisClient {
	return &RedisClient{rdb: rdb, log: log}
}

func (c *RedisClient) Start(ctx context.Context, workflowID string, input Input) error {
	t := task{WorkflowID: workflowID, Input: input}
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal workflow task: %w", err)
	}
	return c.rdb.LPush(ctx, queueKey, body).Err()
}

func (c *RedisClient) Cancel(ctx context.Context, workflowID string) error {
	return c.rdb.Set(ctx, cancelKeyPrefix+workflowID, "1", 24*time.Hour).Err()
}

// IsCancelled reports whether workflowID has a live cancellation flag.
func (c *RedisClient) IsCancelled(ctx context.Context, workflowID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, cancelKeyPrefix+workflowID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Worker drains the task queue with BRPOP and runs each task through
// handler, treating the loop as the workflow engine's "parallel across
// distinct jobs" property (spec §5): multiple Worker goroutines may pull
// from the same queue concurrently, while each individual task is driven
// serially by the handler itself.
type Worker struct {
	rdb     *redis.Client
	handler Handler
	log     *logger.Logger
}

func NewWorker(rdb *redis.Client, handler Handler, log *logger.Logger) *Worker {
	return &Worker{rdb: rdb, handler: handler, log: log}
}

// Run blocks, processing tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := w.rdb.BRPop(ctx, 5*time.Second, queueKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warnf("workflow worker: BRPOP failed: %v", err)
			continue
		}
		// result is [key, value]
		if len(result) != 2 {
			continue
		}
		var t task
		if err := json.Unmarshal([]byte(result[1]), &t); err != nil {
			w.log.Warnf("workflow worker: failed to decode task: %v", err)
			continue
		}
		w.runTask(ctx, t)
	}
}

func (w *Worker) runTask(ctx context.Context, t task) {
	cancelled := func() bool {
		n, err := w.rdb.Exists(ctx, cancelKeyPrefix+t.WorkflowID).Result()
		if err != nil {
			return false
		}
		return n > 0
	}
	if err := w.handler(ctx, t.Input, cancelled); err != nil {
		w.log.WithField("workflow_id", t.WorkflowID).Errorf("workflow failed: %v", err)
	}
}
