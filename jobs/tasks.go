package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/bizstore/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditSync pushes the device audit log to the remote store.
	TaskAuditSync = "audit:sync"
)

// DefaultMaxRetry bounds retries of best-effort tasks.
const DefaultMaxRetry = 3

// Task is a unit of best-effort work. Losing it is tolerated.
type Task struct {
	Type    string
	Payload []byte
}

// BestEffort accepts non-critical writes. Submit only reports whether the
// task was accepted; its outcome never reaches the caller.
type BestEffort interface {
	Submit(ctx context.Context, task Task) error
}

// TaskFunc processes a task payload. Returning an error wrapping
// asynq.SkipRetry abandons the task without further attempts.
type TaskFunc func(ctx context.Context, payload []byte) error

// AsynqHandler adapts h for the Asynq server mux.
func AsynqHandler(taskType string, h TaskFunc, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		err := metrics.Track(taskType).End(h(ctx, t.Payload()))
		if err != nil && isFinalAttempt(ctx, err) {
			metrics.Dropped(taskType, err)
		}
		return err
	}
}

func isFinalAttempt(ctx context.Context, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retried, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	return ok1 && ok2 && retried >= maxRetry
}
