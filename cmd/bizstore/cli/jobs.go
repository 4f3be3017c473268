package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/bizstore/jobs"
)

// JobsCLI wraps manual management helpers for the audit sync queue.
type JobsCLI struct {
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})
	return &JobsCLI{inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	if c == nil || c.inspector == nil {
		return nil
	}
	return c.inspector.Close()
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	stats.Pending = int(info.Pending)
	stats.Active = int(info.Active)
	stats.Scheduled = int(info.Scheduled)
	stats.Retry = int(info.Retry)
	stats.Archived = int(info.Archived)
	return stats, nil
}

// ListArchived returns audit sync tasks that exhausted their retries.
func (c *JobsCLI) ListArchived(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListArchivedTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// RetryArchived moves every archived task back to pending. Each payload
// carries the whole device trail, so a late retry only merges entries the
// remote does not hold yet.
func (c *JobsCLI) RetryArchived(ctx context.Context) (int, error) {
	if c == nil || c.inspector == nil {
		return 0, errors.New("jobs cli: inspector not configured")
	}
	return c.inspector.RunAllArchivedTasks(jobs.QueueDefault)
}
