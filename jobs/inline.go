package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/bizstore/internal/jobs"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("jobs: queue closed")

// ErrQueueFull is returned when the inline buffer is saturated.
var ErrQueueFull = errors.New("jobs: queue full")

// InlineConfig configures an InlineQueue.
type InlineConfig struct {
	Handlers map[string]TaskFunc
	MaxRetry int
	Backoff  time.Duration
	Buffer   int
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// InlineQueue runs best-effort tasks in-process on a single worker
// goroutine, in submission order, with bounded retry.
type InlineQueue struct {
	handlers map[string]TaskFunc
	maxRetry int
	backoff  time.Duration
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics

	mu      sync.Mutex
	closed  bool
	tasks   chan inlineTask
	pending sync.WaitGroup
	done    chan struct{}
}

type inlineTask struct {
	ctx  context.Context
	task Task
}

// NewInlineQueue starts the worker goroutine.
func NewInlineQueue(cfg InlineConfig) *InlineQueue {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = 0
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	q := &InlineQueue{
		handlers: cfg.Handlers,
		maxRetry: cfg.MaxRetry,
		backoff:  cfg.Backoff,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tasks:    make(chan inlineTask, cfg.Buffer),
		done:     make(chan struct{}),
	}
	go q.loop()
	return q
}

// Register adds a handler for taskType.
func (q *InlineQueue) Register(taskType string, h TaskFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]TaskFunc)
	}
	q.handlers[taskType] = h
}

// Submit enqueues task without blocking.
func (q *InlineQueue) Submit(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.handlers[task.Type]; !ok {
		return fmt.Errorf("jobs: no handler for %s", task.Type)
	}
	q.pending.Add(1)
	select {
	case q.tasks <- inlineTask{ctx: context.WithoutCancel(ctx), task: task}:
		return nil
	default:
		q.pending.Done()
		return ErrQueueFull
	}
}

// Wait blocks until every accepted task has finished.
func (q *InlineQueue) Wait() {
	q.pending.Wait()
}

// Close stops accepting tasks and drains the queue.
func (q *InlineQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	<-q.done
	return nil
}

func (q *InlineQueue) loop() {
	defer close(q.done)
	for item := range q.tasks {
		q.run(item)
		q.pending.Done()
	}
}

func (q *InlineQueue) run(item inlineTask) {
	q.mu.Lock()
	handler := q.handlers[item.task.Type]
	q.mu.Unlock()

	var err error
	for attempt := 0; attempt <= q.maxRetry; attempt++ {
		if attempt > 0 {
			time.Sleep(q.backoff * time.Duration(attempt))
		}
		err = q.metrics.Track(item.task.Type).End(handler(item.ctx, item.task.Payload))
		if err == nil || errors.Is(err, asynq.SkipRetry) {
			break
		}
		q.logger.Debug("best-effort task attempt failed",
			slog.String("task", item.task.Type),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}
	if err != nil {
		q.metrics.Dropped(item.task.Type, err)
		q.logger.Warn("best-effort task dropped", slog.String("task", item.task.Type), slog.Any("error", err))
	}
}
