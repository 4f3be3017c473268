package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if len(cfg.Handlers) == 0 {
		return nil, errors.New("worker: no task handlers")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	// Audit sync tasks merge into one document; a single consumer avoids
	// racing them against each other.
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return time.Duration(n+1) * 2 * time.Second
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits best-effort tasks to the redis queue.
type Client struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

// NewClient constructs an Asynq client. maxRetry below zero uses
// DefaultMaxRetry.
func NewClient(redisOpts asynq.RedisClientOpt, maxRetry int) (*Client, error) {
	if maxRetry < 0 {
		maxRetry = DefaultMaxRetry
	}
	client := asynq.NewClient(redisOpts)
	return &Client{client: client, maxRetry: maxRetry, timeout: time.Minute}, nil
}

// Submit enqueues task on the default queue.
func (c *Client) Submit(ctx context.Context, task Task) error {
	_, err := c.Enqueue(ctx, task)
	return err
}

// Enqueue enqueues task and returns the queue's view of it.
func (c *Client) Enqueue(ctx context.Context, task Task) (*asynq.TaskInfo, error) {
	if task.Type == "" {
		return nil, errors.New("jobs: task type required")
	}
	return c.client.EnqueueContext(ctx, asynq.NewTask(task.Type, task.Payload),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints. A nil inspector
// reports an empty queue, as with the inline runner.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.inspector == nil {
		_, _ = w.Write([]byte(`{"queue":"default","pending":0,"retry":0,"archived":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	pending, retry, archived := 0, 0, 0
	queueName := QueueDefault
	if info != nil {
		pending = info.Pending
		retry = info.Retry
		archived = info.Archived
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + itoa(pending) +
		`,"retry":` + itoa(retry) + `,"archived":` + itoa(archived) + `}`))
}

func itoa(i int) string {
	return strconv.FormatInt(int64(i), 10)
}
