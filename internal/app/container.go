package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/bizstore/internal/audit"
	audithttp "github.com/odyssey-erp/bizstore/internal/audit/http"
	"github.com/odyssey-erp/bizstore/internal/catalog"
	"github.com/odyssey-erp/bizstore/internal/clients"
	"github.com/odyssey-erp/bizstore/internal/docsync"
	docsynchttp "github.com/odyssey-erp/bizstore/internal/docsync/http"
	"github.com/odyssey-erp/bizstore/internal/finance"
	"github.com/odyssey-erp/bizstore/internal/inventory"
	jobmetrics "github.com/odyssey-erp/bizstore/internal/jobs"
	"github.com/odyssey-erp/bizstore/internal/localcache"
	"github.com/odyssey-erp/bizstore/internal/observability"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/platform/cache"
	"github.com/odyssey-erp/bizstore/internal/platform/db"
	"github.com/odyssey-erp/bizstore/internal/remote"
	"github.com/odyssey-erp/bizstore/internal/sales"
	"github.com/odyssey-erp/bizstore/internal/session"
	"github.com/odyssey-erp/bizstore/jobs"
)

// Container holds the wired services of one process.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Redis   *redis.Client
	Pool    *pgxpool.Pool
	Sync    *docsync.Synchronizer
	Audit   *audit.Logger

	Inventory *inventory.Service
	Clients   *clients.Service
	Sales     *sales.Service
	Finance   *finance.Service
	Catalog   *catalog.Service
	Timeline  *audit.Service

	jobMetrics *jobmetrics.Metrics
	closers    []func() error
}

// Deps overrides infrastructure that Build would otherwise dial. Tests use
// it to inject miniredis.
type Deps struct {
	Redis *redis.Client
}

// Build connects the remote store, opens the local cache and wires every
// service in dependency order.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, deps Deps) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics()
	c := &Container{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		jobMetrics: jobmetrics.NewMetrics(metrics.Registerer()),
	}

	c.Redis = deps.Redis
	if c.Redis == nil {
		client, err := cache.New(ctx, cfg.RedisAddr, cfg.RemoteTimeout)
		if err != nil {
			return nil, err
		}
		c.Redis = client
		c.onClose(client.Close)
	}

	store, err := c.remoteStore(ctx)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	store = remote.Instrument(remote.WithTimeout(store, cfg.RemoteTimeout), c.Metrics)

	local, err := localcache.Open(cfg.CacheDir, cfg.CachePrefix)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	guard := session.NewGuard(session.NewRedisProvider(c.Redis, cfg.SessionTTL), cfg.SessionPropagationDelay, logger)
	c.Sync = docsync.New(docsync.Config{
		Remote:   store,
		Cache:    local,
		Guard:    guard,
		Logger:   logger,
		Recorder: c.Metrics,
	})

	queue, err := c.auditQueue()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Audit = audit.NewLogger(c.Sync, local, queue, logger)
	if inline, ok := queue.(*jobs.InlineQueue); ok {
		inline.Register(jobs.TaskAuditSync, c.Audit.Handler())
	}

	c.Inventory = inventory.NewService(c.Sync, c.Audit, logger)
	c.Clients = clients.NewService(c.Sync, c.Audit, logger)
	c.Sales = sales.NewService(c.Sync, c.Audit, logger)
	c.Finance = finance.NewService(c.Sync, c.Audit, logger, cfg.AdminRole)
	c.Catalog = catalog.NewService(c.Sync, c.Audit, logger)
	c.Timeline = audit.NewService(c.Audit)
	return c, nil
}

func (c *Container) remoteStore(ctx context.Context) (remote.Store, error) {
	switch c.Config.RemoteBackend {
	case BackendPostgres:
		pool, err := db.New(ctx, c.Config.PGDSN)
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		c.onClose(func() error { pool.Close(); return nil })
		store := remote.NewPostgresStore(pool, c.Config.MaxDocumentBytes)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return remote.NewRedisStore(c.Redis, remote.RedisConfig{MaxDocumentBytes: c.Config.MaxDocumentBytes}), nil
	}
}

func (c *Container) auditQueue() (jobs.BestEffort, error) {
	if c.Config.AuditQueue == QueueInline {
		q := jobs.NewInlineQueue(jobs.InlineConfig{
			MaxRetry: c.Config.AuditMaxRetry,
			Logger:   c.Logger,
			Metrics:  c.jobMetrics,
		})
		c.onClose(q.Close)
		return q, nil
	}
	client, err := jobs.NewClient(c.redisOpt(), c.Config.AuditMaxRetry)
	if err != nil {
		return nil, fmt.Errorf("audit queue: %w", err)
	}
	c.onClose(client.Close)
	return client, nil
}

func (c *Container) redisOpt() asynq.RedisClientOpt {
	opts := c.Redis.Options()
	return asynq.RedisClientOpt{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}
}

// Router builds the HTTP handler for the API process.
func (c *Container) Router() http.Handler {
	var jobHandler *jobs.Handler
	if c.Config.AuditQueue == QueueAsynq {
		inspector := asynq.NewInspector(c.redisOpt())
		c.onClose(inspector.Close)
		jobHandler = jobs.NewHandler(inspector, c.Logger)
	} else {
		jobHandler = jobs.NewHandler(nil, c.Logger)
	}
	return NewRouter(RouterParams{
		Logger:            c.Logger,
		Config:            c.Config,
		Actors:            c.Catalog,
		InventoryHandler:  inventory.NewHandler(c.Logger, c.Inventory),
		ClientsHandler:    clients.NewHandler(c.Logger, c.Clients),
		SalesHandler:      sales.NewHandler(c.Logger, c.Sales),
		FinanceHandler:    finance.NewHandler(c.Logger, c.Finance),
		CatalogHandler:    catalog.NewHandler(c.Logger, c.Catalog),
		AuditHandler:      audithttp.NewHandler(c.Logger, c.Timeline, c.Config.AdminRole),
		CollectionHandler: docsynchttp.NewHandler(c.Logger, c.Sync, c.Config.AdminRole, CollectionSchemas()),
		JobHandler:        jobHandler,
		Metrics:           c.Metrics,
	})
}

// CollectionSchemas lists the collections the raw collections endpoint may
// replace. The audit trail has none and only grows through the audit logger.
func CollectionSchemas() map[partition.Collection]docsync.Schema {
	return map[partition.Collection]docsync.Schema{
		partition.Clients:       docsync.TypedSchema[clients.Client](nil),
		partition.Chat:          docsync.TypedSchema[clients.Message](nil),
		partition.Inventory:     docsync.TypedSchema[inventory.Item](nil),
		partition.Quotes:        docsync.TypedSchema[sales.Quote](sales.GuardQuotes),
		partition.Sales:         docsync.TypedSchema[sales.Sale](nil),
		partition.FinanceShifts: docsync.TypedSchema[finance.CashShift](nil),
		partition.Projects:      docsync.TypedSchema[catalog.Project](nil),
		partition.Calendar:      docsync.TypedSchema[catalog.Event](nil),
		partition.Categories:    docsync.TypedSchema[catalog.Category](nil),
		partition.Settings:      docsync.TypedSchema[catalog.Settings](nil),
		partition.Users:         docsync.TypedSchema[catalog.User](nil),
	}
}

// WorkerHandlers returns the asynq handlers served by the worker process.
func (c *Container) WorkerHandlers() []jobs.TaskHandler {
	return []jobs.TaskHandler{
		{Type: jobs.TaskAuditSync, Handler: jobs.AsynqHandler(jobs.TaskAuditSync, c.Audit.Handler(), c.jobMetrics)},
	}
}

func (c *Container) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
