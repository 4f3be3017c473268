package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/bizstore/internal/audit/http"
	"github.com/odyssey-erp/bizstore/internal/catalog"
	"github.com/odyssey-erp/bizstore/internal/clients"
	docsynchttp "github.com/odyssey-erp/bizstore/internal/docsync/http"
	"github.com/odyssey-erp/bizstore/internal/finance"
	"github.com/odyssey-erp/bizstore/internal/inventory"
	"github.com/odyssey-erp/bizstore/internal/observability"
	"github.com/odyssey-erp/bizstore/internal/sales"
	"github.com/odyssey-erp/bizstore/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Actors            ActorResolver
	InventoryHandler  *inventory.Handler
	ClientsHandler    *clients.Handler
	SalesHandler      *sales.Handler
	FinanceHandler    *finance.Handler
	CatalogHandler    *catalog.Handler
	AuditHandler      *audithttp.Handler
	CollectionHandler *docsynchttp.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with bizstore defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:  params.Logger,
			Config:  params.Config,
			Actors:  params.Actors,
			Metrics: params.Metrics,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.ClientsHandler != nil {
			r.Route("/clients", params.ClientsHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			params.SalesHandler.MountRoutes(r)
		}
		if params.FinanceHandler != nil {
			r.Route("/finance", params.FinanceHandler.MountRoutes)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.CollectionHandler != nil {
			params.CollectionHandler.MountRoutes(r)
		}
	})

	return r
}
