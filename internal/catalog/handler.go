package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/platform/httpx"
)

// Handler exposes the catalog collections.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers projects, calendar, categories, settings and users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", listOf(h.service.Projects))
		r.Post("/", saveOf(h.service.SaveProject))
		r.Put("/{id}", saveOf(h.service.SaveProject))
		r.Delete("/{id}", deleteOf(h.service.DeleteProject))
	})
	r.Route("/calendar", func(r chi.Router) {
		r.Get("/", listOf(h.service.Events))
		r.Post("/", saveOf(h.service.SaveEvent))
		r.Put("/{id}", saveOf(h.service.SaveEvent))
		r.Delete("/{id}", deleteOf(h.service.DeleteEvent))
	})
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", listOf(h.service.Categories))
		r.Post("/", saveOf(h.service.SaveCategory))
		r.Put("/{id}", saveOf(h.service.SaveCategory))
		r.Delete("/{id}", deleteOf(h.service.DeleteCategory))
	})
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.saveSettings)
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Delete("/{id}", deleteOf(h.service.DeleteUser))
		r.Post("/{id}/verify-pin", h.verifyPIN)
	})
}

func listOf[T any](list func(context.Context) ([]T, docsync.Source, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, source, err := list(r.Context())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.List(w, items, source)
	}
}

func saveOf[I, T any](save func(context.Context, string, I) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input I
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.BadRequest(w, err)
			return
		}
		id := chi.URLParam(r, "id")
		saved, err := save(r.Context(), id, input)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		status := http.StatusOK
		if id == "" {
			status = http.StatusCreated
		}
		httpx.JSON(w, status, saved)
	}
}

func deleteOf(remove func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := remove(r.Context(), chi.URLParam(r, "id")); err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Settings(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	var st Settings
	if err := httpx.DecodeJSON(r, &st); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	saved, err := h.service.SaveSettings(r.Context(), st)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

// userView is a User without its PIN hash.
type userView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func viewOf(u User) userView {
	return userView{ID: u.ID, Name: u.Name, Role: u.Role, Active: u.Active, CreatedAt: u.CreatedAt}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, source, err := h.service.Users(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewOf(u))
	}
	httpx.List(w, views, source)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var input UserInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	u, err := h.service.CreateUser(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewOf(u))
}

type verifyRequest struct {
	PIN string `json:"pin"`
}

func (h *Handler) verifyPIN(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	actor, err := h.service.VerifyPIN(r.Context(), id, req.PIN)
	if err != nil {
		h.logger.Warn("pin verification failed", slog.String("user_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, actor)
}
