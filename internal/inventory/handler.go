package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bizstore/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listItems)
	r.Post("/", h.saveItem)
	r.Put("/{id}", h.saveItem)
	r.Post("/{id}/adjust", h.adjustItem)
	r.Delete("/{id}", h.deleteItem)
}

type adjustmentRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, source, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, items, source)
}

func (h *Handler) saveItem(w http.ResponseWriter, r *http.Request) {
	var input UpsertInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	status := http.StatusCreated
	if id := chi.URLParam(r, "id"); id != "" {
		input.ID = id
		status = http.StatusOK
	}
	item, err := h.service.Upsert(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, item)
}

func (h *Handler) adjustItem(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	item, err := h.service.Adjust(r.Context(), chi.URLParam(r, "id"), req.Delta, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if item.Status != StatusInStock {
		h.logger.Info("stock below minimum", slog.String("item_id", item.ID), slog.String("status", string(item.Status)))
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
