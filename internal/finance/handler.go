package finance

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bizstore/internal/platform/httpx"
)

// Handler exposes cash shift endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the finance handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers shift routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/shifts", h.list)
	r.Post("/shifts", h.open)
	r.Get("/shifts/current", h.current)
	r.Post("/shifts/{id}/transactions", h.addTransaction)
	r.Post("/shifts/{id}/close", h.close)
	r.Post("/shifts/{id}/corrections", h.correct)
}

type currentResponse struct {
	Open  bool       `json:"open"`
	Shift *CashShift `json:"shift,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	shifts, source, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, shifts, source)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	shift, ok, err := h.service.Current(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := currentResponse{Open: ok}
	if ok {
		resp.Shift = &shift
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var input OpenInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	shift, err := h.service.OpenShift(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shift)
}

func (h *Handler) addTransaction(w http.ResponseWriter, r *http.Request) {
	var input TransactionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	shift, err := h.service.AddTransaction(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var input CloseInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	shift, err := h.service.CloseShift(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("cash shift closed", slog.String("shift_id", shift.ID), slog.String("difference", shift.Difference.StringFixed(2)))
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) correct(w http.ResponseWriter, r *http.Request) {
	var input CorrectionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	shift, err := h.service.CorrectShift(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}
