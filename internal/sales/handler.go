package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bizstore/internal/platform/httpx"
)

// Handler manages quote and sale endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers quote routes under /quotes and sale routes under
// /sales.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.listQuotes)
		r.Post("/", h.createQuote)
		r.Get("/{id}", h.showQuote)
		r.Put("/{id}", h.updateQuote)
		r.Delete("/{id}", h.deleteQuote)
		r.Post("/{id}/convert", h.convertQuote)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.listSales)
		r.Post("/{id}/payments", h.registerPayment)
		r.Delete("/{id}", h.deleteSale)
	})
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, source, err := h.service.ListQuotes(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, quotes, source)
}

func (h *Handler) showQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.GetQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var input QuoteInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	quote, err := h.service.CreateQuote(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) updateQuote(w http.ResponseWriter, r *http.Request) {
	var input QuoteInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	quote, err := h.service.UpdateQuote(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) deleteQuote(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteQuote(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) convertQuote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.ConvertQuoteToSale(r.Context(), quote)
	if err != nil {
		h.logger.Warn("convert quote", slog.String("quote_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	year := time.Now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "year must be numeric")
			return
		}
		year = parsed
	}
	sales, source, err := h.service.ListSales(r.Context(), year)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, sales, source)
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	var input PaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	sale, err := h.service.RegisterPayment(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSale(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
