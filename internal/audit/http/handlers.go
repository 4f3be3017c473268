package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/bizstore/internal/audit"
	"github.com/odyssey-erp/bizstore/internal/platform/httpx"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

const dateLayout = "2006-01-02"

// TimelineService defines the read side of the activity trail.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Entry, error)
}

// Handler serves the activity trail.
type Handler struct {
	logger     *slog.Logger
	service    TimelineService
	exportRole string
}

// NewHandler builds the audit handler. A non-empty exportRole restricts the
// CSV export to actors holding that role.
func NewHandler(logger *slog.Logger, service TimelineService, exportRole string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, exportRole: exportRole}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.BadRequest(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if result.Rows == nil {
		result.Rows = []audit.Entry{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.exportRole != "" && shared.ActorFromContext(r.Context()).Role != h.exportRole {
		httpx.RespondError(w, errPermissionDenied)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.BadRequest(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if err := audit.WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	var filters audit.TimelineFilters
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "from"}
		}
		filters.From = from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "to"}
		}
		filters.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}
	page, err := positiveInt(q.Get("page"), "page")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	pageSize, err := positiveInt(q.Get("page_size"), "page_size")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	filters.Page = page
	filters.PageSize = pageSize
	filters.Actor = strings.TrimSpace(q.Get("actor"))
	filters.Module = strings.TrimSpace(q.Get("module"))
	filters.Action = strings.TrimSpace(q.Get("action"))
	return filters, nil
}

func positiveInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, validationError{field: field}
	}
	return v, nil
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return "invalid filter " + v.field
}

var errPermissionDenied = fmt.Errorf("audit export: %w", shared.ErrForbidden)
