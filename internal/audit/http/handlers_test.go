package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bizstore/internal/audit"
	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

type stubTrail struct {
	entries []audit.Entry
}

func (s stubTrail) List(context.Context) ([]audit.Entry, docsync.Source, error) {
	return s.entries, docsync.SourceRemote, nil
}

type stubTimelineService struct {
	*audit.Service
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.Service.Timeline(ctx, filters)
}

func newRouter(t *testing.T) (http.Handler, *stubTimelineService) {
	t.Helper()
	base := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	trail := stubTrail{entries: []audit.Entry{
		{ID: "3", Action: shared.AuditDelete, Module: "clients", Description: "Deleted client, Sol", Actor: "Ana", ActorID: "u1", Timestamp: base.Add(48 * time.Hour)},
		{ID: "2", Action: shared.AuditUpdate, Module: "inventory", Description: "Adjusted", Actor: "Luis", ActorID: "u2", Timestamp: base.Add(24 * time.Hour)},
		{ID: "1", Action: shared.AuditCreate, Module: "clients", Description: "Created client", Actor: "Ana", ActorID: "u1", Timestamp: base},
	}}
	svc := &stubTimelineService{Service: audit.NewService(trail)}
	r := chi.NewRouter()
	NewHandler(nil, svc, "admin").MountRoutes(r)
	return r, svc
}

func get(r http.Handler, path string, actor shared.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTimelineAppliesFilters(t *testing.T) {
	r, svc := newRouter(t)

	rec := get(r, "/audit?module=clients&to=2024-03-10&page_size=5", shared.Actor{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"1"`)
	assert.NotContains(t, rec.Body.String(), `"id":"3"`)
	assert.Equal(t, 5, svc.lastFilters.PageSize)
	assert.Equal(t, 2024, svc.lastFilters.To.Year())
	assert.True(t, svc.lastFilters.To.After(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)))
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	r, _ := newRouter(t)

	for _, path := range []string{
		"/audit?from=yesterday",
		"/audit?from=2024-03-12&to=2024-03-10",
		"/audit?page=0",
		"/audit?page_size=abc",
	} {
		assert.Equal(t, http.StatusBadRequest, get(r, path, shared.Actor{}).Code, path)
	}
}

func TestExportRequiresRole(t *testing.T) {
	r, _ := newRouter(t)

	rec := get(r, "/audit/export.csv", shared.Actor{ID: "u2", Role: "staff"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(r, "/audit/export.csv?actor=ana", shared.Actor{ID: "u1", Role: "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Timestamp,User,Action,Module,Description", lines[0])
	assert.Equal(t, `2024-03-12T10:00:00Z,Ana,Delete,clients,"Deleted client, Sol"`, lines[1])
}

func TestExportIsRateLimitedPerActor(t *testing.T) {
	r, _ := newRouter(t)
	admin := shared.Actor{ID: "u1", Role: "admin"}

	for i := 0; i < rateLimit; i++ {
		require.Equal(t, http.StatusOK, get(r, "/audit/export.csv", admin).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/audit/export.csv", admin).Code)
	assert.Equal(t, http.StatusOK, get(r, "/audit/export.csv", shared.Actor{ID: "u9", Role: "admin"}).Code)
}
