package docsynchttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bizstore/internal/catalog"
	"github.com/odyssey-erp/bizstore/internal/clients"
	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/docsync/docsynctest"
	"github.com/odyssey-erp/bizstore/internal/inventory"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/sales"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

var admin = shared.Actor{ID: "u0", Name: "Root", Role: "admin"}

func testSchemas() map[partition.Collection]docsync.Schema {
	return map[partition.Collection]docsync.Schema{
		partition.Inventory:  docsync.TypedSchema[inventory.Item](nil),
		partition.Quotes:     docsync.TypedSchema[sales.Quote](sales.GuardQuotes),
		partition.Sales:      docsync.TypedSchema[sales.Sale](nil),
		partition.Categories: docsync.TypedSchema[catalog.Category](nil),
		partition.Clients:    docsync.TypedSchema[clients.Client](nil),
	}
}

func newRouter(t *testing.T) (http.Handler, *docsynctest.Harness) {
	t.Helper()
	h := docsynctest.New(t)
	r := chi.NewRouter()
	NewHandler(h.Logger, h.Sync, "admin", testSchemas()).MountRoutes(r)
	return r, h
}

func do(r http.Handler, method, path, body string, actor shared.Actor) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req = req.WithContext(shared.ContextWithActor(context.Background(), actor))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestReplaceThenRead(t *testing.T) {
	r, h := newRouter(t)

	rec := do(r, http.MethodPut, "/collections/categories", `[{"id":"c1","name":"Tintas"}]`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"version":1`)

	rec = do(r, http.MethodGet, "/collections/categories", "", shared.Actor{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"remote"`)
	assert.Contains(t, rec.Body.String(), `"name":"Tintas"`)

	var stored []map[string]any
	h.RemoteList(t, "categories", &stored)
	require.Len(t, stored, 1)
}

func TestReadUnknownKeyIsRejected(t *testing.T) {
	r, h := newRouter(t)

	assert.Equal(t, http.StatusUnprocessableEntity, do(r, http.MethodGet, "/collections/secrets", "", admin).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(r, http.MethodGet, "/collections/sales_24", "", admin).Code)
	assert.Zero(t, h.Remote.Calls("get"))
}

func TestReplaceGuards(t *testing.T) {
	r, h := newRouter(t)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPut, "/collections/clients", `[]`, shared.Actor{ID: "u1", Role: "staff"}).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPut, "/collections/audit_logs", `[]`, admin).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/collections/clients", `{"list":[]}`, admin).Code)
	assert.Zero(t, h.Remote.Calls("atomic_replace"))
}

func TestReadOfflineServesCache(t *testing.T) {
	r, h := newRouter(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPut, "/collections/sales_2024", `[{"id":"VEN-1"}]`, admin).Code)

	h.Offline()
	rec := do(r, http.MethodGet, "/collections/sales_2024", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"cache"`)
	assert.Contains(t, rec.Body.String(), "VEN-1")

	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPut, "/collections/sales_2024", `[]`, admin).Code)
}

func TestReadPreferCacheRefreshesInBackground(t *testing.T) {
	r, h := newRouter(t)
	h.Seed(t, "categories", []map[string]any{{"id": "c1", "name": "Tintas"}})

	rec := do(r, http.MethodGet, "/collections/categories?prefer=cache", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"empty"`)

	assert.Eventually(t, func() bool {
		var cached []map[string]any
		return h.CachedList(t, "categories", &cached) && len(cached) == 1
	}, 5*time.Second, 20*time.Millisecond)

	rec = do(r, http.MethodGet, "/collections/categories?prefer=cache", "", admin)
	assert.Contains(t, rec.Body.String(), `"source":"cache"`)
}

const approvedQuote = `{"id":"COT-2024-0001","client":"Imprenta Sol","items":[{"description":"Tarjetas","quantity":2,"unitPrice":"500"}],"subtotal":"1000","discount":"0","tax":"0","total":"1000","status":"Approved","date":"2024-03-01T10:00:00Z"}`

func TestReplaceKeepsApprovedQuotesImmutable(t *testing.T) {
	r, h := newRouter(t)
	h.Seed(t, "quotes", []json.RawMessage{json.RawMessage(approvedQuote)})

	tampered := strings.Replace(approvedQuote, `"total":"1000"`, `"total":"999999"`, 1)
	rec := do(r, http.MethodPut, "/collections/quotes", "["+tampered+"]", admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = do(r, http.MethodPut, "/collections/quotes", `[]`, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = do(r, http.MethodPut, "/collections/quotes", `[`+approvedQuote+`,{"id":"COT-2024-0002","client":"Luis","status":"Approved"}]`, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Zero(t, h.Remote.Calls("atomic_replace"))

	rec = do(r, http.MethodPut, "/collections/quotes", `[`+approvedQuote+`,{"id":"COT-2024-0002","client":"Luis"}]`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stored []sales.Quote
	h.RemoteList(t, "quotes", &stored)
	require.Len(t, stored, 2)
	assert.Equal(t, "1000", stored[0].Total.String())
	assert.Equal(t, sales.QuoteDraft, stored[1].Status)
}

func TestReplaceRejectsRecordsFailingTheirSchema(t *testing.T) {
	r, h := newRouter(t)
	svc := sales.NewService(h.Sync, &docsynctest.AuditSpy{}, h.Logger)

	for _, body := range []string{`[{"foo":1}]`, `[{"id":"q1","status":"Sent"}]`, `[{"id":"q1"},{"id":"q1"}]`} {
		rec := do(r, http.MethodPut, "/collections/quotes", body, admin)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
	}
	assert.Zero(t, h.Remote.Calls("atomic_replace"))

	quotes, _, err := svc.ListQuotes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestReplaceInventoryNeverStoresNegativeStock(t *testing.T) {
	r, h := newRouter(t)

	rec := do(r, http.MethodPut, "/collections/inventory", `[{"id":"i1","name":"Papel","quantity":-5}]`, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Zero(t, h.Remote.Calls("atomic_replace"))

	rec = do(r, http.MethodPut, "/collections/inventory", `[{"id":"i1","name":"Papel","quantity":3,"minStock":5}]`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var items []inventory.Item
	h.RemoteList(t, "inventory", &items)
	require.Len(t, items, 1)
	assert.Equal(t, inventory.KindProduct, items[0].Kind)
	assert.Equal(t, inventory.StatusLowStock, items[0].Status)
}

func TestReplaceNeedsASchema(t *testing.T) {
	h := docsynctest.New(t)
	r := chi.NewRouter()
	NewHandler(h.Logger, h.Sync, "admin", nil).MountRoutes(r)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPut, "/collections/categories", `[]`, admin).Code)
	assert.Zero(t, h.Remote.Calls("atomic_replace"))
}
