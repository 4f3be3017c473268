package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bizstore/internal/shared"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, h := newTestService(t)
	r := chi.NewRouter()
	NewHandler(h.Logger, svc).MountRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{ID: "u1", Name: "Ana"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestHandlerClientLifecycle(t *testing.T) {
	r := newTestRouter(t)

	rec := do(r, http.MethodPost, "/", `{"name":"Imprenta Sol","email":"hola@sol.mx"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var client Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &client))

	rec = do(r, http.MethodPut, "/"+client.ID, `{"name":"Imprenta Sol SA","email":"hola@sol.mx"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(r, http.MethodGet, "/"+client.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Imprenta Sol SA")

	rec = do(r, http.MethodPost, "/"+client.ID+"/messages", `{"text":"Hola"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var msg Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "Ana", msg.Author)

	rec = do(r, http.MethodGet, "/"+client.ID+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"text":"Hola"`)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/"+client.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/"+client.ID, "").Code)
}

func TestHandlerClientValidation(t *testing.T) {
	r := newTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/", `not json`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(r, http.MethodPost, "/", `{"name":"x","email":"nope"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(r, http.MethodPost, "/a%20b/messages", `{"text":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/ghost", `{"name":"x"}`).Code)
}
