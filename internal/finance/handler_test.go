package finance

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
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, h := newTestService(t)
	r := chi.NewRouter()
	NewHandler(h.Logger, svc).MountRoutes(r)
	return r
}

func do(ctx context.Context, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestHandlerShiftFlow(t *testing.T) {
	r := newTestRouter(t)

	rec := do(cashier(), r, http.MethodGet, "/shifts/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"open":false}`, rec.Body.String())

	rec = do(cashier(), r, http.MethodPost, "/shifts", `{"initialAmount":"500"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var shift CashShift
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shift))
	assert.Equal(t, "Ana", shift.OpenedBy)

	assert.Equal(t, http.StatusUnprocessableEntity, do(cashier(), r, http.MethodPost, "/shifts", `{"initialAmount":"100"}`).Code)

	rec = do(cashier(), r, http.MethodPost, "/shifts/"+shift.ID+"/transactions", `{"type":"income","amount":"250","description":"Venta mostrador"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(cashier(), r, http.MethodPost, "/shifts/"+shift.ID+"/close", `{"finalAmount":"740"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shift))
	require.NotNil(t, shift.Difference)
	assert.Equal(t, "-10.00", shift.Difference.StringFixed(2))

	rec = do(cashier(), r, http.MethodPost, "/shifts/"+shift.ID+"/corrections", `{"finalAmount":"750","reason":"conteo"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(admin(), r, http.MethodPost, "/shifts/"+shift.ID+"/corrections", `{"finalAmount":"750","reason":"conteo"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shift))
	assert.True(t, shift.Difference.IsZero())

	rec = do(cashier(), r, http.MethodGet, "/shifts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Closed"`)
}

func TestHandlerShiftNotFound(t *testing.T) {
	r := newTestRouter(t)
	rec := do(cashier(), r, http.MethodPost, "/shifts/ghost/close", `{"finalAmount":"1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
