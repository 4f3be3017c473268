// Package docsynchttp exposes raw collection documents for backup and
// restore tooling.
package docsynchttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/platform/httpx"
	"github.com/odyssey-erp/bizstore/internal/remote"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Handler reads and replaces whole documents by key.
type Handler struct {
	logger    *slog.Logger
	sync      *docsync.Synchronizer
	writeRole string
	schemas   map[partition.Collection]docsync.Schema
}

// NewHandler builds the collections handler. Replacing a document requires
// writeRole when it is non-empty, and only collections with a schema can be
// replaced.
func NewHandler(logger *slog.Logger, sync *docsync.Synchronizer, writeRole string, schemas map[partition.Collection]docsync.Schema) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, sync: sync, writeRole: writeRole, schemas: schemas}
}

// MountRoutes registers collection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/collections/{key}", h.read)
	r.Put("/collections/{key}", h.replace)
}

type documentResponse struct {
	Key      string          `json:"key"`
	Source   string          `json:"source"`
	Document remote.Document `json:"document"`
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("prefer") == "cache" {
		doc, source, refresh := h.sync.Open(context.WithoutCancel(r.Context()), key)
		go h.awaitRefresh(key, refresh)
		httpx.JSON(w, http.StatusOK, documentResponse{Key: key, Source: source.String(), Document: doc})
		return
	}
	doc, source, err := h.sync.Read(r.Context(), key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, documentResponse{Key: key, Source: source.String(), Document: doc})
}

func (h *Handler) awaitRefresh(key string, refresh <-chan docsync.Refresh) {
	res := <-refresh
	if res.Err != nil {
		h.logger.Warn("background refresh failed", slog.String("key", key), slog.Any("error", res.Err))
	}
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	if h.writeRole != "" && shared.ActorFromContext(r.Context()).Role != h.writeRole {
		httpx.RespondError(w, fmt.Errorf("replace %s: %w", key, shared.ErrForbidden))
		return
	}
	collection, _, err := partition.Resolve(key)
	if err != nil {
		httpx.RespondError(w, &shared.ValidationError{Field: "key", Message: err.Error()})
		return
	}
	if collection == partition.AuditLogs {
		httpx.RespondError(w, fmt.Errorf("audit trail is append-only: %w", shared.ErrForbidden))
		return
	}
	schema, ok := h.schemas[collection]
	if !ok {
		httpx.RespondError(w, fmt.Errorf("replace %s: no schema: %w", key, shared.ErrForbidden))
		return
	}
	var list []json.RawMessage
	if err := httpx.DecodeJSON(r, &list); err != nil {
		httpx.BadRequest(w, err)
		return
	}
	next, err := remote.NewDocument(list)
	if err != nil {
		httpx.BadRequest(w, err)
		return
	}

	tx, err := h.sync.Begin(r.Context(), "replace_"+key, key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	current, err := tx.Document(key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := schema(key, current, next)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := tx.Stage(key, doc); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.logger.Warn("replace document failed", slog.String("key", key), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	stored, err := tx.Document(key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("document replaced", slog.String("key", key), slog.Int64("version", stored.Version))
	httpx.JSON(w, http.StatusOK, documentResponse{Key: key, Source: docsync.SourceRemote.String(), Document: stored})
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	if err := partition.ValidateKey(key); err != nil {
		httpx.RespondError(w, &shared.ValidationError{Field: "key", Message: err.Error()})
		return "", false
	}
	return key, true
}
