// Package docsync keeps the local cache and the remote document store
// consistent.
//
// Reads are local-first with a remote refresh; connectivity and session
// failures on reads fall back to the cache silently. Writes go to the remote
// store first and reach the cache only after the remote accepted them.
package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/bizstore/internal/remote"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Cache is the device-local durable store.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, data []byte) error
}

// SessionGuard establishes a write credential before remote mutations.
type SessionGuard interface {
	EnsureSession(ctx context.Context) error
}

// Recorder receives sync events for metrics.
type Recorder interface {
	CacheFallback(key string)
	Transaction(name string, err error)
}

// Source tells where a read was served from.
type Source int

const (
	// SourceEmpty means neither remote nor cache had the document.
	SourceEmpty Source = iota
	// SourceCache means the remote was unreachable and the cache answered.
	SourceCache
	// SourceRemote means the remote answered.
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceCache:
		return "cache"
	default:
		return "empty"
	}
}

// Refresh is the outcome of a background remote refresh.
type Refresh struct {
	Doc    remote.Document
	Source Source
	Err    error
}

// Config groups Synchronizer dependencies.
type Config struct {
	Remote   remote.Store
	Cache    Cache
	Guard    SessionGuard
	Logger   *slog.Logger
	Recorder Recorder
}

// Synchronizer is the read-through/write-through access path.
type Synchronizer struct {
	remote   remote.Store
	cache    Cache
	guard    SessionGuard
	logger   *slog.Logger
	recorder Recorder
	group    singleflight.Group
}

// New constructs a Synchronizer.
func New(cfg Config) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		remote:   cfg.Remote,
		cache:    cfg.Cache,
		guard:    cfg.Guard,
		logger:   logger,
		recorder: cfg.Recorder,
	}
}

// Cached returns the locally cached document without touching the network.
func (s *Synchronizer) Cached(key string) (remote.Document, bool, error) {
	raw, ok, err := s.cache.Get(key)
	if err != nil || !ok {
		return remote.Empty(), false, err
	}
	doc, err := remote.ParseDocument(raw)
	if err != nil {
		return remote.Empty(), false, fmt.Errorf("docsync: cached %s: %w", key, err)
	}
	return doc, true, nil
}

// Read refreshes key from the remote and updates the cache. When the remote
// is unreachable the cached document is returned without error.
func (s *Synchronizer) Read(ctx context.Context, key string) (remote.Document, Source, error) {
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.readRemote(ctx, key)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		res = singleflight.Result{Err: shared.Connectivity(ctx.Err())}
	case res = <-ch:
	}

	if res.Err == nil {
		return res.Val.(remote.Document), SourceRemote, nil
	}
	if !shared.IsOffline(res.Err) {
		return remote.Empty(), SourceEmpty, res.Err
	}

	if s.recorder != nil {
		s.recorder.CacheFallback(key)
	}
	s.logger.Debug("remote read fell back to cache", slog.String("key", key), slog.Any("error", res.Err))
	doc, ok, err := s.Cached(key)
	if err != nil {
		return remote.Empty(), SourceEmpty, err
	}
	if !ok {
		return remote.Empty(), SourceEmpty, nil
	}
	return doc, SourceCache, nil
}

// Open returns the cached document at once and refreshes it from the remote
// in the background. The channel yields exactly one Refresh.
func (s *Synchronizer) Open(ctx context.Context, key string) (remote.Document, Source, <-chan Refresh) {
	out := make(chan Refresh, 1)
	cached, ok, err := s.Cached(key)
	source := SourceCache
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("unreadable cache entry", slog.String("key", key), slog.Any("error", err))
		}
		cached, source = remote.Empty(), SourceEmpty
	}
	go func() {
		doc, src, err := s.Read(ctx, key)
		out <- Refresh{Doc: doc, Source: src, Err: err}
		close(out)
	}()
	return cached, source, out
}

// Fetch returns the current canonical remote document. Keys never written
// come back empty. Unlike Read, failures are surfaced.
func (s *Synchronizer) Fetch(ctx context.Context, key string) (remote.Document, error) {
	doc, err := s.remote.Get(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		return remote.Empty(), nil
	}
	if err != nil {
		return remote.Document{}, err
	}
	return doc, nil
}

// Save writes doc to the remote then to the cache.
func (s *Synchronizer) Save(ctx context.Context, key string, doc remote.Document) (remote.Document, error) {
	if err := s.EnsureSession(ctx); err != nil {
		return remote.Document{}, err
	}
	stored, err := s.remote.Replace(ctx, key, doc)
	if err != nil {
		return remote.Document{}, fmt.Errorf("docsync: save %s: %w", key, err)
	}
	s.storeCache(key, stored)
	return stored, nil
}

// EnsureSession runs the session guard.
func (s *Synchronizer) EnsureSession(ctx context.Context) error {
	if s.guard == nil {
		return nil
	}
	return s.guard.EnsureSession(ctx)
}

func (s *Synchronizer) readRemote(ctx context.Context, key string) (remote.Document, error) {
	doc, err := s.remote.Get(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		return remote.Empty(), nil
	}
	if err != nil {
		return remote.Document{}, err
	}
	s.storeCache(key, doc)
	return doc, nil
}

// storeCache never fails the caller: the remote already holds the truth and
// the next read repairs the cache.
func (s *Synchronizer) storeCache(key string, doc remote.Document) {
	raw, err := doc.Encode()
	if err == nil {
		err = s.cache.Set(key, raw)
	}
	if err != nil {
		s.logger.Warn("cache update failed", slog.String("key", key), slog.Any("error", err))
	}
}
