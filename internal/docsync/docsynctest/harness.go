// Package docsynctest wires a Synchronizer against miniredis and a temporary
// local cache for tests.
package docsynctest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/localcache"
	"github.com/odyssey-erp/bizstore/internal/remote"
	"github.com/odyssey-erp/bizstore/internal/session"
)

// Harness bundles a Synchronizer with handles on both sides of it.
type Harness struct {
	Sync   *docsync.Synchronizer
	Remote *FaultStore
	Cache  *localcache.Store
	Redis  *miniredis.Miniredis
	Client *redis.Client
	Logger *slog.Logger
}

// New starts miniredis and returns a ready Harness.
func New(t *testing.T) *Harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	cache, err := localcache.Open(t.TempDir(), "")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &FaultStore{Store: remote.NewRedisStore(client, remote.RedisConfig{})}
	guard := session.NewGuard(session.NewRedisProvider(client, time.Hour), time.Millisecond, logger)

	return &Harness{
		Sync: docsync.New(docsync.Config{
			Remote: store,
			Cache:  cache,
			Guard:  guard,
			Logger: logger,
		}),
		Remote: store,
		Cache:  cache,
		Redis:  mr,
		Client: client,
		Logger: logger,
	}
}

// Seed writes list straight to the remote store.
func (h *Harness) Seed(t *testing.T, key string, list any) {
	t.Helper()
	doc, err := remote.NewDocument(list)
	require.NoError(t, err)
	_, err = h.Remote.Store.Replace(context.Background(), key, doc)
	require.NoError(t, err)
}

// RemoteList decodes the remote document at key into dest.
func (h *Harness) RemoteList(t *testing.T, key string, dest any) {
	t.Helper()
	doc, err := h.Sync.Fetch(context.Background(), key)
	require.NoError(t, err)
	require.NoError(t, doc.Decode(dest))
}

// CachedList decodes the cached document at key into dest and reports
// whether the cache held the key.
func (h *Harness) CachedList(t *testing.T, key string, dest any) bool {
	t.Helper()
	doc, ok, err := h.Sync.Cached(key)
	require.NoError(t, err)
	if ok {
		require.NoError(t, doc.Decode(dest))
	}
	return ok
}

// Offline makes every redis command fail, as if the network were down.
func (h *Harness) Offline() {
	h.Redis.SetError("dial tcp: network is unreachable")
}

// Online restores redis.
func (h *Harness) Online() {
	h.Redis.SetError("")
}

// FaultStore wraps a remote.Store and fails chosen operations on demand.
type FaultStore struct {
	remote.Store

	mu     sync.Mutex
	faults map[string]error
	calls  map[string]int
}

// Fail makes op ("get", "replace", "atomic_replace") return err until
// cleared with a nil err.
func (f *FaultStore) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faults == nil {
		f.faults = make(map[string]error)
	}
	if err == nil {
		delete(f.faults, op)
		return
	}
	f.faults[op] = err
}

// Calls reports how often op was invoked.
func (f *FaultStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultStore) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
	return f.faults[op]
}

func (f *FaultStore) Get(ctx context.Context, key string) (remote.Document, error) {
	if err := f.enter("get"); err != nil {
		return remote.Document{}, err
	}
	return f.Store.Get(ctx, key)
}

func (f *FaultStore) Replace(ctx context.Context, key string, doc remote.Document) (remote.Document, error) {
	if err := f.enter("replace"); err != nil {
		return remote.Document{}, err
	}
	return f.Store.Replace(ctx, key, doc)
}

func (f *FaultStore) AtomicReplace(ctx context.Context, writes []remote.Write) ([]remote.Document, error) {
	if err := f.enter("atomic_replace"); err != nil {
		return nil, err
	}
	return f.Store.AtomicReplace(ctx, writes)
}
