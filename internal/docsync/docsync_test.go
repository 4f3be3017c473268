package docsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/docsync/docsynctest"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

type widget struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Qty  int    `json:"qty" validate:"gte=0"`
}

func (w widget) RecordID() string { return w.ID }

type countingRecorder struct {
	fallbacks []string
	txs       map[string]int
}

func (r *countingRecorder) CacheFallback(key string) {
	r.fallbacks = append(r.fallbacks, key)
}

func (r *countingRecorder) Transaction(name string, err error) {
	if r.txs == nil {
		r.txs = make(map[string]int)
	}
	outcome := name + ":committed"
	if err != nil {
		outcome = name + ":failed"
	}
	r.txs[outcome]++
}

func TestReadRefreshesCache(t *testing.T) {
	h := docsynctest.New(t)
	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas"}})

	doc, source, err := h.Sync.Read(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, docsync.SourceRemote, source)
	assert.Equal(t, int64(1), doc.Version)

	var cached []widget
	require.True(t, h.CachedList(t, "widgets", &cached))
	assert.Equal(t, []widget{{ID: "w1", Name: "Tarjetas"}}, cached)
}

func TestReadNeverWrittenKeyIsEmpty(t *testing.T) {
	h := docsynctest.New(t)

	doc, source, err := h.Sync.Read(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, docsync.SourceRemote, source)
	assert.JSONEq(t, `[]`, string(doc.List))
}

func TestReadFallsBackToCacheWhenOffline(t *testing.T) {
	h := docsynctest.New(t)
	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas"}})
	_, _, err := h.Sync.Read(context.Background(), "widgets")
	require.NoError(t, err)

	h.Offline()
	doc, source, err := h.Sync.Read(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, docsync.SourceCache, source)

	var list []widget
	require.NoError(t, doc.Decode(&list))
	assert.Len(t, list, 1)
}

func TestReadOfflineWithoutCacheIsEmpty(t *testing.T) {
	h := docsynctest.New(t)
	h.Offline()

	coll := docsync.NewCollection[widget](h.Sync, "widgets")
	list, source, err := coll.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, docsync.SourceEmpty, source)
	assert.Empty(t, list)
}

func TestReadRecordsFallback(t *testing.T) {
	h := docsynctest.New(t)
	rec := &countingRecorder{}
	s := docsync.New(docsync.Config{Remote: h.Remote, Cache: h.Cache, Logger: h.Logger, Recorder: rec})

	h.Offline()
	_, _, err := s.Read(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, rec.fallbacks)
}

func TestOpenServesCacheThenRefreshes(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas"}})
	_, _, err := h.Sync.Read(ctx, "widgets")
	require.NoError(t, err)

	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas"}, {ID: "w2", Name: "Volantes"}})

	cached, source, refresh := h.Sync.Open(ctx, "widgets")
	assert.Equal(t, docsync.SourceCache, source)
	assert.Equal(t, int64(1), cached.Version)

	select {
	case r := <-refresh:
		require.NoError(t, r.Err)
		assert.Equal(t, docsync.SourceRemote, r.Source)
		assert.Equal(t, int64(2), r.Doc.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never delivered")
	}

	var list []widget
	require.True(t, h.CachedList(t, "widgets", &list))
	assert.Len(t, list, 2)
}

func TestMutateWritesRemoteThenCache(t *testing.T) {
	h := docsynctest.New(t)
	coll := docsync.NewCollection[widget](h.Sync, "widgets")

	list, err := coll.Upsert(context.Background(), widget{ID: "w1", Name: "Tarjetas", Qty: 3})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	var remoteList, cachedList []widget
	h.RemoteList(t, "widgets", &remoteList)
	require.True(t, h.CachedList(t, "widgets", &cachedList))
	assert.Equal(t, list, remoteList)
	assert.Equal(t, remoteList, cachedList)
}

func TestMutateStartsFromLatestRemote(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	coll := docsync.NewCollection[widget](h.Sync, "widgets")

	h.Seed(t, "widgets", []widget{{ID: "a", Name: "A"}})
	_, _, err := coll.List(ctx)
	require.NoError(t, err)

	// another device adds b; the local cache still only knows a
	h.Seed(t, "widgets", []widget{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}})

	_, err = coll.Upsert(ctx, widget{ID: "c", Name: "C"})
	require.NoError(t, err)

	var got []widget
	h.RemoteList(t, "widgets", &got)
	ids := make([]string, 0, len(got))
	for _, w := range got {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestMutateFailureLeavesBothSidesUnchanged(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	coll := docsync.NewCollection[widget](h.Sync, "widgets")
	_, err := coll.Upsert(ctx, widget{ID: "w1", Name: "Tarjetas"})
	require.NoError(t, err)

	h.Remote.Fail("replace", shared.Connectivity(errors.New("connection reset")))
	_, err = coll.Upsert(ctx, widget{ID: "w2", Name: "Volantes"})
	require.Error(t, err)
	assert.True(t, shared.IsOffline(err))

	var remoteList, cachedList []widget
	h.RemoteList(t, "widgets", &remoteList)
	require.True(t, h.CachedList(t, "widgets", &cachedList))
	assert.Len(t, remoteList, 1)
	assert.Len(t, cachedList, 1)
}

func TestMutateOfflineFailsWithoutWriting(t *testing.T) {
	h := docsynctest.New(t)
	coll := docsync.NewCollection[widget](h.Sync, "widgets")

	h.Offline()
	_, err := coll.Upsert(context.Background(), widget{ID: "w1", Name: "Tarjetas"})
	require.Error(t, err)
	assert.True(t, shared.IsOffline(err))
	assert.Zero(t, h.Remote.Calls("replace"))

	h.Online()
	var cached []widget
	assert.False(t, h.CachedList(t, "widgets", &cached))
}

func TestMutateCallbackErrorAborts(t *testing.T) {
	h := docsynctest.New(t)
	coll := docsync.NewCollection[widget](h.Sync, "widgets")
	boom := errors.New("boom")

	_, err := coll.Mutate(context.Background(), func(list []widget) ([]widget, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, h.Remote.Calls("replace"))
}

func TestMutateRejectsInvalidRecord(t *testing.T) {
	h := docsynctest.New(t)
	coll := docsync.NewCollection[widget](h.Sync, "widgets")

	_, err := coll.Upsert(context.Background(), widget{ID: "w1"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Zero(t, h.Remote.Calls("replace"))
}

func TestMalformedDocumentIsRejected(t *testing.T) {
	h := docsynctest.New(t)
	h.Seed(t, "widgets", []map[string]any{{"id": "", "name": "sin id"}})

	coll := docsync.NewCollection[widget](h.Sync, "widgets")
	_, _, err := coll.List(context.Background())
	assert.ErrorIs(t, err, docsync.ErrMalformed)
}

func TestRemoveMissingRecordIsNotFound(t *testing.T) {
	h := docsynctest.New(t)
	coll := docsync.NewCollection[widget](h.Sync, "widgets")

	_, err := coll.Remove(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFindReturnsRecord(t *testing.T) {
	h := docsynctest.New(t)
	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas"}, {ID: "w2", Name: "Volantes"}})
	coll := docsync.NewCollection[widget](h.Sync, "widgets")

	w, err := coll.Find(context.Background(), "w2")
	require.NoError(t, err)
	assert.Equal(t, "Volantes", w.Name)

	_, err = coll.Find(context.Background(), "w9")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoteOnlyCollectionSkipsCache(t *testing.T) {
	h := docsynctest.New(t)
	coll := docsync.NewCollection[widget](h.Sync, "widgets", docsync.RemoteOnly())

	_, err := coll.Upsert(context.Background(), widget{ID: "w1", Name: "Tarjetas"})
	require.NoError(t, err)

	var cached []widget
	assert.False(t, h.CachedList(t, "widgets", &cached))
}

func TestListHelpers(t *testing.T) {
	list := []widget{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}

	updated := docsync.Upsert(list, widget{ID: "b", Name: "B2"})
	assert.Equal(t, "B2", updated[1].Name)
	assert.Equal(t, "B", list[1].Name)

	appended := docsync.Upsert(list, widget{ID: "c", Name: "C"})
	assert.Len(t, appended, 3)

	removed, ok := docsync.Remove(list, "a")
	assert.True(t, ok)
	assert.Equal(t, []widget{{ID: "b", Name: "B"}}, removed)

	_, ok = docsync.Remove(list, "z")
	assert.False(t, ok)

	prepended := docsync.Prepend(list, widget{ID: "z", Name: "Z"})
	assert.Equal(t, "z", prepended[0].ID)
	assert.Len(t, list, 2)
}

func TestTxCommitWritesEveryDocument(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas", Qty: 5}})

	tx, err := h.Sync.Begin(ctx, "move", "widgets", "gadgets", "widgets")
	require.NoError(t, err)

	widgets, err := docsync.ReadList[widget](tx, "widgets")
	require.NoError(t, err)
	gadgets, err := docsync.ReadList[widget](tx, "gadgets")
	require.NoError(t, err)
	assert.Empty(t, gadgets)

	widgets[0].Qty = 4
	gadgets = append(gadgets, widget{ID: "g1", Name: "Sello"})
	require.NoError(t, docsync.StageList(tx, "widgets", widgets))
	require.NoError(t, docsync.StageList(tx, "gadgets", gadgets))
	require.NoError(t, tx.Commit(ctx))

	var gotWidgets, gotGadgets, cachedGadgets []widget
	h.RemoteList(t, "widgets", &gotWidgets)
	h.RemoteList(t, "gadgets", &gotGadgets)
	assert.Equal(t, 4, gotWidgets[0].Qty)
	assert.Len(t, gotGadgets, 1)
	require.True(t, h.CachedList(t, "gadgets", &cachedGadgets))
	assert.Equal(t, gotGadgets, cachedGadgets)

	assert.Error(t, tx.Commit(ctx))
}

func TestTxCommitFailureWritesNothing(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	rec := &countingRecorder{}
	s := docsync.New(docsync.Config{Remote: h.Remote, Cache: h.Cache, Logger: h.Logger, Recorder: rec})
	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas", Qty: 5}})

	tx, err := s.Begin(ctx, "move", "widgets", "gadgets")
	require.NoError(t, err)
	require.NoError(t, docsync.StageList(tx, "widgets", []widget{{ID: "w1", Name: "Tarjetas", Qty: 0}}))
	require.NoError(t, docsync.StageList(tx, "gadgets", []widget{{ID: "g1", Name: "Sello"}}))

	h.Remote.Fail("atomic_replace", shared.Connectivity(errors.New("connection reset")))
	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, shared.ErrTransaction)
	assert.ErrorIs(t, err, shared.ErrConnectivity)
	assert.Equal(t, 1, rec.txs["move:failed"])

	var widgets []widget
	h.RemoteList(t, "widgets", &widgets)
	assert.Equal(t, 5, widgets[0].Qty)
	var gadgets []widget
	h.RemoteList(t, "gadgets", &gadgets)
	assert.Empty(t, gadgets)
	assert.False(t, h.CachedList(t, "gadgets", &gadgets))
}

func TestTxConcurrentWriterAbortsCommit(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas", Qty: 5}})

	tx, err := h.Sync.Begin(ctx, "move", "widgets", "gadgets")
	require.NoError(t, err)

	h.Seed(t, "widgets", []widget{{ID: "w1", Name: "Tarjetas", Qty: 9}})

	require.NoError(t, docsync.StageList(tx, "widgets", []widget{{ID: "w1", Name: "Tarjetas", Qty: 4}}))
	require.NoError(t, docsync.StageList(tx, "gadgets", []widget{{ID: "g1", Name: "Sello"}}))
	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, shared.ErrTransaction)
	assert.ErrorIs(t, err, shared.ErrVersionConflict)

	var widgets, gadgets []widget
	h.RemoteList(t, "widgets", &widgets)
	h.RemoteList(t, "gadgets", &gadgets)
	assert.Equal(t, 9, widgets[0].Qty)
	assert.Empty(t, gadgets)
}

func TestTxRejectsForeignKeys(t *testing.T) {
	h := docsynctest.New(t)
	tx, err := h.Sync.Begin(context.Background(), "move", "widgets")
	require.NoError(t, err)

	_, err = docsync.ReadList[widget](tx, "gadgets")
	assert.Error(t, err)
	assert.Error(t, docsync.StageList(tx, "gadgets", []widget{}))
}

func TestTxBeginOfflineFails(t *testing.T) {
	h := docsynctest.New(t)
	h.Offline()

	_, err := h.Sync.Begin(context.Background(), "move", "widgets")
	require.Error(t, err)
	assert.True(t, shared.IsOffline(err))
}

func TestTxWithoutStagedWritesIsNoop(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	tx, err := h.Sync.Begin(ctx, "noop", "widgets")
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
	assert.Zero(t, h.Remote.Calls("atomic_replace"))
}

func TestTxPinnedDocumentGuardsAgainstConcurrentWrites(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	h.Seed(t, "gadgets", []widget{{ID: "g1", Name: "Sello"}})

	tx, err := h.Sync.Begin(ctx, "guarded", "widgets", "gadgets")
	require.NoError(t, err)
	require.NoError(t, docsync.StageList(tx, "widgets", []widget{{ID: "w1", Name: "Tarjetas"}}))
	require.NoError(t, tx.Pin("gadgets"))

	h.Seed(t, "gadgets", []widget{{ID: "g1", Name: "Sello"}, {ID: "g2", Name: "Tinta"}})

	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, shared.ErrVersionConflict)

	var widgets, gadgets []widget
	h.RemoteList(t, "widgets", &widgets)
	h.RemoteList(t, "gadgets", &gadgets)
	assert.Empty(t, widgets)
	assert.Len(t, gadgets, 2)
}

func TestTxSkipCacheLeavesLocalCopy(t *testing.T) {
	h := docsynctest.New(t)
	ctx := context.Background()
	require.NoError(t, h.Cache.Set("widgets", []byte(`{"list":[{"id":"local","name":"Local"}],"version":0}`)))

	tx, err := h.Sync.Begin(ctx, "skip", "widgets")
	require.NoError(t, err)
	require.NoError(t, docsync.StageList(tx, "widgets", []widget{{ID: "w1", Name: "Tarjetas"}}))
	tx.SkipCache("widgets")
	require.NoError(t, tx.Commit(ctx))

	var remoteList, cached []widget
	h.RemoteList(t, "widgets", &remoteList)
	require.True(t, h.CachedList(t, "widgets", &cached))
	assert.Equal(t, "w1", remoteList[0].ID)
	assert.Equal(t, "local", cached[0].ID)
}
