package docsync

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/bizstore/internal/remote"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Tx is an all-or-nothing read-modify-write over several documents. Every
// key is fetched up front; staged lists are committed together with a
// version check against what was fetched, so a concurrent writer aborts the
// commit instead of being overwritten.
type Tx struct {
	sync    *Synchronizer
	name    string
	keys    []string
	fetched map[string]remote.Document
	staged  map[string]remote.Document
	noCache map[string]struct{}
	done    bool
}

// Begin ensures a session and fetches keys concurrently.
func (s *Synchronizer) Begin(ctx context.Context, name string, keys ...string) (*Tx, error) {
	if err := s.EnsureSession(ctx); err != nil {
		return nil, err
	}

	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	docs := make([]remote.Document, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range unique {
		i, key := i, key
		g.Go(func() error {
			doc, err := s.Fetch(gctx, key)
			if err != nil {
				return fmt.Errorf("docsync: %s: fetch %s: %w", name, key, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tx := &Tx{
		sync:    s,
		name:    name,
		keys:    unique,
		fetched: make(map[string]remote.Document, len(unique)),
		staged:  make(map[string]remote.Document, len(unique)),
		noCache: make(map[string]struct{}),
	}
	for i, key := range unique {
		tx.fetched[key] = docs[i]
	}
	return tx, nil
}

// Document returns the fetched or staged document for key. After a
// successful commit it returns the stored document.
func (tx *Tx) Document(key string) (remote.Document, error) {
	if doc, ok := tx.staged[key]; ok {
		return doc, nil
	}
	doc, ok := tx.fetched[key]
	if !ok {
		return remote.Document{}, fmt.Errorf("docsync: %s: key %s not part of transaction", tx.name, key)
	}
	return doc, nil
}

// ReadList decodes the list held by the transaction for key.
func ReadList[T any](tx *Tx, key string) ([]T, error) {
	doc, err := tx.Document(key)
	if err != nil {
		return nil, err
	}
	return DecodeList[T](key, doc)
}

// StageList records list as the new content of key. Nothing is written
// before Commit.
func StageList[T any](tx *Tx, key string, list []T) error {
	if tx.done {
		return fmt.Errorf("docsync: %s: transaction already finished", tx.name)
	}
	doc, err := EncodeList(key, list)
	if err != nil {
		return err
	}
	return tx.Stage(key, doc)
}

// Stage records doc as the new content of key, checked against the version
// fetched by Begin.
func (tx *Tx) Stage(key string, doc remote.Document) error {
	if tx.done {
		return fmt.Errorf("docsync: %s: transaction already finished", tx.name)
	}
	base, ok := tx.fetched[key]
	if !ok {
		return fmt.Errorf("docsync: %s: key %s not part of transaction", tx.name, key)
	}
	doc.Version = base.Version
	tx.staged[key] = doc
	return nil
}

// Pin adds key to the commit unchanged, so a concurrent write to a document
// that was only read still aborts the transaction.
func (tx *Tx) Pin(key string) error {
	if tx.done {
		return fmt.Errorf("docsync: %s: transaction already finished", tx.name)
	}
	doc, ok := tx.fetched[key]
	if !ok {
		return fmt.Errorf("docsync: %s: key %s not part of transaction", tx.name, key)
	}
	if _, staged := tx.staged[key]; !staged {
		tx.staged[key] = doc
	}
	return nil
}

// SkipCache leaves the local cache entry of key untouched on commit, for
// documents whose local copy is owned by another component.
func (tx *Tx) SkipCache(key string) {
	tx.noCache[key] = struct{}{}
}

// Commit writes every staged document atomically. On failure nothing was
// written and the error wraps shared.ErrTransaction; caches are updated only
// after success.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("docsync: %s: transaction already finished", tx.name)
	}
	tx.done = true
	if len(tx.staged) == 0 {
		return nil
	}

	writes := make([]remote.Write, 0, len(tx.staged))
	for _, key := range tx.keys {
		doc, ok := tx.staged[key]
		if !ok {
			continue
		}
		writes = append(writes, remote.Write{Key: key, Doc: doc, CheckVersion: true})
	}

	stored, err := tx.sync.remote.AtomicReplace(ctx, writes)
	if tx.sync.recorder != nil {
		tx.sync.recorder.Transaction(tx.name, err)
	}
	if err != nil {
		tx.sync.logger.Warn("transaction aborted", slog.String("tx", tx.name), slog.Any("error", err))
		return fmt.Errorf("%w: %s: %w", shared.ErrTransaction, tx.name, err)
	}
	for i, w := range writes {
		tx.staged[w.Key] = stored[i]
		if _, skip := tx.noCache[w.Key]; skip {
			continue
		}
		tx.sync.storeCache(w.Key, stored[i])
	}
	return nil
}
