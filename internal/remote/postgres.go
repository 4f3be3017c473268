package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/bizstore/internal/platform/db"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Schema creates the documents table. The list column is json, not jsonb, so
// stored bytes round-trip exactly.
const Schema = `CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	list       JSON NOT NULL,
	version    BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const (
	selectDocument = `SELECT list, version, updated_at FROM documents WHERE key = $1`
	lockVersion    = `SELECT version FROM documents WHERE key = $1 FOR UPDATE`
	upsertDocument = `INSERT INTO documents (key, list, version, updated_at)
VALUES ($1, $2, 1, $3)
ON CONFLICT (key) DO UPDATE SET list = EXCLUDED.list, version = documents.version + 1, updated_at = EXCLUDED.updated_at
RETURNING version, updated_at`
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type pgPool interface {
	dbtx
	db.Beginner
}

// PostgresStore keeps documents in a single table and uses repeatable-read
// transactions for multi-key replaces.
type PostgresStore struct {
	pool     pgPool
	maxBytes int
	now      func() time.Time
}

// NewPostgresStore builds the store on a pool. maxBytes <= 0 uses the default ceiling.
func NewPostgresStore(pool pgPool, maxBytes int) *PostgresStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &PostgresStore{pool: pool, maxBytes: maxBytes, now: time.Now}
}

// EnsureSchema creates the documents table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("remote: ensure schema: %w", classifyPG(err))
	}
	return nil
}

// Get loads the document under key.
func (s *PostgresStore) Get(ctx context.Context, key string) (Document, error) {
	var (
		list    []byte
		version int64
		updated time.Time
	)
	err := s.pool.QueryRow(ctx, selectDocument, key).Scan(&list, &version, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("remote: get %s: %w", key, shared.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("remote: get %s: %w", key, classifyPG(err))
	}
	doc, err := ParseDocument(list)
	if err != nil {
		return Document{}, err
	}
	doc.Version = version
	doc.UpdatedAt = updated
	return doc, nil
}

// Replace overwrites key unconditionally.
func (s *PostgresStore) Replace(ctx context.Context, key string, doc Document) (Document, error) {
	docs, err := s.AtomicReplace(ctx, []Write{{Key: key, Doc: doc}})
	if err != nil {
		return Document{}, err
	}
	return docs[0], nil
}

// AtomicReplace writes every document inside one transaction.
func (s *PostgresStore) AtomicReplace(ctx context.Context, writes []Write) ([]Document, error) {
	if len(writes) == 0 {
		return nil, nil
	}
	for _, w := range writes {
		if w.Doc.Size() > s.maxBytes {
			return nil, fmt.Errorf("remote: %s is %d bytes: %w", w.Key, w.Doc.Size(), shared.ErrDocumentTooLarge)
		}
	}

	stored := make([]Document, len(writes))
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		now := s.now().UTC()
		for i, w := range writes {
			if w.CheckVersion {
				var current int64
				err := tx.QueryRow(ctx, lockVersion, w.Key).Scan(&current)
				if err != nil && !errors.Is(err, pgx.ErrNoRows) {
					return err
				}
				if current != w.Doc.Version {
					return fmt.Errorf("remote: %s at version %d, expected %d: %w", w.Key, current, w.Doc.Version, shared.ErrVersionConflict)
				}
			}
			list := w.Doc.List
			if len(list) == 0 {
				list = emptyList
			}
			var (
				version int64
				updated time.Time
			)
			if err := tx.QueryRow(ctx, upsertDocument, w.Key, string(list), now).Scan(&version, &updated); err != nil {
				return err
			}
			stored[i] = Document{List: list, Version: version, UpdatedAt: updated}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrVersionConflict) {
			return nil, err
		}
		if db.IsSerializationFailure(err) {
			return nil, fmt.Errorf("remote: atomic replace: %w", shared.ErrVersionConflict)
		}
		return nil, fmt.Errorf("remote: atomic replace: %w", classifyPG(err))
	}
	return stored, nil
}

func classifyPG(err error) error {
	if err == nil || db.IsServerError(err) {
		return err
	}
	return shared.Connectivity(err)
}
