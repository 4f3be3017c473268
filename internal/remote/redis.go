package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/bizstore/internal/shared"
)

const (
	fieldList      = "list"
	fieldVersion   = "version"
	fieldUpdatedAt = "updated_at"

	defaultRedisPrefix = "doc:"
	watchRetries       = 5
)

// ErrBadVersion reports a stored version field that is not an integer.
var ErrBadVersion = errors.New("remote: stored version is not an integer")

// RedisConfig tunes RedisStore.
type RedisConfig struct {
	Prefix           string
	MaxDocumentBytes int
	Now              func() time.Time
}

// RedisStore keeps each document in a hash holding the list, its version and
// the last update time. Multi-key replaces run under WATCH/MULTI/EXEC.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	maxBytes int
	now      func() time.Time
}

// NewRedisStore builds the store.
func NewRedisStore(client *redis.Client, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, maxBytes: cfg.MaxDocumentBytes, now: cfg.Now}
}

// Get loads the document under key.
func (s *RedisStore) Get(ctx context.Context, key string) (Document, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return Document{}, fmt.Errorf("remote: get %s: %w", key, classifyRedis(err))
	}
	if len(fields) == 0 {
		return Document{}, fmt.Errorf("remote: get %s: %w", key, shared.ErrNotFound)
	}
	return decodeFields(fields)
}

// Replace overwrites key unconditionally and bumps its version.
func (s *RedisStore) Replace(ctx context.Context, key string, doc Document) (Document, error) {
	docs, err := s.AtomicReplace(ctx, []Write{{Key: key, Doc: doc}})
	if err != nil {
		return Document{}, err
	}
	return docs[0], nil
}

// AtomicReplace writes every document or none. Conditional writes fail with
// shared.ErrVersionConflict when the stored version moved.
func (s *RedisStore) AtomicReplace(ctx context.Context, writes []Write) ([]Document, error) {
	if len(writes) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(writes))
	seen := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		if w.Doc.Size() > s.maxBytes {
			return nil, fmt.Errorf("remote: %s is %d bytes: %w", w.Key, w.Doc.Size(), shared.ErrDocumentTooLarge)
		}
		if _, dup := seen[w.Key]; dup {
			return nil, fmt.Errorf("remote: duplicate key %s in atomic write", w.Key)
		}
		seen[w.Key] = struct{}{}
		keys = append(keys, s.redisKey(w.Key))
	}

	var stored []Document
	txf := func(tx *redis.Tx) error {
		current := make([]int64, len(writes))
		for i, w := range writes {
			raw, err := tx.HGet(ctx, keys[i], fieldVersion).Result()
			switch {
			case errors.Is(err, redis.Nil):
				current[i] = 0
			case err != nil:
				return err
			default:
				version, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("remote: %s version %q: %w", w.Key, raw, ErrBadVersion)
				}
				current[i] = version
			}
			if w.CheckVersion && current[i] != w.Doc.Version {
				return fmt.Errorf("remote: %s at version %d, expected %d: %w", w.Key, current[i], w.Doc.Version, shared.ErrVersionConflict)
			}
		}

		now := s.now().UTC()
		stored = make([]Document, len(writes))
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range writes {
				list := w.Doc.List
				if len(list) == 0 {
					list = emptyList
				}
				next := current[i] + 1
				pipe.HSet(ctx, keys[i],
					fieldList, string(list),
					fieldVersion, next,
					fieldUpdatedAt, now.Format(time.RFC3339Nano),
				)
				stored[i] = Document{List: list, Version: next, UpdatedAt: now}
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, keys...)
		if err == nil {
			return stored, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, shared.ErrVersionConflict) || errors.Is(err, ErrBadVersion) {
			return nil, err
		}
		return nil, fmt.Errorf("remote: atomic replace: %w", classifyRedis(err))
	}
	return nil, fmt.Errorf("remote: atomic replace gave up after %d attempts: %w", watchRetries, shared.ErrVersionConflict)
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

func decodeFields(fields map[string]string) (Document, error) {
	doc, err := ParseDocument([]byte(fields[fieldList]))
	if err != nil {
		return Document{}, err
	}
	if raw := fields[fieldVersion]; raw != "" {
		version, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Document{}, fmt.Errorf("remote: version %q: %w", raw, ErrBadVersion)
		}
		doc.Version = version
	}
	if raw := fields[fieldUpdatedAt]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			doc.UpdatedAt = ts
		}
	}
	return doc, nil
}

func classifyRedis(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return shared.Connectivity(err)
}
