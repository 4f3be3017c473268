package docsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/bizstore/internal/remote"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// ErrMalformed marks a stored document whose records fail their schema.
var ErrMalformed = errors.New("docsync: malformed document")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Record is an entity stored in a document list.
type Record interface {
	RecordID() string
}

// Normalizer is implemented by entities that migrate legacy shapes or
// recompute derived fields after decoding.
type Normalizer interface {
	Normalize()
}

// DecodeList decodes, normalizes and validates every record of doc.
func DecodeList[T any](key string, doc remote.Document) ([]T, error) {
	var list []T
	if err := doc.Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, key, err)
	}
	if list == nil {
		list = []T{}
	}
	for i := range list {
		if n, ok := any(&list[i]).(Normalizer); ok {
			n.Normalize()
		}
		if err := validateRecord(list[i]); err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %w", ErrMalformed, key, i, err)
		}
	}
	return list, nil
}

// EncodeList validates every record and builds the document to write.
func EncodeList[T any](key string, list []T) (remote.Document, error) {
	for i := range list {
		if err := validateRecord(list[i]); err != nil {
			return remote.Document{}, fmt.Errorf("docsync: %s[%d]: %w", key, i, &shared.ValidationError{Field: key, Message: err.Error()})
		}
	}
	return remote.NewDocument(list)
}

func validateRecord(v any) error {
	err := validate.Struct(v)
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}
	return err
}

type collectionOptions struct {
	remoteOnly bool
}

// CollectionOption tunes a Collection.
type CollectionOption func(*collectionOptions)

// RemoteOnly leaves the local cache untouched on writes, for keys whose
// cache entry has another single owner.
func RemoteOnly() CollectionOption {
	return func(o *collectionOptions) { o.remoteOnly = true }
}

// Collection is typed access to one physical document.
type Collection[T Record] struct {
	sync *Synchronizer
	key  string
	opts collectionOptions
}

// NewCollection binds a typed collection to key.
func NewCollection[T Record](s *Synchronizer, key string, opts ...CollectionOption) *Collection[T] {
	c := &Collection[T]{sync: s, key: key}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

// Key returns the physical document key.
func (c *Collection[T]) Key() string {
	return c.key
}

// List reads the collection, falling back to the cache when offline.
func (c *Collection[T]) List(ctx context.Context) ([]T, Source, error) {
	doc, source, err := c.sync.Read(ctx, c.key)
	if err != nil {
		return nil, source, err
	}
	list, err := DecodeList[T](c.key, doc)
	return list, source, err
}

// Cached returns the locally cached records only.
func (c *Collection[T]) Cached() ([]T, error) {
	doc, _, err := c.sync.Cached(c.key)
	if err != nil {
		return nil, err
	}
	return DecodeList[T](c.key, doc)
}

// Find returns the record with id.
func (c *Collection[T]) Find(ctx context.Context, id string) (T, error) {
	var zero T
	list, _, err := c.List(ctx)
	if err != nil {
		return zero, err
	}
	if i := indexOf(list, id); i >= 0 {
		return list[i], nil
	}
	return zero, fmt.Errorf("%s %s: %w", c.key, id, shared.ErrNotFound)
}

// Mutate applies fn to the latest remote list and writes the result back.
// The session is ensured first; the cache is only updated after the remote
// accepted the write, and neither side changes when any step fails. Writes
// are last-writer-wins at whole-list granularity.
func (c *Collection[T]) Mutate(ctx context.Context, fn func([]T) ([]T, error)) ([]T, error) {
	if err := c.sync.EnsureSession(ctx); err != nil {
		return nil, err
	}
	current, err := c.sync.Fetch(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("docsync: fetch %s: %w", c.key, err)
	}
	list, err := DecodeList[T](c.key, current)
	if err != nil {
		return nil, err
	}
	next, err := fn(list)
	if err != nil {
		return nil, err
	}
	doc, err := EncodeList(c.key, next)
	if err != nil {
		return nil, err
	}
	stored, err := c.sync.remote.Replace(ctx, c.key, doc)
	if err != nil {
		return nil, fmt.Errorf("docsync: replace %s: %w", c.key, err)
	}
	if !c.opts.remoteOnly {
		c.sync.storeCache(c.key, stored)
	}
	return next, nil
}

// Upsert replaces the record with the same id or appends it.
func (c *Collection[T]) Upsert(ctx context.Context, rec T) ([]T, error) {
	return c.Mutate(ctx, func(list []T) ([]T, error) {
		return Upsert(list, rec), nil
	})
}

// Remove drops the record with id. Missing ids fail with shared.ErrNotFound.
func (c *Collection[T]) Remove(ctx context.Context, id string) ([]T, error) {
	return c.Mutate(ctx, func(list []T) ([]T, error) {
		next, ok := Remove(list, id)
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", c.key, id, shared.ErrNotFound)
		}
		return next, nil
	})
}

// Upsert replaces the record with rec's id in list or appends rec.
func Upsert[T Record](list []T, rec T) []T {
	if i := indexOf(list, rec.RecordID()); i >= 0 {
		out := append([]T(nil), list...)
		out[i] = rec
		return out
	}
	return append(append([]T(nil), list...), rec)
}

// Remove returns list without the record with id.
func Remove[T Record](list []T, id string) ([]T, bool) {
	i := indexOf(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}

// Prepend puts rec at the head of list.
func Prepend[T any](list []T, rec T) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, rec)
	return append(out, list...)
}

func indexOf[T Record](list []T, id string) int {
	for i := range list {
		if list[i].RecordID() == id {
			return i
		}
	}
	return -1
}
