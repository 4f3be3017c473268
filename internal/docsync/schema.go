package docsync

import (
	"fmt"

	"github.com/odyssey-erp/bizstore/internal/remote"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Schema checks a whole-list replacement submitted outside the entity
// services and returns the normalized document to store.
type Schema func(key string, current, next remote.Document) (remote.Document, error)

// Guard inspects a replacement against the stored list. Both lists are
// decoded and normalized.
type Guard[T any] func(current, next []T) error

// TypedSchema builds the Schema of one entity type. Every incoming record
// must satisfy its schema before normalization, record ids must be unique
// and guard, when set, must accept the change.
func TypedSchema[T Record](guard Guard[T]) Schema {
	return func(key string, current, next remote.Document) (remote.Document, error) {
		var incoming []T
		if err := next.Decode(&incoming); err != nil {
			return remote.Document{}, &shared.ValidationError{Field: key, Message: err.Error()}
		}
		seen := make(map[string]struct{}, len(incoming))
		for i := range incoming {
			if err := validateRecord(incoming[i]); err != nil {
				return remote.Document{}, &shared.ValidationError{Field: fmt.Sprintf("%s[%d]", key, i), Message: err.Error()}
			}
			id := incoming[i].RecordID()
			if _, dup := seen[id]; dup {
				return remote.Document{}, shared.NewValidationError(fmt.Sprintf("%s[%d]", key, i), "duplicate id %s", id)
			}
			seen[id] = struct{}{}
			if n, ok := any(&incoming[i]).(Normalizer); ok {
				n.Normalize()
			}
		}
		if incoming == nil {
			incoming = []T{}
		}
		if guard != nil {
			stored, err := DecodeList[T](key, current)
			if err != nil {
				return remote.Document{}, err
			}
			if err := guard(stored, incoming); err != nil {
				return remote.Document{}, err
			}
		}
		doc, err := EncodeList(key, incoming)
		if err != nil {
			return remote.Document{}, err
		}
		doc.Version = current.Version
		return doc, nil
	}
}
