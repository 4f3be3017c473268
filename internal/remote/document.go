// Package remote talks to the authoritative networked document store.
//
// A document is an ordered JSON list of records stored under one key. Stores
// expose get, replace and an all-or-nothing multi-key replace.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMaxDocumentBytes mirrors the per-document ceiling of hosted document databases.
const DefaultMaxDocumentBytes = 1 << 20

var emptyList = json.RawMessage("[]")

// Document is the unit of read and write against the store.
type Document struct {
	List      json.RawMessage `json:"list"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Empty returns the document that stands for a key never written.
func Empty() Document {
	return Document{List: emptyList}
}

// NewDocument encodes list. A nil slice becomes an empty list.
func NewDocument(list any) (Document, error) {
	raw, err := json.Marshal(list)
	if err != nil {
		return Document{}, fmt.Errorf("remote: encode list: %w", err)
	}
	if bytes.Equal(raw, []byte("null")) {
		raw = emptyList
	}
	return Document{List: raw}, nil
}

// Decode unmarshals the list into dest.
func (d Document) Decode(dest any) error {
	list := d.List
	if len(bytes.TrimSpace(list)) == 0 || bytes.Equal(list, []byte("null")) {
		list = emptyList
	}
	if err := json.Unmarshal(list, dest); err != nil {
		return fmt.Errorf("remote: decode list: %w", err)
	}
	return nil
}

// Size is the encoded size checked against the store ceiling.
func (d Document) Size() int {
	return len(d.List)
}

// Encode serialises the whole document for the local cache.
func (d Document) Encode() ([]byte, error) {
	if len(d.List) == 0 {
		d.List = emptyList
	}
	return json.Marshal(d)
}

// ParseDocument reads a cached or stored payload. Older writers stored the
// bare list without the envelope; those payloads are migrated at version 0.
func ParseDocument(raw []byte) (Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Empty(), nil
	}
	if trimmed[0] == '[' {
		if !json.Valid(trimmed) {
			return Document{}, fmt.Errorf("remote: malformed legacy list")
		}
		return Document{List: json.RawMessage(trimmed)}, nil
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Document{}, fmt.Errorf("remote: parse document: %w", err)
	}
	if len(doc.List) == 0 || bytes.Equal(doc.List, []byte("null")) {
		doc.List = emptyList
	}
	return doc, nil
}

// Write is one member of an atomic multi-key replace.
type Write struct {
	Key string
	Doc Document
	// CheckVersion makes the write conditional on the stored version still
	// equalling Doc.Version. Keys never written count as version 0.
	CheckVersion bool
}

// Store abstracts the networked document database.
//
// Get returns shared.ErrNotFound for keys never written. Replace and
// AtomicReplace return the stored documents with their new versions.
// AtomicReplace applies every write or none of them.
type Store interface {
	Get(ctx context.Context, key string) (Document, error)
	Replace(ctx context.Context, key string, doc Document) (Document, error)
	AtomicReplace(ctx context.Context, writes []Write) ([]Document, error)
}
