package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/bizstore/internal/localcache"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/remote"
)

// CacheStatusOptions defines the flags of the cache status command.
type CacheStatusOptions struct {
	Dir        string
	Prefix     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CacheEntry describes one cached document.
type CacheEntry struct {
	Key        string     `json:"key"`
	Collection string     `json:"collection"`
	Records    int        `json:"records"`
	Version    int64      `json:"version"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// CacheStatusSummary is the JSON output of cache status.
type CacheStatusSummary struct {
	OK      bool         `json:"ok"`
	Entries []CacheEntry `json:"entries"`
}

// CacheStatusCommand lists the documents held in the device cache and
// reports unreadable ones. It returns the process exit code.
func CacheStatusCommand(opts CacheStatusOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	store, err := localcache.Open(opts.Dir, opts.Prefix)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "cache status: %v\n", err)
		return 1
	}
	keys, err := store.Keys()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "cache status: %v\n", err)
		return 1
	}

	summary := CacheStatusSummary{OK: true, Entries: make([]CacheEntry, 0, len(keys))}
	for _, key := range keys {
		entry := inspectEntry(store, key)
		if entry.Error != "" {
			summary.OK = false
		}
		summary.Entries = append(summary.Entries, entry)
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "cache status: encode: %v\n", err)
			return 1
		}
	} else {
		writeCacheTable(opts.Stdout, summary.Entries)
	}
	if !summary.OK {
		return 2
	}
	return 0
}

func inspectEntry(store *localcache.Store, key string) CacheEntry {
	entry := CacheEntry{Key: key, Collection: "unknown"}
	if c, _, err := partition.Resolve(key); err == nil {
		entry.Collection = string(c)
	}
	raw, _, err := store.Get(key)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	doc, err := remote.ParseDocument(raw)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	var records []json.RawMessage
	if err := doc.Decode(&records); err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Records = len(records)
	entry.Version = doc.Version
	if !doc.UpdatedAt.IsZero() {
		updated := doc.UpdatedAt.UTC()
		entry.UpdatedAt = &updated
	}
	return entry
}

func writeCacheTable(w io.Writer, entries []CacheEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tCOLLECTION\tRECORDS\tVERSION\tUPDATED\tERROR")
	for _, e := range entries {
		updated := "-"
		if e.UpdatedAt != nil {
			updated = e.UpdatedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", e.Key, e.Collection, e.Records, e.Version, updated, e.Error)
	}
	_ = tw.Flush()
}
