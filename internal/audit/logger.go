// Package audit keeps the append-only activity trail. Entries are written to
// the device's local cache first and pushed to the remote store by a
// best-effort task, so the remote trail may lag the local one.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/remote"
	"github.com/odyssey-erp/bizstore/internal/shared"
	"github.com/odyssey-erp/bizstore/jobs"
)

// Logger implements shared.AuditPort.
type Logger struct {
	key    string
	cache  docsync.Cache
	sync   *docsync.Synchronizer
	queue  jobs.BestEffort
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewLogger builds a Logger. cache must be the same local cache the
// synchronizer uses; queue may be nil to keep entries local only.
func NewLogger(sync *docsync.Synchronizer, cache docsync.Cache, queue jobs.BestEffort, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		key:    partition.MustKey(partition.AuditLogs),
		cache:  cache,
		sync:   sync,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Record prepends an entry to the local trail and schedules a remote sync of
// the whole trail. Only a local write failure is returned.
func (l *Logger) Record(ctx context.Context, log shared.AuditLog) error {
	actor := shared.ActorFromContext(ctx)
	entry := Entry{
		ID:          uuid.NewString(),
		Action:      log.Action,
		Module:      log.Module,
		Description: log.Description,
		Actor:       actor.Label(),
		ActorID:     actor.ID,
		Metadata:    log.Meta,
	}

	l.mu.Lock()
	list, corrupt, err := l.read()
	if err != nil && corrupt != nil {
		err = l.setAside(corrupt, err)
	}
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("audit: record: %w", err)
	}
	entry.Timestamp = l.now()
	// The head must stay the newest entry even if the clock stepped back.
	if len(list) > 0 && entry.Timestamp.Before(list[0].Timestamp) {
		entry.Timestamp = list[0].Timestamp
	}
	list = docsync.Prepend(list, entry)
	err = l.store(list)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}

	l.submit(ctx, list)
	return nil
}

// Local returns the device trail, newest first.
func (l *Logger) Local() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.local()
}

// List merges the remote trail with entries not yet synced from this
// device. Offline, only the local trail is returned.
func (l *Logger) List(ctx context.Context) ([]Entry, docsync.Source, error) {
	local, err := l.Local()
	if err != nil {
		return nil, docsync.SourceEmpty, err
	}
	doc, err := l.sync.Fetch(ctx, l.key)
	if err != nil {
		if shared.IsOffline(err) {
			if len(local) == 0 {
				return local, docsync.SourceEmpty, nil
			}
			return local, docsync.SourceCache, nil
		}
		return nil, docsync.SourceEmpty, err
	}
	stored, err := docsync.DecodeList[Entry](l.key, doc)
	if err != nil {
		return nil, docsync.SourceEmpty, err
	}
	return Merge(stored, local), docsync.SourceRemote, nil
}

// Sync merges payload, a JSON encoded trail, into the remote trail. A
// concurrent writer makes it fail so the queue retries it.
func (l *Logger) Sync(ctx context.Context, payload []byte) error {
	var incoming []Entry
	if err := json.Unmarshal(payload, &incoming); err != nil {
		return fmt.Errorf("audit: sync payload: %v: %w", err, asynq.SkipRetry)
	}
	tx, err := l.sync.Begin(ctx, "audit_sync", l.key)
	if err != nil {
		return err
	}
	stored, err := docsync.ReadList[Entry](tx, l.key)
	if err != nil {
		return err
	}
	merged := Merge(stored, incoming)
	if len(merged) == len(stored) {
		return nil
	}
	if err := docsync.StageList(tx, l.key, merged); err != nil {
		return err
	}
	tx.SkipCache(l.key)
	return tx.Commit(ctx)
}

// Merge unions trails by entry id, newest first.
func Merge(a, b []Entry) []Entry {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]Entry, 0, len(a)+len(b))
	for _, list := range [][]Entry{a, b} {
		for _, e := range list {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(x, y Entry) int {
		return y.Timestamp.Compare(x.Timestamp)
	})
	return out
}

func (l *Logger) local() ([]Entry, error) {
	list, _, err := l.read()
	return list, err
}

// read returns the device trail. A trail that cannot be decoded comes back
// as raw bytes together with the decode error.
func (l *Logger) read() ([]Entry, []byte, error) {
	raw, ok, err := l.cache.Get(l.key)
	if err != nil || !ok {
		return nil, nil, err
	}
	doc, err := remote.ParseDocument(raw)
	if err != nil {
		return nil, raw, err
	}
	list, err := docsync.DecodeList[Entry](l.key, doc)
	if err != nil {
		return nil, raw, err
	}
	return list, nil, nil
}

// setAside copies an undecodable trail to its own cache key so a fresh trail
// can start without losing the old bytes.
func (l *Logger) setAside(raw []byte, cause error) error {
	aside := fmt.Sprintf("%s_corrupt_%d", l.key, l.now().UnixNano())
	if err := l.cache.Set(aside, raw); err != nil {
		return fmt.Errorf("set aside unreadable trail: %w", err)
	}
	l.logger.Warn("local audit trail unreadable, moved aside",
		slog.String("moved_to", aside),
		slog.Any("error", cause),
	)
	return nil
}

func (l *Logger) store(list []Entry) error {
	doc, err := docsync.EncodeList(l.key, list)
	if err != nil {
		return err
	}
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	return l.cache.Set(l.key, raw)
}

func (l *Logger) submit(ctx context.Context, list []Entry) {
	if l.queue == nil {
		return
	}
	payload, err := json.Marshal(list)
	if err == nil {
		err = l.queue.Submit(ctx, jobs.Task{Type: jobs.TaskAuditSync, Payload: payload})
	}
	if err != nil {
		l.logger.Warn("audit sync not scheduled", slog.Any("error", err))
	}
}

// Handler returns the task handler for jobs.TaskAuditSync.
func (l *Logger) Handler() jobs.TaskFunc {
	return l.Sync
}
