package remote

import (
	"context"
	"time"
)

// Recorder receives one observation per remote call.
type Recorder interface {
	RemoteCall(op string, err error, elapsed time.Duration)
}

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call on next by timeout. A zero timeout returns next.
func WithTimeout(next Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return next
	}
	return &timeoutStore{next: next, timeout: timeout}
}

func (s *timeoutStore) Get(ctx context.Context, key string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Get(ctx, key)
}

func (s *timeoutStore) Replace(ctx context.Context, key string, doc Document) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Replace(ctx, key, doc)
}

func (s *timeoutStore) AtomicReplace(ctx context.Context, writes []Write) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.AtomicReplace(ctx, writes)
}

type instrumentedStore struct {
	next     Store
	recorder Recorder
}

// Instrument reports every call on next to recorder. A nil recorder returns next.
func Instrument(next Store, recorder Recorder) Store {
	if recorder == nil {
		return next
	}
	return &instrumentedStore{next: next, recorder: recorder}
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (Document, error) {
	start := time.Now()
	doc, err := s.next.Get(ctx, key)
	s.recorder.RemoteCall("get", err, time.Since(start))
	return doc, err
}

func (s *instrumentedStore) Replace(ctx context.Context, key string, doc Document) (Document, error) {
	start := time.Now()
	stored, err := s.next.Replace(ctx, key, doc)
	s.recorder.RemoteCall("replace", err, time.Since(start))
	return stored, err
}

func (s *instrumentedStore) AtomicReplace(ctx context.Context, writes []Write) ([]Document, error) {
	start := time.Now()
	stored, err := s.next.AtomicReplace(ctx, writes)
	s.recorder.RemoteCall("atomic_replace", err, time.Since(start))
	return stored, err
}
