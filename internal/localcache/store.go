// Package localcache is the durable key to document cache kept on the device.
//
// It is the instant-paint source for every read and the only source of truth
// while the remote store is unreachable. Each key is one JSON file; writes go
// through a temp file and rename so readers never observe a torn document.
package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// DefaultPrefix separates cache files from unrelated device-local settings.
const DefaultPrefix = "bizstore_"

const (
	fileExt        = ".json"
	lockFileName   = ".cache.lock"
	lockTimeout    = 3 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// ErrInvalidKey is returned for keys that cannot map to a file name.
var ErrInvalidKey = errors.New("localcache: invalid key")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store is the single owner of the on-disk cache directory.
type Store struct {
	dir    string
	prefix string
	mu     sync.Mutex
	lock   *flock.Flock
}

// Open prepares dir and returns a Store. An empty prefix uses DefaultPrefix.
func Open(dir, prefix string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("localcache: directory required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localcache: create dir: %w", err)
	}
	return &Store{
		dir:    dir,
		prefix: prefix,
		lock:   flock.New(filepath.Join(dir, lockFileName)),
	}, nil
}

// Get returns the bytes stored under key and whether the key exists.
func (s *Store) Get(key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire(false)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localcache: read %s: %w", key, err)
	}
	return data, true, nil
}

// Set overwrites key with data. Last write wins.
func (s *Store) Set(key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire(true)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(s.dir, s.prefix+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("localcache: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("localcache: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("localcache: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("localcache: rename %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire(true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localcache: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists cached keys in lexical order.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("localcache: list: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// GetJSON decodes the value under key into dest.
func (s *Store) GetJSON(key string, dest any) (bool, error) {
	data, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("localcache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func (s *Store) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("localcache: encode %s: %w", key, err)
	}
	return s.Set(key, data)
}

func (s *Store) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, s.prefix+key+fileExt), nil
}

// acquire takes the cross-process lock shared by every process using dir.
// Callers hold s.mu, so the flock handle is never shared between goroutines.
func (s *Store) acquire(exclusive bool) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("localcache: acquire lock: %w", err)
	}
	if !locked {
		return nil, errors.New("localcache: lock busy")
	}
	return func() { _ = s.lock.Unlock() }, nil
}
