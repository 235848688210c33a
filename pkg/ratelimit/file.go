package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultLockWait bounds how long a LocalFileStore call waits for the
// in-process lock before giving up with ErrStoreBusy.
const DefaultLockWait = 50 * time.Millisecond

// fileEntry is one key's window as persisted on disk.
type fileEntry struct {
	Count       int64     `json:"count"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
}

// LocalFileStore keeps all windows in a single JSON file which is read,
// mutated and rewritten in full on every call.
//
// Calls within one process are serialised. Calls from different processes
// sharing the file are NOT: two read-modify-write cycles can interleave and
// one increment is lost. Use it only as a low concurrency fallback.
type LocalFileStore struct {
	path     string
	lockWait time.Duration
	sem      chan struct{}
	log      *slog.Logger
}

// NewLocalFileStore returns a store persisting to path. lockWait <= 0 selects
// DefaultLockWait.
func NewLocalFileStore(path string, lockWait time.Duration) *LocalFileStore {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &LocalFileStore{
		path:     filepath.Clean(path),
		lockWait: lockWait,
		sem:      make(chan struct{}, 1),
		log:      slog.Default(),
	}
}

// WithLogger sets the logger used to report a corrupt file.
func (s *LocalFileStore) WithLogger(l *slog.Logger) *LocalFileStore {
	if l != nil {
		s.log = l
	}
	return s
}

func (s *LocalFileStore) Name() string { return "file" }

// Path is the backing file.
func (s *LocalFileStore) Path() string { return s.path }

func (s *LocalFileStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	if err := s.lock(ctx); err != nil {
		return Window{}, err
	}
	defer s.unlock()

	entries, err := s.load()
	if err != nil {
		return Window{}, err
	}

	e, ok := entries[key]
	if !ok || !now.Before(e.WindowStart.Add(window)) {
		e = fileEntry{WindowStart: now}
	}
	e.Count++
	e.ResetAt = e.WindowStart.Add(window)
	entries[key] = e

	prune(entries, now)
	if err := s.save(entries); err != nil {
		return Window{}, err
	}
	return Window{Count: e.Count, Start: e.WindowStart}, nil
}

func (s *LocalFileStore) Peek(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	if err := s.lock(ctx); err != nil {
		return Window{}, err
	}
	defer s.unlock()

	entries, err := s.load()
	if err != nil {
		return Window{}, err
	}

	e, ok := entries[key]
	if !ok || !now.Before(e.WindowStart.Add(window)) {
		return Window{Start: now}, nil
	}
	return Window{Count: e.Count, Start: e.WindowStart}, nil
}

// Prune drops every elapsed window and returns how many were removed.
func (s *LocalFileStore) Prune(ctx context.Context, now time.Time) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	entries, err := s.load()
	if err != nil {
		return 0, err
	}
	n := prune(entries, now)
	if n == 0 {
		return 0, nil
	}
	return n, s.save(entries)
}

func (s *LocalFileStore) lock(ctx context.Context) error {
	t := time.NewTimer(s.lockWait)
	defer t.Stop()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-t.C:
		return ErrStoreBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LocalFileStore) unlock() { <-s.sem }

// load reads the file. A missing file or an unparsable document starts over
// with an empty map rather than wedging the limiter; the latter is logged
// since every client's count is lost.
func (s *LocalFileStore) load() (map[string]fileEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]fileEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rate limit file: %w", err)
	}

	entries := map[string]fileEntry{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			s.log.Warn("rate limit file is corrupt, resetting all windows",
				"path", s.path,
				"error", err,
			)
			return map[string]fileEntry{}, nil
		}
	}
	return entries, nil
}

// save replaces the file through a rename so readers never see a torn write.
func (s *LocalFileStore) save(entries map[string]fileEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode rate limit file: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".ratelimit-*")
	if err != nil {
		return fmt.Errorf("write rate limit file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write rate limit file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write rate limit file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write rate limit file: %w", err)
	}
	return nil
}

func prune(entries map[string]fileEntry, now time.Time) int {
	n := 0
	for k, e := range entries {
		if !now.Before(e.ResetAt) {
			delete(entries, k)
			n++
		}
	}
	return n
}
