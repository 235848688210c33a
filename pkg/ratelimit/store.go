// Package ratelimit implements fixed-window request counting per client key.
//
// # Window semantics
//
// The first request for a key opens a window {count=1, start=now}. Each
// further request inside [start, start+window) increments the count. The
// first request at or after start+window opens a fresh window.
//
// # Backends
//
// A Limiter consults a primary Store and falls back to a secondary one when
// the primary errors. SharedStore (Redis) increments atomically and is safe
// across processes. LocalFileStore is a single JSON file rewritten on every
// call; it is serialised inside one process but NOT across processes, so
// concurrent writers from several processes can lose increments.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreBusy is returned by LocalFileStore when the file lock could not
	// be taken within LockWait.
	ErrStoreBusy = errors.New("ratelimit: store busy")
	// ErrUnavailable reports that no store could evaluate a request.
	ErrUnavailable = errors.New("ratelimit: no store available")
)

// Window is the state of one client key's current window.
type Window struct {
	Count int64
	Start time.Time
}

// ResetAt returns the instant the window closes.
func (w Window) ResetAt(length time.Duration) time.Time {
	return w.Start.Add(length)
}

// Store persists per-key windows.
type Store interface {
	// Increment records one request for key at now and returns the updated
	// window, opening a new one when the previous window has elapsed.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error)

	// Peek returns the current window for key without recording a request.
	// A key with no open window returns a zero Count.
	Peek(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error)

	// Name identifies the backend in logs.
	Name() string
}
