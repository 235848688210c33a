package ratelimit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/rostergate/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

// failingStore always errors and counts how often it was asked.
type failingStore struct{ calls atomic.Int64 }

func (f *failingStore) Name() string { return "broken" }

func (f *failingStore) Increment(context.Context, string, time.Duration, time.Time) (ratelimit.Window, error) {
	f.calls.Add(1)
	return ratelimit.Window{}, errors.New("connection refused")
}

func (f *failingStore) Peek(context.Context, string, time.Duration, time.Time) (ratelimit.Window, error) {
	f.calls.Add(1)
	return ratelimit.Window{}, errors.New("connection refused")
}

// slowStore blocks until its context is done.
type slowStore struct{}

func (slowStore) Name() string { return "slow" }

func (slowStore) Increment(ctx context.Context, _ string, _ time.Duration, _ time.Time) (ratelimit.Window, error) {
	<-ctx.Done()
	return ratelimit.Window{}, ctx.Err()
}

func (slowStore) Peek(ctx context.Context, _ string, _ time.Duration, _ time.Time) (ratelimit.Window, error) {
	<-ctx.Done()
	return ratelimit.Window{}, ctx.Err()
}

func newRedisStore(t *testing.T) (*ratelimit.SharedStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return ratelimit.NewSharedStore(rdb, ""), mr
}

func newFileStore(t *testing.T) *ratelimit.LocalFileStore {
	t.Helper()
	return ratelimit.NewLocalFileStore(filepath.Join(t.TempDir(), "ratelimit.json"), time.Second)
}

func TestLimiterFixedWindow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	// Each backend returns the store and a way to move its clock forward.
	backends := map[string]func(t *testing.T, clk *clock) (ratelimit.Store, func(time.Duration)){
		"file": func(t *testing.T, clk *clock) (ratelimit.Store, func(time.Duration)) {
			return newFileStore(t), func(d time.Duration) { clk.now = clk.now.Add(d) }
		},
		"redis": func(t *testing.T, clk *clock) (ratelimit.Store, func(time.Duration)) {
			s, mr := newRedisStore(t)
			return s, func(d time.Duration) {
				clk.now = clk.now.Add(d)
				mr.FastForward(d)
			}
		},
	}

	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			clk := &clock{now: start}
			store, advance := mk(t, clk)
			l := ratelimit.New(ratelimit.Options{Primary: store, Logger: discard, Now: clk.Now})
			ctx := t.Context()

			for i := 1; i <= 5; i++ {
				require.True(t, l.CheckLimit(ctx, "10.0.0.1", 5, time.Minute), "request %d", i)
			}
			require.False(t, l.CheckLimit(ctx, "10.0.0.1", 5, time.Minute), "request 6")

			// Other keys are counted separately.
			require.True(t, l.CheckLimit(ctx, "10.0.0.2", 5, time.Minute))

			advance(61 * time.Second)

			res := l.Take(ctx, "10.0.0.1", 5, time.Minute)
			require.True(t, res.Allowed)
			require.EqualValues(t, 1, res.Count)
			require.Equal(t, 4, res.Remaining)
		})
	}
}

func TestLimiterStatus(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	l := ratelimit.New(ratelimit.Options{Primary: newFileStore(t), Logger: discard, Now: clk.Now})
	ctx := t.Context()

	st := l.Status(ctx, "k", 10, time.Minute)
	require.Equal(t, 10, st.Limit)
	require.Equal(t, 10, st.Remaining)
	require.Zero(t, st.Count)

	for n := 1; n <= 7; n++ {
		require.True(t, l.CheckLimit(ctx, "k", 10, time.Minute))

		st := l.Status(ctx, "k", 10, time.Minute)
		require.Equal(t, 10-n, st.Remaining)
		require.EqualValues(t, n, st.Count)
		require.Equal(t, clk.now.Add(time.Minute), st.ResetAt)
	}

	// Status never records a request.
	for range 20 {
		l.Status(ctx, "k", 10, time.Minute)
	}
	require.Equal(t, 3, l.Status(ctx, "k", 10, time.Minute).Remaining)
}

func TestLimiterRemainingNeverNegative(t *testing.T) {
	l := ratelimit.New(ratelimit.Options{Primary: newFileStore(t), Logger: discard})
	ctx := t.Context()

	for range 5 {
		l.CheckLimit(ctx, "k", 2, time.Minute)
	}
	res := l.Take(ctx, "k", 2, time.Minute)
	require.False(t, res.Allowed)
	require.Zero(t, res.Remaining)
	require.EqualValues(t, 6, res.Count)
}

func TestLimiterDefaults(t *testing.T) {
	l := ratelimit.New(ratelimit.Options{Primary: newFileStore(t), Logger: discard})

	res := l.Take(t.Context(), "k", 0, 0)
	require.True(t, res.Allowed)
	require.Equal(t, ratelimit.DefaultLimit, res.Limit)
	require.Equal(t, ratelimit.DefaultLimit-1, res.Remaining)
}

func TestLimiterFallback(t *testing.T) {
	broken := &failingStore{}
	file := newFileStore(t)
	l := ratelimit.New(ratelimit.Options{Primary: broken, Fallback: file, Logger: discard})
	ctx := t.Context()

	for range 3 {
		res := l.Take(ctx, "k", 3, time.Minute)
		require.True(t, res.Allowed)
		require.Equal(t, "file", res.Store)
	}
	require.False(t, l.CheckLimit(ctx, "k", 3, time.Minute))
	require.EqualValues(t, 4, broken.calls.Load())

	st := l.Status(ctx, "k", 3, time.Minute)
	require.EqualValues(t, 4, st.Count)
}

func TestLimiterFailsOpen(t *testing.T) {
	l := ratelimit.New(ratelimit.Options{
		Primary:  &failingStore{},
		Fallback: &failingStore{},
		Logger:   discard,
	})
	ctx := t.Context()

	for range 50 {
		res := l.Take(ctx, "k", 1, time.Minute)
		require.True(t, res.Allowed)
		require.Empty(t, res.Store)
	}

	st := l.Status(ctx, "k", 1, time.Minute)
	require.Equal(t, 1, st.Remaining)
}

func TestLimiterNoStores(t *testing.T) {
	l := ratelimit.New(ratelimit.Options{Logger: discard})
	require.True(t, l.CheckLimit(t.Context(), "k", 1, time.Minute))
	require.True(t, l.CheckLimit(t.Context(), "k", 1, time.Minute))
}

func TestLimiterStoreTimeout(t *testing.T) {
	l := ratelimit.New(ratelimit.Options{
		Primary:      slowStore{},
		Fallback:     newFileStore(t),
		StoreTimeout: 20 * time.Millisecond,
		Logger:       discard,
	})

	start := time.Now()
	res := l.Take(t.Context(), "k", 5, time.Minute)
	require.True(t, res.Allowed)
	require.Equal(t, "file", res.Store)
	require.Less(t, time.Since(start), time.Second)
}

func TestLimiterRedisRecovers(t *testing.T) {
	shared, mr := newRedisStore(t)
	file := newFileStore(t)
	l := ratelimit.New(ratelimit.Options{Primary: shared, Fallback: file, Logger: discard})
	ctx := t.Context()

	require.Equal(t, "redis", l.Take(ctx, "k", 10, time.Minute).Store)

	mr.SetError("ERR simulated outage")
	require.Equal(t, "file", l.Take(ctx, "k", 10, time.Minute).Store)

	mr.SetError("")
	res := l.Take(ctx, "k", 10, time.Minute)
	require.Equal(t, "redis", res.Store)
	require.EqualValues(t, 2, res.Count)
}
