package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

type countingPruner struct {
	calls atomic.Int64
	err   error
}

func (p *countingPruner) Prune(context.Context, time.Time) (int, error) {
	p.calls.Add(1)
	return 3, p.err
}

func TestHousekeepingRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	u := f.createUser(t, "jsmith", "pw", domain.StatusActive)
	v := f.createUser(t, "adoe", "pw", domain.StatusActive)

	stale, err := f.refresh.Issue(ctx, u.ID)
	require.NoError(t, err)

	f.clock.Advance(DefaultRefreshTTL - time.Hour)
	fresh, err := f.refresh.Issue(ctx, v.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	pruner := &countingPruner{}
	hk := NewHousekeepingService(f.store, pruner, logger, time.Hour)
	hk.Now = f.clock.Now
	hk.RunOnce(ctx)

	require.EqualValues(t, 1, pruner.calls.Load())

	_, err = f.store.RefreshCredentials().GetRefreshCredentialByHash(ctx, cryptox.FingerprintToken(stale))
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.refresh.Validate(ctx, fresh)
	require.NoError(t, err)

	n, err := f.store.RefreshCredentials().DeleteExpiredRefreshCredentials(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Zero(t, n, "expired credential should already be gone")

	// A failing pruner is logged, not fatal.
	pruner.err = errors.New("read-only file system")
	hk.RunOnce(ctx)
	require.EqualValues(t, 2, pruner.calls.Load())
}

func TestHousekeepingStartStop(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pruner := &countingPruner{}
	hk := NewHousekeepingService(f.store, pruner, logger, 10*time.Millisecond)
	hk.Start()

	require.Eventually(t, func() bool { return pruner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	hk.Stop()

	after := pruner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, pruner.calls.Load())
}

func TestHousekeepingStopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("after start", func(t *testing.T) {
		hk := NewHousekeepingService(f.store, nil, logger, time.Hour)
		hk.Start()
		hk.Stop()
		require.NotPanics(t, hk.Stop)
	})

	t.Run("never started", func(t *testing.T) {
		hk := NewHousekeepingService(f.store, nil, logger, time.Hour)
		done := make(chan struct{})
		go func() {
			hk.Stop()
			hk.Stop()
			close(done)
		}()
		require.Eventually(t, func() bool {
			select {
			case <-done:
				return true
			default:
				return false
			}
		}, time.Second, 5*time.Millisecond)
	})
}

func TestNewHousekeepingServiceDefaultInterval(t *testing.T) {
	hk := NewHousekeepingService(nil, nil, slog.Default(), 0)
	require.Equal(t, time.Hour, hk.Interval)
}
