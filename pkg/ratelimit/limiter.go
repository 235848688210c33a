package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied when CheckLimit is called with a non-positive limit or
// window.
const (
	DefaultLimit        = 100
	DefaultWindow       = 60 * time.Second
	DefaultStoreTimeout = 250 * time.Millisecond
)

// Options configures a Limiter.
type Options struct {
	// Primary is consulted first, usually a SharedStore. May be nil.
	Primary Store
	// Fallback is consulted when Primary errors, usually a LocalFileStore.
	// May be nil.
	Fallback Store
	// StoreTimeout bounds every individual store call.
	StoreTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Status describes a key's throttle state for response headers.
type Status struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Count     int64
}

// Result is the outcome of recording one request.
type Result struct {
	Allowed bool
	Status
	// Store names the backend that answered, empty when the limiter failed
	// open.
	Store string
}

// Limiter enforces fixed-window limits over a chain of stores. When every
// store fails the request is allowed: availability wins over enforcement.
type Limiter struct {
	stores  []Store
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time

	// failures throttles store error logs during an outage.
	failures rate.Sometimes
}

// New returns a Limiter over the configured stores.
func New(opts Options) *Limiter {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var stores []Store
	for _, s := range []Store{opts.Primary, opts.Fallback} {
		if s != nil {
			stores = append(stores, s)
		}
	}

	return &Limiter{
		stores:   stores,
		timeout:  opts.StoreTimeout,
		log:      opts.Logger,
		now:      opts.Now,
		failures: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
}

// CheckLimit records a request for key and reports whether it is within
// limit requests per window.
func (l *Limiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) bool {
	return l.Take(ctx, key, limit, window).Allowed
}

// Take records a request for key and returns the decision together with the
// resulting status.
func (l *Limiter) Take(ctx context.Context, key string, limit int, window time.Duration) Result {
	limit, window = normalise(limit, window)
	now := l.now()

	w, name, err := l.do(ctx, key, func(ctx context.Context, s Store) (Window, error) {
		return s.Increment(ctx, key, window, now)
	})
	if err != nil {
		return Result{Allowed: true, Status: Status{Limit: limit, Remaining: limit, ResetAt: now.Add(window)}}
	}

	return Result{
		Allowed: w.Count <= int64(limit),
		Status:  statusOf(w, limit, window),
		Store:   name,
	}
}

// Status reports the throttle state of key without recording a request.
func (l *Limiter) Status(ctx context.Context, key string, limit int, window time.Duration) Status {
	limit, window = normalise(limit, window)
	now := l.now()

	w, _, err := l.do(ctx, key, func(ctx context.Context, s Store) (Window, error) {
		return s.Peek(ctx, key, window, now)
	})
	if err != nil || w.Count == 0 {
		return Status{Limit: limit, Remaining: limit, ResetAt: now.Add(window)}
	}
	return statusOf(w, limit, window)
}

// do runs op against each store in turn until one succeeds.
func (l *Limiter) do(ctx context.Context, key string, op func(context.Context, Store) (Window, error)) (Window, string, error) {
	for _, s := range l.stores {
		cctx, cancel := context.WithTimeout(ctx, l.timeout)
		w, err := op(cctx, s)
		cancel()
		if err == nil {
			return w, s.Name(), nil
		}

		l.failures.Do(func() {
			l.log.WarnContext(ctx, "rate limit store failed",
				"store", s.Name(),
				"key", key,
				"error", err,
			)
		})
	}

	l.failures.Do(func() {
		l.log.ErrorContext(ctx, "rate limit unavailable, failing open", "key", key)
	})
	return Window{}, "", ErrUnavailable
}

func statusOf(w Window, limit int, window time.Duration) Status {
	return Status{
		Limit:     limit,
		Remaining: max(limit-int(w.Count), 0),
		ResetAt:   w.ResetAt(window),
		Count:     w.Count,
	}
}

func normalise(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return limit, window
}
