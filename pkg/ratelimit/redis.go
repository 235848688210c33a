package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces rate limit counters in a shared Redis.
const DefaultKeyPrefix = "rl:"

// incrementScript performs INCR, sets the expiry only on the first hit of a
// window and reports the remaining TTL, all in one atomic round trip. A key
// that somehow lost its TTL is given one again so it cannot live forever.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// SharedStore keeps windows in Redis so every replica sees the same count.
type SharedStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSharedStore returns a store over client. An empty prefix selects
// DefaultKeyPrefix.
func NewSharedStore(client redis.UniversalClient, prefix string) *SharedStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &SharedStore{client: client, prefix: prefix}
}

func (s *SharedStore) Name() string { return "redis" }

func (s *SharedStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("redis increment: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("redis increment: unexpected reply length %d", len(res))
	}
	return windowFromTTL(res[0], time.Duration(res[1])*time.Millisecond, window, now), nil
}

func (s *SharedStore) Peek(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	k := s.prefix + key

	var get *redis.StringCmd
	var ttl *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Window{}, fmt.Errorf("redis peek: %w", err)
	}

	count, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return Window{Start: now}, nil
	}
	if err != nil {
		return Window{}, fmt.Errorf("redis peek: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return windowFromTTL(count, remaining, window, now), nil
}

// Ping reports whether the Redis server answers.
func (s *SharedStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// windowFromTTL reconstructs the window start from the key's remaining TTL.
func windowFromTTL(count int64, ttl, window time.Duration, now time.Time) Window {
	if ttl > window {
		ttl = window
	}
	return Window{Count: count, Start: now.Add(ttl - window)}
}
