package httpx

import (
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/rostergate/pkg/ratelimit"
	"github.com/aussiebroadwan/rostergate/pkg/slogx"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// Name namespaces the counters so one client key may be limited
	// independently by several profiles.
	Name string
	// Scope separates budgets of one profile, typically one per route.
	Scope string
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the length of the fixed window
	Window time.Duration
}

// Scoped returns c counting in its own bucket named scope.
func (c RateLimitConfig) Scoped(scope string) RateLimitConfig {
	c.Scope = scope
	return c
}

// bucket prefixes a client key with the profile name and scope.
func (c RateLimitConfig) bucket(key string) string {
	for _, part := range []string{c.Scope, c.Name} {
		if part != "" {
			key = part + ":" + key
		}
	}
	return key
}

// Common rate limit profiles for different endpoint types.
// Each can be overridden via environment variables, see LoadRateLimitProfiles.
var (
	// StrictLimit for authentication endpoints (brute force prevention).
	// Override with: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC
	StrictLimit = RateLimitConfig{Name: "strict", RequestsPerWindow: 5, Window: time.Minute}

	// ModerateLimit for authenticated operations.
	// Override with: RATELIMIT_MODERATE_REQUESTS, RATELIMIT_MODERATE_WINDOW_SEC
	ModerateLimit = RateLimitConfig{Name: "moderate", RequestsPerWindow: 20, Window: time.Minute}

	// LenientLimit is the general API default.
	// Override with: RATELIMIT_LENIENT_REQUESTS, RATELIMIT_LENIENT_WINDOW_SEC
	LenientLimit = RateLimitConfig{Name: "lenient", RequestsPerWindow: ratelimit.DefaultLimit, Window: ratelimit.DefaultWindow}

	// PublicLimit for public read-only endpoints such as health probes.
	// Override with: RATELIMIT_PUBLIC_REQUESTS, RATELIMIT_PUBLIC_WINDOW_SEC
	PublicLimit = RateLimitConfig{Name: "public", RequestsPerWindow: 1000, Window: time.Minute}
)

// RateLimitProfiles groups the four profiles after environment overrides.
type RateLimitProfiles struct {
	Strict, Moderate, Lenient, Public RateLimitConfig
}

// LoadRateLimitProfiles returns the default profiles with any
// RATELIMIT_<NAME>_* environment overrides applied.
func LoadRateLimitProfiles() RateLimitProfiles {
	return RateLimitProfiles{
		Strict:   ParseRateLimitFromEnv("STRICT", StrictLimit),
		Moderate: ParseRateLimitFromEnv("MODERATE", ModerateLimit),
		Lenient:  ParseRateLimitFromEnv("LENIENT", LenientLimit),
		Public:   ParseRateLimitFromEnv("PUBLIC", PublicLimit),
	}
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC
// Invalid or non-positive values are ignored.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	return config
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, user ID, client ID, etc.)
type KeyExtractor func(*http.Request) string

// Common key extractors

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests, so
// it must only be used behind a proxy that overwrites those headers.
func IPKeyExtractor(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return RemoteIPKeyExtractor(r)
}

// RemoteIPKeyExtractor uses the TCP peer address only and ignores
// forwarding headers.
func RemoteIPKeyExtractor(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ClientIP picks IPKeyExtractor when proxy headers are trusted and
// RemoteIPKeyExtractor otherwise.
func ClientIP(trustProxy bool) KeyExtractor {
	if trustProxy {
		return IPKeyExtractor
	}
	return RemoteIPKeyExtractor
}

// UserIDKeyExtractor extracts the user ID from the request context.
// Returns empty string if no user ID is found.
func UserIDKeyExtractor(r *http.Request) string {
	id, _ := UserIDFromContext(r.Context())
	return id
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
// Example: CompositeKeyExtractor(":", IPKeyExtractor, UserIDKeyExtractor)
// would produce keys like "192.168.1.1:user123"
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// FormFieldKeyExtractor extracts a key from a form field (works for both GET and POST).
// Use this for extracting username, client_id, etc. from request parameters.
func FormFieldKeyExtractor(fieldName string) KeyExtractor {
	return func(r *http.Request) string {
		// Try to parse form (handles both URL params and POST body)
		if err := r.ParseForm(); err == nil {
			return r.FormValue(fieldName)
		}
		return ""
	}
}

// RateLimitMiddleware enforces config through limiter. Every response carries
// X-Rate-Limit-Limit, X-Rate-Limit-Remaining and X-Rate-Limit-Reset (unix
// seconds); denied requests get 429 with Retry-After.
func RateLimitMiddleware(limiter *ratelimit.Limiter, config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			key = config.bucket(key)

			res := limiter.Take(ctx, key, config.RequestsPerWindow, config.Window)
			WriteRateLimitHeaders(w, res.Status)

			if !res.Allowed {
				retryAfter := max(int(math.Ceil(time.Until(res.ResetAt).Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"count", res.Count,
					"retry_after", retryAfter,
				)

				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteRateLimitHeaders exposes st on the response.
func WriteRateLimitHeaders(w http.ResponseWriter, st ratelimit.Status) {
	h := w.Header()
	h.Set("X-Rate-Limit-Limit", strconv.Itoa(st.Limit))
	h.Set("X-Rate-Limit-Remaining", strconv.Itoa(st.Remaining))
	h.Set("X-Rate-Limit-Reset", strconv.FormatInt(st.ResetAt.Unix(), 10))
}

// Convenience functions for common rate limiting scenarios

// RateLimitByIP creates a rate limiter that limits by client IP.
func RateLimitByIP(limiter *ratelimit.Limiter, config RateLimitConfig, clientIP KeyExtractor) Middleware {
	return RateLimitMiddleware(limiter, config, clientIP)
}

// RateLimitByUser creates a rate limiter that limits by authenticated user ID.
// Falls back to IP if no user is authenticated.
func RateLimitByUser(limiter *ratelimit.Limiter, config RateLimitConfig, clientIP KeyExtractor) Middleware {
	return RateLimitMiddleware(limiter, config, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		clientIP,
	))
}
