package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DevOrigins are always allow-listed so local front ends work out of the box.
var DevOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
}

// loopbackOrigin matches localhost and 127.0.0.1 on any port.
var loopbackOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1)(:\d+)?$`)

// CORSConfig configures a CORSGuard.
type CORSConfig struct {
	// BaseURL is the public URL of the application. Its origin heads the
	// allow-list and is the default echoed for unknown origins.
	BaseURL string
	// AllowedOrigins are further exact origins to accept.
	AllowedOrigins []string

	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        time.Duration

	// Strict rejects non-preflight requests from disallowed origins with 403
	// instead of leaving enforcement to the browser.
	Strict bool
}

// CORSGuard decides which origin to advertise for a request.
type CORSGuard struct {
	allowed []string
	set     map[string]struct{}
	methods string
	headers string
	expose  string
	maxAge  string
	strict  bool
}

// NewCORSGuard builds the allow-list from cfg. Unset header lists get
// defaults covering the gate's own API.
func NewCORSGuard(cfg CORSConfig) (*CORSGuard, error) {
	var origins []string
	if cfg.BaseURL != "" {
		o, err := originOf(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("cors base url: %w", err)
		}
		origins = append(origins, o)
	}
	for _, raw := range cfg.AllowedOrigins {
		o, err := originOf(raw)
		if err != nil {
			return nil, fmt.Errorf("cors origin %q: %w", raw, err)
		}
		origins = append(origins, o)
	}
	origins = append(origins, DevOrigins...)

	g := &CORSGuard{set: make(map[string]struct{}, len(origins)), strict: cfg.Strict}
	for _, o := range origins {
		if _, dup := g.set[o]; dup {
			continue
		}
		g.set[o] = struct{}{}
		g.allowed = append(g.allowed, o)
	}

	g.methods = joinOr(cfg.AllowMethods, "GET, POST, PUT, DELETE, OPTIONS")
	g.headers = joinOr(cfg.AllowHeaders, "Content-Type, Authorization, X-Requested-With, X-Request-ID")
	g.expose = joinOr(cfg.ExposeHeaders, "X-Rate-Limit-Limit, X-Rate-Limit-Remaining, X-Rate-Limit-Reset, X-Request-ID")

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	g.maxAge = strconv.Itoa(int(maxAge / time.Second))

	return g, nil
}

// Allowed returns the allow-list in priority order.
func (g *CORSGuard) Allowed() []string {
	return append([]string(nil), g.allowed...)
}

// ValidateRequest reports whether origin is allow-listed or a loopback
// origin.
func (g *CORSGuard) ValidateRequest(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := g.set[origin]; ok {
		return true
	}
	return loopbackOrigin.MatchString(origin)
}

// SetHeaders writes the CORS response headers. A matching origin is echoed;
// any other origin gets the first allow-listed one, which the browser will
// then refuse for the real caller.
func (g *CORSGuard) SetHeaders(w http.ResponseWriter, origin string) {
	allow := g.allowed[0]
	if g.ValidateRequest(origin) {
		allow = origin
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", g.methods)
	h.Set("Access-Control-Allow-Headers", g.headers)
	h.Set("Access-Control-Expose-Headers", g.expose)
	h.Set("Access-Control-Max-Age", g.maxAge)
	h.Add("Vary", "Origin")
}

// Middleware sets CORS headers on every response and answers preflight
// requests with 200 and an empty body, whatever their origin.
func (g *CORSGuard) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			g.SetHeaders(w, origin)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			if g.strict && origin != "" && !g.ValidateRequest(origin) {
				WriteError(w, http.StatusForbidden, "access_denied", "origin not allowed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originOf reduces a URL to scheme://host[:port].
func originOf(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("missing scheme or host")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

func joinOr(vals []string, def string) string {
	if len(vals) == 0 {
		return def
	}
	return strings.Join(vals, ", ")
}
