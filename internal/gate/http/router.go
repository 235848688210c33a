package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/service"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/pkg/httpx"
	"github.com/aussiebroadwan/rostergate/pkg/ratelimit"
	"github.com/aussiebroadwan/rostergate/pkg/slogx"

	_ "github.com/aussiebroadwan/rostergate/api/gate" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Pinger is a backing service /readyz can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries the router settings that do not change per request.
type Config struct {
	BuildVersion string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	Profiles   httpx.RateLimitProfiles
	// CORS is optional; nil leaves cross-origin handling to the browser.
	CORS *httpx.CORSGuard
	// SharedStore is the redis rate limit backend, reported by /readyz.
	SharedStore Pinger
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	cfg       Config
	clientIP  httpx.KeyExtractor
	startTime time.Time
	logger    *slog.Logger
	limiter   *ratelimit.Limiter

	store        store.Store
	TokenService *service.TokenService
	MFAService   *service.MFAService
}

func NewRouter(cfg Config, st store.Store, limiter *ratelimit.Limiter, logger *slog.Logger) *Router {
	r := &Router{
		Mux:       http.NewServeMux(),
		cfg:       cfg,
		clientIP:  httpx.ClientIP(cfg.TrustProxy),
		startTime: time.Now(),
		logger:    logger,
		limiter:   limiter,
		store:     st,
	}

	// Default middleware chain, outermost first
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger, r.clientIP),
		httpx.Recover(),
		httpx.SecurityHeaders(),
	}
	if cfg.CORS != nil {
		r.middlewares = append(r.middlewares, cfg.CORS.Middleware())
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			rostergate API
//	@version		0.1.0
//	@description	Security layer in front of the roster administration API: session tokens, refresh credentials, TOTP step-up and rate limiting.
//	@description
//	@description				Access tokens are HS256 JWTs and are only verifiable by the gate itself.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/rostergate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// byIP and byUser give every route its own budget within a profile.
func (r *Router) byIP(route string, cfg httpx.RateLimitConfig) httpx.Middleware {
	return httpx.RateLimitByIP(r.limiter, cfg.Scoped(route), r.clientIP)
}

func (r *Router) byUser(route string, cfg httpx.RateLimitConfig) httpx.Middleware {
	return httpx.RateLimitByUser(r.limiter, cfg.Scoped(route), r.clientIP)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{TokenService: r.TokenService, MFAService: r.MFAService}
	p := r.cfg.Profiles

	// POST /login - strict rate limit by IP (brute force prevention)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			r.byIP("login", p.Strict),
		),
	)

	// POST /refresh - strict rate limit by IP, the secret is the only credential
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			r.byIP("refresh", p.Strict),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.byIP("logout", p.Lenient),
			AuthnMiddleware(r.TokenService),
			r.byUser("logout", p.Moderate),
		),
	)

	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			r.byIP("me", p.Lenient),
			AuthnMiddleware(r.TokenService),
			r.byUser("me", p.Lenient),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}
	p := r.cfg.Profiles

	secured := func(route string, fn http.HandlerFunc, cfg httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			r.byIP(route, p.Lenient),
			AuthnMiddleware(r.TokenService),
			r.byUser(route, cfg),
		)
	}

	r.Mux.Handle("POST /v1/mfa/totp/setup", secured("mfa_setup", h.HandleSetup, p.Moderate))
	r.Mux.Handle("GET /v1/mfa/totp/qr", secured("mfa_qr", h.HandleQRCode, p.Moderate))

	// Code checking endpoints - strict rate limit by user (prevent brute force of TOTP codes)
	r.Mux.Handle("POST /v1/mfa/totp/enable", secured("mfa_enable", h.HandleEnable, p.Strict))
	r.Mux.Handle("POST /v1/mfa/totp/disable", secured("mfa_disable", h.HandleDisable, p.Strict))
	r.Mux.Handle("POST /v1/mfa/totp/verify", secured("mfa_verify", h.HandleVerify, p.Strict))
}

func (r *Router) registerSystem() {
	// Health check endpoints - public rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.cfg.BuildVersion),
			r.byIP("livez", r.cfg.Profiles.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.cfg.BuildVersion, r.store, r.cfg.SharedStore),
			r.byIP("readyz", r.cfg.Profiles.Public),
		),
	)
}
