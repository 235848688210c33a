package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/rostergate/internal/gate/http"
	"github.com/aussiebroadwan/rostergate/internal/gate/service"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
	"github.com/aussiebroadwan/rostergate/pkg/httpx"
	"github.com/aussiebroadwan/rostergate/pkg/jwtx"
	"github.com/aussiebroadwan/rostergate/pkg/ratelimit"
	"github.com/aussiebroadwan/rostergate/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gate with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	tokens  *jwtx.Manager
	hasher  cryptox.Hasher
	redis   redis.UniversalClient // nil without GATE_REDIS_ADDR
	shared  *ratelimit.SharedStore
	file    *ratelimit.LocalFileStore
	limiter *ratelimit.Limiter

	// Services
	refreshService      *service.RefreshService
	mfaService          *service.MFAService
	tokenService        *service.TokenService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "rostergate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	pepper, err := cryptox.LoadOrCreateSecretFile(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.Hasher{Pepper: pepper}

	if err := app.initSigner(); err != nil {
		return nil, err
	}
	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initRateLimit()
	app.initServices()
	if err := app.initHTTP(); err != nil {
		app.close()
		return nil, err
	}

	return app, nil
}

// Handler exposes the router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("gate starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		app.close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gate...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.close(); err != nil {
		return err
	}

	app.logger.Info("gate stopped")
	return nil
}

// close releases the redis client and the database.
func (app *Application) close() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initSigner derives the token signing key. In dev an unset seed is read
// from, or generated into, SigningSeedFile.
func (app *Application) initSigner() error {
	seed := app.cfg.SigningSeed
	if seed == "" {
		if app.cfg.Env != EnvDev {
			return ErrMissingSeed
		}
		s, err := cryptox.LoadOrCreateSecretFile(app.cfg.SigningSeedFile)
		if err != nil {
			return fmt.Errorf("failed to load dev signing seed: %w", err)
		}
		app.logger.Warn("GATE_SIGNING_SEED not set, using a generated dev seed",
			"file", app.cfg.SigningSeedFile,
		)
		seed = s
	}

	key, err := cryptox.DeriveSigningKey(seed)
	if err != nil {
		return fmt.Errorf("failed to derive signing key: %w", err)
	}
	signer, err := cryptox.NewHMACSigner(key)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	app.tokens = jwtx.NewManager(signer, jwtx.Options{
		Issuer:   app.cfg.Issuer,
		Audience: app.cfg.Audience,
		TTL:      app.cfg.AccessTTL,
	})
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore("file:" + app.cfg.DatabaseFile + "?_pragma=journal_mode(WAL)")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initRateLimit wires redis as the primary store when configured, with the
// local file as fallback.
func (app *Application) initRateLimit() {
	app.file = ratelimit.NewLocalFileStore(app.cfg.RateLimitFile, app.cfg.RateLimitLockWait).
		WithLogger(app.logger)

	opts := ratelimit.Options{
		Primary:      app.file,
		StoreTimeout: app.cfg.RateLimitStoreTimeout,
		Logger:       app.logger,
	}

	if app.cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:         app.cfg.RedisAddr,
			Password:     app.cfg.RedisPassword,
			DB:           app.cfg.RedisDB,
			DialTimeout:  time.Second,
			ReadTimeout:  app.cfg.RateLimitStoreTimeout,
			WriteTimeout: app.cfg.RateLimitStoreTimeout,
			MaxRetries:   -1,
		})
		app.shared = ratelimit.NewSharedStore(app.redis, "")
		opts.Primary = app.shared
		opts.Fallback = app.file
		app.logger.Info("rate limiting via redis", "addr", app.cfg.RedisAddr, "fallback", app.file.Path())
	} else {
		app.logger.Warn("GATE_REDIS_ADDR not set, rate limiting is local to this instance", "file", app.file.Path())
	}

	app.limiter = ratelimit.New(opts)
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.refreshService = &service.RefreshService{
		Store:   app.db,
		TTL:     app.cfg.RefreshTTL,
		Timeout: app.cfg.LookupTimeout,
	}
	app.mfaService = &service.MFAService{
		Store:   app.db,
		Issuer:  app.cfg.Issuer,
		Timeout: app.cfg.LookupTimeout,
	}
	app.tokenService = &service.TokenService{
		Tokens:        app.tokens,
		Directory:     app.db.Users(),
		Users:         app.db.Users(),
		Refresh:       app.refreshService,
		MFA:           app.mfaService,
		Hasher:        app.hasher,
		LookupTimeout: app.cfg.LookupTimeout,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.file,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	cors, err := httpx.NewCORSGuard(httpx.CORSConfig{
		BaseURL:        app.cfg.BaseURL,
		AllowedOrigins: app.cfg.CORSOrigins,
		Strict:         app.cfg.CORSStrict,
	})
	if err != nil {
		return fmt.Errorf("invalid CORS configuration: %w", err)
	}

	rc := httpapi.Config{
		BuildVersion: BuildVersion,
		TrustProxy:   app.cfg.TrustProxy,
		Profiles:     httpx.LoadRateLimitProfiles(),
		CORS:         cors,
	}
	if app.shared != nil {
		rc.SharedStore = app.shared
	}

	router := httpapi.NewRouter(rc, app.db, app.limiter, app.logger)

	// Wire services to router
	router.TokenService = app.tokenService
	router.MFAService = app.mfaService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
