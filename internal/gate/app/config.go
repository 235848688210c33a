package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

var ErrMissingSeed = errors.New("GATE_SIGNING_SEED is required outside dev")

type Config struct {
	Issuer          string        // Optional: iss claim of session tokens (default: rostergate)
	Audience        string        // Optional: aud claim of session tokens (default: roster-api)
	SigningSeed     string        // Required outside dev: seed the HMAC key is derived from
	SigningSeedFile string        // Optional: dev only, seed persisted here when SigningSeed is empty (default: ./signing.seed)
	AccessTTL       time.Duration // Optional: session token lifetime (default: 1h)
	RefreshTTL      time.Duration // Optional: refresh credential lifetime (default: 24h)
	LookupTimeout   time.Duration // Optional: bound on each user directory call (default: 2s)
	DatabaseFile    string        // Optional: path to SQLite database file (default: ./gate.db)
	PepperFile      string        // Optional: path to file containing pepper for password hashing (default: ./pepper)

	RedisAddr             string        // Optional: shared rate limit store; empty uses the file store only
	RedisPassword         string        // Optional
	RedisDB               int           // Optional (default: 0)
	RateLimitFile         string        // Optional: fallback rate limit file (default: ./ratelimit.json)
	RateLimitLockWait     time.Duration // Optional: in-process wait for the file lock (default: 100ms)
	RateLimitStoreTimeout time.Duration // Optional: bound on each rate limit store call (default: 250ms)
	TrustProxy            bool          // Optional: take client IPs from X-Forwarded-For / X-Real-IP (default: false)

	BaseURL     string   // Optional: public URL of the roster front end, heads the CORS allow-list
	CORSOrigins []string // Optional: further allowed origins, comma separated
	CORSStrict  bool     // Optional: reject disallowed origins with 403 (default: false)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig layers configuration: defaults, then a .env file in the working
// directory (never overriding real environment variables), then the
// environment, then command line flags.
func LoadConfig(args []string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	cfg := ConfigFromEnv(os.Getenv)
	if err := cfg.ParseFlags(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv exports the variables of path that are not already set. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	switch {
	case err == nil, errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("load %s: %w", path, err)
	}
}

func ConfigFromEnv(getenv func(string) string) Config {
	env := envReader(getenv)

	return Config{
		Issuer:          env.str("GATE_ISSUER", "rostergate"),
		Audience:        env.str("GATE_AUDIENCE", "roster-api"),
		SigningSeed:     getenv("GATE_SIGNING_SEED"),
		SigningSeedFile: env.str("GATE_SIGNING_SEED_FILE", "signing.seed"),
		AccessTTL:       env.duration("GATE_ACCESS_TTL", time.Hour),
		RefreshTTL:      env.duration("GATE_REFRESH_TTL", 24*time.Hour),
		LookupTimeout:   env.duration("GATE_LOOKUP_TIMEOUT", 2*time.Second),
		DatabaseFile:    env.str("GATE_DATABASE_FILE", "gate.db"),
		PepperFile:      env.str("GATE_PEPPER_FILE", "pepper"),

		RedisAddr:             getenv("GATE_REDIS_ADDR"),
		RedisPassword:         getenv("GATE_REDIS_PASSWORD"),
		RedisDB:               env.integer("GATE_REDIS_DB", 0),
		RateLimitFile:         env.str("GATE_RATELIMIT_FILE", "ratelimit.json"),
		RateLimitLockWait:     env.duration("GATE_RATELIMIT_LOCK_WAIT", 100*time.Millisecond),
		RateLimitStoreTimeout: env.duration("GATE_RATELIMIT_STORE_TIMEOUT", 250*time.Millisecond),
		TrustProxy:            env.boolean("GATE_TRUST_PROXY", false),

		BaseURL:     getenv("GATE_BASE_URL"),
		CORSOrigins: env.list("GATE_CORS_ORIGINS"),
		CORSStrict:  env.boolean("GATE_CORS_STRICT", false),

		Env:                  env.str("ENV", EnvDev),
		LogLevel:             env.str("LOG_LEVEL", "info"),
		LogFormat:            env.str("LOG_FORMAT", "json"),
		Port:                 env.integer("PORT", 8080),
		ShutdownGracePeriod:  env.duration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: env.duration("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// ParseFlags applies command line overrides on top of the environment.
func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("gate", pflag.ContinueOnError)

	fs.IntVarP(&c.Port, "port", "p", c.Port, "HTTP server port")
	fs.StringVarP(&c.DatabaseFile, "database", "d", c.DatabaseFile, "SQLite database file")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address for shared rate limiting")
	fs.StringVar(&c.RateLimitFile, "ratelimit-file", c.RateLimitFile, "Fallback rate limit file")
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "Public URL of the front end")
	fs.BoolVar(&c.TrustProxy, "trust-proxy", c.TrustProxy, "Trust X-Forwarded-For / X-Real-IP")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Env, "environment", "e", c.Env, "Environment (dev, staging, prod)")

	return fs.Parse(args)
}

// Validate rejects configurations the gate must not start with.
func (c *Config) Validate() error {
	if c.SigningSeed == "" && c.Env != EnvDev {
		return ErrMissingSeed
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}

// envReader wraps a getenv function with typed, defaulted accessors.
type envReader func(string) string

func (e envReader) str(key, defaultValue string) string {
	if value := e(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envReader) integer(key string, defaultValue int) int {
	value := e(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func (e envReader) boolean(key string, defaultValue bool) bool {
	value := e(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func (e envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := e(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func (e envReader) list(key string) []string {
	var out []string
	for v := range strings.SplitSeq(e(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
