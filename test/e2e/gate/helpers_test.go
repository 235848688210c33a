//go:build integration

package gate_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/app"
	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
	"github.com/aussiebroadwan/rostergate/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for gate end-to-end tests.
 * Each test gets a fresh Redis container and one or more in-process
 * replicas sharing a database, a signing seed and that Redis.
 */

const (
	signingSeed  = "e2e-signing-seed"
	testUsername = "jsmith"
	testPassword = "Correct-Horse-42"
)

// deployment is the shared state of a set of replicas.
type deployment struct {
	dir       string
	redisAddr string
}

// startRedis runs a disposable Redis container and returns its address.
func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func newDeployment(t *testing.T) *deployment {
	t.Helper()

	// Generous defaults; tests that exercise limits override them.
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "1000")
	t.Setenv("RATELIMIT_MODERATE_REQUESTS", "1000")

	return &deployment{dir: t.TempDir(), redisAddr: startRedis(t)}
}

// replica starts one gate instance and returns its base URL.
func (d *deployment) replica(t *testing.T, name string) string {
	t.Helper()

	cfg := app.ConfigFromEnv(func(string) string { return "" })
	cfg.Env = app.EnvProd
	cfg.LogLevel = "warn"
	cfg.SigningSeed = signingSeed
	cfg.DatabaseFile = filepath.Join(d.dir, "gate.db")
	cfg.PepperFile = filepath.Join(d.dir, "pepper")
	cfg.RateLimitFile = filepath.Join(d.dir, name+"-ratelimit.json")
	cfg.RedisAddr = d.redisAddr
	require.NoError(t, cfg.Validate())

	a, err := app.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	return srv.URL
}

// createUser writes a user straight into the shared directory.
func (d *deployment) createUser(t *testing.T, username, password string) domain.User {
	t.Helper()

	pepper, err := cryptox.LoadOrCreateSecretFile(filepath.Join(d.dir, "pepper"))
	require.NoError(t, err)
	hash, err := cryptox.Hasher{Pepper: pepper}.Hash(password)
	require.NoError(t, err)

	st, err := sqlite.NewStore("file:" + filepath.Join(d.dir, "gate.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.ApplyMigrations())

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         "clerk",
		Status:       domain.StatusActive,
	}
	require.NoError(t, st.Users().CreateUser(t.Context(), u))
	return u
}
