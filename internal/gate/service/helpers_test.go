package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
	"github.com/aussiebroadwan/rostergate/pkg/idx"
	"github.com/aussiebroadwan/rostergate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Unix(1_700_000_000, 0).UTC()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store   *sqlite.Store
	clock   *clock
	hasher  cryptox.Hasher
	refresh *RefreshService
	mfa     *MFAService
	tokens  *TokenService
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := newTestStore(t)
	clk := newClock()

	signer, err := cryptox.NewHMACSigner(bytes.Repeat([]byte{7}, cryptox.MinSigningKeySize))
	require.NoError(t, err)

	manager := jwtx.NewManager(signer, jwtx.Options{
		Issuer:   "rostergate",
		Audience: "roster-api",
		Now:      clk.Now,
	})

	f := &fixture{
		store:   st,
		clock:   clk,
		hasher:  cryptox.Hasher{Pepper: "pepper"},
		refresh: &RefreshService{Store: st, Now: clk.Now},
		mfa:     &MFAService{Store: st, Issuer: "rostergate", Now: clk.Now},
	}
	f.tokens = &TokenService{
		Tokens:    manager,
		Directory: st.Users(),
		Users:     st.Users(),
		Refresh:   f.refresh,
		MFA:       f.mfa,
		Hasher:    f.hasher,
	}
	return f
}

func (f *fixture) createUser(t *testing.T, username, password string, status domain.UserStatus) domain.User {
	t.Helper()

	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         "clerk",
		Status:       status,
	}
	require.NoError(t, f.store.Users().CreateUser(t.Context(), u))
	return u
}

// enableMFA runs setup and enable and returns the raw secret.
func (f *fixture) enableMFA(t *testing.T, userID string) []byte {
	t.Helper()

	enr, err := f.mfa.Setup(t.Context(), userID, "jsmith")
	require.NoError(t, err)
	raw, err := cryptox.DecodeBase32(enr.Secret)
	require.NoError(t, err)
	require.NoError(t, f.mfa.Enable(t.Context(), userID, cryptox.TOTPAt(raw, f.clock.Now())))
	return raw
}

// stubDirectory returns a fixed answer.
type stubDirectory struct {
	user  domain.User
	err   error
	block bool
}

func (d stubDirectory) GetUserByID(ctx context.Context, _ string) (domain.User, error) {
	if d.block {
		<-ctx.Done()
		return domain.User{}, ctx.Err()
	}
	return d.user, d.err
}

var _ store.Directory = stubDirectory{}

// hangingStore wraps a real store; credential and MFA reads wait for the
// context to end.
type hangingStore struct{ store.Store }

func (s hangingStore) RefreshCredentials() store.RefreshCredentials {
	return hangingRefresh{s.Store.RefreshCredentials()}
}

func (s hangingStore) MFASecrets() store.MFASecrets {
	return hangingMFA{s.Store.MFASecrets()}
}

type hangingRefresh struct{ store.RefreshCredentials }

func (hangingRefresh) GetRefreshCredentialByHash(ctx context.Context, _ string) (domain.RefreshCredential, error) {
	<-ctx.Done()
	return domain.RefreshCredential{}, ctx.Err()
}

type hangingMFA struct{ store.MFASecrets }

func (hangingMFA) GetMFASecret(ctx context.Context, _ string) (domain.MFASecret, error) {
	<-ctx.Done()
	return domain.MFASecret{}, ctx.Err()
}
