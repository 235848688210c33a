package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
	"github.com/aussiebroadwan/rostergate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func TestValidateRequest(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	u := f.createUser(t, "jsmith", "pw", domain.StatusActive)

	token, err := f.tokens.Generate(u.ID, u.Username, u.Role, nil)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		id, err := f.tokens.ValidateRequest(ctx, bearer(token))
		require.NoError(t, err)
		require.Equal(t, u.ID, id.User.ID)
		require.Equal(t, "jsmith", id.Claims.Username)
		require.Equal(t, "clerk", id.Claims.Role)
	})

	t.Run("lowercase scheme", func(t *testing.T) {
		h := http.Header{}
		h.Set("Authorization", "bearer "+token)
		_, err := f.tokens.ValidateRequest(ctx, h)
		require.NoError(t, err)
	})

	t.Run("non canonical header key", func(t *testing.T) {
		h := http.Header{"authorization": {"Bearer " + token}}
		_, err := f.tokens.ValidateRequest(ctx, h)
		require.NoError(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := f.tokens.ValidateRequest(ctx, http.Header{})
		require.ErrorIs(t, err, ErrMissingAuthorization)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, v := range []string{"Basic abc", "Bearer", "Bearer ", token, "Bearer a b"} {
			h := http.Header{}
			h.Set("Authorization", v)
			_, err := f.tokens.ValidateRequest(ctx, h)
			require.ErrorIs(t, err, ErrMalformedAuthorization, "header %q", v)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		signer, err := cryptox.NewHMACSigner([]byte("another-key-another-key-another!!"))
		require.NoError(t, err)
		other := jwtx.NewManager(signer, jwtx.Options{Issuer: "rostergate", Audience: "roster-api", Now: f.clock.Now})
		forged, err := other.Generate(u.ID, u.Username, "admin", nil)
		require.NoError(t, err)

		_, err = f.tokens.ValidateRequest(ctx, bearer(forged))
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.tokens.ValidateRequest(ctx, bearer("not-a-jwt"))
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("unknown subject", func(t *testing.T) {
		ghost, err := f.tokens.Generate("01HZZZZZZZZZZZZZZZZZZZZZZZ", "ghost", "clerk", nil)
		require.NoError(t, err)
		_, err = f.tokens.ValidateRequest(ctx, bearer(ghost))
		require.ErrorIs(t, err, ErrUnknownSubject)
	})

	t.Run("inactive subject", func(t *testing.T) {
		require.NoError(t, f.store.Users().UpdateStatus(ctx, u.ID, domain.StatusSuspended))
		t.Cleanup(func() { _ = f.store.Users().UpdateStatus(ctx, u.ID, domain.StatusActive) })

		_, err := f.tokens.ValidateRequest(ctx, bearer(token))
		require.ErrorIs(t, err, ErrInactiveSubject)
	})

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(jwtx.DefaultAccessTokenTTL + time.Second)
		_, err := f.tokens.ValidateRequest(ctx, bearer(token))
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})
}

func TestValidateRequestDirectory(t *testing.T) {
	f := newFixture(t)
	token, err := f.tokens.Generate("u1", "jsmith", "clerk", nil)
	require.NoError(t, err)

	t.Run("error", func(t *testing.T) {
		svc := *f.tokens
		svc.Directory = stubDirectory{err: errors.New("disk I/O error")}

		_, err := svc.ValidateRequest(t.Context(), bearer(token))
		require.ErrorIs(t, err, ErrDirectoryUnavailable)
	})

	t.Run("not found", func(t *testing.T) {
		svc := *f.tokens
		svc.Directory = stubDirectory{err: store.ErrNotFound}

		_, err := svc.ValidateRequest(t.Context(), bearer(token))
		require.ErrorIs(t, err, ErrUnknownSubject)
	})

	t.Run("timeout", func(t *testing.T) {
		svc := *f.tokens
		svc.Directory = stubDirectory{block: true}
		svc.LookupTimeout = 20 * time.Millisecond

		start := time.Now()
		_, err := svc.ValidateRequest(t.Context(), bearer(token))
		require.ErrorIs(t, err, ErrDirectoryUnavailable)
		require.Less(t, time.Since(start), time.Second)
	})
}

func TestRejectReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrMissingAuthorization, "missing_authorization"},
		{ErrMalformedAuthorization, "malformed_authorization"},
		{fmt.Errorf("%w: header", jwtx.ErrMalformed), "malformed_token"},
		{jwtx.ErrAlgMismatch, "algorithm_mismatch"},
		{jwtx.ErrInvalidSig, "bad_signature"},
		{jwtx.ErrExpired, "expired"},
		{jwtx.ErrIssuer, "issuer_mismatch"},
		{jwtx.ErrAudience, "audience_mismatch"},
		{jwtx.ErrInvalidClaim, "invalid_claims"},
		{ErrUnknownSubject, "unknown_subject"},
		{fmt.Errorf("%w: suspended", ErrInactiveSubject), "inactive_subject"},
		{fmt.Errorf("%w: boom", ErrDirectoryUnavailable), "directory_unavailable"},
		{errors.New("other"), "unknown"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, RejectReason(tc.err), "%v", tc.err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	u := f.createUser(t, "jsmith", "correct horse", domain.StatusActive)
	f.createUser(t, "gone", "correct horse", domain.StatusInactive)

	t.Run("success", func(t *testing.T) {
		pair, err := f.tokens.Login(ctx, "jsmith", "correct horse", "")
		require.NoError(t, err)
		require.Equal(t, "Bearer", pair.TokenType)
		require.Equal(t, jwtx.DefaultAccessTokenTTL, pair.ExpiresIn)
		require.Equal(t, DefaultRefreshTTL, pair.RefreshExpiresIn)
		require.False(t, pair.MFA)
		require.Len(t, pair.RefreshToken, 64)

		claims, err := f.tokens.Validate(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, u.ID, claims.UserID)
		require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR())
	})

	t.Run("username is case insensitive", func(t *testing.T) {
		_, err := f.tokens.Login(ctx, "JSmith", "correct horse", "")
		require.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.tokens.Login(ctx, "jsmith", "battery staple", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.tokens.Login(ctx, "nobody", "correct horse", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive user", func(t *testing.T) {
		_, err := f.tokens.Login(ctx, "gone", "correct horse", "")
		require.ErrorIs(t, err, ErrInactiveSubject)
	})
}

func TestLoginWithMFA(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	u := f.createUser(t, "jsmith", "correct horse", domain.StatusActive)
	raw := f.enableMFA(t, u.ID)

	_, err := f.tokens.Login(ctx, "jsmith", "correct horse", "")
	require.ErrorIs(t, err, ErrMFARequired)

	wrong := cryptox.TOTPAt(raw, f.clock.Now().Add(-time.Hour))
	_, err = f.tokens.Login(ctx, "jsmith", "correct horse", wrong)
	require.ErrorIs(t, err, ErrInvalidOTP)

	// The password is checked before the code is asked for.
	_, err = f.tokens.Login(ctx, "jsmith", "battery staple", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	pair, err := f.tokens.Login(ctx, "jsmith", "correct horse", cryptox.TOTPAt(raw, f.clock.Now()))
	require.NoError(t, err)
	require.True(t, pair.MFA)

	claims, err := f.tokens.Validate(pair.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.HasAMR(jwtx.AMRPassword))
	require.True(t, claims.HasAMR(jwtx.AMRMFA))
}

func TestRenewAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	u := f.createUser(t, "jsmith", "correct horse", domain.StatusActive)

	first, err := f.tokens.Login(ctx, "jsmith", "correct horse", "")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)

	second, err := f.tokens.Renew(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, first.AccessToken, second.AccessToken)

	claims, err := f.tokens.Validate(second.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.UserID)

	_, err = f.tokens.Renew(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	require.NoError(t, f.tokens.Logout(ctx, u.ID))

	_, err = f.tokens.Renew(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	// Access tokens outlive logout.
	_, err = f.tokens.Validate(second.AccessToken)
	require.NoError(t, err)
}
