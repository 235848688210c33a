package domain_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestIdentityContext(t *testing.T) {
	_, ok := domain.IdentityFromContext(context.Background())
	require.False(t, ok)

	id := domain.Identity{
		User:   domain.User{ID: "u1", Username: "jsmith", Role: "clerk", Status: domain.StatusActive},
		Claims: jwtx.Claims{UserID: "u1", ID: "jti"},
	}
	ctx := domain.WithIdentity(context.Background(), id)

	got, ok := domain.IdentityFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestParseUserStatus(t *testing.T) {
	for _, s := range []string{"active", "inactive", "suspended"} {
		st, err := domain.ParseUserStatus(s)
		require.NoError(t, err)
		require.Equal(t, s, string(st))
	}

	_, err := domain.ParseUserStatus("Active")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	require.True(t, domain.StatusActive.IsActive())
	require.False(t, domain.StatusSuspended.IsActive())
}
