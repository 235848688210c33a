package jwtx_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/rostergate/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestClaimsJSON(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	t.Run("extras are flattened next to registered claims", func(t *testing.T) {
		c := jwtx.Claims{
			Issuer:    "rostergate",
			ExpiresAt: jwt.NewNumericDate(now),
			UserID:    "u1",
			Extra:     map[string]any{"unit": "2RAR"},
		}

		raw, err := json.Marshal(c)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		require.Equal(t, "2RAR", m["unit"])
		require.Equal(t, "u1", m["user_id"])
		require.Equal(t, "rostergate", m["iss"])
	})

	t.Run("extras never replace registered claims", func(t *testing.T) {
		c := jwtx.Claims{
			UserID: "u1",
			Role:   "clerk",
			Extra:  map[string]any{"role": "admin", "user_id": "u2"},
		}

		raw, err := json.Marshal(c)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		require.Equal(t, "clerk", m["role"])
		require.Equal(t, "u1", m["user_id"])
	})

	t.Run("unknown keys decode into Extra", func(t *testing.T) {
		raw := `{"iss":"x","exp":1700000000,"user_id":"u1","username":"alice","role":"clerk","jti":"j","unit":"2RAR"}`

		var c jwtx.Claims
		require.NoError(t, json.Unmarshal([]byte(raw), &c))
		require.Equal(t, "u1", c.UserID)
		require.Equal(t, "alice", c.Username)
		require.Equal(t, now.Unix(), c.ExpiresAt.Unix())
		require.Equal(t, map[string]any{"unit": "2RAR"}, c.Extra)
	})

	t.Run("no extras leaves Extra nil", func(t *testing.T) {
		var c jwtx.Claims
		require.NoError(t, json.Unmarshal([]byte(`{"user_id":"u1"}`), &c))
		require.Nil(t, c.Extra)
	})
}

func TestClaimsAMR(t *testing.T) {
	t.Run("decoded from json", func(t *testing.T) {
		var c jwtx.Claims
		require.NoError(t, json.Unmarshal([]byte(`{"amr":["pwd","mfa"]}`), &c))
		require.Equal(t, []string{"pwd", "mfa"}, c.AMR())
		require.True(t, c.HasAMR(jwtx.AMRMFA))
	})

	t.Run("set in memory", func(t *testing.T) {
		c := jwtx.Claims{Extra: map[string]any{jwtx.ClaimAMR: []string{jwtx.AMRPassword}}}
		require.True(t, c.HasAMR(jwtx.AMRPassword))
		require.False(t, c.HasAMR(jwtx.AMRMFA))
	})

	t.Run("absent", func(t *testing.T) {
		require.Nil(t, jwtx.Claims{}.AMR())
	})
}

func TestIsReservedClaim(t *testing.T) {
	for _, k := range []string{"iss", "aud", "iat", "exp", "sub", "jti", "user_id", "username", "role"} {
		require.True(t, jwtx.IsReservedClaim(k), k)
	}
	require.False(t, jwtx.IsReservedClaim("unit"))
	require.False(t, jwtx.IsReservedClaim("amr"))
}
