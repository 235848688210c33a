package jwtx

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of a session token unless the
// Manager is configured otherwise.
const DefaultAccessTokenTTL = time.Hour

// Authentication method references carried in the "amr" extension claim.
const (
	AMRPassword = "pwd"
	AMRMFA      = "mfa"
	ClaimAMR    = "amr"
)

// reservedClaims are owned by the Manager. Extension claims using these names
// are dropped on encode and stripped from Extra on decode.
var reservedClaims = []string{"iss", "aud", "iat", "exp", "nbf", "sub", "jti", "user_id", "username", "role"}

// Claims is the payload of a session token. It is immutable once issued and
// never persisted; a token's existence is entirely encoded in its string.
type Claims struct {
	Issuer    string           `json:"iss"`
	Audience  string           `json:"aud"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	UserID    string           `json:"user_id"`
	Username  string           `json:"username"`
	Role      string           `json:"role"`
	ID        string           `json:"jti"`

	// Extra holds caller supplied extension claims, flattened into the
	// payload next to the registered ones.
	Extra map[string]any `json:"-"`
}

// claimsFields breaks the MarshalJSON recursion.
type claimsFields Claims

func (c Claims) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(claimsFields(c))
	if err != nil || len(c.Extra) == 0 {
		return base, err
	}

	merged := make(map[string]any, len(c.Extra)+len(reservedClaims))
	for k, v := range c.Extra {
		if !IsReservedClaim(k) {
			merged[k] = v
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (c *Claims) UnmarshalJSON(data []byte) error {
	var fields claimsFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range reservedClaims {
		delete(all, k)
	}
	if len(all) > 0 {
		fields.Extra = all
	}

	*c = Claims(fields)
	return nil
}

// IsReservedClaim reports whether name is managed by the token issuer.
func IsReservedClaim(name string) bool {
	return slices.Contains(reservedClaims, name)
}

// AMR returns the authentication methods recorded in the token.
func (c Claims) AMR() []string {
	switch v := c.Extra[ClaimAMR].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, m := range v {
			if s, ok := m.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// HasAMR reports whether method is among the token's authentication methods.
func (c Claims) HasAMR(method string) bool {
	return slices.Contains(c.AMR(), method)
}

// The methods below satisfy jwt.Claims so the library Validator can enforce
// exp, iss and aud.

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)                  { return c.UserID, nil }

func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}
