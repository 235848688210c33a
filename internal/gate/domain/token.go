package domain

import "time"

// TokenPair is what login and refresh hand back: the short-lived access
// token (JWT) and the opaque refresh credential.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string // always "Bearer"
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
	// MFA is set when the pair was issued after a one-time password check.
	MFA bool
}

// RefreshCredential is the stored form of a refresh token. Only the
// fingerprint of the secret is kept. There is at most one per user.
type RefreshCredential struct {
	UserID    string
	TokenHash string // base64url SHA-256 of the secret
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the credential is unusable at now.
func (c RefreshCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
