package jwtx

import "errors"

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrAlgMismatch  = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Signer produces and checks the MAC over "header.payload".
// cryptox.HMACSigner is the production implementation.
type Signer interface {
	Alg() string
	Sign(data []byte) []byte
	Verify(data, sig []byte) bool
}

// Verifier validates a token and returns its claims.
type Verifier interface {
	Validate(token string) (Claims, error)
}
