package cryptox

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// MinSigningKeySize is the smallest HMAC key accepted by NewHMACSigner.
const MinSigningKeySize = 32

// signingKeyInfo binds derived keys to their purpose so the same seed can
// never produce a token key that equals some other derived secret.
const signingKeyInfo = "rostergate/token-signing/v1"

var (
	ErrEmptySeed       = errors.New("cryptox: signing seed is empty")
	ErrSigningKeyShort = errors.New("cryptox: signing key too short")
)

// DeriveSigningKey expands a deployment specific seed into a 32 byte HMAC key
// using HKDF-SHA256. The result is deterministic so every replica sharing the
// seed verifies every other replica's tokens.
func DeriveSigningKey(seed string) ([]byte, error) {
	if seed == "" {
		return nil, ErrEmptySeed
	}

	key := make([]byte, MinSigningKeySize)
	r := hkdf.New(sha256.New, []byte(seed), nil, []byte(signingKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}

// HMACSigner signs and verifies byte payloads with HMAC-SHA256. The key is
// copied at construction and never mutated, so a single signer is shared by
// all request handlers.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner returns a signer over key. Keys shorter than
// MinSigningKeySize are rejected.
func NewHMACSigner(key []byte) (*HMACSigner, error) {
	if len(key) < MinSigningKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrSigningKeyShort, len(key), MinSigningKeySize)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &HMACSigner{key: k}, nil
}

// Alg is the JOSE algorithm name of the signature produced by Sign.
func (s *HMACSigner) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign returns the raw HMAC-SHA256 of data.
func (s *HMACSigner) Sign(data []byte) []byte {
	sig, err := jwt.SigningMethodHS256.Sign(string(data), s.key)
	if err != nil {
		// Only reachable with a non []byte key, which the constructor rules out.
		panic(fmt.Sprintf("cryptox: hmac sign: %v", err))
	}
	return sig
}

// Verify reports whether sig is the HMAC-SHA256 of data. The comparison is
// constant time.
func (s *HMACSigner) Verify(data, sig []byte) bool {
	if len(sig) == 0 {
		return false
	}
	return jwt.SigningMethodHS256.Verify(string(data), sig, s.key) == nil
}
