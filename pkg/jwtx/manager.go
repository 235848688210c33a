package jwtx

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/rostergate/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// header is the fixed JOSE header of every token.
type header struct {
	Typ string `json:"typ"`
	Alg string `json:"alg"`
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	// Issuer and Audience are written into every token and enforced on
	// validation when non-empty.
	Issuer   string
	Audience string

	// TTL is the token lifetime (default DefaultAccessTokenTTL).
	TTL time.Duration

	// Leeway tolerates clock skew between replicas when checking exp.
	Leeway time.Duration

	// Now and NewID exist for tests.
	Now   func() time.Time
	NewID func() string
}

// Manager issues and validates compact signed session tokens of the form
// base64url(header).base64url(payload).base64url(signature).
type Manager struct {
	signer    Signer
	issuer    string
	audience  string
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
	validator *jwt.Validator
}

// NewManager returns a Manager signing with s.
func NewManager(s Signer, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultAccessTokenTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return idx.New().String() }
	}

	vopts := []jwt.ParserOption{
		jwt.WithTimeFunc(opts.Now),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		vopts = append(vopts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		vopts = append(vopts, jwt.WithAudience(opts.Audience))
	}

	return &Manager{
		signer:    s,
		issuer:    opts.Issuer,
		audience:  opts.Audience,
		ttl:       opts.TTL,
		now:       opts.Now,
		newID:     opts.NewID,
		validator: jwt.NewValidator(vopts...),
	}
}

// TTL is the lifetime given to newly issued tokens.
func (m *Manager) TTL() time.Duration { return m.ttl }

// NewClaims builds the claims Generate would sign, without signing them.
func (m *Manager) NewClaims(userID, username, role string, extra map[string]any) Claims {
	now := m.now()

	var ext map[string]any
	for k, v := range extra {
		if IsReservedClaim(k) {
			continue
		}
		if ext == nil {
			ext = make(map[string]any, len(extra))
		}
		ext[k] = v
	}

	return Claims{
		Issuer:    m.issuer,
		Audience:  m.audience,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		UserID:    userID,
		Username:  username,
		Role:      role,
		ID:        m.newID(),
		Extra:     ext,
	}
}

// Generate issues a token for the subject. Extension claims are merged into
// the payload but can never replace a registered claim.
func (m *Manager) Generate(userID, username, role string, extra map[string]any) (string, error) {
	return m.Sign(m.NewClaims(userID, username, role, extra))
}

// Sign encodes and signs claims as they are.
func (m *Manager) Sign(c Claims) (string, error) {
	h, err := json.Marshal(header{Typ: "JWT", Alg: m.signer.Alg()})
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	p, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode claims: %w", err)
	}

	enc := base64.RawURLEncoding
	input := enc.EncodeToString(h) + "." + enc.EncodeToString(p)
	sig := m.signer.Sign([]byte(input))

	return input + "." + enc.EncodeToString(sig), nil
}

// Validate checks structure, signature and expiry and returns the decoded
// claims. Errors wrap one of the package sentinels.
func (m *Manager) Validate(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	enc := base64.RawURLEncoding
	sig, err := enc.DecodeString(parts[2])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature encoding", ErrMalformed)
	}
	if !m.signer.Verify([]byte(parts[0]+"."+parts[1]), sig) {
		return Claims{}, ErrInvalidSig
	}

	var h header
	if err := decodeSegment(parts[0], &h); err != nil {
		return Claims{}, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if h.Alg != m.signer.Alg() {
		return Claims{}, fmt.Errorf("%w: %q", ErrAlgMismatch, h.Alg)
	}

	var c Claims
	if err := decodeSegment(parts[1], &c); err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	if err := m.validator.Validate(c); err != nil {
		return Claims{}, mapValidationError(err)
	}
	return c, nil
}

func decodeSegment(seg string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func mapValidationError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudience
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
