package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
	"github.com/aussiebroadwan/rostergate/pkg/jwtx"
	"github.com/aussiebroadwan/rostergate/pkg/slogx"
)

// DefaultLookupTimeout bounds a single user directory or credential store
// operation.
const DefaultLookupTimeout = 2 * time.Second

var (
	ErrMissingAuthorization   = errors.New("missing_authorization")
	ErrMalformedAuthorization = errors.New("malformed_authorization")
	ErrUnknownSubject         = errors.New("unknown_subject")
	ErrInactiveSubject        = errors.New("inactive_subject")
	ErrDirectoryUnavailable   = errors.New("directory_unavailable")
	ErrInvalidCredentials     = errors.New("invalid_credentials")
	ErrMFARequired            = errors.New("mfa_required")
)

// TokenService issues session tokens and turns request headers into an
// authenticated Identity. Every failure is fatal to the request.
type TokenService struct {
	Tokens    *jwtx.Manager
	Directory store.Directory
	Users     store.Users
	Refresh   *RefreshService
	MFA       *MFAService
	Hasher    cryptox.Hasher

	// LookupTimeout bounds each directory call (default DefaultLookupTimeout).
	LookupTimeout time.Duration
}

// Generate signs a session token for the subject.
func (s *TokenService) Generate(userID, username, role string, extra map[string]any) (string, error) {
	return s.Tokens.Generate(userID, username, role, extra)
}

// Validate checks a bare token string.
func (s *TokenService) Validate(token string) (jwtx.Claims, error) {
	return s.Tokens.Validate(token)
}

// ValidateRequest authenticates a request from its Authorization header. The
// token must verify and its subject must resolve to an active user.
func (s *TokenService) ValidateRequest(ctx context.Context, h http.Header) (domain.Identity, error) {
	token, err := bearerToken(h)
	if err != nil {
		return domain.Identity{}, err
	}

	claims, err := s.Tokens.Validate(token)
	if err != nil {
		return domain.Identity{}, err
	}

	user, err := s.lookup(ctx, claims.UserID)
	if err != nil {
		return domain.Identity{}, err
	}

	return domain.Identity{User: user, Claims: claims}, nil
}

// lookup resolves an active user within LookupTimeout. Failures of the
// directory itself are reported as ErrDirectoryUnavailable.
func (s *TokenService) lookup(ctx context.Context, userID string) (domain.User, error) {
	ctx, cancel := bounded(ctx, s.LookupTimeout)
	defer cancel()

	user, err := s.Directory.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, ErrUnknownSubject
	case err != nil:
		return domain.User{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if !user.Status.IsActive() {
		return domain.User{}, fmt.Errorf("%w: %s", ErrInactiveSubject, user.Status)
	}
	return user, nil
}

// bounded derives the context for one store operation. A non-positive d
// selects DefaultLookupTimeout.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultLookupTimeout
	}
	return context.WithTimeout(ctx, d)
}

// bearerToken extracts the credential of an "Authorization: Bearer" header.
// Header name and scheme are matched case-insensitively.
func bearerToken(h http.Header) (string, error) {
	raw := h.Get("Authorization")
	if raw == "" {
		for k, v := range h {
			if strings.EqualFold(k, "Authorization") && len(v) > 0 {
				raw = v[0]
				break
			}
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingAuthorization
	}

	scheme, token, ok := strings.Cut(raw, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedAuthorization
	}
	return token, nil
}

// RejectReason maps an authentication error to a stable code for logs.
// Callers must never send it to the client.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingAuthorization):
		return "missing_authorization"
	case errors.Is(err, ErrMalformedAuthorization):
		return "malformed_authorization"
	case errors.Is(err, jwtx.ErrMalformed):
		return "malformed_token"
	case errors.Is(err, jwtx.ErrAlgMismatch):
		return "algorithm_mismatch"
	case errors.Is(err, jwtx.ErrInvalidSig):
		return "bad_signature"
	case errors.Is(err, jwtx.ErrExpired):
		return "expired"
	case errors.Is(err, jwtx.ErrIssuer):
		return "issuer_mismatch"
	case errors.Is(err, jwtx.ErrAudience):
		return "audience_mismatch"
	case errors.Is(err, jwtx.ErrInvalidClaim):
		return "invalid_claims"
	case errors.Is(err, ErrUnknownSubject):
		return "unknown_subject"
	case errors.Is(err, ErrInactiveSubject):
		return "inactive_subject"
	case errors.Is(err, ErrDirectoryUnavailable):
		return "directory_unavailable"
	default:
		return "unknown"
	}
}

// Login checks a username and password and, when the account has MFA
// enabled, a current one-time password. It returns a fresh token pair.
func (s *TokenService) Login(ctx context.Context, username, password, otp string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	user, err := s.findByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Spend the same argon2 time as a real check.
			_ = s.Hasher.Verify(password, dummyHash())
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		l.Info("login rejected", slog.String("user_id", user.ID), slog.String("reason", "bad_password"))
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	if !user.Status.IsActive() {
		l.Info("login rejected", slog.String("user_id", user.ID), slog.String("reason", "inactive_subject"))
		return domain.TokenPair{}, fmt.Errorf("%w: %s", ErrInactiveSubject, user.Status)
	}

	amr := []string{jwtx.AMRPassword}

	enabled, err := s.MFA.Enabled(ctx, user.ID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if enabled {
		if otp == "" {
			return domain.TokenPair{}, ErrMFARequired
		}
		if !s.MFA.Verify(ctx, user.ID, otp) {
			l.Info("login rejected", slog.String("user_id", user.ID), slog.String("reason", "invalid_otp"))
			return domain.TokenPair{}, ErrInvalidOTP
		}
		amr = append(amr, jwtx.AMRMFA)
	}

	secret, err := s.Refresh.Issue(ctx, user.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return s.pair(user, secret, amr)
}

// Renew redeems a refresh credential for a new pair. The credential is
// rotated; the old secret stops working.
func (s *TokenService) Renew(ctx context.Context, refreshSecret string) (domain.TokenPair, error) {
	user, secret, err := s.Refresh.Rotate(ctx, refreshSecret)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return s.pair(user, secret, []string{jwtx.AMRPassword})
}

// Logout revokes the user's refresh credential. Access tokens already
// issued stay valid until they expire.
func (s *TokenService) Logout(ctx context.Context, userID string) error {
	return s.Refresh.Revoke(ctx, userID)
}

func (s *TokenService) pair(user domain.User, refreshSecret string, amr []string) (domain.TokenPair, error) {
	access, err := s.Tokens.Generate(user.ID, user.Username, user.Role, map[string]any{jwtx.ClaimAMR: amr})
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshSecret,
		TokenType:        "Bearer",
		ExpiresIn:        s.Tokens.TTL(),
		RefreshExpiresIn: s.Refresh.Lifetime(),
		MFA:              len(amr) > 1,
	}, nil
}

func (s *TokenService) findByUsername(ctx context.Context, username string) (domain.User, error) {
	ctx, cancel := bounded(ctx, s.LookupTimeout)
	defer cancel()
	return s.Users.GetUserByUsername(ctx, username)
}

// dummyHash is verified against when the username is unknown.
var dummyHash = sync.OnceValue(func() string {
	h, _ := cryptox.Hasher{}.Hash("rostergate-dummy-password")
	return h
})
