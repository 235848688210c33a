package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
)

// DefaultRefreshTTL is the lifetime of a refresh credential.
const DefaultRefreshTTL = 24 * time.Hour

// ErrInvalidRefresh covers every reason a refresh credential is refused.
// The wrapped message names which one for logs.
var ErrInvalidRefresh = errors.New("invalid_refresh_token")

// RefreshService issues and validates refresh credentials. Only the SHA-256
// fingerprint of a secret is stored.
type RefreshService struct {
	Store store.Store
	TTL   time.Duration
	Now   func() time.Time

	// Timeout bounds each operation's store calls (default DefaultLookupTimeout).
	Timeout time.Duration
}

func (s *RefreshService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Lifetime is the TTL given to new credentials.
func (s *RefreshService) Lifetime() time.Duration {
	if s.TTL <= 0 {
		return DefaultRefreshTTL
	}
	return s.TTL
}

// Issue creates a credential for userID, replacing any the user already
// holds, and returns its 64 hex character secret.
func (s *RefreshService) Issue(ctx context.Context, userID string) (string, error) {
	secret, cred, err := s.newCredential(userID)
	if err != nil {
		return "", err
	}

	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	if err := s.Store.RefreshCredentials().UpsertRefreshCredential(ctx, cred); err != nil {
		return "", fmt.Errorf("%w: store refresh credential: %v", ErrDirectoryUnavailable, err)
	}
	return secret, nil
}

// Validate returns the owner of secret. The credential must be unexpired
// and the owner active.
func (s *RefreshService) Validate(ctx context.Context, secret string) (domain.User, error) {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	user, _, err := s.validate(ctx, secret)
	return user, err
}

// Rotate validates secret and replaces it with a new one in a single
// compare-and-swap, so a secret can be redeemed at most once.
func (s *RefreshService) Rotate(ctx context.Context, secret string) (domain.User, string, error) {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	user, cred, err := s.validate(ctx, secret)
	if err != nil {
		return domain.User{}, "", err
	}

	next, nextCred, err := s.newCredential(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}

	err = s.Store.RefreshCredentials().ReplaceRefreshCredential(ctx, cred.TokenHash, nextCred)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, "", fmt.Errorf("%w: already rotated", ErrInvalidRefresh)
	case err != nil:
		return domain.User{}, "", fmt.Errorf("%w: rotate refresh credential: %v", ErrDirectoryUnavailable, err)
	}

	return user, next, nil
}

// Revoke deletes the user's credential.
func (s *RefreshService) Revoke(ctx context.Context, userID string) error {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	if err := s.Store.RefreshCredentials().DeleteRefreshCredential(ctx, userID); err != nil {
		return fmt.Errorf("%w: revoke refresh credential: %v", ErrDirectoryUnavailable, err)
	}
	return nil
}

func (s *RefreshService) newCredential(userID string) (string, domain.RefreshCredential, error) {
	secret, err := cryptox.GenerateHexToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.RefreshCredential{}, err
	}

	now := s.now()
	return secret, domain.RefreshCredential{
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(secret),
		ExpiresAt: now.Add(s.Lifetime()),
		CreatedAt: now,
	}, nil
}

func (s *RefreshService) validate(ctx context.Context, secret string) (domain.User, domain.RefreshCredential, error) {
	if secret == "" {
		return domain.User{}, domain.RefreshCredential{}, fmt.Errorf("%w: empty", ErrInvalidRefresh)
	}

	cred, err := s.Store.RefreshCredentials().GetRefreshCredentialByHash(ctx, cryptox.FingerprintToken(secret))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, domain.RefreshCredential{}, fmt.Errorf("%w: unknown credential", ErrInvalidRefresh)
	case err != nil:
		return domain.User{}, domain.RefreshCredential{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if cred.Expired(s.now()) {
		return domain.User{}, domain.RefreshCredential{}, fmt.Errorf("%w: expired", ErrInvalidRefresh)
	}

	user, err := s.Store.Users().GetUserByID(ctx, cred.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, domain.RefreshCredential{}, fmt.Errorf("%w: unknown subject", ErrInvalidRefresh)
	case err != nil:
		return domain.User{}, domain.RefreshCredential{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if !user.Status.IsActive() {
		return domain.User{}, domain.RefreshCredential{}, fmt.Errorf("%w: subject %s", ErrInvalidRefresh, user.Status)
	}

	return user, cred, nil
}
