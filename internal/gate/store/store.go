package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement this.
// Sub-repositories are reached through methods so a Tx-scoped Store cannot
// open a nested transaction by accident.
type Store interface {
	Users() Users
	RefreshCredentials() RefreshCredentials
	MFASecrets() MFASecrets

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. It commits when fn returns
	// nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Directory is the user lookup the token service depends on.
type Directory interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
}

type Users interface {
	Directory

	// GetUserByUsername is used during login. Matching is case-insensitive.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user. Returns ErrAlreadyExists when the
	// username is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2id) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// UpdateStatus changes the account status and bumps updated_at.
	UpdateStatus(ctx context.Context, userID string, status domain.UserStatus) error

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshCredentials interface {
	// UpsertRefreshCredential stores c, replacing any credential the user
	// already holds.
	UpsertRefreshCredential(ctx context.Context, c domain.RefreshCredential) error

	// ReplaceRefreshCredential swaps the credential stored under oldHash for
	// c. Returns ErrNotFound when oldHash is no longer current, which makes
	// rotation of one secret succeed at most once.
	ReplaceRefreshCredential(ctx context.Context, oldHash string, c domain.RefreshCredential) error

	// GetRefreshCredentialByHash looks a credential up by fingerprint.
	GetRefreshCredentialByHash(ctx context.Context, hash string) (domain.RefreshCredential, error)

	// DeleteRefreshCredential removes the user's credential. Deleting a
	// missing credential is not an error.
	DeleteRefreshCredential(ctx context.Context, userID string) error

	// DeleteExpiredRefreshCredentials removes credentials expired at now and
	// returns how many were deleted.
	DeleteExpiredRefreshCredentials(ctx context.Context, now time.Time) (int64, error)
}

type MFASecrets interface {
	// GetMFASecret returns the user's secret, pending or enabled.
	GetMFASecret(ctx context.Context, userID string) (domain.MFASecret, error)

	// PutPendingMFASecret stores a disabled secret, replacing a pending one.
	// Returns ErrAlreadyExists when the user already has MFA enabled.
	PutPendingMFASecret(ctx context.Context, userID, secret string, now time.Time) error

	// EnableMFASecret marks the pending secret enabled.
	EnableMFASecret(ctx context.Context, userID string, now time.Time) error

	// DeleteMFASecret removes the user's secret.
	DeleteMFASecret(ctx context.Context, userID string) error
}
