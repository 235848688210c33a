package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
)

type refreshCredentialsRepo struct {
	db dbtx
}

func (r *refreshCredentialsRepo) UpsertRefreshCredential(ctx context.Context, c domain.RefreshCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_credentials (user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			token_hash = excluded.token_hash,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		c.UserID, c.TokenHash, c.ExpiresAt.Unix(), c.CreatedAt.Unix(),
	)
	return mapConstraint(err)
}

func (r *refreshCredentialsRepo) ReplaceRefreshCredential(
	ctx context.Context,
	oldHash string,
	c domain.RefreshCredential,
) error {
	err := requireOne(r.db.ExecContext(ctx, `
		UPDATE refresh_credentials
		SET token_hash = ?, expires_at = ?, created_at = ?
		WHERE user_id = ? AND token_hash = ?`,
		c.TokenHash, c.ExpiresAt.Unix(), c.CreatedAt.Unix(), c.UserID, oldHash,
	))
	return mapConstraint(err)
}

func (r *refreshCredentialsRepo) GetRefreshCredentialByHash(
	ctx context.Context,
	hash string,
) (domain.RefreshCredential, error) {
	var (
		c                  domain.RefreshCredential
		expiresAt, created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, token_hash, expires_at, created_at FROM refresh_credentials WHERE token_hash = ?`,
		hash,
	).Scan(&c.UserID, &c.TokenHash, &expiresAt, &created)
	if err != nil {
		return domain.RefreshCredential{}, mapNotFound(err)
	}
	c.ExpiresAt = unixTime(expiresAt)
	c.CreatedAt = unixTime(created)
	return c, nil
}

func (r *refreshCredentialsRepo) DeleteRefreshCredential(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_credentials WHERE user_id = ?`, userID)
	return err
}

func (r *refreshCredentialsRepo) DeleteExpiredRefreshCredentials(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_credentials WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
