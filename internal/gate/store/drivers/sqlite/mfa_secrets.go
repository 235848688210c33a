package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
)

type mfaSecretsRepo struct {
	db dbtx
}

func (r *mfaSecretsRepo) GetMFASecret(ctx context.Context, userID string) (domain.MFASecret, error) {
	var (
		m       domain.MFASecret
		enabled sql.NullInt64
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, secret, enabled_at, created_at FROM mfa_secrets WHERE user_id = ?`,
		userID,
	).Scan(&m.UserID, &m.Secret, &enabled, &created)
	if err != nil {
		return domain.MFASecret{}, mapNotFound(err)
	}
	m.EnabledAt = mapNullTimePtr(enabled)
	m.Enabled = enabled.Valid
	m.CreatedAt = unixTime(created)
	return m, nil
}

func (r *mfaSecretsRepo) PutPendingMFASecret(ctx context.Context, userID, secret string, now time.Time) error {
	// The conditional upsert leaves an enabled secret untouched.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO mfa_secrets (user_id, secret, enabled_at, created_at)
		VALUES (?, ?, NULL, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = excluded.secret,
			created_at = excluded.created_at
		WHERE mfa_secrets.enabled_at IS NULL`,
		userID, secret, now.Unix(),
	)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *mfaSecretsRepo) EnableMFASecret(ctx context.Context, userID string, now time.Time) error {
	return requireOne(r.db.ExecContext(ctx,
		`UPDATE mfa_secrets SET enabled_at = ? WHERE user_id = ? AND enabled_at IS NULL`,
		now.Unix(), userID,
	))
}

func (r *mfaSecretsRepo) DeleteMFASecret(ctx context.Context, userID string) error {
	return requireOne(r.db.ExecContext(ctx, `DELETE FROM mfa_secrets WHERE user_id = ?`, userID))
}
