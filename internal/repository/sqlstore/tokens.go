package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/eventflow/internal/repository"
)

// tokenRepo persists refresh tokens by hash; the raw token never reaches
// the database.
type tokenRepo struct{ conn conn }

func (r *tokenRepo) StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	_, err := r.conn.exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?,?)`,
		uuid.NewString(), userID, tokenHash, exp.UTC(), utcNow())
	return err
}

// ValidateRefresh returns the owner if a non-revoked, non-expired token
// exists.
func (r *tokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	var (
		userID    string
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.conn.queryRow(ctx,
		`SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ? LIMIT 1`,
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		return "", r.conn.scanErr(err)
	}
	if revokedAt.Valid || time.Now().UTC().After(expiresAt) {
		return "", repository.ErrNotFound
	}
	return userID, nil
}

func (r *tokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.conn.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		utcNow(), tokenHash)
	return err
}

func (r *tokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.conn.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		utcNow(), userID)
	return err
}
