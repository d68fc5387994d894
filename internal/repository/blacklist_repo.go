package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BlacklistRepository records revoked token identifiers until their natural
// expiry. Entries are keyed by jti rather than full token value to bound
// storage size.
type BlacklistRepository struct {
	pool *pgxpool.Pool
}

func NewBlacklistRepository(pool *pgxpool.Pool) *BlacklistRepository {
	return &BlacklistRepository{pool: pool}
}

// Insert adds a jti to the blacklist. The returned flag reports whether the
// entry was newly inserted; a false result means the jti was already revoked.
// ON CONFLICT DO NOTHING makes concurrent double-use of a refresh token lose
// the race at the database level.
func (r *BlacklistRepository) Insert(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO token_blacklist (jti, created_at, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, time.Now().UTC(), expiresAt)
	if err != nil {
		return false, fmt.Errorf("blacklist token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BlacklistRepository) Contains(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE jti = $1 AND expires_at > now())`,
		jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists, nil
}

// CleanExpired prunes entries whose tokens have expired on their own; the
// signature check rejects those regardless of blacklist state.
func (r *BlacklistRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM token_blacklist WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("clean expired blacklist entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
