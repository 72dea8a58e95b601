package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"
)

// TokenRepo persists the bearer token revocation list. Rows are keyed by
// the SHA-256 of the token so the unique index stays small.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Blacklist revokes a token. Revoking twice is not an error.
func (r *TokenRepo) Blacklist(ctx context.Context, token string, userID *uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO blacklisted_tokens (token, token_hash, user_id) VALUES (?,?,?)",
		token, hashToken(token), userID)
	return err
}

// IsBlacklisted reports whether the token has been revoked.
func (r *TokenRepo) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM blacklisted_tokens WHERE token_hash=? LIMIT 1", hashToken(token)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// PurgeExpired drops rows blacklisted before the cutoff. Tokens that old have
// expired naturally, so forgetting them cannot re-admit anything.
func (r *TokenRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM blacklisted_tokens WHERE blacklisted_at < ?", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
