package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/autopoint-backend/internal/model"
)

type FavoriteRepo struct{ DB *sql.DB }

func NewFavoriteRepo(db *sql.DB) *FavoriteRepo { return &FavoriteRepo{DB: db} }

// List returns the user's favorites, optionally of one type.
func (r *FavoriteRepo) List(ctx context.Context, userID uint64, typ *model.FavoriteType) ([]model.UserFavorite, error) {
	q := "SELECT id, user_id, favorite_type, place_id, created_at FROM user_favorites WHERE user_id=?"
	args := []any{userID}
	if typ != nil {
		q += " AND favorite_type=?"
		args = append(args, *typ)
	}
	rows, err := r.DB.QueryContext(ctx, q+" ORDER BY created_at DESC, id DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UserFavorite
	for rows.Next() {
		var f model.UserFavorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.FavoriteType, &f.PlaceID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Add is idempotent on (user, type, place).
func (r *FavoriteRepo) Add(ctx context.Context, userID uint64, typ model.FavoriteType, placeID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO user_favorites (user_id, favorite_type, place_id) VALUES (?,?,?)",
		userID, typ, placeID)
	return err
}

// Remove deletes one favorite; ErrNotFound when absent.
func (r *FavoriteRepo) Remove(ctx context.Context, userID uint64, typ model.FavoriteType, placeID uint64) error {
	return affected(r.DB.ExecContext(ctx,
		"DELETE FROM user_favorites WHERE user_id=? AND favorite_type=? AND place_id=?",
		userID, typ, placeID))
}
