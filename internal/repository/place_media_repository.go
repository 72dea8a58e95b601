package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
)

// ReviewListLimit caps the reviews embedded in a place detail.
const ReviewListLimit = 50

func (r *PlaceRepo) listPhotos(ctx context.Context, q DBTX, placeID uint64) ([]model.PlacePhoto, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, "+r.Kind.FK+", url, is_main, sort_order, created_at FROM "+r.Kind.PhotoTable+
			" WHERE "+r.Kind.FK+" = ? ORDER BY is_main DESC, sort_order ASC, id ASC", placeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PlacePhoto
	for rows.Next() {
		var p model.PlacePhoto
		if err := rows.Scan(&p.ID, &p.PlaceID, &p.URL, &p.IsMain, &p.Order, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPhotos returns the photos main-first, then in display order.
func (r *PlaceRepo) ListPhotos(ctx context.Context, placeID uint64) ([]model.PlacePhoto, error) {
	return r.listPhotos(ctx, r.DB, placeID)
}

// AddPhoto appends a photo. The first photo of a place, or one added with
// main=true, becomes the single main photo.
func (r *PlaceRepo) AddPhoto(ctx context.Context, placeID uint64, url string, main bool) (model.PlacePhoto, error) {
	var out model.PlacePhoto
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := r.getTx(ctx, tx, placeID, true); err != nil {
			return err
		}
		var count, next int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*), COALESCE(MAX(sort_order), -1) + 1 FROM "+r.Kind.PhotoTable+" WHERE "+r.Kind.FK+" = ?",
			placeID).Scan(&count, &next); err != nil {
			return err
		}
		if count == 0 {
			main = true
		}
		if main {
			if _, err := tx.ExecContext(ctx,
				"UPDATE "+r.Kind.PhotoTable+" SET is_main = 0 WHERE "+r.Kind.FK+" = ?", placeID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO "+r.Kind.PhotoTable+" ("+r.Kind.FK+", url, is_main, sort_order) VALUES (?, ?, ?, ?)",
			placeID, url, main, next)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			"SELECT id, "+r.Kind.FK+", url, is_main, sort_order, created_at FROM "+r.Kind.PhotoTable+" WHERE id = ?", id).
			Scan(&out.ID, &out.PlaceID, &out.URL, &out.IsMain, &out.Order, &out.CreatedAt)
	})
	return out, err
}

// SetMainPhoto makes photoID the only main photo of the place.
func (r *PlaceRepo) SetMainPhoto(ctx context.Context, placeID, photoID uint64) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM "+r.Kind.PhotoTable+" WHERE id = ? AND "+r.Kind.FK+" = ? FOR UPDATE",
			photoID, placeID).Scan(&one)
		if err != nil {
			return notFound(err)
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE "+r.Kind.PhotoTable+" SET is_main = (id = ?) WHERE "+r.Kind.FK+" = ?", photoID, placeID)
		return err
	})
}

// DeletePhoto removes a photo and returns its URL. When the main photo is
// removed the next photo in display order is promoted.
func (r *PlaceRepo) DeletePhoto(ctx context.Context, placeID, photoID uint64) (string, error) {
	var url string
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var wasMain bool
		err := tx.QueryRowContext(ctx,
			"SELECT url, is_main FROM "+r.Kind.PhotoTable+" WHERE id = ? AND "+r.Kind.FK+" = ? FOR UPDATE",
			photoID, placeID).Scan(&url, &wasMain)
		if err != nil {
			return notFound(err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+r.Kind.PhotoTable+" WHERE id = ?", photoID); err != nil {
			return err
		}
		if !wasMain {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE "+r.Kind.PhotoTable+" SET is_main = 1 WHERE "+r.Kind.FK+" = ? ORDER BY sort_order ASC, id ASC LIMIT 1",
			placeID)
		return err
	})
	return url, err
}

// ListReviews returns the most recent reviews with the reviewer's display
// name.
func (r *PlaceRepo) ListReviews(ctx context.Context, placeID uint64, limit int) ([]model.Review, error) {
	if limit <= 0 || limit > ReviewListLimit {
		limit = ReviewListLimit
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT rv.id, rv."+r.Kind.FK+", rv.user_id, ue.name, rv.rating, rv.comment, rv.created_at, rv.updated_at FROM "+
			r.Kind.ReviewTable+" rv LEFT JOIN users_extended ue ON ue.user_id = rv.user_id WHERE rv."+r.Kind.FK+
			" = ? ORDER BY rv.created_at DESC, rv.id DESC LIMIT ?", placeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Review
	for rows.Next() {
		var v model.Review
		if err := rows.Scan(&v.ID, &v.PlaceID, &v.UserID, &v.UserName, &v.Rating, &v.Comment, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *PlaceRepo) getReview(ctx context.Context, q DBTX, placeID, reviewID uint64) (model.Review, error) {
	var v model.Review
	err := q.QueryRowContext(ctx,
		"SELECT id, "+r.Kind.FK+", user_id, rating, comment, created_at, updated_at FROM "+r.Kind.ReviewTable+
			" WHERE id = ? AND "+r.Kind.FK+" = ? LIMIT 1 FOR UPDATE", reviewID, placeID).
		Scan(&v.ID, &v.PlaceID, &v.UserID, &v.Rating, &v.Comment, &v.CreatedAt, &v.UpdatedAt)
	return v, notFound(err)
}

// recomputeRating rewrites rating and reviews_count from the review rows.
// It runs inside the transaction that changed the reviews so readers never
// see a torn average.
func (r *PlaceRepo) recomputeRating(ctx context.Context, tx *sql.Tx, placeID uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE "+r.Kind.Table+" SET "+
			"rating = COALESCE((SELECT AVG(rating) FROM "+r.Kind.ReviewTable+" WHERE "+r.Kind.FK+" = ?), 0), "+
			"reviews_count = (SELECT COUNT(*) FROM "+r.Kind.ReviewTable+" WHERE "+r.Kind.FK+" = ?) WHERE id = ?",
		placeID, placeID, placeID)
	return err
}

// CreateReview adds the user's review and recomputes the place rating.
// A second review by the same user yields ErrDuplicate.
func (r *PlaceRepo) CreateReview(ctx context.Context, placeID, userID uint64, rating int, comment *string) (model.Review, error) {
	var out model.Review
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := r.getTx(ctx, tx, placeID, true); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO "+r.Kind.ReviewTable+" ("+r.Kind.FK+", user_id, rating, comment) VALUES (?, ?, ?, ?)",
			placeID, userID, rating, comment)
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := r.recomputeRating(ctx, tx, placeID); err != nil {
			return err
		}
		out, err = r.getReview(ctx, tx, placeID, uint64(id))
		return err
	})
	return out, err
}

// UpdateReview changes rating and comment. Only the author or an admin may
// edit.
func (r *PlaceRepo) UpdateReview(ctx context.Context, placeID, reviewID, actorID uint64, isAdmin bool, rating int, comment *string) (model.Review, error) {
	var out model.Review
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := r.getTx(ctx, tx, placeID, true); err != nil {
			return err
		}
		cur, err := r.getReview(ctx, tx, placeID, reviewID)
		if err != nil {
			return err
		}
		if cur.UserID != actorID && !isAdmin {
			return ErrForbidden
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE "+r.Kind.ReviewTable+" SET rating = ?, comment = ? WHERE id = ?", rating, comment, reviewID); err != nil {
			return err
		}
		if err := r.recomputeRating(ctx, tx, placeID); err != nil {
			return err
		}
		out, err = r.getReview(ctx, tx, placeID, reviewID)
		return err
	})
	return out, err
}

// DeleteReview removes a review and recomputes the rating.
func (r *PlaceRepo) DeleteReview(ctx context.Context, placeID, reviewID, actorID uint64, isAdmin bool) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := r.getTx(ctx, tx, placeID, true); err != nil {
			return err
		}
		cur, err := r.getReview(ctx, tx, placeID, reviewID)
		if err != nil {
			return err
		}
		if cur.UserID != actorID && !isAdmin {
			return ErrForbidden
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+r.Kind.ReviewTable+" WHERE id = ?", reviewID); err != nil {
			return err
		}
		return r.recomputeRating(ctx, tx, placeID)
	})
}
