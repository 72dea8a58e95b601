package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
)

// ProfileRepo owns the extended-user record and its one-to-one dependents.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

// EnsureDependentsTx materializes users_extended, user_profiles,
// user_notifications and user_statistics for the user. Existing rows are
// left untouched, so calling it repeatedly is a no-op.
func (r *ProfileRepo) EnsureDependentsTx(ctx context.Context, q DBTX, userID uint64, phone string) error {
	stmts := []struct {
		sql  string
		args []any
	}{
		{"INSERT IGNORE INTO users_extended (user_id, phone, language, balance, level) VALUES (?,?,?,0,?)",
			[]any{userID, phone, model.DefaultLanguage, model.DefaultLevel}},
		{"INSERT IGNORE INTO user_profiles (user_id, settings) VALUES (?,?)",
			[]any{userID, model.DefaultSettings()}},
		{"INSERT IGNORE INTO user_notifications (user_id) VALUES (?)", []any{userID}},
		{"INSERT IGNORE INTO user_statistics (user_id) VALUES (?)", []any{userID}},
	}
	for _, s := range stmts {
		if _, err := q.ExecContext(ctx, s.sql, s.args...); err != nil {
			return fmt.Errorf("provision user %d: %w", userID, err)
		}
	}
	return nil
}

// HasDependents reports whether all four one-to-one rows exist.
func (r *ProfileRepo) HasDependents(ctx context.Context, userID uint64) (bool, error) {
	var ok bool
	err := r.DB.QueryRowContext(ctx, `SELECT
		EXISTS(SELECT 1 FROM users_extended WHERE user_id=?) AND
		EXISTS(SELECT 1 FROM user_profiles WHERE user_id=?) AND
		EXISTS(SELECT 1 FROM user_notifications WHERE user_id=?) AND
		EXISTS(SELECT 1 FROM user_statistics WHERE user_id=?)`,
		userID, userID, userID, userID).Scan(&ok)
	return ok, err
}

// Provision runs EnsureDependentsTx in its own transaction.
func (r *ProfileRepo) Provision(ctx context.Context, userID uint64, phone string) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		return r.EnsureDependentsTx(ctx, tx, userID, phone)
	})
}

// SeedAchievements creates the locked starter achievements.
func (r *ProfileRepo) SeedAchievements(ctx context.Context, userID uint64) error {
	vals := make([]string, 0, len(model.SeedAchievements))
	args := make([]any, 0, 2*len(model.SeedAchievements))
	for _, a := range model.SeedAchievements {
		vals = append(vals, "(?,?,0)")
		args = append(args, userID, a)
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO user_achievements (user_id, achievement_type, unlocked) VALUES "+strings.Join(vals, ","),
		args...)
	return err
}

const extendedColumns = "id, user_id, phone, name, email, avatar, language, balance, level, rating, total_reviews, total_favorites, created_at, updated_at"

// GetExtended returns the users_extended row.
func (r *ProfileRepo) GetExtended(ctx context.Context, userID uint64) (model.UserExtended, error) {
	var e model.UserExtended
	err := r.DB.QueryRowContext(ctx, "SELECT "+extendedColumns+" FROM users_extended WHERE user_id=? LIMIT 1", userID).
		Scan(&e.ID, &e.UserID, &e.Phone, &e.Name, &e.Email, &e.Avatar, &e.Language, &e.Balance,
			&e.Level, &e.Rating, &e.TotalReviews, &e.TotalFavorites, &e.CreatedAt, &e.UpdatedAt)
	return e, notFound(err)
}

// DisplayName resolves users_extended.name for one user.
func (r *ProfileRepo) DisplayName(ctx context.Context, userID uint64) (*string, error) {
	var name *string
	err := r.DB.QueryRowContext(ctx, "SELECT name FROM users_extended WHERE user_id=? LIMIT 1", userID).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return name, err
}

// GetProfile returns the documents and settings row.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID uint64) (model.UserProfile, error) {
	var p model.UserProfile
	err := r.DB.QueryRowContext(ctx, `SELECT id, user_id,
		passport_image_url, passport_verified, passport_uploaded_at,
		driving_license_image_url, driving_license_verified, driving_license_uploaded_at, settings
		FROM user_profiles WHERE user_id=? LIMIT 1`, userID).
		Scan(&p.ID, &p.UserID,
			&p.Passport.ImageURL, &p.Passport.Verified, &p.Passport.UploadedAt,
			&p.DrivingLicense.ImageURL, &p.DrivingLicense.Verified, &p.DrivingLicense.UploadedAt, &p.Settings)
	if p.Settings == nil {
		p.Settings = model.DefaultSettings()
	}
	return p, notFound(err)
}

// UpdateName sets users_extended.name.
func (r *ProfileRepo) UpdateName(ctx context.Context, userID uint64, name string) error {
	return affected(r.DB.ExecContext(ctx, "UPDATE users_extended SET name=? WHERE user_id=?", name, userID))
}

// UpdateEmail sets users_extended.email.
func (r *ProfileRepo) UpdateEmail(ctx context.Context, userID uint64, email string) error {
	return affected(r.DB.ExecContext(ctx, "UPDATE users_extended SET email=? WHERE user_id=?", email, userID))
}

// SetAvatar stores a new avatar URL and returns the one it replaced.
func (r *ProfileRepo) SetAvatar(ctx context.Context, userID uint64, url string) (prev *string, err error) {
	err = database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT avatar FROM users_extended WHERE user_id=? FOR UPDATE", userID).Scan(&prev); err != nil {
			return notFound(err)
		}
		_, err := tx.ExecContext(ctx, "UPDATE users_extended SET avatar=? WHERE user_id=?", url, userID)
		return err
	})
	return prev, err
}

// Document kinds accepted by SetDocument.
const (
	DocPassport       = "passport"
	DocDrivingLicense = "driving_license"
)

// SetDocument records an uploaded document image, resets its verification
// flag and returns the previous URL.
func (r *ProfileRepo) SetDocument(ctx context.Context, userID uint64, doc, url string, now time.Time) (prev *string, err error) {
	if doc != DocPassport && doc != DocDrivingLicense {
		return nil, fmt.Errorf("unknown document %q", doc)
	}
	err = database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT "+doc+"_image_url FROM user_profiles WHERE user_id=? FOR UPDATE", userID).Scan(&prev); err != nil {
			return notFound(err)
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE user_profiles SET "+doc+"_image_url=?, "+doc+"_verified=0, "+doc+"_uploaded_at=? WHERE user_id=?",
			url, now, userID)
		return err
	})
	return prev, err
}

// MergeSettings overlays patch onto the settings bag, keeping other keys.
func (r *ProfileRepo) MergeSettings(ctx context.Context, userID uint64, patch map[string]any) (model.SettingsBag, error) {
	var merged model.SettingsBag
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var cur model.SettingsBag
		if err := tx.QueryRowContext(ctx,
			"SELECT settings FROM user_profiles WHERE user_id=? FOR UPDATE", userID).Scan(&cur); err != nil {
			return notFound(err)
		}
		if cur == nil {
			cur = model.DefaultSettings()
		}
		for k, v := range patch {
			cur[k] = v
		}
		merged = cur
		_, err := tx.ExecContext(ctx, "UPDATE user_profiles SET settings=? WHERE user_id=?", cur, userID)
		return err
	})
	return merged, err
}

// GetNotificationSettings reads the per-category toggles.
func (r *ProfileRepo) GetNotificationSettings(ctx context.Context, userID uint64) (model.UserNotificationSettings, error) {
	s := model.UserNotificationSettings{UserID: userID}
	err := r.DB.QueryRowContext(ctx,
		"SELECT enabled, system_enabled, promo_enabled, support_enabled, chat_enabled FROM user_notifications WHERE user_id=? LIMIT 1",
		userID).Scan(&s.Enabled, &s.SystemEnabled, &s.PromoEnabled, &s.SupportEnabled, &s.ChatEnabled)
	return s, notFound(err)
}

// SetNotificationsEnabled flips the master switch.
func (r *ProfileRepo) SetNotificationsEnabled(ctx context.Context, userID uint64, enabled bool) error {
	return affected(r.DB.ExecContext(ctx, "UPDATE user_notifications SET enabled=? WHERE user_id=?", enabled, userID))
}

// RecomputeStatistics rebuilds the user_statistics row from source tables.
func (r *ProfileRepo) RecomputeStatistics(ctx context.Context, userID uint64) (model.UserStatistics, error) {
	var reviews, places []string
	var args []any
	for _, k := range model.Kinds {
		reviews = append(reviews, fmt.Sprintf("(SELECT COUNT(*) FROM %s WHERE user_id=?)", k.ReviewTable))
		args = append(args, userID)
	}
	for _, k := range model.Kinds {
		places = append(places, fmt.Sprintf("(SELECT COUNT(*) FROM %s WHERE created_by_user_id=?)", k.Table))
		args = append(args, userID)
	}
	args = append(args, userID, userID, userID)

	s := model.UserStatistics{UserID: userID}
	q := "SELECT " + strings.Join(reviews, " + ") + ", " + strings.Join(places, " + ") + `,
		(SELECT COUNT(*) FROM user_favorites WHERE user_id=?),
		(SELECT COUNT(*) FROM global_chat_messages WHERE user_id=? AND deleted_at IS NULL),
		(SELECT COUNT(*) FROM support_tickets WHERE user_id=?)`
	if err := r.DB.QueryRowContext(ctx, q, args...).
		Scan(&s.ReviewsCount, &s.PlacesAdded, &s.FavoritesCount, &s.MessagesSent, &s.TicketsCount); err != nil {
		return s, err
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO user_statistics
		(user_id, reviews_count, favorites_count, places_added, messages_sent, tickets_count) VALUES (?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE reviews_count=VALUES(reviews_count), favorites_count=VALUES(favorites_count),
		places_added=VALUES(places_added), messages_sent=VALUES(messages_sent), tickets_count=VALUES(tickets_count)`,
		userID, s.ReviewsCount, s.FavoritesCount, s.PlacesAdded, s.MessagesSent, s.TicketsCount)
	s.UpdatedAt = time.Now().UTC()
	return s, err
}

// Achievements lists the user's achievements.
func (r *ProfileRepo) Achievements(ctx context.Context, userID uint64) ([]model.UserAchievement, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_id, achievement_type, unlocked, unlocked_at FROM user_achievements WHERE user_id=? ORDER BY id",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UserAchievement
	for rows.Next() {
		var a model.UserAchievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.AchievementType, &a.Unlocked, &a.UnlockedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Transactions returns the newest ledger rows first.
func (r *ProfileRepo) Transactions(ctx context.Context, userID uint64, skip, limit int) ([]model.Transaction, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions WHERE user_id=?", userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	skip, limit = clampPage(skip, limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_id, amount, transaction_type, description, created_at FROM transactions WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		userID, limit, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}
