package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
)

// NotificationRepo serves personal rows directly and global rows through
// the per-viewer notification_read_status overlay.
type NotificationRepo struct{ DB *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{DB: db} }

// visibleFrom joins the viewer's overlay; the first placeholder is the
// viewer id, the second repeats it for personal rows.
const visibleFrom = ` FROM notifications n
	LEFT JOIN notification_read_status s ON s.notification_id = n.id AND s.user_id = ?
	WHERE (n.user_id = ? OR (n.user_id IS NULL AND COALESCE(s.is_deleted, 0) = 0))`

const unreadExpr = "CASE WHEN n.user_id IS NULL THEN COALESCE(s.is_read, 0) = 0 ELSE n.is_read = 0 END"

// List returns the viewer's inbox, newest first.
func (r *NotificationRepo) List(ctx context.Context, userID uint64, unreadOnly bool, skip, limit int) ([]model.Notification, int, error) {
	cond := ""
	if unreadOnly {
		cond = " AND " + unreadExpr
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*)"+visibleFrom+cond, userID, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	skip, limit = clampPage(skip, limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT n.id, n.user_id, n.title, n.message, n.notification_type, NOT ("+unreadExpr+"), n.user_id IS NULL, n.created_at"+
			visibleFrom+cond+" ORDER BY n.created_at DESC, n.id DESC LIMIT ? OFFSET ?",
		userID, userID, limit, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.NotificationType, &n.IsRead, &n.IsGlobal, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// Stats counts visible and unread rows for the viewer.
func (r *NotificationRepo) Stats(ctx context.Context, userID uint64) (model.NotificationStats, error) {
	var st model.NotificationStats
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM("+unreadExpr+"), 0)"+visibleFrom, userID, userID).
		Scan(&st.Total, &st.Unread)
	return st, err
}

// owner reports whether the row is global, or ErrNotFound when it is absent
// or belongs to somebody else.
func (r *NotificationRepo) owner(ctx context.Context, q DBTX, userID, id uint64) (global bool, err error) {
	var owner *uint64
	if err := q.QueryRowContext(ctx, "SELECT user_id FROM notifications WHERE id = ? LIMIT 1", id).Scan(&owner); err != nil {
		return false, notFound(err)
	}
	if owner != nil && *owner != userID {
		return false, ErrNotFound
	}
	return owner == nil, nil
}

// MarkRead flips the personal flag or upserts the viewer's overlay.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id uint64) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		global, err := r.owner(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if global {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO notification_read_status (notification_id, user_id, is_read) VALUES (?, ?, 1)
				 ON DUPLICATE KEY UPDATE is_read = 1`, id, userID)
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ?", id)
		return err
	})
}

// MarkAllRead marks both personal and global rows read in one transaction.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uint64) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0", userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notification_read_status (notification_id, user_id, is_read)
			 SELECT n.id, ?, 1 FROM notifications n WHERE n.user_id IS NULL
			 ON DUPLICATE KEY UPDATE is_read = 1`, userID)
		return err
	})
}

// Delete hard-deletes a personal row or hides a global one for the viewer
// only.
func (r *NotificationRepo) Delete(ctx context.Context, userID, id uint64) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		global, err := r.owner(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if global {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO notification_read_status (notification_id, user_id, is_deleted) VALUES (?, ?, 1)
				 ON DUPLICATE KEY UPDATE is_deleted = 1`, id, userID)
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
		return err
	})
}

// DeleteAll clears the viewer's inbox.
func (r *NotificationRepo) DeleteAll(ctx context.Context, userID uint64) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM notifications WHERE user_id = ?", userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notification_read_status (notification_id, user_id, is_deleted)
			 SELECT n.id, ?, 1 FROM notifications n WHERE n.user_id IS NULL
			 ON DUPLICATE KEY UPDATE is_deleted = 1`, userID)
		return err
	})
}

// Create stores a notification; a nil UserID makes it global.
func (r *NotificationRepo) Create(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.NotificationType == "" {
		n.NotificationType = "system"
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO notifications (user_id, title, message, notification_type) VALUES (?, ?, ?, ?)",
		n.UserID, n.Title, n.Message, n.NotificationType)
	if err != nil {
		return n, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return n, err
	}
	return r.Get(ctx, uint64(id))
}

// Get reads a row without any viewer overlay.
func (r *NotificationRepo) Get(ctx context.Context, id uint64) (model.Notification, error) {
	var n model.Notification
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, title, message, notification_type, is_read, user_id IS NULL, created_at FROM notifications WHERE id = ?",
		id).Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.NotificationType, &n.IsRead, &n.IsGlobal, &n.CreatedAt)
	return n, notFound(err)
}

// ListAll is the admin view over every stored row.
func (r *NotificationRepo) ListAll(ctx context.Context, skip, limit int) ([]model.Notification, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications").Scan(&total); err != nil {
		return nil, 0, err
	}
	skip, limit = clampPage(skip, limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_id, title, message, notification_type, is_read, user_id IS NULL, created_at FROM notifications ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.NotificationType, &n.IsRead, &n.IsGlobal, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// AdminDelete removes the row and every viewer overlay pointing at it.
func (r *NotificationRepo) AdminDelete(ctx context.Context, id uint64) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM notification_read_status WHERE notification_id = ?", id); err != nil {
			return err
		}
		return affected(tx.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id))
	})
}
