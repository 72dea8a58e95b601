package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/autopoint-backend/internal/model"
)

// ChatRepo is the global chat log with per-viewer block lists and hidden
// message overlays.
type ChatRepo struct{ DB *sql.DB }

func NewChatRepo(db *sql.DB) *ChatRepo { return &ChatRepo{DB: db} }

const chatSelect = `SELECT m.id, m.user_id, ue.name, ue.avatar, m.message_type, m.message, m.attachments,
	m.extra_metadata, m.created_at, m.updated_at, m.deleted_at
	FROM global_chat_messages m
	LEFT JOIN users_extended ue ON ue.user_id = m.user_id`

// visibleTo excludes soft-deleted rows, blocked senders and hidden rows.
// Both placeholders take the viewer id.
const visibleTo = ` WHERE m.deleted_at IS NULL
	AND NOT EXISTS (SELECT 1 FROM user_blocks b WHERE b.blocker_id = ? AND b.blocked_id = m.user_id)
	AND NOT EXISTS (SELECT 1 FROM hidden_global_chat_messages h WHERE h.message_id = m.id AND h.user_id = ?)`

func scanChat(row interface{ Scan(...any) error }) (model.ChatMessage, error) {
	var m model.ChatMessage
	err := row.Scan(&m.ID, &m.UserID, &m.UserName, &m.UserAvatar, &m.MessageType, &m.Message, &m.Attachments,
		&m.ExtraMetadata, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	return m, err
}

func (r *ChatRepo) query(ctx context.Context, q string, args ...any) ([]model.ChatMessage, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ChatMessage
	for rows.Next() {
		m, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// List returns one page of visible messages, newest first. A non-zero
// beforeID pages backwards from that message.
func (r *ChatRepo) List(ctx context.Context, viewerID uint64, beforeID uint64, skip, limit int) ([]model.ChatMessage, int, error) {
	cond := visibleTo
	args := []any{viewerID, viewerID}
	if beforeID > 0 {
		cond += " AND m.id < ?"
		args = append(args, beforeID)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM global_chat_messages m"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	skip, limit = clampPage(skip, limit)
	items, err := r.query(ctx, chatSelect+cond+" ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?",
		append(args, limit, skip)...)
	return items, total, err
}

// Search matches message text case-insensitively with the same exclusions
// as List.
func (r *ChatRepo) Search(ctx context.Context, viewerID uint64, query string, skip, limit int) ([]model.ChatMessage, error) {
	skip, limit = clampPage(skip, limit)
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return r.query(ctx,
		chatSelect+visibleTo+" AND LOWER(m.message) LIKE ? ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?",
		viewerID, viewerID, like, limit, skip)
}

// Get returns a message, including soft-deleted ones.
func (r *ChatRepo) Get(ctx context.Context, id uint64) (model.ChatMessage, error) {
	m, err := scanChat(r.DB.QueryRowContext(ctx, chatSelect+" WHERE m.id = ? LIMIT 1", id))
	return m, notFound(err)
}

// Create appends a message to the log.
func (r *ChatRepo) Create(ctx context.Context, m model.ChatMessage) (model.ChatMessage, error) {
	if m.MessageType == "" {
		m.MessageType = model.MessageText
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO global_chat_messages (user_id, message_type, message, attachments, extra_metadata) VALUES (?, ?, ?, ?, ?)",
		m.UserID, m.MessageType, m.Message, m.Attachments, m.ExtraMetadata)
	if err != nil {
		return m, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return m, err
	}
	return r.Get(ctx, uint64(id))
}

// SoftDelete stamps deleted_at. Only the sender may delete; anybody else
// gets ErrForbidden.
func (r *ChatRepo) SoftDelete(ctx context.Context, id, userID uint64, now time.Time) error {
	var sender uint64
	var deleted *time.Time
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, deleted_at FROM global_chat_messages WHERE id = ? LIMIT 1", id).Scan(&sender, &deleted)
	if err != nil {
		return notFound(err)
	}
	if sender != userID {
		return ErrForbidden
	}
	if deleted != nil {
		return ErrNotFound
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE global_chat_messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", now, id)
	return err
}

// Block adds blockedID to the blocker's list. Self-blocks are rejected with
// ErrConflict; repeating a block is a no-op.
func (r *ChatRepo) Block(ctx context.Context, blockerID, blockedID uint64) error {
	if blockerID == blockedID {
		return ErrConflict
	}
	var one int
	if err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = ? LIMIT 1", blockedID).Scan(&one); err != nil {
		return notFound(err)
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO user_blocks (blocker_id, blocked_id) VALUES (?, ?)", blockerID, blockedID)
	return err
}

// Unblock removes an entry; ErrNotFound when it was not blocked.
func (r *ChatRepo) Unblock(ctx context.Context, blockerID, blockedID uint64) error {
	return affected(r.DB.ExecContext(ctx,
		"DELETE FROM user_blocks WHERE blocker_id = ? AND blocked_id = ?", blockerID, blockedID))
}

// Blocked lists the viewer's block list with display data.
func (r *ChatRepo) Blocked(ctx context.Context, blockerID uint64) ([]model.BlockedUser, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT b.blocked_id, ue.name, u.phone_number, b.created_at
		 FROM user_blocks b
		 JOIN users u ON u.id = b.blocked_id
		 LEFT JOIN users_extended ue ON ue.user_id = b.blocked_id
		 WHERE b.blocker_id = ? ORDER BY b.created_at DESC`, blockerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BlockedUser
	for rows.Next() {
		var b model.BlockedUser
		if err := rows.Scan(&b.UserID, &b.Name, &b.Phone, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ClearHistory hides every message currently visible to the viewer and
// returns how many rows were newly hidden.
func (r *ChatRepo) ClearHistory(ctx context.Context, viewerID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO hidden_global_chat_messages (message_id, user_id) SELECT m.id, ? FROM global_chat_messages m"+visibleTo,
		viewerID, viewerID, viewerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
