package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
)

// SupportRepo stores tickets and their ordered message threads.
type SupportRepo struct{ DB *sql.DB }

func NewSupportRepo(db *sql.DB) *SupportRepo { return &SupportRepo{DB: db} }

const ticketColumns = `id, user_id, subject, status, priority, assigned_to, is_read_by_user, is_read_by_admin,
	created_at, updated_at, resolved_at, closed_at`

func scanTicket(row interface{ Scan(...any) error }) (model.SupportTicket, error) {
	var t model.SupportTicket
	err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Status, &t.Priority, &t.AssignedTo, &t.IsReadByUser,
		&t.IsReadByAdmin, &t.CreatedAt, &t.UpdatedAt, &t.ResolvedAt, &t.ClosedAt)
	return t, err
}

func (r *SupportRepo) getTx(ctx context.Context, q DBTX, id uint64, lock bool) (model.SupportTicket, error) {
	query := "SELECT " + ticketColumns + " FROM support_tickets WHERE id = ? LIMIT 1"
	if lock {
		query += " FOR UPDATE"
	}
	t, err := scanTicket(q.QueryRowContext(ctx, query, id))
	return t, notFound(err)
}

// Get returns a ticket without its messages.
func (r *SupportRepo) Get(ctx context.Context, id uint64) (model.SupportTicket, error) {
	return r.getTx(ctx, r.DB, id, false)
}

// GetWithMessages returns a ticket and its whole thread in insertion order.
func (r *SupportRepo) GetWithMessages(ctx context.Context, id uint64) (model.SupportTicket, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return t, err
	}
	t.Messages, err = r.messages(ctx, r.DB, id)
	if t.Messages == nil {
		t.Messages = []model.SupportMessage{}
	}
	return t, err
}

func (r *SupportRepo) messages(ctx context.Context, q DBTX, ticketID uint64) ([]model.SupportMessage, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, ticket_id, user_id, message, is_from_user, attachments, created_at FROM support_messages WHERE ticket_id = ? ORDER BY created_at ASC, id ASC",
		ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SupportMessage
	for rows.Next() {
		var m model.SupportMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.UserID, &m.Message, &m.IsFromUser, &m.Attachments, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func insertMessage(ctx context.Context, tx *sql.Tx, m model.SupportMessage) (model.SupportMessage, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO support_messages (ticket_id, user_id, message, is_from_user, attachments) VALUES (?, ?, ?, ?, ?)",
		m.TicketID, m.UserID, m.Message, m.IsFromUser, m.Attachments)
	if err != nil {
		return m, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return m, err
	}
	err = tx.QueryRowContext(ctx,
		"SELECT id, ticket_id, user_id, message, is_from_user, attachments, created_at FROM support_messages WHERE id = ?", id).
		Scan(&m.ID, &m.TicketID, &m.UserID, &m.Message, &m.IsFromUser, &m.Attachments, &m.CreatedAt)
	return m, err
}

// Create opens a ticket with its first user message.
func (r *SupportRepo) Create(ctx context.Context, userID uint64, subject, message string, priority model.TicketPriority, att model.Attachments) (model.SupportTicket, error) {
	if !priority.Valid() {
		priority = model.PriorityMedium
	}
	var out model.SupportTicket
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO support_tickets (user_id, subject, status, priority, is_read_by_user, is_read_by_admin) VALUES (?, ?, ?, ?, 1, 0)",
			userID, subject, model.TicketOpen, priority)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		msg, err := insertMessage(ctx, tx, model.SupportMessage{
			TicketID: uint64(id), UserID: userID, Message: message, IsFromUser: true, Attachments: att,
		})
		if err != nil {
			return err
		}
		out, err = r.getTx(ctx, tx, uint64(id), false)
		out.Messages = []model.SupportMessage{msg}
		return err
	})
	return out, err
}

func (r *SupportRepo) saveState(ctx context.Context, tx *sql.Tx, t model.SupportTicket) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE support_tickets SET status = ?, priority = ?, assigned_to = ?, is_read_by_user = ?, is_read_by_admin = ?,
		 resolved_at = ?, closed_at = ? WHERE id = ?`,
		t.Status, t.Priority, t.AssignedTo, t.IsReadByUser, t.IsReadByAdmin, t.ResolvedAt, t.ClosedAt, t.ID)
	return err
}

// AddMessage appends to the thread and applies the read-flag and status
// transitions in the same transaction, so a reopened ticket is visible as
// open no later than the message itself.
func (r *SupportRepo) AddMessage(ctx context.Context, ticketID, authorID uint64, fromUser bool, text string, att model.Attachments) (model.SupportMessage, model.SupportTicket, error) {
	var (
		msg    model.SupportMessage
		ticket model.SupportTicket
	)
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		t, err := r.getTx(ctx, tx, ticketID, true)
		if err != nil {
			return err
		}
		ticket = t.ApplyMessage(fromUser)
		if err := r.saveState(ctx, tx, ticket); err != nil {
			return err
		}
		msg, err = insertMessage(ctx, tx, model.SupportMessage{
			TicketID: ticketID, UserID: authorID, Message: text, IsFromUser: fromUser, Attachments: att,
		})
		return err
	})
	return msg, ticket, err
}

// mutate loads the ticket under lock, applies fn and persists the result.
func (r *SupportRepo) mutate(ctx context.Context, id uint64, fn func(model.SupportTicket) model.SupportTicket) (model.SupportTicket, error) {
	var out model.SupportTicket
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		t, err := r.getTx(ctx, tx, id, true)
		if err != nil {
			return err
		}
		out = fn(t)
		return r.saveState(ctx, tx, out)
	})
	return out, err
}

func (r *SupportRepo) SetStatus(ctx context.Context, id uint64, s model.TicketStatus, now time.Time) (model.SupportTicket, error) {
	return r.mutate(ctx, id, func(t model.SupportTicket) model.SupportTicket { return t.ApplyStatus(s, now) })
}

func (r *SupportRepo) SetPriority(ctx context.Context, id uint64, p model.TicketPriority) (model.SupportTicket, error) {
	return r.mutate(ctx, id, func(t model.SupportTicket) model.SupportTicket {
		t.Priority = p
		return t
	})
}

// Assign sets or clears the responsible admin.
func (r *SupportRepo) Assign(ctx context.Context, id uint64, adminID *uint64) (model.SupportTicket, error) {
	return r.mutate(ctx, id, func(t model.SupportTicket) model.SupportTicket {
		t.AssignedTo = adminID
		return t
	})
}

// MarkRead clears the unread flag of one side.
func (r *SupportRepo) MarkRead(ctx context.Context, id uint64, byAdmin bool) (model.SupportTicket, error) {
	return r.mutate(ctx, id, func(t model.SupportTicket) model.SupportTicket {
		if byAdmin {
			t.IsReadByAdmin = true
		} else {
			t.IsReadByUser = true
		}
		return t
	})
}

// TicketFilter narrows ticket listings. UserID restricts to one owner.
type TicketFilter struct {
	UserID     *uint64
	Status     *model.TicketStatus
	Priority   *model.TicketPriority
	AssignedTo *uint64
	UnreadOnly bool // unread by admin
	Skip       int
	Limit      int
}

// List returns tickets most recently updated first.
func (r *SupportRepo) List(ctx context.Context, f TicketFilter) ([]model.SupportTicket, int, error) {
	where := " WHERE 1 = 1"
	var args []any
	if f.UserID != nil {
		where += " AND user_id = ?"
		args = append(args, *f.UserID)
	}
	if f.Status != nil {
		where += " AND status = ?"
		args = append(args, *f.Status)
	}
	if f.Priority != nil {
		where += " AND priority = ?"
		args = append(args, *f.Priority)
	}
	if f.AssignedTo != nil {
		where += " AND assigned_to = ?"
		args = append(args, *f.AssignedTo)
	}
	if f.UnreadOnly {
		where += " AND is_read_by_admin = 0"
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM support_tickets"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	skip, limit := clampPage(f.Skip, f.Limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+ticketColumns+" FROM support_tickets"+where+" ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, skip)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.SupportTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// Stats counts tickets per status and those awaiting an admin.
func (r *SupportRepo) Stats(ctx context.Context) (model.SupportStats, error) {
	st := model.SupportStats{ByStatus: map[string]int{
		string(model.TicketOpen): 0, string(model.TicketInProgress): 0,
		string(model.TicketResolved): 0, string(model.TicketClosed): 0,
	}}
	rows, err := r.DB.QueryContext(ctx, "SELECT status, COUNT(*) FROM support_tickets GROUP BY status")
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return st, err
		}
		st.ByStatus[s] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	err = r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM support_tickets WHERE is_read_by_admin = 0").Scan(&st.UnreadByAdmin)
	return st, err
}

// Delete removes the ticket and its thread.
func (r *SupportRepo) Delete(ctx context.Context, id uint64) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM support_messages WHERE ticket_id = ?", id); err != nil {
			return err
		}
		return affected(tx.ExecContext(ctx, "DELETE FROM support_tickets WHERE id = ?", id))
	})
}
