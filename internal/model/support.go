package model

import "time"

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type SupportTicket struct {
	ID            uint64         `json:"id"`
	UserID        uint64         `json:"user_id"`
	Subject       string         `json:"subject"`
	Status        TicketStatus   `json:"status"`
	Priority      TicketPriority `json:"priority"`
	AssignedTo    *uint64        `json:"assigned_to"`
	IsReadByUser  bool           `json:"is_read_by_user"`
	IsReadByAdmin bool           `json:"is_read_by_admin"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ResolvedAt    *time.Time     `json:"resolved_at"`
	ClosedAt      *time.Time     `json:"closed_at"`

	Messages []SupportMessage `json:"messages,omitempty"`
}

// ApplyMessage returns the ticket state after a message is posted. A user
// message reopens resolved or closed tickets and flags the ticket unread for
// admins; an admin message moves open tickets to in_progress and flags it
// unread for the owner.
func (t SupportTicket) ApplyMessage(fromUser bool) SupportTicket {
	if fromUser {
		t.IsReadByAdmin = false
		t.IsReadByUser = true
		if t.Status == TicketResolved || t.Status == TicketClosed {
			t.Status = TicketOpen
			t.ResolvedAt, t.ClosedAt = nil, nil
		}
		return t
	}
	t.IsReadByUser = false
	t.IsReadByAdmin = true
	if t.Status == TicketOpen {
		t.Status = TicketInProgress
	}
	return t
}

// ApplyStatus sets a new status and stamps the lifecycle timestamp.
func (t SupportTicket) ApplyStatus(s TicketStatus, now time.Time) SupportTicket {
	t.Status = s
	switch s {
	case TicketResolved:
		t.ResolvedAt = &now
	case TicketClosed:
		t.ClosedAt = &now
	}
	return t
}

type SupportMessage struct {
	ID          uint64      `json:"id"`
	TicketID    uint64      `json:"ticket_id"`
	UserID      uint64      `json:"user_id"`
	Message     string      `json:"message"`
	IsFromUser  bool        `json:"is_from_user"`
	Attachments Attachments `json:"attachments"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SupportStats is the admin dashboard summary.
type SupportStats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	UnreadByAdmin int            `json:"unread_by_admin"`
}
