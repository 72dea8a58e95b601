package model

import "time"

// Notification is personal when UserID is set and global otherwise. For
// global rows IsRead is the viewer's overlay state, not the stored column.
type Notification struct {
	ID               uint64    `json:"id"`
	UserID           *uint64   `json:"user_id"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	NotificationType string    `json:"notification_type"`
	IsRead           bool      `json:"is_read"`
	IsGlobal         bool      `json:"is_global"`
	CreatedAt        time.Time `json:"created_at"`
}

// NotificationStats summarizes a viewer's inbox.
type NotificationStats struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}
