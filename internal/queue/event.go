// Package queue defines message payloads exchanged over the message broker.
package queue

// ModerationQueue is the durable queue carrying moderation audit events.
const ModerationQueue = "moderation.events"

// Moderation event types.
const (
	EventPlaceSubmitted = "place.submitted"
	EventPlaceApproved  = "place.approved"
	EventPlaceRejected  = "place.rejected"
	EventTicketOpened   = "support.ticket_opened"
)

// ModerationEvent is published whenever a place changes moderation state or
// a support ticket is opened. It carries enough context for the audit log
// without querying the primary database.
type ModerationEvent struct {
	Type       string `json:"type"`
	Kind       string `json:"kind,omitempty"` // place family slug, empty for tickets
	EntityID   uint64 `json:"entity_id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status,omitempty"`
	ActorID    uint64 `json:"actor_id"`
	ActorAdmin bool   `json:"actor_admin"`
	OccurredAt string `json:"occurred_at"`
}
