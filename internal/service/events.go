package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/metrics"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/queue"
)

// EventPublisher emits moderation audit events. Publishing is best effort:
// failures are logged and never surface to the request.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ModerationEvent)
}

// NopPublisher drops every event. Used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.ModerationEvent) {}

// AMQPPublisher dials the broker per publish and writes a persistent message
// to the moderation queue.
type AMQPPublisher struct {
	URL string
	Log zerolog.Logger
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.ModerationEvent) {
	if ev.OccurredAt == "" {
		ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}
	err := p.publish(ctx, ev)
	metrics.IncEvent(ev.Type, err == nil)
	if err != nil {
		p.Log.Warn().Err(err).Str("event", ev.Type).Uint64("entity_id", ev.EntityID).Msg("rabbitmq: publish failed")
	}
}

func (p *AMQPPublisher) publish(ctx context.Context, ev queue.ModerationEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// durable so audit entries survive broker restarts
	if _, err := ch.QueueDeclare(queue.ModerationQueue, true, false, false, false, nil); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", queue.ModerationQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// PlaceEvent builds the audit event for a place transition.
func PlaceEvent(typ string, kind model.PlaceKind, p model.Place, actorID uint64, admin bool) queue.ModerationEvent {
	return queue.ModerationEvent{
		Type:       typ,
		Kind:       kind.Slug,
		EntityID:   p.ID,
		Name:       p.Name,
		Status:     string(p.Status),
		ActorID:    actorID,
		ActorAdmin: admin,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// TicketEvent builds the audit event for a newly opened support ticket.
func TicketEvent(t model.SupportTicket) queue.ModerationEvent {
	return queue.ModerationEvent{
		Type:       queue.EventTicketOpened,
		EntityID:   t.ID,
		Name:       t.Subject,
		Status:     string(t.Status),
		ActorID:    t.UserID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
