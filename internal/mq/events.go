package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attribute keys set on every listing event message.
const (
	AttrKind      = "kind"
	AttrListingID = "listing_id"
)

// EventKind names a listing lifecycle change.
type EventKind string

const (
	ItemCreated   EventKind = "item.created"
	ItemUpdated   EventKind = "item.updated"
	ItemDeleted   EventKind = "item.deleted"
	ItemBooked    EventKind = "item.booked"
	ItemCollected EventKind = "item.collected"

	BulkCreated EventKind = "bulk.created"
	BulkUpdated EventKind = "bulk.updated"
	BulkDeleted EventKind = "bulk.deleted"
	BulkSold    EventKind = "bulk.sold"
)

// ListingEvent records that an actor changed a listing.
type ListingEvent struct {
	Kind       EventKind `json:"kind"`
	ListingID  uuid.UUID `json:"listingId"`
	ActorID    uuid.UUID `json:"actorId"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventPublisher encodes listing events onto a single channel.
type EventPublisher struct {
	mq      *MQ
	channel string
}

// NewEventPublisher returns a publisher writing to channel through m.
func NewEventPublisher(m *MQ, channel string) *EventPublisher {
	return &EventPublisher{mq: m, channel: channel}
}

// PublishListingEvent sends ev. OccurredAt defaults to now.
func (p *EventPublisher) PublishListingEvent(ctx context.Context, ev ListingEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode listing event: %w", err)
	}
	attrs := map[string]string{
		AttrKind:      string(ev.Kind),
		AttrListingID: ev.ListingID.String(),
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// DecodeListingEvent parses a message produced by PublishListingEvent.
func DecodeListingEvent(msg Message) (ListingEvent, error) {
	var ev ListingEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return ListingEvent{}, fmt.Errorf("decode listing event %s: %w", msg.ID, err)
	}
	if ev.Kind == "" || ev.ListingID == uuid.Nil {
		return ListingEvent{}, fmt.Errorf("decode listing event %s: missing kind or listing id", msg.ID)
	}
	return ev, nil
}

// TailListingEvents subscribes to channel and hands every decoded event to fn.
// Undecodable messages are passed to onInvalid and acknowledged, so a bad
// payload is never redelivered forever.
func TailListingEvents(ctx context.Context, m *MQ, channel string, fn func(ListingEvent) error, onInvalid func(Message, error)) error {
	return m.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		ev, err := DecodeListingEvent(msg)
		if err != nil {
			if onInvalid != nil {
				onInvalid(msg, err)
			}
			return nil
		}
		return fn(ev)
	})
}
