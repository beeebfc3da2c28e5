package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBackend delivers published messages to Subscribe in order.
type memoryBackend struct {
	published []Message
	channels  []string
	failWith  error
}

func (m *memoryBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if m.failWith != nil {
		return "", m.failWith
	}
	id := uuid.NewString()
	m.channels = append(m.channels, channel)
	m.published = append(m.published, Message{ID: id, Data: data, Attributes: attrs})
	return id, nil
}

func (m *memoryBackend) Subscribe(ctx context.Context, _ string, handler Handler) error {
	for _, msg := range m.published {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryBackend) Close() error { return nil }

func TestPublishListingEvent(t *testing.T) {
	backend := &memoryBackend{}
	publisher := NewEventPublisher(New(backend), "listing-events")

	listingID := uuid.New()
	actorID := uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := publisher.PublishListingEvent(context.Background(), ListingEvent{
		Kind:       BulkSold,
		ListingID:  listingID,
		ActorID:    actorID,
		Status:     "sold",
		OccurredAt: at,
	})
	require.NoError(t, err)

	require.Len(t, backend.published, 1)
	assert.Equal(t, "listing-events", backend.channels[0])
	msg := backend.published[0]
	assert.Equal(t, string(BulkSold), msg.Attributes[AttrKind])
	assert.Equal(t, listingID.String(), msg.Attributes[AttrListingID])

	ev, err := DecodeListingEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, actorID, ev.ActorID)
	assert.Equal(t, "sold", ev.Status)
	assert.True(t, at.Equal(ev.OccurredAt))
}

func TestPublishListingEventDefaultsTimestamp(t *testing.T) {
	backend := &memoryBackend{}
	publisher := NewEventPublisher(New(backend), "events")

	require.NoError(t, publisher.PublishListingEvent(context.Background(), ListingEvent{
		Kind:      ItemCreated,
		ListingID: uuid.New(),
	}))
	ev, err := DecodeListingEvent(backend.published[0])
	require.NoError(t, err)
	assert.False(t, ev.OccurredAt.IsZero())
}

func TestPublishListingEventBackendError(t *testing.T) {
	backend := &memoryBackend{failWith: errors.New("broker down")}
	publisher := NewEventPublisher(New(backend), "events")

	err := publisher.PublishListingEvent(context.Background(), ListingEvent{Kind: ItemBooked, ListingID: uuid.New()})
	assert.ErrorContains(t, err, "broker down")
}

func TestDecodeListingEventRejectsGarbage(t *testing.T) {
	_, err := DecodeListingEvent(Message{ID: "1", Data: []byte("{")})
	assert.Error(t, err)

	_, err = DecodeListingEvent(Message{ID: "2", Data: []byte(`{"kind":"item.created"}`)})
	assert.Error(t, err)
}

func TestTailListingEventsSkipsInvalid(t *testing.T) {
	backend := &memoryBackend{}
	m := New(backend)
	publisher := NewEventPublisher(m, "events")
	require.NoError(t, publisher.PublishListingEvent(context.Background(), ListingEvent{Kind: ItemCreated, ListingID: uuid.New()}))
	backend.published = append(backend.published, Message{ID: "bad", Data: []byte("nope")})
	require.NoError(t, publisher.PublishListingEvent(context.Background(), ListingEvent{Kind: ItemBooked, ListingID: uuid.New()}))

	var kinds []EventKind
	var invalid []string
	err := TailListingEvents(context.Background(), m, "events", func(ev ListingEvent) error {
		kinds = append(kinds, ev.Kind)
		return nil
	}, func(msg Message, _ error) {
		invalid = append(invalid, msg.ID)
	})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{ItemCreated, ItemBooked}, kinds)
	assert.Equal(t, []string{"bad"}, invalid)
}

func TestNoopBackend(t *testing.T) {
	m := New(noopBackend{})
	id, err := m.Publish(context.Background(), "events", []byte("x"), nil)
	assert.NoError(t, err)
	assert.Empty(t, id)
	assert.ErrorIs(t, m.Subscribe(context.Background(), "events", nil), ErrNoBackend)
	assert.NoError(t, m.Close())
}
