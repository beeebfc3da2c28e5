package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/internal/mq"
	"github.com/sahana-project/ewaste-api/internal/storage"
)

// EventPublisher emits listing lifecycle events.
type EventPublisher interface {
	PublishListingEvent(ctx context.Context, ev mq.ListingEvent) error
}

// ImageStore turns uploads into references and removes stored images.
type ImageStore interface {
	Upload(ctx context.Context, prefix string, uploads []storage.Upload) ([]string, error)
	Remove(ctx context.Context, refs []string) error
}

// emitter publishes events after a change has been committed. Failures are
// logged and never reach the caller.
type emitter struct {
	events EventPublisher
	log    *slog.Logger
	now    func() time.Time
}

func (e emitter) emit(ctx context.Context, kind mq.EventKind, listingID, actorID uuid.UUID, status string) {
	if e.events == nil {
		return
	}
	err := e.events.PublishListingEvent(ctx, mq.ListingEvent{
		Kind:       kind,
		ListingID:  listingID,
		ActorID:    actorID,
		Status:     status,
		OccurredAt: e.now().UTC(),
	})
	if err != nil {
		e.log.WarnContext(ctx, "failed to publish listing event",
			"kind", kind,
			"listing_id", listingID,
			"error", err)
	}
}

// discard removes images that are no longer referenced. Failures only leave
// orphaned objects behind, so they are logged.
func (e emitter) discard(ctx context.Context, images ImageStore, refs []string) {
	if len(refs) == 0 {
		return
	}
	if err := images.Remove(ctx, refs); err != nil {
		e.log.WarnContext(ctx, "failed to remove images", "count", len(refs), "error", err)
	}
}
