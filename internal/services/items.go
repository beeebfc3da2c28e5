package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/internal/mq"
	"github.com/sahana-project/ewaste-api/internal/storage"
	"github.com/sahana-project/ewaste-api/types"
)

// MaxImagesPerRequest bounds how many images one create or update may upload.
const MaxImagesPerRequest = 5

// ItemRepository defines persistence operations for item listings.
type ItemRepository interface {
	Get(ctx context.Context, id uuid.UUID) (types.ItemListing, error)
	List(ctx context.Context, filter types.ItemFilter) ([]types.ItemListing, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]types.ItemListing, error)
	ListBookedBy(ctx context.Context, collectorID uuid.UUID) ([]types.ItemListing, error)
	Create(ctx context.Context, item types.ItemListing) (types.ItemListing, error)
	// Update writes the editable fields. When from is set the status is reset
	// to item.Status only if the stored status still equals *from.
	Update(ctx context.Context, item types.ItemListing, from *types.ItemStatus) (types.ItemListing, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Book(ctx context.Context, id, collectorID uuid.UUID) (types.ItemListing, error)
	Collect(ctx context.Context, id, actorID uuid.UUID, at time.Time) (types.ItemListing, error)
}

// ItemInput holds the fields of a new item listing.
type ItemInput struct {
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Category    types.Category  `json:"category" validate:"omitempty,item_category"`
	Condition   types.Condition `json:"condition" validate:"omitempty,item_condition"`
	Quantity    int             `json:"quantity" validate:"omitempty,min=1"`
	Price       *float64        `json:"price" validate:"omitempty,finite,gte=0"`
	Location    string          `json:"location"`
}

// ItemPatch holds optional changes to an item listing. Empty strings and a
// zero quantity leave the stored value unchanged.
type ItemPatch struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Category    *types.Category   `json:"category" validate:"omitempty,item_category"`
	Condition   *types.Condition  `json:"condition" validate:"omitempty,item_condition"`
	Quantity    *int              `json:"quantity" validate:"omitempty,min=1"`
	Price       *float64          `json:"price" validate:"omitempty,finite,gte=0"`
	ClearPrice  bool              `json:"-"`
	Location    *string           `json:"location"`
	Status      *types.ItemStatus `json:"status" validate:"omitempty,oneof=cancelled"`
}

// ItemService implements item listing use-cases.
type ItemService struct {
	repo   ItemRepository
	images ImageStore
	emitter
}

func NewItemService(repo ItemRepository, images ImageStore, events EventPublisher, log *slog.Logger) *ItemService {
	return &ItemService{
		repo:    repo,
		images:  images,
		emitter: emitter{events: events, log: log, now: time.Now},
	}
}

// Create posts a new item owned by actor with the uploaded images.
func (s *ItemService) Create(ctx context.Context, actor types.Account, in ItemInput, uploads []storage.Upload) (types.ItemListing, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return types.ItemListing{}, err
	}
	if err := checkUploads(uploads); err != nil {
		return types.ItemListing{}, err
	}

	item := types.ItemListing{
		ID:          uuid.New(),
		OwnerID:     actor.ID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Condition:   in.Condition,
		Quantity:    in.Quantity,
		Price:       in.Price,
		Location:    strings.TrimSpace(in.Location),
		Status:      types.ItemPending,
	}
	if item.Category == "" {
		item.Category = types.CategoryOther
	}
	if item.Condition == "" {
		item.Condition = types.ConditionWorking
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}

	refs, err := s.images.Upload(ctx, "items/"+item.ID.String(), uploads)
	if err != nil {
		return types.ItemListing{}, uploadError("images", err)
	}
	item.Images = refs

	created, err := s.repo.Create(ctx, item)
	if err != nil {
		s.discard(ctx, s.images, refs)
		return types.ItemListing{}, fmt.Errorf("create item: %w", err)
	}
	s.emit(ctx, mq.ItemCreated, created.ID, actor.ID, string(created.Status))
	return created, nil
}

func (s *ItemService) ListMine(ctx context.Context, actor types.Account) ([]types.ItemListing, error) {
	return s.repo.ListByOwner(ctx, actor.ID)
}

// ListAll returns every item matching the equality filter.
func (s *ItemService) ListAll(ctx context.Context, filter types.ItemFilter) ([]types.ItemListing, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, NewValidationError("status", "is not a valid status")
	}
	return s.repo.List(ctx, filter)
}

func (s *ItemService) Get(ctx context.Context, id uuid.UUID) (types.ItemListing, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.ItemListing{}, notFound(err, ErrItemNotFound)
	}
	return item, nil
}

// Update edits an item as its owner or an admin. The image list becomes the
// kept references followed by the new uploads; anything not kept is dropped.
func (s *ItemService) Update(
	ctx context.Context,
	actor types.Account,
	id uuid.UUID,
	patch ItemPatch,
	keepImages []string,
	uploads []storage.Upload,
) (types.ItemListing, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return types.ItemListing{}, err
	}
	if !CanModify(actor, item.OwnerID, true) {
		return types.ItemListing{}, ErrForbidden
	}
	if err := validateStruct(patch); err != nil {
		return types.ItemListing{}, err
	}
	if err := checkUploads(uploads); err != nil {
		return types.ItemListing{}, err
	}

	applyItemPatch(&item, patch)
	var from *types.ItemStatus
	if patch.Status != nil {
		prev := item.Status
		from = &prev
		item.ResetStatus(*patch.Status)
	}

	refs, err := s.images.Upload(ctx, "items/"+item.ID.String(), uploads)
	if err != nil {
		return types.ItemListing{}, uploadError("images", err)
	}
	var dropped []string
	item.Images, dropped = reconcileImages(item.Images, keepImages, refs)

	updated, err := s.repo.Update(ctx, item, from)
	if err != nil {
		s.discard(ctx, s.images, refs)
		return types.ItemListing{}, notFound(err, ErrItemNotFound)
	}
	s.discard(ctx, s.images, dropped)
	s.emit(ctx, mq.ItemUpdated, updated.ID, actor.ID, string(updated.Status))
	return updated, nil
}

func applyItemPatch(item *types.ItemListing, patch ItemPatch) {
	if v := trimmed(patch.Title); v != "" {
		item.Title = v
	}
	if v := trimmed(patch.Description); v != "" {
		item.Description = v
	}
	if patch.Category != nil && *patch.Category != "" {
		item.Category = *patch.Category
	}
	if patch.Condition != nil && *patch.Condition != "" {
		item.Condition = *patch.Condition
	}
	if patch.Quantity != nil && *patch.Quantity > 0 {
		item.Quantity = *patch.Quantity
	}
	switch {
	case patch.ClearPrice:
		item.Price = nil
	case patch.Price != nil:
		item.Price = patch.Price
	}
	if patch.Location != nil {
		item.Location = strings.TrimSpace(*patch.Location)
	}
}

// Delete removes an item. Only the owner may delete, admins included, and a
// collected item is kept.
func (s *ItemService) Delete(ctx context.Context, actor types.Account, id uuid.UUID) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanModify(actor, item.OwnerID, false) {
		return ErrForbidden
	}
	if err := item.CheckDelete(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err, ErrItemNotFound)
	}
	s.discard(ctx, s.images, item.Images)
	s.emit(ctx, mq.ItemDeleted, id, actor.ID, "")
	return nil
}

// Book reserves a pending item for the collector.
func (s *ItemService) Book(ctx context.Context, actor types.Account, id uuid.UUID) (types.ItemListing, error) {
	if err := requireRole(actor, types.RoleCollector); err != nil {
		return types.ItemListing{}, err
	}
	item, err := s.repo.Book(ctx, id, actor.ID)
	if err != nil {
		return types.ItemListing{}, notFound(err, ErrItemNotFound)
	}
	s.emit(ctx, mq.ItemBooked, item.ID, actor.ID, string(item.Status))
	return item, nil
}

// Collect marks an item collected from any state but collected.
func (s *ItemService) Collect(ctx context.Context, actor types.Account, id uuid.UUID) (types.ItemListing, error) {
	if err := requireRole(actor, types.RoleCollector, types.RoleAdmin); err != nil {
		return types.ItemListing{}, err
	}
	item, err := s.repo.Collect(ctx, id, actor.ID, s.now())
	if err != nil {
		return types.ItemListing{}, notFound(err, ErrItemNotFound)
	}
	s.emit(ctx, mq.ItemCollected, item.ID, actor.ID, string(item.Status))
	return item, nil
}

// ListBookedByMe returns the items the collector booked.
func (s *ItemService) ListBookedByMe(ctx context.Context, actor types.Account) ([]types.ItemListing, error) {
	if err := requireRole(actor, types.RoleCollector); err != nil {
		return nil, err
	}
	return s.repo.ListBookedBy(ctx, actor.ID)
}

func checkUploads(uploads []storage.Upload) error {
	if len(uploads) > MaxImagesPerRequest {
		return NewValidationError("images", fmt.Sprintf("must be at most %d files", MaxImagesPerRequest))
	}
	if err := storage.ValidateImages(uploads); err != nil {
		return uploadError("images", err)
	}
	return nil
}

// reconcileImages builds the final image list from the references the client
// kept plus new uploads. Kept references not present on the listing are
// ignored. dropped lists the current references that were not kept.
func reconcileImages(current, keep, uploaded []string) (final, dropped []string) {
	existing := make(map[string]bool, len(current))
	for _, ref := range current {
		existing[ref] = true
	}

	kept := make(map[string]bool, len(keep))
	final = make([]string, 0, len(keep)+len(uploaded))
	for _, ref := range keep {
		if existing[ref] && !kept[ref] {
			kept[ref] = true
			final = append(final, ref)
		}
	}
	final = append(final, uploaded...)

	for _, ref := range current {
		if !kept[ref] {
			dropped = append(dropped, ref)
		}
	}
	return final, dropped
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
