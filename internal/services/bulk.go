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

// BulkRepository defines persistence operations for bulk listings.
type BulkRepository interface {
	Get(ctx context.Context, id uuid.UUID) (types.BulkListing, error)
	List(ctx context.Context, filter types.BulkFilter) ([]types.BulkListing, error)
	ListByCollector(ctx context.Context, collectorID uuid.UUID) ([]types.BulkListing, error)
	ListSoldTo(ctx context.Context, buyerID uuid.UUID) ([]types.BulkListing, error)
	Create(ctx context.Context, lot types.BulkListing) (types.BulkListing, error)
	Update(ctx context.Context, lot types.BulkListing) (types.BulkListing, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkSold(ctx context.Context, id, buyerID uuid.UUID, at time.Time) (types.BulkListing, error)
}

// BulkInput holds the fields of a new bulk listing.
type BulkInput struct {
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Category    types.Category  `json:"category" validate:"omitempty,bulk_category"`
	Condition   types.Condition `json:"condition" validate:"omitempty,bulk_condition"`
	WeightInKg  float64         `json:"weightInKg" validate:"required,finite,gte=0.1"`
	PricePerKg  *float64        `json:"pricePerKg" validate:"omitempty,finite,gte=0"`
	Location    string          `json:"location"`
}

// BulkPatch holds optional changes to a bulk listing. Setting the status to
// sold is reserved for MarkSold.
type BulkPatch struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Category    *types.Category   `json:"category" validate:"omitempty,bulk_category"`
	Condition   *types.Condition  `json:"condition" validate:"omitempty,bulk_condition"`
	WeightInKg  *float64          `json:"weightInKg" validate:"omitempty,finite,gte=0.1"`
	PricePerKg  *float64          `json:"pricePerKg" validate:"omitempty,finite,gte=0"`
	ClearPrice  bool              `json:"-"`
	Location    *string           `json:"location"`
	Status      *types.BulkStatus `json:"status" validate:"omitempty,oneof=available reserved"`
}

// BulkService implements bulk listing use-cases.
type BulkService struct {
	repo   BulkRepository
	images ImageStore
	emitter
}

func NewBulkService(repo BulkRepository, images ImageStore, events EventPublisher, log *slog.Logger) *BulkService {
	return &BulkService{
		repo:    repo,
		images:  images,
		emitter: emitter{events: events, log: log, now: time.Now},
	}
}

// Create posts a new lot. Only collectors may sell in bulk.
func (s *BulkService) Create(ctx context.Context, actor types.Account, in BulkInput, uploads []storage.Upload) (types.BulkListing, error) {
	if err := requireRole(actor, types.RoleCollector); err != nil {
		return types.BulkListing{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return types.BulkListing{}, err
	}
	if err := checkUploads(uploads); err != nil {
		return types.BulkListing{}, err
	}

	lot := types.BulkListing{
		ID:          uuid.New(),
		CollectorID: actor.ID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Condition:   in.Condition,
		WeightInKg:  in.WeightInKg,
		PricePerKg:  in.PricePerKg,
		Location:    strings.TrimSpace(in.Location),
		Status:      types.BulkAvailable,
	}
	if lot.Category == "" {
		lot.Category = types.CategoryMixed
	}
	if lot.Condition == "" {
		lot.Condition = types.ConditionMixed
	}
	lot.Reprice()

	refs, err := s.images.Upload(ctx, "bulk/"+lot.ID.String(), uploads)
	if err != nil {
		return types.BulkListing{}, uploadError("images", err)
	}
	lot.Images = refs

	created, err := s.repo.Create(ctx, lot)
	if err != nil {
		s.discard(ctx, s.images, refs)
		return types.BulkListing{}, fmt.Errorf("create bulk listing: %w", err)
	}
	s.emit(ctx, mq.BulkCreated, created.ID, actor.ID, string(created.Status))
	return created, nil
}

// ListMine returns the lots posted by the collector.
func (s *BulkService) ListMine(ctx context.Context, actor types.Account) ([]types.BulkListing, error) {
	if err := requireRole(actor, types.RoleCollector); err != nil {
		return nil, err
	}
	return s.repo.ListByCollector(ctx, actor.ID)
}

func (s *BulkService) ListAll(ctx context.Context, filter types.BulkFilter) ([]types.BulkListing, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, NewValidationError("status", "is not a valid status")
	}
	return s.repo.List(ctx, filter)
}

func (s *BulkService) Get(ctx context.Context, id uuid.UUID) (types.BulkListing, error) {
	lot, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.BulkListing{}, notFound(err, ErrBulkNotFound)
	}
	return lot, nil
}

// ownedUnsold loads a lot the actor posted and that has not been sold.
func (s *BulkService) ownedUnsold(ctx context.Context, actor types.Account, id uuid.UUID) (types.BulkListing, error) {
	lot, err := s.Get(ctx, id)
	if err != nil {
		return types.BulkListing{}, err
	}
	if actor.Role != types.RoleCollector || !CanModify(actor, lot.CollectorID, false) {
		return types.BulkListing{}, ErrForbidden
	}
	if err := lot.CheckSell(); err != nil {
		return types.BulkListing{}, err
	}
	return lot, nil
}

// Update edits a lot as its collector. The total price is recomputed and the
// image list follows the same keep-plus-uploads rule as items.
func (s *BulkService) Update(
	ctx context.Context,
	actor types.Account,
	id uuid.UUID,
	patch BulkPatch,
	keepImages []string,
	uploads []storage.Upload,
) (types.BulkListing, error) {
	lot, err := s.ownedUnsold(ctx, actor, id)
	if err != nil {
		return types.BulkListing{}, err
	}
	if err := validateStruct(patch); err != nil {
		return types.BulkListing{}, err
	}
	if err := checkUploads(uploads); err != nil {
		return types.BulkListing{}, err
	}

	applyBulkPatch(&lot, patch)
	lot.Reprice()

	refs, err := s.images.Upload(ctx, "bulk/"+lot.ID.String(), uploads)
	if err != nil {
		return types.BulkListing{}, uploadError("images", err)
	}
	var dropped []string
	lot.Images, dropped = reconcileImages(lot.Images, keepImages, refs)

	updated, err := s.repo.Update(ctx, lot)
	if err != nil {
		s.discard(ctx, s.images, refs)
		return types.BulkListing{}, notFound(err, ErrBulkNotFound)
	}
	s.discard(ctx, s.images, dropped)
	s.emit(ctx, mq.BulkUpdated, updated.ID, actor.ID, string(updated.Status))
	return updated, nil
}

func applyBulkPatch(lot *types.BulkListing, patch BulkPatch) {
	if v := trimmed(patch.Title); v != "" {
		lot.Title = v
	}
	if v := trimmed(patch.Description); v != "" {
		lot.Description = v
	}
	if patch.Category != nil && *patch.Category != "" {
		lot.Category = *patch.Category
	}
	if patch.Condition != nil && *patch.Condition != "" {
		lot.Condition = *patch.Condition
	}
	if patch.WeightInKg != nil && *patch.WeightInKg > 0 {
		lot.WeightInKg = *patch.WeightInKg
	}
	switch {
	case patch.ClearPrice:
		lot.PricePerKg = nil
	case patch.PricePerKg != nil:
		lot.PricePerKg = patch.PricePerKg
	}
	if v := trimmed(patch.Location); v != "" {
		lot.Location = v
	}
	if patch.Status != nil && *patch.Status != "" {
		lot.Status = *patch.Status
	}
}

// Delete removes an unsold lot as its collector.
func (s *BulkService) Delete(ctx context.Context, actor types.Account, id uuid.UUID) error {
	lot, err := s.ownedUnsold(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err, ErrBulkNotFound)
	}
	s.discard(ctx, s.images, lot.Images)
	s.emit(ctx, mq.BulkDeleted, id, actor.ID, "")
	return nil
}

// MarkSold sells a lot to the acting organization or admin. A lot is sold at
// most once.
func (s *BulkService) MarkSold(ctx context.Context, actor types.Account, id uuid.UUID) (types.BulkListing, error) {
	if err := requireRole(actor, types.RoleOrganization, types.RoleAdmin); err != nil {
		return types.BulkListing{}, err
	}
	lot, err := s.repo.MarkSold(ctx, id, actor.ID, s.now())
	if err != nil {
		return types.BulkListing{}, notFound(err, ErrBulkNotFound)
	}
	s.emit(ctx, mq.BulkSold, lot.ID, actor.ID, string(lot.Status))
	return lot, nil
}

// ListBoughtByMe returns the lots the organization bought.
func (s *BulkService) ListBoughtByMe(ctx context.Context, actor types.Account) ([]types.BulkListing, error) {
	if err := requireRole(actor, types.RoleOrganization); err != nil {
		return nil, err
	}
	return s.repo.ListSoldTo(ctx, actor.ID)
}
