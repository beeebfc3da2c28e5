// Package testutil provides in-memory stand-ins for the postgres repositories,
// object storage and the event bus.
package testutil

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/internal/store"
	"github.com/sahana-project/ewaste-api/types"
)

// clock hands out strictly increasing timestamps so orderings are stable.
type clock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Accounts is an in-memory AccountRepository.
type Accounts struct {
	mu    sync.Mutex
	clock clock
	byID  map[uuid.UUID]types.Account
}

func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[uuid.UUID]types.Account)}
}

func (a *Accounts) GetByID(_ context.Context, id uuid.UUID) (types.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	account, ok := a.byID[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (a *Accounts) GetByEmail(_ context.Context, email string) (types.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, account := range a.byID {
		if account.Email == email {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (a *Accounts) Create(_ context.Context, account types.Account) (types.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.byID {
		if existing.Email == account.Email {
			return types.Account{}, store.ErrEmailExists
		}
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := a.clock.now()
	account.CreatedAt = now
	account.UpdatedAt = now
	a.byID[account.ID] = account
	return account, nil
}

func (a *Accounts) Update(_ context.Context, account types.Account) (types.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored, ok := a.byID[account.ID]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	stored.Name = account.Name
	stored.Phone = account.Phone
	stored.Address = account.Address
	stored.OrganizationName = account.OrganizationName
	stored.IsActive = account.IsActive
	stored.ProfilePicture = account.ProfilePicture
	stored.UpdatedAt = a.clock.now()
	a.byID[account.ID] = stored
	return stored, nil
}

// Put stores account as-is, for seeding fixtures.
func (a *Accounts) Put(account types.Account) types.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	a.byID[account.ID] = account
	return account
}

// Items is an in-memory ItemRepository with the same conditional-write
// semantics as the postgres one.
type Items struct {
	mu    sync.Mutex
	clock clock
	byID  map[uuid.UUID]types.ItemListing
}

func NewItems() *Items {
	return &Items{byID: make(map[uuid.UUID]types.ItemListing)}
}

func (r *Items) Get(_ context.Context, id uuid.UUID) (types.ItemListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.byID[id]
	if !ok {
		return types.ItemListing{}, store.ErrNotFound
	}
	return item, nil
}

func (r *Items) filter(keep func(types.ItemListing) bool, less func(a, b types.ItemListing) bool) []types.ItemListing {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ItemListing, 0)
	for _, item := range r.byID {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func newestItemFirst(a, b types.ItemListing) bool { return a.CreatedAt.After(b.CreatedAt) }

func (r *Items) List(_ context.Context, f types.ItemFilter) ([]types.ItemListing, error) {
	return r.filter(func(item types.ItemListing) bool {
		return (f.Status == "" || item.Status == f.Status) &&
			(f.Condition == "" || item.Condition == f.Condition) &&
			(f.Category == "" || item.Category == f.Category)
	}, newestItemFirst), nil
}

func (r *Items) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]types.ItemListing, error) {
	return r.filter(func(item types.ItemListing) bool { return item.OwnerID == ownerID }, newestItemFirst), nil
}

func (r *Items) ListBookedBy(_ context.Context, collectorID uuid.UUID) ([]types.ItemListing, error) {
	return r.filter(func(item types.ItemListing) bool {
		return item.BookedBy != nil && *item.BookedBy == collectorID
	}, func(a, b types.ItemListing) bool { return a.UpdatedAt.After(b.UpdatedAt) }), nil
}

func (r *Items) Create(_ context.Context, item types.ItemListing) (types.ItemListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := r.clock.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Images = slices.Clone(item.Images)
	r.byID[item.ID] = item
	return item, nil
}

func (r *Items) Update(_ context.Context, item types.ItemListing, from *types.ItemStatus) (types.ItemListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[item.ID]
	if !ok {
		return types.ItemListing{}, store.ErrNotFound
	}
	if from != nil && stored.Status != *from {
		return types.ItemListing{}, types.ErrStateChanged
	}
	stored.Title = item.Title
	stored.Description = item.Description
	stored.Category = item.Category
	stored.Condition = item.Condition
	stored.Quantity = item.Quantity
	stored.Price = item.Price
	stored.Location = item.Location
	stored.Images = slices.Clone(item.Images)
	if from != nil {
		stored.ResetStatus(item.Status)
	}
	stored.UpdatedAt = r.clock.now()
	r.byID[item.ID] = stored
	return stored, nil
}

func (r *Items) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := item.CheckDelete(); err != nil {
		return err
	}
	delete(r.byID, id)
	return nil
}

func (r *Items) transition(id uuid.UUID, apply func(*types.ItemListing) error) (types.ItemListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.byID[id]
	if !ok {
		return types.ItemListing{}, store.ErrNotFound
	}
	if err := apply(&item); err != nil {
		return types.ItemListing{}, err
	}
	item.UpdatedAt = r.clock.now()
	r.byID[id] = item
	return item, nil
}

func (r *Items) Book(_ context.Context, id, collectorID uuid.UUID) (types.ItemListing, error) {
	return r.transition(id, func(item *types.ItemListing) error {
		if err := item.CheckBook(); err != nil {
			return err
		}
		item.Status = types.ItemBooked
		item.BookedBy = &collectorID
		return nil
	})
}

func (r *Items) Collect(_ context.Context, id, actorID uuid.UUID, at time.Time) (types.ItemListing, error) {
	return r.transition(id, func(item *types.ItemListing) error {
		if err := item.CheckCollect(); err != nil {
			return err
		}
		item.Status = types.ItemCollected
		item.CollectedBy = &actorID
		item.CollectedAt = &at
		return nil
	})
}

// Bulk is an in-memory BulkRepository.
type Bulk struct {
	mu    sync.Mutex
	clock clock
	byID  map[uuid.UUID]types.BulkListing
}

func NewBulk() *Bulk {
	return &Bulk{byID: make(map[uuid.UUID]types.BulkListing)}
}

func (r *Bulk) Get(_ context.Context, id uuid.UUID) (types.BulkListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot, ok := r.byID[id]
	if !ok {
		return types.BulkListing{}, store.ErrNotFound
	}
	return lot, nil
}

func (r *Bulk) filter(keep func(types.BulkListing) bool, less func(a, b types.BulkListing) bool) []types.BulkListing {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.BulkListing, 0)
	for _, lot := range r.byID {
		if keep(lot) {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func newestLotFirst(a, b types.BulkListing) bool { return a.CreatedAt.After(b.CreatedAt) }

func (r *Bulk) List(_ context.Context, f types.BulkFilter) ([]types.BulkListing, error) {
	return r.filter(func(lot types.BulkListing) bool {
		return (f.Status == "" || lot.Status == f.Status) &&
			(f.Condition == "" || lot.Condition == f.Condition) &&
			(f.Category == "" || lot.Category == f.Category)
	}, newestLotFirst), nil
}

func (r *Bulk) ListByCollector(_ context.Context, collectorID uuid.UUID) ([]types.BulkListing, error) {
	return r.filter(func(lot types.BulkListing) bool { return lot.CollectorID == collectorID }, newestLotFirst), nil
}

func (r *Bulk) ListSoldTo(_ context.Context, buyerID uuid.UUID) ([]types.BulkListing, error) {
	return r.filter(func(lot types.BulkListing) bool {
		return lot.SoldTo != nil && *lot.SoldTo == buyerID
	}, func(a, b types.BulkListing) bool { return a.SoldAt.After(*b.SoldAt) }), nil
}

func (r *Bulk) Create(_ context.Context, lot types.BulkListing) (types.BulkListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	now := r.clock.now()
	lot.CreatedAt = now
	lot.UpdatedAt = now
	lot.Images = slices.Clone(lot.Images)
	lot.Reprice()
	r.byID[lot.ID] = lot
	return lot, nil
}

func (r *Bulk) Update(_ context.Context, lot types.BulkListing) (types.BulkListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[lot.ID]
	if !ok {
		return types.BulkListing{}, store.ErrNotFound
	}
	if err := stored.CheckSell(); err != nil {
		return types.BulkListing{}, err
	}
	lot.Reprice()
	lot.Images = slices.Clone(lot.Images)
	lot.SoldTo, lot.SoldAt = nil, nil
	lot.CreatedAt = stored.CreatedAt
	lot.UpdatedAt = r.clock.now()
	r.byID[lot.ID] = lot
	return lot, nil
}

func (r *Bulk) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := lot.CheckSell(); err != nil {
		return err
	}
	delete(r.byID, id)
	return nil
}

func (r *Bulk) MarkSold(_ context.Context, id, buyerID uuid.UUID, at time.Time) (types.BulkListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot, ok := r.byID[id]
	if !ok {
		return types.BulkListing{}, store.ErrNotFound
	}
	if err := lot.CheckSell(); err != nil {
		return types.BulkListing{}, err
	}
	lot.Status = types.BulkSold
	lot.SoldTo = &buyerID
	lot.SoldAt = &at
	lot.UpdatedAt = r.clock.now()
	r.byID[id] = lot
	return lot, nil
}
