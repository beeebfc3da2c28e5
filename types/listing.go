package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category classifies the kind of e-waste in a listing.
type Category string

// Supported categories. CategoryMixed is only valid for bulk listings.
const (
	CategoryElectronics   Category = "Electronics"
	CategoryAppliances    Category = "Appliances"
	CategoryComputers     Category = "Computers"
	CategoryMobileDevices Category = "Mobile Devices"
	CategoryBatteries     Category = "Batteries"
	CategoryMixed         Category = "Mixed"
	CategoryOther         Category = "Other"
)

// ValidForItem reports whether c may be used on an item listing.
func (c Category) ValidForItem() bool {
	switch c {
	case CategoryElectronics, CategoryAppliances, CategoryComputers,
		CategoryMobileDevices, CategoryBatteries, CategoryOther:
		return true
	default:
		return false
	}
}

// ValidForBulk reports whether c may be used on a bulk listing.
func (c Category) ValidForBulk() bool {
	return c == CategoryMixed || c.ValidForItem()
}

// Condition describes the working state of the e-waste.
type Condition string

// Supported conditions. ConditionMixed is only valid for bulk listings.
const (
	ConditionWorking    Condition = "working"
	ConditionNotWorking Condition = "not working"
	ConditionDamaged    Condition = "damaged"
	ConditionMixed      Condition = "mixed"
)

// ValidForItem reports whether c may be used on an item listing.
func (c Condition) ValidForItem() bool {
	switch c {
	case ConditionWorking, ConditionNotWorking, ConditionDamaged:
		return true
	default:
		return false
	}
}

// ValidForBulk reports whether c may be used on a bulk listing.
func (c Condition) ValidForBulk() bool {
	return c == ConditionMixed || c.ValidForItem()
}

// ItemStatus is the lifecycle state of an item listing.
type ItemStatus string

// Item listing states. A new listing starts out pending.
const (
	ItemPending   ItemStatus = "pending"
	ItemBooked    ItemStatus = "booked"
	ItemCollected ItemStatus = "collected"
	ItemCancelled ItemStatus = "cancelled"
)

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemBooked, ItemCollected, ItemCancelled:
		return true
	default:
		return false
	}
}

// Transition errors shared by item and bulk listings.
var (
	ErrNotBookable      = errors.New("item is not available for booking")
	ErrAlreadyCollected = errors.New("item already collected")
	ErrAlreadySold      = errors.New("bulk listing already sold")
	ErrStateChanged     = errors.New("listing changed concurrently, please retry")
)

// ItemListing is a single e-waste item posted by its owner for collection.
type ItemListing struct {
	// ID is the unique identifier of the listing.
	ID uuid.UUID `json:"id"`

	// OwnerID identifies the account that posted the item.
	OwnerID uuid.UUID `json:"ownerId"`

	// Owner is the owner's contact card, resolved at read time.
	Owner *AccountSummary `json:"owner,omitempty"`

	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Condition   Condition `json:"condition"`

	// Quantity is the number of identical units, at least 1.
	Quantity int `json:"quantity"`

	// Price is the optional asking price. Nil means free or negotiable.
	Price *float64 `json:"price"`

	Location string `json:"location"`

	// Images holds blob references in display order.
	Images []string `json:"images"`

	Status ItemStatus `json:"status"`

	// BookedBy is the collector that booked the item. Set once booked.
	BookedBy *uuid.UUID      `json:"bookedBy,omitempty"`
	Booker   *AccountSummary `json:"booker,omitempty"`

	// CollectedBy and CollectedAt are set when the item is collected.
	CollectedBy *uuid.UUID      `json:"collectedBy,omitempty"`
	Collector   *AccountSummary `json:"collector,omitempty"`
	CollectedAt *time.Time      `json:"collectedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckBook returns ErrNotBookable unless the item is still pending.
func (l ItemListing) CheckBook() error {
	if l.Status != ItemPending {
		return ErrNotBookable
	}
	return nil
}

// CheckCollect returns ErrAlreadyCollected for collected items. Collection is
// allowed from every other state, including pending and cancelled.
func (l ItemListing) CheckCollect() error {
	if l.Status == ItemCollected {
		return ErrAlreadyCollected
	}
	return nil
}

// CheckDelete returns ErrAlreadyCollected once the item has been collected.
func (l ItemListing) CheckDelete() error {
	return l.CheckCollect()
}

// ResetStatus moves the item to status through a plain edit and
// drops booking and collection records that no longer apply.
func (l *ItemListing) ResetStatus(status ItemStatus) {
	l.Status = status
	l.BookedBy = nil
	l.Booker = nil
	l.CollectedBy = nil
	l.Collector = nil
	l.CollectedAt = nil
}

// ItemFilter holds optional equality filters for listing items.
type ItemFilter struct {
	Status    ItemStatus
	Condition Condition
	Category  Category
}
