package types

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BulkStatus is the lifecycle state of a bulk listing.
type BulkStatus string

// Bulk listing states. A new listing starts out available.
const (
	BulkAvailable BulkStatus = "available"
	BulkReserved  BulkStatus = "reserved"
	BulkSold      BulkStatus = "sold"
)

// Valid reports whether s is a known bulk status.
func (s BulkStatus) Valid() bool {
	switch s {
	case BulkAvailable, BulkReserved, BulkSold:
		return true
	default:
		return false
	}
}

// BulkListing is a lot of e-waste offered by a collector and sold by weight.
type BulkListing struct {
	// ID is the unique identifier of the listing.
	ID uuid.UUID `json:"id"`

	// CollectorID identifies the collector that posted the lot.
	CollectorID uuid.UUID       `json:"collectorId"`
	Collector   *AccountSummary `json:"collector,omitempty"`

	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Condition   Condition `json:"condition"`

	// WeightInKg is the total weight of the lot, always positive.
	WeightInKg float64 `json:"weightInKg"`

	// PricePerKg is the optional unit price.
	PricePerKg *float64 `json:"pricePerKg"`

	// TotalPrice is derived from WeightInKg and PricePerKg; see Reprice.
	TotalPrice *float64 `json:"totalPrice"`

	Images   []string `json:"images"`
	Location string   `json:"location"`

	Status BulkStatus `json:"status"`

	// SoldTo and SoldAt record the purchase. Set only once sold.
	SoldTo *uuid.UUID      `json:"soldTo,omitempty"`
	Buyer  *AccountSummary `json:"buyer,omitempty"`
	SoldAt *time.Time      `json:"soldAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TotalPrice returns weight times unit price rounded to cents, or nil when no
// unit price is set or the product is not a finite number.
func TotalPrice(weightInKg float64, pricePerKg *float64) *float64 {
	if pricePerKg == nil || !finite(weightInKg) || !finite(*pricePerKg) {
		return nil
	}
	total := decimal.NewFromFloat(weightInKg).
		Mul(decimal.NewFromFloat(*pricePerKg)).
		Round(2).
		InexactFloat64()
	if !finite(total) {
		return nil
	}
	return &total
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Reprice recomputes TotalPrice from the current weight and unit price.
func (l *BulkListing) Reprice() {
	l.TotalPrice = TotalPrice(l.WeightInKg, l.PricePerKg)
}

// CheckSell returns ErrAlreadySold once the lot has been sold.
func (l BulkListing) CheckSell() error {
	if l.Status == BulkSold {
		return ErrAlreadySold
	}
	return nil
}

// BulkFilter holds optional equality filters for listing bulk lots.
type BulkFilter struct {
	Status    BulkStatus
	Condition Condition
	Category  Category
}
