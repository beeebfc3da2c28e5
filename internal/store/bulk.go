package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sahana-project/ewaste-api/types"
)

// BulkRepository handles persistence for bulk listings.
type BulkRepository struct {
	db *sql.DB
}

func NewBulkRepository(db *sql.DB) *BulkRepository {
	return &BulkRepository{db: db}
}

const bulkSelect = `
	SELECT l.id, l.collector_id, l.title, l.description, l.category, l.condition,
		l.weight_in_kg, l.price_per_kg, l.total_price, l.images, l.location,
		l.status, l.sold_to, l.sold_at, l.created_at, l.updated_at,
		c.name, c.email, c.phone, c.address,
		b.name, b.email, b.phone, b.address
	FROM bulk_listings l
	LEFT JOIN accounts c ON c.id = l.collector_id
	LEFT JOIN accounts b ON b.id = l.sold_to`

func scanBulk(row interface{ Scan(...any) error }) (types.BulkListing, error) {
	var (
		lot                    types.BulkListing
		pricePerKg, totalPrice sql.NullFloat64
		soldTo                 uuid.NullUUID
		soldAt                 sql.NullTime
		collector, buyer       summaryColumns
	)
	dest := []any{
		&lot.ID,
		&lot.CollectorID,
		&lot.Title,
		&lot.Description,
		&lot.Category,
		&lot.Condition,
		&lot.WeightInKg,
		&pricePerKg,
		&totalPrice,
		pq.Array(&lot.Images),
		&lot.Location,
		&lot.Status,
		&soldTo,
		&soldAt,
		&lot.CreatedAt,
		&lot.UpdatedAt,
	}
	dest = append(dest, collector.dest()...)
	dest = append(dest, buyer.dest()...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.BulkListing{}, ErrNotFound
		}
		return types.BulkListing{}, err
	}

	lot.PricePerKg = nullableFloat(pricePerKg)
	lot.TotalPrice = nullableFloat(totalPrice)
	lot.SoldTo = nullableUUID(soldTo)
	lot.SoldAt = nullableTime(soldAt)
	lot.Images = nonNilImages(lot.Images)
	lot.Collector = collector.summary(&lot.CollectorID)
	lot.Buyer = buyer.summary(lot.SoldTo)
	return lot, nil
}

func (r *BulkRepository) query(ctx context.Context, query string, args ...any) ([]types.BulkListing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]types.BulkListing, 0)
	for rows.Next() {
		lot, err := scanBulk(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func (r *BulkRepository) Get(ctx context.Context, id uuid.UUID) (types.BulkListing, error) {
	return scanBulk(r.db.QueryRowContext(ctx, bulkSelect+` WHERE l.id = $1`, id))
}

func (r *BulkRepository) List(ctx context.Context, filter types.BulkFilter) ([]types.BulkListing, error) {
	var where whereBuilder
	where.eq("l.status", string(filter.Status))
	where.eq("l.condition", string(filter.Condition))
	where.eq("l.category", string(filter.Category))
	return r.query(ctx, bulkSelect+where.String()+` ORDER BY l.created_at DESC, l.id`, where.args...)
}

func (r *BulkRepository) ListByCollector(ctx context.Context, collectorID uuid.UUID) ([]types.BulkListing, error) {
	return r.query(ctx, bulkSelect+` WHERE l.collector_id = $1 ORDER BY l.created_at DESC, l.id`, collectorID)
}

// ListSoldTo returns the lots bought by an account, latest purchase first.
func (r *BulkRepository) ListSoldTo(ctx context.Context, buyerID uuid.UUID) ([]types.BulkListing, error) {
	return r.query(ctx, bulkSelect+` WHERE l.sold_to = $1 ORDER BY l.sold_at DESC, l.id`, buyerID)
}

func (r *BulkRepository) Create(ctx context.Context, lot types.BulkListing) (types.BulkListing, error) {
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	now := time.Now().UTC()
	lot.CreatedAt = now
	lot.UpdatedAt = now
	lot.Reprice()

	const query = `
		INSERT INTO bulk_listings (id, collector_id, title, description, category, condition,
			weight_in_kg, price_per_kg, total_price, images, location, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		lot.ID,
		lot.CollectorID,
		lot.Title,
		lot.Description,
		lot.Category,
		lot.Condition,
		lot.WeightInKg,
		lot.PricePerKg,
		lot.TotalPrice,
		pq.Array(nonNilImages(lot.Images)),
		lot.Location,
		lot.Status,
		lot.CreatedAt,
		lot.UpdatedAt,
	); err != nil {
		return types.BulkListing{}, err
	}
	return r.Get(ctx, lot.ID)
}

// Update writes the editable fields of lot, including status, as long as the
// stored lot has not been sold. The total price is recomputed before writing.
func (r *BulkRepository) Update(ctx context.Context, lot types.BulkListing) (types.BulkListing, error) {
	lot.Reprice()

	const query = `
		UPDATE bulk_listings
		SET title = $2,
			description = $3,
			category = $4,
			condition = $5,
			weight_in_kg = $6,
			price_per_kg = $7,
			total_price = $8,
			images = $9,
			location = $10,
			status = $11,
			updated_at = $12
		WHERE id = $1 AND status <> $13`
	result, err := r.db.ExecContext(
		ctx,
		query,
		lot.ID,
		lot.Title,
		lot.Description,
		lot.Category,
		lot.Condition,
		lot.WeightInKg,
		lot.PricePerKg,
		lot.TotalPrice,
		pq.Array(nonNilImages(lot.Images)),
		lot.Location,
		lot.Status,
		time.Now().UTC(),
		types.BulkSold,
	)
	if err != nil {
		return types.BulkListing{}, err
	}
	return r.settle(ctx, lot.ID, result)
}

// Delete removes a lot unless it has been sold.
func (r *BulkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM bulk_listings WHERE id = $1 AND status <> $2`
	result, err := r.db.ExecContext(ctx, query, id, types.BulkSold)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	return r.explain(ctx, id)
}

// MarkSold atomically sells a lot that is not sold yet.
func (r *BulkRepository) MarkSold(ctx context.Context, id, buyerID uuid.UUID, at time.Time) (types.BulkListing, error) {
	const query = `
		UPDATE bulk_listings
		SET status = $2, sold_to = $3, sold_at = $4, updated_at = $4
		WHERE id = $1 AND status <> $2`
	result, err := r.db.ExecContext(ctx, query, id, types.BulkSold, buyerID, at.UTC())
	if err != nil {
		return types.BulkListing{}, err
	}
	return r.settle(ctx, id, result)
}

func (r *BulkRepository) settle(ctx context.Context, id uuid.UUID, result sql.Result) (types.BulkListing, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return types.BulkListing{}, err
	}
	if affected == 0 {
		return types.BulkListing{}, r.explain(ctx, id)
	}
	return r.Get(ctx, id)
}

// explain probes a lot after a conditional write matched nothing. Every bulk
// write is guarded by the same not-sold precondition.
func (r *BulkRepository) explain(ctx context.Context, id uuid.UUID) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := current.CheckSell(); err != nil {
		return err
	}
	return types.ErrStateChanged
}
