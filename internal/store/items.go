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

// ItemRepository handles persistence for item listings.
type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemSelect = `
	SELECT i.id, i.owner_id, i.title, i.description, i.category, i.condition,
		i.quantity, i.price, i.location, i.images, i.status, i.booked_by,
		i.collected_by, i.collected_at, i.created_at, i.updated_at,
		o.name, o.email, o.phone, o.address,
		b.name, b.email, b.phone, b.address,
		c.name, c.email, c.phone, c.address
	FROM item_listings i
	LEFT JOIN accounts o ON o.id = i.owner_id
	LEFT JOIN accounts b ON b.id = i.booked_by
	LEFT JOIN accounts c ON c.id = i.collected_by`

func scanItem(row interface{ Scan(...any) error }) (types.ItemListing, error) {
	var (
		item                     types.ItemListing
		price                    sql.NullFloat64
		bookedBy, collectedBy    uuid.NullUUID
		collectedAt              sql.NullTime
		owner, booker, collector summaryColumns
	)
	dest := []any{
		&item.ID,
		&item.OwnerID,
		&item.Title,
		&item.Description,
		&item.Category,
		&item.Condition,
		&item.Quantity,
		&price,
		&item.Location,
		pq.Array(&item.Images),
		&item.Status,
		&bookedBy,
		&collectedBy,
		&collectedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	}
	dest = append(dest, owner.dest()...)
	dest = append(dest, booker.dest()...)
	dest = append(dest, collector.dest()...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ItemListing{}, ErrNotFound
		}
		return types.ItemListing{}, err
	}

	item.Price = nullableFloat(price)
	item.BookedBy = nullableUUID(bookedBy)
	item.CollectedBy = nullableUUID(collectedBy)
	item.CollectedAt = nullableTime(collectedAt)
	item.Images = nonNilImages(item.Images)
	item.Owner = owner.summary(&item.OwnerID)
	item.Booker = booker.summary(item.BookedBy)
	item.Collector = collector.summary(item.CollectedBy)
	return item, nil
}

func (r *ItemRepository) query(ctx context.Context, query string, args ...any) ([]types.ItemListing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.ItemListing, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemRepository) Get(ctx context.Context, id uuid.UUID) (types.ItemListing, error) {
	return scanItem(r.db.QueryRowContext(ctx, itemSelect+` WHERE i.id = $1`, id))
}

// List returns items matching every non-empty filter field, newest first.
func (r *ItemRepository) List(ctx context.Context, filter types.ItemFilter) ([]types.ItemListing, error) {
	var where whereBuilder
	where.eq("i.status", string(filter.Status))
	where.eq("i.condition", string(filter.Condition))
	where.eq("i.category", string(filter.Category))
	return r.query(ctx, itemSelect+where.String()+` ORDER BY i.created_at DESC, i.id`, where.args...)
}

func (r *ItemRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]types.ItemListing, error) {
	return r.query(ctx, itemSelect+` WHERE i.owner_id = $1 ORDER BY i.created_at DESC, i.id`, ownerID)
}

// ListBookedBy returns the items a collector booked, most recently touched first.
func (r *ItemRepository) ListBookedBy(ctx context.Context, collectorID uuid.UUID) ([]types.ItemListing, error) {
	return r.query(ctx, itemSelect+` WHERE i.booked_by = $1 ORDER BY i.updated_at DESC, i.id`, collectorID)
}

func (r *ItemRepository) Create(ctx context.Context, item types.ItemListing) (types.ItemListing, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `
		INSERT INTO item_listings (id, owner_id, title, description, category, condition,
			quantity, price, location, images, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		item.ID,
		item.OwnerID,
		item.Title,
		item.Description,
		item.Category,
		item.Condition,
		item.Quantity,
		item.Price,
		item.Location,
		pq.Array(nonNilImages(item.Images)),
		item.Status,
		item.CreatedAt,
		item.UpdatedAt,
	); err != nil {
		return types.ItemListing{}, err
	}
	return r.Get(ctx, item.ID)
}

// Update writes the editable fields of item. When from is set the status
// column is overwritten as well and booking and collection records are
// cleared, mirroring ItemListing.ResetStatus, but only while the row is still
// in status *from; otherwise ErrStateChanged is returned.
func (r *ItemRepository) Update(ctx context.Context, item types.ItemListing, from *types.ItemStatus) (types.ItemListing, error) {
	const fieldsQuery = `
		UPDATE item_listings
		SET title = $2,
			description = $3,
			category = $4,
			condition = $5,
			quantity = $6,
			price = $7,
			location = $8,
			images = $9,
			updated_at = $10`
	const resetClause = `,
			status = $11,
			booked_by = NULL,
			collected_by = NULL,
			collected_at = NULL`

	args := []any{
		item.ID,
		item.Title,
		item.Description,
		item.Category,
		item.Condition,
		item.Quantity,
		item.Price,
		item.Location,
		pq.Array(nonNilImages(item.Images)),
		time.Now().UTC(),
	}
	query := fieldsQuery
	if from != nil {
		query += resetClause + ` WHERE id = $1 AND status = $12`
		args = append(args, item.Status, *from)
	} else {
		query += ` WHERE id = $1`
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return types.ItemListing{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.ItemListing{}, err
	}
	if affected == 0 {
		if from == nil {
			return types.ItemListing{}, ErrNotFound
		}
		return types.ItemListing{}, r.explain(ctx, item.ID, func(types.ItemListing) error { return types.ErrStateChanged })
	}
	return r.Get(ctx, item.ID)
}

// Delete removes an item unless it has already been collected.
func (r *ItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM item_listings WHERE id = $1 AND status <> $2`
	result, err := r.db.ExecContext(ctx, query, id, types.ItemCollected)
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
	return r.explain(ctx, id, types.ItemListing.CheckDelete)
}

// Book atomically moves a pending item to booked.
func (r *ItemRepository) Book(ctx context.Context, id, collectorID uuid.UUID) (types.ItemListing, error) {
	const query = `
		UPDATE item_listings
		SET status = $2, booked_by = $3, updated_at = $4
		WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, types.ItemBooked, collectorID, time.Now().UTC(), types.ItemPending)
	if err != nil {
		return types.ItemListing{}, err
	}
	return r.settle(ctx, id, result, types.ItemListing.CheckBook)
}

// Collect atomically marks any not yet collected item as collected.
func (r *ItemRepository) Collect(ctx context.Context, id, actorID uuid.UUID, at time.Time) (types.ItemListing, error) {
	const query = `
		UPDATE item_listings
		SET status = $2, collected_by = $3, collected_at = $4, updated_at = $4
		WHERE id = $1 AND status <> $2`
	result, err := r.db.ExecContext(ctx, query, id, types.ItemCollected, actorID, at.UTC())
	if err != nil {
		return types.ItemListing{}, err
	}
	return r.settle(ctx, id, result, types.ItemListing.CheckCollect)
}

// settle turns the outcome of a conditional update into a result.
func (r *ItemRepository) settle(
	ctx context.Context,
	id uuid.UUID,
	result sql.Result,
	check func(types.ItemListing) error,
) (types.ItemListing, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return types.ItemListing{}, err
	}
	if affected == 0 {
		return types.ItemListing{}, r.explain(ctx, id, check)
	}
	return r.Get(ctx, id)
}

// explain probes the current row after a conditional write matched nothing.
// A missing row is ErrNotFound, otherwise check names the failed precondition.
func (r *ItemRepository) explain(ctx context.Context, id uuid.UUID, check func(types.ItemListing) error) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := check(current); err != nil {
		return err
	}
	// The row changed between the write and the probe.
	return types.ErrStateChanged
}
