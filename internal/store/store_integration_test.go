//go:build integration

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/config"
	"github.com/sahana-project/ewaste-api/internal/db"
	"github.com/sahana-project/ewaste-api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable postgres reachable through the DB_* variables.
var testDB *sql.DB

func TestMain(m *testing.M) {
	cfg := config.LoadConfig()
	if err := db.Migrate(cfg.Database, "file://../db/migrations", db.Up); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	conn, err := db.Open(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	testDB = conn

	code := m.Run()
	_ = conn.Close()
	os.Exit(code)
}

func createAccount(t *testing.T, role types.Role) types.Account {
	t.Helper()
	repo := NewAccountRepository(testDB)
	account, err := repo.Create(context.Background(), types.Account{
		Name:         "Test " + string(role),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Role:         role,
		Phone:        "555-0100",
		Address:      "1 Main St",
		IsActive:     true,
	})
	require.NoError(t, err)
	return account
}

func TestAccountRepositoryDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(testDB)
	first := createAccount(t, types.RoleUser)

	_, err := repo.Create(ctx, types.Account{
		Name:         "Other",
		Email:        first.Email,
		PasswordHash: "hash",
		Role:         types.RoleCollector,
		IsActive:     true,
	})
	assert.ErrorIs(t, err, ErrEmailExists)

	stored, err := repo.GetByEmail(ctx, first.Email)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, types.RoleUser, stored.Role)
}

func TestAccountRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(testDB)
	account := createAccount(t, types.RoleOrganization)

	org := "Green Recyclers"
	account.Name = "Renamed"
	account.OrganizationName = &org
	_, err := repo.Update(ctx, account)
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	require.NotNil(t, stored.OrganizationName)
	assert.Equal(t, org, *stored.OrganizationName)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(testDB)
	owner := createAccount(t, types.RoleUser)
	collector := createAccount(t, types.RoleCollector)

	item, err := repo.Create(ctx, types.ItemListing{
		OwnerID:     owner.ID,
		Title:       "Old laptop",
		Description: "Does not boot",
		Category:    types.CategoryComputers,
		Condition:   types.ConditionNotWorking,
		Quantity:    1,
		Status:      types.ItemPending,
		Images:      []string{"/api/images/items/a.png"},
	})
	require.NoError(t, err)
	require.NotNil(t, item.Owner)
	assert.Equal(t, owner.Name, item.Owner.Name)
	assert.Equal(t, []string{"/api/images/items/a.png"}, item.Images)

	booked, err := repo.Book(ctx, item.ID, collector.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemBooked, booked.Status)
	require.NotNil(t, booked.BookedBy)
	assert.Equal(t, collector.ID, *booked.BookedBy)
	require.NotNil(t, booked.Booker)

	_, err = repo.Book(ctx, item.ID, collector.ID)
	assert.ErrorIs(t, err, types.ErrNotBookable)

	mine, err := repo.ListBookedBy(ctx, collector.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, item.ID, mine[0].ID)

	collected, err := repo.Collect(ctx, item.ID, collector.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, types.ItemCollected, collected.Status)
	require.NotNil(t, collected.CollectedAt)

	_, err = repo.Collect(ctx, item.ID, collector.ID, time.Now())
	assert.ErrorIs(t, err, types.ErrAlreadyCollected)

	assert.ErrorIs(t, repo.Delete(ctx, item.ID), types.ErrAlreadyCollected)

	_, err = repo.Book(ctx, uuid.New(), collector.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemRepositoryResetStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(testDB)
	owner := createAccount(t, types.RoleUser)
	collector := createAccount(t, types.RoleCollector)

	item, err := repo.Create(ctx, types.ItemListing{
		OwnerID: owner.ID, Title: "TV", Description: "CRT", Category: types.CategoryElectronics,
		Condition: types.ConditionWorking, Quantity: 2, Status: types.ItemPending,
	})
	require.NoError(t, err)
	item, err = repo.Book(ctx, item.ID, collector.ID)
	require.NoError(t, err)

	booked := item.Status
	item.ResetStatus(types.ItemCancelled)
	updated, err := repo.Update(ctx, item, &booked)
	require.NoError(t, err)
	assert.Equal(t, types.ItemCancelled, updated.Status)
	assert.Nil(t, updated.BookedBy)

	require.NoError(t, repo.Delete(ctx, item.ID))
	_, err = repo.Get(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemRepositoryResetStatusLosesToCollect(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(testDB)
	owner := createAccount(t, types.RoleUser)
	collector := createAccount(t, types.RoleCollector)

	item, err := repo.Create(ctx, types.ItemListing{
		OwnerID: owner.ID, Title: "Fridge", Description: "Leaks", Category: types.CategoryAppliances,
		Condition: types.ConditionDamaged, Quantity: 1, Status: types.ItemPending,
	})
	require.NoError(t, err)

	stale := item
	_, err = repo.Collect(ctx, item.ID, collector.ID, time.Now())
	require.NoError(t, err)

	pending := stale.Status
	stale.ResetStatus(types.ItemCancelled)
	_, err = repo.Update(ctx, stale, &pending)
	assert.ErrorIs(t, err, types.ErrStateChanged)

	current, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemCollected, current.Status)
	require.NotNil(t, current.CollectedBy)
	assert.Equal(t, collector.ID, *current.CollectedBy)

	_, err = repo.Update(ctx, types.ItemListing{ID: uuid.New(), Status: types.ItemCancelled}, &pending)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(testDB)
	owner := createAccount(t, types.RoleUser)

	for _, condition := range []types.Condition{types.ConditionWorking, types.ConditionDamaged} {
		_, err := repo.Create(ctx, types.ItemListing{
			OwnerID: owner.ID, Title: "Battery pack", Description: "AA", Category: types.CategoryBatteries,
			Condition: condition, Quantity: 1, Status: types.ItemPending,
		})
		require.NoError(t, err)
	}

	mine, err := repo.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.False(t, mine[0].CreatedAt.Before(mine[1].CreatedAt))

	damaged, err := repo.List(ctx, types.ItemFilter{Condition: types.ConditionDamaged, Category: types.CategoryBatteries})
	require.NoError(t, err)
	for _, item := range damaged {
		assert.Equal(t, types.ConditionDamaged, item.Condition)
		assert.Equal(t, types.CategoryBatteries, item.Category)
	}
}

func TestBulkRepositorySellOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewBulkRepository(testDB)
	collector := createAccount(t, types.RoleCollector)
	buyer := createAccount(t, types.RoleOrganization)
	other := createAccount(t, types.RoleOrganization)

	price := 5.0
	lot, err := repo.Create(ctx, types.BulkListing{
		CollectorID: collector.ID, Title: "Mixed scrap", Description: "Boards",
		Category: types.CategoryMixed, Condition: types.ConditionMixed,
		WeightInKg: 10, PricePerKg: &price, Status: types.BulkAvailable,
	})
	require.NoError(t, err)
	require.NotNil(t, lot.TotalPrice)
	assert.Equal(t, 50.0, *lot.TotalPrice)

	sold, err := repo.MarkSold(ctx, lot.ID, buyer.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, types.BulkSold, sold.Status)
	require.NotNil(t, sold.Buyer)

	_, err = repo.MarkSold(ctx, lot.ID, other.ID, time.Now())
	assert.ErrorIs(t, err, types.ErrAlreadySold)

	again, err := repo.Get(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, *again.SoldTo)
	assert.Equal(t, sold.SoldAt.Unix(), again.SoldAt.Unix())

	again.Title = "Edited"
	_, err = repo.Update(ctx, again)
	assert.ErrorIs(t, err, types.ErrAlreadySold)
	assert.ErrorIs(t, repo.Delete(ctx, lot.ID), types.ErrAlreadySold)

	orders, err := repo.ListSoldTo(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestBulkRepositoryConcurrentSale(t *testing.T) {
	ctx := context.Background()
	repo := NewBulkRepository(testDB)
	collector := createAccount(t, types.RoleCollector)

	lot, err := repo.Create(ctx, types.BulkListing{
		CollectorID: collector.ID, Title: "Cables", Description: "Copper",
		Category: types.CategoryOther, Condition: types.ConditionMixed,
		WeightInKg: 3.5, Status: types.BulkAvailable,
	})
	require.NoError(t, err)

	const buyers = 8
	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		buyer := createAccount(t, types.RoleOrganization)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.MarkSold(ctx, lot.ID, buyer.ID, time.Now())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, types.ErrAlreadySold)
	}
	assert.Equal(t, 1, wins)
}
