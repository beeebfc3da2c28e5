package services

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/internal/auth"
	"github.com/sahana-project/ewaste-api/internal/storage"
	"github.com/sahana-project/ewaste-api/internal/testutil"
	"github.com/sahana-project/ewaste-api/types"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	accounts *testutil.Accounts
	items    *testutil.Items
	bulk     *testutil.Bulk
	objects  *testutil.Objects
	events   *testutil.Events
	tokens   *auth.TokenIssuer
	log      *slog.Logger

	accountSvc *AccountService
	itemSvc    *ItemService
	bulkSvc    *BulkService
	guard      *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := auth.NewTokenIssuer("services-test-secret", auth.DefaultTokenTTL)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		accounts: testutil.NewAccounts(),
		items:    testutil.NewItems(),
		bulk:     testutil.NewBulk(),
		objects:  testutil.NewObjects(),
		events:   &testutil.Events{},
		tokens:   tokens,
		log:      log,
	}
	images := storage.NewStorage(f.objects, "")
	f.accountSvc = NewAccountService(f.accounts, tokens, images, log)
	f.itemSvc = NewItemService(f.items, images, f.events, log)
	f.bulkSvc = NewBulkService(f.bulk, images, f.events, log)
	f.guard = NewGuard(f.accounts, tokens)
	return f
}

func (f *fixture) account(role types.Role) types.Account {
	return f.accounts.Put(types.Account{
		Name:     "Test " + string(role),
		Email:    string(role) + "-" + uuid.NewString() + "@example.com",
		Role:     role,
		IsActive: true,
	})
}

func image(name string) storage.Upload {
	return storage.Upload{
		Filename:    name,
		ContentType: "image/png",
		Size:        4,
		Body:        strings.NewReader("\x89PNG"),
	}
}

func ptr[T any](v T) *T {
	return &v
}
