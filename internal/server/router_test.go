package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sahana-project/ewaste-api/internal/auth"
	"github.com/sahana-project/ewaste-api/internal/mq"
	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/internal/storage"
	"github.com/sahana-project/ewaste-api/internal/testutil"
	"github.com/sahana-project/ewaste-api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	accounts *testutil.Accounts
	objects  *testutil.Objects
	events   *testutil.Events
}

func newTestAPI(t *testing.T, ratePerMinute int) *testAPI {
	t.Helper()
	tokens, err := auth.NewTokenIssuer("router-test-secret", auth.DefaultTokenTTL)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &testAPI{
		t:        t,
		accounts: testutil.NewAccounts(),
		objects:  testutil.NewObjects(),
		events:   &testutil.Events{},
	}
	images := storage.NewStorage(api.objects, "")
	api.handler = NewRouter(Deps{
		Accounts:      services.NewAccountService(api.accounts, tokens, images, log),
		Items:         services.NewItemService(testutil.NewItems(), images, api.events, log),
		Bulk:          services.NewBulkService(testutil.NewBulk(), images, api.events, log),
		Guard:         services.NewGuard(api.accounts, tokens),
		Images:        images,
		RatePerMinute: ratePerMinute,
		Log:           log,
	})
	return api
}

func (a *testAPI) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) json(method, path, token string, payload any) *httptest.ResponseRecorder {
	a.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(a.t, err)
	return a.do(method, path, token, bytes.NewReader(data), "application/json")
}

// multipart sends fields and files named "<field>=<filename>".
func (a *testAPI) multipart(method, path, token string, fields map[string][]string, files map[string][]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, values := range fields {
		for _, v := range values {
			require.NoError(a.t, mw.WriteField(name, v))
		}
	}
	for field, names := range files {
		for _, name := range names {
			fw, err := mw.CreateFormFile(field, name)
			require.NoError(a.t, err)
			_, err = fw.Write([]byte("image-bytes"))
			require.NoError(a.t, err)
		}
	}
	require.NoError(a.t, mw.Close())
	return a.do(method, path, token, &buf, mw.FormDataContentType())
}

func (a *testAPI) signup(role types.Role, email string) string {
	a.t.Helper()
	rec := a.json(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name":     "Test " + string(role),
		"email":    email,
		"password": "secret1",
		"role":     role,
		"phone":    "555-0100",
		"address":  "1 Main St",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	decode(a.t, rec, &resp)
	return resp.Token
}

func (a *testAPI) admin(email string) string {
	a.t.Helper()
	hash, err := auth.HashPassword("admin-pass")
	require.NoError(a.t, err)
	a.accounts.Put(types.Account{Name: "Admin", Email: email, PasswordHash: hash, Role: types.RoleAdmin, IsActive: true})
	rec := a.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "admin-pass"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	decode(a.t, rec, &resp)
	return resp.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

type listResponse[T any] struct {
	Count int `json:"count"`
	Data  []T `json:"data"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, 0)
	rec := api.do(http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSignupAndProfile(t *testing.T) {
	api := newTestAPI(t, 0)
	token := api.signup(types.RoleOrganization, "Org@Example.com")

	rec := api.do(http.MethodGet, "/api/auth/me", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me types.PublicAccount
	decode(t, rec, &me)
	assert.Equal(t, "org@example.com", me.Email)
	assert.Equal(t, types.RoleOrganization, me.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = api.multipart(http.MethodPut, "/api/auth/profile", token,
		map[string][]string{"name": {"Green Org"}, "organizationName": {"Green Recyclers"}},
		map[string][]string{"profilePicture": {"me.png"}},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &me)
	assert.Equal(t, "Green Org", me.Name)
	require.NotNil(t, me.OrganizationName)
	assert.Equal(t, "Green Recyclers", *me.OrganizationName)
	assert.True(t, strings.HasPrefix(me.ProfilePicture, "/api/images/profiles/"))

	rec = api.do(http.MethodGet, me.ProfilePicture, "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "image-bytes", rec.Body.String())
}

func TestSignupErrors(t *testing.T) {
	api := newTestAPI(t, 0)
	api.signup(types.RoleUser, "dup@example.com")

	rec := api.json(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "Dup", "email": "dup@example.com", "password": "secret1",
		"role": "user", "phone": "1", "address": "x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.json(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "Boss", "email": "boss@example.com", "password": "secret1",
		"role": "admin", "phone": "1", "address": "x",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.json(http.MethodPost, "/api/auth/signup", "", map[string]any{"email": "nope", "password": "123"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "must be a valid email", resp.Fields["email"])
	assert.Equal(t, "must be at least 6 characters", resp.Fields["password"])

	rec = api.do(http.MethodPost, "/api/auth/signup", "", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginErrors(t *testing.T) {
	api := newTestAPI(t, 0)
	api.signup(types.RoleUser, "user@example.com")

	rec := api.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "user@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "USER@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t, 0)

	for _, path := range []string{"/api/auth/me", "/api/ewaste", "/api/bulk-ewaste"} {
		rec := api.do(http.MethodGet, path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		rec = api.do(http.MethodGet, path, "not-a-token", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestItemLifecycle(t *testing.T) {
	api := newTestAPI(t, 0)
	owner := api.signup(types.RoleUser, "owner@example.com")
	collector := api.signup(types.RoleCollector, "collector@example.com")
	rival := api.signup(types.RoleCollector, "rival@example.com")

	rec := api.multipart(http.MethodPost, "/api/ewaste", owner, map[string][]string{
		"title":       {"Old laptop"},
		"description": {"Does not boot"},
		"category":    {"Computers"},
		"condition":   {"not working"},
		"price":       {"15"},
	}, map[string][]string{"images": {"a.png", "b.jpg"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item types.ItemListing
	decode(t, rec, &item)
	assert.Equal(t, types.ItemPending, item.Status)
	assert.Len(t, item.Images, 2)
	itemPath := "/api/ewaste/" + item.ID.String()

	rec = api.do(http.MethodPut, itemPath+"/book", owner, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPut, itemPath+"/book", collector, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &item)
	assert.Equal(t, types.ItemBooked, item.Status)

	rec = api.do(http.MethodPut, itemPath+"/book", rival, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodGet, "/api/ewaste/booked-by-me", collector, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var booked listResponse[types.ItemListing]
	decode(t, rec, &booked)
	assert.Equal(t, 1, booked.Count)

	rec = api.do(http.MethodGet, "/api/ewaste?status=booked", rival, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all listResponse[types.ItemListing]
	decode(t, rec, &all)
	assert.Equal(t, 1, all.Count)

	rec = api.do(http.MethodPut, itemPath+"/collect", collector, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodPut, itemPath+"/collect", rival, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodDelete, itemPath, owner, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestItemUpdateAndDelete(t *testing.T) {
	api := newTestAPI(t, 0)
	owner := api.signup(types.RoleUser, "owner@example.com")
	stranger := api.signup(types.RoleUser, "stranger@example.com")
	admin := api.admin("admin@example.com")

	rec := api.multipart(http.MethodPost, "/api/ewaste", owner, map[string][]string{
		"title": {"TV"}, "description": {"CRT"},
	}, map[string][]string{"images": {"a.png", "b.png"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item types.ItemListing
	decode(t, rec, &item)
	itemPath := "/api/ewaste/" + item.ID.String()

	rec = api.multipart(http.MethodPut, itemPath, owner, map[string][]string{
		"title":          {"Big TV"},
		"existingImages": {item.Images[1]},
		"quantity":       {"2"},
	}, map[string][]string{"images": {"c.webp"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated types.ItemListing
	decode(t, rec, &updated)
	assert.Equal(t, "Big TV", updated.Title)
	assert.Equal(t, 2, updated.Quantity)
	require.Len(t, updated.Images, 2)
	assert.Equal(t, item.Images[1], updated.Images[0])

	rec = api.do(http.MethodGet, item.Images[0], "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.json(http.MethodPut, itemPath, stranger, map[string]any{"title": "mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.json(http.MethodPut, itemPath, admin, map[string]any{"title": "Moderated", "existingImages": updated.Images})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.json(http.MethodPut, itemPath, owner, map[string]any{"quantity": "many", "existingImages": updated.Images})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodDelete, itemPath, admin, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodDelete, itemPath, owner, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, api.objects.Keys())

	rec = api.do(http.MethodGet, itemPath, owner, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/ewaste/not-a-uuid", owner, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemCreateRejectsBadImages(t *testing.T) {
	api := newTestAPI(t, 0)
	owner := api.signup(types.RoleUser, "owner@example.com")
	fields := map[string][]string{"title": {"x"}, "description": {"y"}}

	rec := api.multipart(http.MethodPost, "/api/ewaste", owner, fields, map[string][]string{"images": {"doc.pdf"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.multipart(http.MethodPost, "/api/ewaste", owner, fields,
		map[string][]string{"images": {"1.png", "2.png", "3.png", "4.png", "5.png", "6.png"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, api.objects.Keys())
}

func TestNonFiniteNumbersRejected(t *testing.T) {
	api := newTestAPI(t, 0)
	owner := api.signup(types.RoleUser, "owner@example.com")
	collector := api.signup(types.RoleCollector, "collector@example.com")

	for _, raw := range []string{"Inf", "+Infinity", "-inf", "NaN"} {
		rec := api.json(http.MethodPost, "/api/ewaste", owner, map[string]any{
			"title": "TV", "description": "CRT", "price": raw,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code, raw)
		var errResp errorResponse
		decode(t, rec, &errResp)
		assert.Equal(t, "must be a number", errResp.Fields["price"], raw)

		rec = api.multipart(http.MethodPost, "/api/bulk-ewaste", collector, map[string][]string{
			"title": {"Boards"}, "description": {"Mixed"}, "weightInKg": {raw}, "pricePerKg": {"5"},
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}

	rec := api.json(http.MethodPost, "/api/ewaste", owner, map[string]any{"title": "TV", "description": "CRT", "price": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/ewaste", collector, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse[types.ItemListing]
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, []mq.EventKind{mq.ItemCreated}, api.events.Kinds())
}

func TestBulkLifecycle(t *testing.T) {
	api := newTestAPI(t, 0)
	collector := api.signup(types.RoleCollector, "collector@example.com")
	org := api.signup(types.RoleOrganization, "org@example.com")
	otherOrg := api.signup(types.RoleOrganization, "other@example.com")
	user := api.signup(types.RoleUser, "user@example.com")

	rec := api.json(http.MethodPost, "/api/bulk-ewaste", user, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.json(http.MethodPost, "/api/bulk-ewaste", collector, map[string]any{
		"title": "Boards", "description": "Sorted", "weightInKg": 10, "pricePerKg": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lot types.BulkListing
	decode(t, rec, &lot)
	require.NotNil(t, lot.TotalPrice)
	assert.Equal(t, 50.0, *lot.TotalPrice)
	lotPath := "/api/bulk-ewaste/" + lot.ID.String()

	rec = api.json(http.MethodPut, lotPath, collector, map[string]any{"weightInKg": 12, "status": "reserved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &lot)
	assert.Equal(t, 60.0, *lot.TotalPrice)
	assert.Equal(t, types.BulkReserved, lot.Status)

	rec = api.do(http.MethodPut, lotPath+"/sold", collector, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPut, lotPath+"/sold", org, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &lot)
	assert.Equal(t, types.BulkSold, lot.Status)

	rec = api.do(http.MethodPut, lotPath+"/sold", otherOrg, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp errorResponse
	decode(t, rec, &resp)
	assert.Equal(t, types.ErrAlreadySold.Error(), resp.Error)

	rec = api.do(http.MethodDelete, lotPath, collector, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodGet, "/api/bulk-ewaste/orders-by-me", org, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var orders listResponse[types.BulkListing]
	decode(t, rec, &orders)
	assert.Equal(t, 1, orders.Count)

	rec = api.do(http.MethodGet, "/api/bulk-ewaste/my-posts", collector, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var mine listResponse[types.BulkListing]
	decode(t, rec, &mine)
	assert.Equal(t, 1, mine.Count)

	rec = api.do(http.MethodGet, "/api/bulk-ewaste/orders-by-me", collector, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Contains(t, api.events.Kinds(), mq.BulkSold)
}

func TestAuthRateLimit(t *testing.T) {
	api := newTestAPI(t, 2)
	body := map[string]string{"email": "nobody@example.com", "password": "whatever"}

	for i := 0; i < 2; i++ {
		rec := api.json(http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := api.json(http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
