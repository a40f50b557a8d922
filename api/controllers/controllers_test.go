package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssr0016/next-rental-eq-marketplace/api/middleware"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/booking"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/catalog"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/dashboard"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/config"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

var (
	userActor  = auth.Actor{UserID: uuid.New(), Role: enums.RoleUser}
	adminActor = auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
)

func newRequest(method, target, body string, actor *auth.Actor, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
	}
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

type stubCatalog struct {
	catalog.Service
	listInput   catalog.ListItemsInput
	createInput catalog.CreateItemInput
	updateInput catalog.UpdateItemInput
	deleteErr   error
}

func (s *stubCatalog) ListItems(ctx context.Context, input catalog.ListItemsInput) (*catalog.ItemListResult, error) {
	s.listInput = input
	return &catalog.ItemListResult{Items: []catalog.ItemDTO{}}, nil
}

func (s *stubCatalog) CreateItem(ctx context.Context, actor auth.Actor, input catalog.CreateItemInput) (*catalog.ItemDTO, error) {
	s.createInput = input
	return &catalog.ItemDTO{ID: uuid.New(), Name: input.Name, RentPerDay: input.RentPerDay, TotalQuantity: input.TotalQuantity, AvailableQuantity: input.TotalQuantity}, nil
}

func (s *stubCatalog) UpdateItem(ctx context.Context, actor auth.Actor, id uuid.UUID, input catalog.UpdateItemInput) (*catalog.ItemDTO, error) {
	s.updateInput = input
	return &catalog.ItemDTO{ID: id}, nil
}

func (s *stubCatalog) DeleteItem(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	return s.deleteErr
}

func TestListItemsPublicHidesInactive(t *testing.T) {
	svc := &stubCatalog{}
	categoryID := uuid.New()
	rec := httptest.NewRecorder()
	target := "/api/v1/items?category_id=" + categoryID.String() + "&search=%20drill%20&status=inactive"
	ListItems(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, target, "", nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.listInput.IncludeInactive)
	assert.Nil(t, svc.listInput.Filters.Status)
	assert.Equal(t, "drill", svc.listInput.Filters.Search)
	require.NotNil(t, svc.listInput.Filters.CategoryID)
	assert.Equal(t, categoryID, *svc.listInput.Filters.CategoryID)
}

func TestAdminListItemsAcceptsStatus(t *testing.T) {
	svc := &stubCatalog{}
	rec := httptest.NewRecorder()
	AdminListItems(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/admin/v1/items?status=inactive", "", &adminActor, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.listInput.IncludeInactive)
	require.NotNil(t, svc.listInput.Filters.Status)
	assert.Equal(t, enums.ItemStatusInactive, *svc.listInput.Filters.Status)

	rec = httptest.NewRecorder()
	AdminListItems(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/admin/v1/items?status=retired", "", &adminActor, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCreateItemDecodesDecimal(t *testing.T) {
	svc := &stubCatalog{}
	categoryID := uuid.New()
	body := `{"category_id":"` + categoryID.String() + `","name":"Excavator","rent_per_day":"250.50","total_quantity":3}`
	rec := httptest.NewRecorder()
	AdminCreateItem(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/admin/v1/items", body, &adminActor, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, categoryID, svc.createInput.CategoryID)
	assert.True(t, svc.createInput.RentPerDay.Equal(decimal.RequireFromString("250.50")))
	assert.Equal(t, 3, svc.createInput.TotalQuantity)
}

func TestAdminCreateItemValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	body := `{"name":"Excavator","total_quantity":-1}`
	AdminCreateItem(&stubCatalog{}, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/admin/v1/items", body, &adminActor, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateItemStatus(t *testing.T) {
	svc := &stubCatalog{}
	id := uuid.New()
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPatch, "/", `{"status":"inactive","total_quantity":0}`, &adminActor, map[string]string{"itemId": id.String()})
	AdminUpdateItem(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updateInput.Status)
	assert.Equal(t, enums.ItemStatusInactive, *svc.updateInput.Status)
	require.NotNil(t, svc.updateInput.TotalQuantity)
	assert.Equal(t, 0, *svc.updateInput.TotalQuantity)
	assert.Nil(t, svc.updateInput.Name)
}

func TestAdminDeleteItem(t *testing.T) {
	id := uuid.New()
	params := map[string]string{"itemId": id.String()}

	rec := httptest.NewRecorder()
	AdminDeleteItem(&stubCatalog{}, nil).ServeHTTP(rec, newRequest(http.MethodDelete, "/", "", &adminActor, params))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	svc := &stubCatalog{deleteErr: pkgerrors.New(pkgerrors.CodeConflict, "item has orders")}
	AdminDeleteItem(svc, nil).ServeHTTP(rec, newRequest(http.MethodDelete, "/", "", &adminActor, params))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type stubBooking struct {
	input booking.Input
	err   error
}

func (s *stubBooking) CreateBooking(ctx context.Context, input booking.Input) (*models.Order, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{
		ID:            uuid.New(),
		ItemID:        input.ItemID,
		UserID:        input.Actor.UserID,
		FromDate:      input.From,
		ToDate:        input.To,
		Quantity:      input.Quantity,
		Status:        enums.OrderStatusBooked,
		PaymentStatus: enums.OrderPaymentUnpaid,
		TotalAmount:   decimal.RequireFromString("120.00"),
	}, nil
}

func TestCreateBooking(t *testing.T) {
	svc := &stubBooking{}
	itemID := uuid.New()
	body := `{"item_id":"` + itemID.String() + `","from":"2030-05-01","to":"2030-05-03","quantity":2}`
	rec := httptest.NewRecorder()
	CreateBooking(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/bookings", body, &userActor, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, userActor, svc.input.Actor)
	assert.Equal(t, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC), svc.input.From)
	assert.Equal(t, time.Date(2030, 5, 3, 0, 0, 0, 0, time.UTC), svc.input.To)
	assert.Equal(t, 2, svc.input.Quantity)

	var dto struct {
		FromDate string `json:"from_date"`
		Status   string `json:"status"`
	}
	decodeData(t, rec, &dto)
	assert.Equal(t, "2030-05-01", dto.FromDate)
	assert.Equal(t, "booked", dto.Status)
}

func TestCreateBookingRejections(t *testing.T) {
	itemID := uuid.New().String()
	cases := []struct {
		name  string
		body  string
		actor *auth.Actor
		err   error
		want  int
	}{
		{name: "anonymous", body: `{}`, want: http.StatusUnauthorized},
		{name: "bad date", body: `{"item_id":"` + itemID + `","from":"05/01/2030","to":"2030-05-03","quantity":1}`, actor: &userActor, want: http.StatusBadRequest},
		{name: "inverted range", body: `{"item_id":"` + itemID + `","from":"2030-05-04","to":"2030-05-03","quantity":1}`, actor: &userActor, want: http.StatusBadRequest},
		{name: "zero quantity", body: `{"item_id":"` + itemID + `","from":"2030-05-01","to":"2030-05-03","quantity":0}`, actor: &userActor, want: http.StatusBadRequest},
		{
			name:  "sold out",
			body:  `{"item_id":"` + itemID + `","from":"2030-05-01","to":"2030-05-03","quantity":1}`,
			actor: &userActor,
			err:   pkgerrors.New(pkgerrors.CodeInsufficientAvailability, "not enough units"),
			want:  http.StatusConflict,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			CreateBooking(&stubBooking{err: tc.err}, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/bookings", tc.body, tc.actor, nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

type stubAvailability struct {
	input availability.CheckInput
}

func (s *stubAvailability) CheckAvailability(ctx context.Context, input availability.CheckInput) (*availability.CheckOutput, error) {
	s.input = input
	return &availability.CheckOutput{ItemID: input.ItemID, Requested: input.Quantity}, nil
}

func TestCheckAvailabilityDefaultsQuantity(t *testing.T) {
	svc := &stubAvailability{}
	itemID := uuid.New()
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/?from=2030-01-01&to=2030-01-02", "", &userActor, map[string]string{"itemId": itemID.String()})
	CheckAvailability(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.input.Quantity)
	assert.Equal(t, itemID, svc.input.ItemID)
	assert.Equal(t, "2030-01-01..2030-01-02", svc.input.Range.String())

	rec = httptest.NewRecorder()
	req = newRequest(http.MethodGet, "/?from=2030-01-01&to=2030-01-02&quantity=0", "", &userActor, map[string]string{"itemId": itemID.String()})
	CheckAvailability(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubDashboard struct{}

func (stubDashboard) AdminStats(ctx context.Context, actor auth.Actor) (*dashboard.AdminStats, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return &dashboard.AdminStats{TotalItems: 4}, nil
}

func (stubDashboard) UserStats(ctx context.Context, actor auth.Actor) (*dashboard.UserStats, error) {
	return &dashboard.UserStats{TotalOrders: 2, TotalSpend: decimal.RequireFromString("75.50")}, nil
}

func TestDashboards(t *testing.T) {
	rec := httptest.NewRecorder()
	UserDashboard(stubDashboard{}, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/dashboard", "", &userActor, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		TotalOrders int64  `json:"total_orders"`
		TotalSpend  string `json:"total_spend"`
	}
	decodeData(t, rec, &stats)
	assert.Equal(t, int64(2), stats.TotalOrders)
	assert.Equal(t, "75.5", stats.TotalSpend)

	rec = httptest.NewRecorder()
	AdminDashboard(stubDashboard{}, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/admin/v1/dashboard", "", &userActor, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-Rental-Env"))

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("down")}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
	assert.NotContains(t, rec.Body.String(), `"db"`)
}
