package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/handlers"
	"github.com/slotline/slotline/services/scheduling-service/internal/memstore"
	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
	"github.com/slotline/slotline/services/scheduling-service/internal/slot"
)

type fixture struct {
	store    *memstore.Store
	rules    *memstore.Rules
	booking  *handlers.BookingHandler
	provider *handlers.ProviderHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.NewStore()
	rules := memstore.NewRules()

	var all rule.Weekdays
	for d := time.Sunday; d <= time.Saturday; d++ {
		all = all.With(d)
	}
	rules.Put(rule.Rule{
		ProviderID:  "prov-1",
		Weekdays:    all,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
		SlotMinutes: 30,
		Timezone:    "UTC",
		Version:     1,
	})

	coord := booking.NewCoordinator(store, rules, nil, nil, nil)
	resolver := booking.NewAvailabilityResolver(store, rules, nil)
	return &fixture{
		store:    store,
		rules:    rules,
		booking:  handlers.NewBookingHandler(coord, resolver, store, nil),
		provider: handlers.NewProviderHandler(rules, nil, nil),
	}
}

func customerClaims(id string) *handlers.TokenClaims {
	return &handlers.TokenClaims{Sub: id, Role: handlers.RoleCustomer}
}

func providerClaims(providerID string) *handlers.TokenClaims {
	return &handlers.TokenClaims{Sub: providerID, ProviderID: providerID, Role: handlers.RoleProvider}
}

func authedRequest(method, target string, body any, claims *handlers.TokenClaims) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if claims != nil {
		req = req.WithContext(handlers.WithClaims(req.Context(), claims))
	}
	return req
}

func tomorrow() (string, time.Time) {
	d := time.Now().UTC().AddDate(0, 0, 1)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Format(slot.DateFormat), midnight
}

func TestSlotsEndpoint(t *testing.T) {
	f := newFixture(t)
	date, _ := tomorrow()

	rec := httptest.NewRecorder()
	f.booking.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/slots?provider_id=prov-1&date="+date, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var items []struct {
		Start     string `json:"start"`
		Booked    bool   `json:"booked"`
		Available bool   `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 16)
	assert.True(t, items[0].Available)
}

func TestSlotsMissingParams(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.booking.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/slots?provider_id=prov-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	date, midnight := tomorrow()
	start := midnight.Add(9 * time.Hour)

	body := map[string]string{
		"provider_id":   "prov-1",
		"customer_name": "Dana",
		"date":          date,
		"start":         start.Format(time.RFC3339),
	}
	rec := httptest.NewRecorder()
	f.booking.Create(rec, authedRequest(http.MethodPost, "/api/v1/bookings", body, customerClaims("cust-1")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		AppointmentID string `json:"appointment_id"`
		CustomerID    string `json:"customer_id"`
		Status        string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cust-1", resp.CustomerID)
	assert.Equal(t, "booked", resp.Status)

	// Same slot again conflicts.
	rec = httptest.NewRecorder()
	f.booking.Create(rec, authedRequest(http.MethodPost, "/api/v1/bookings", body, customerClaims("cust-2")))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateBookingUnauthenticated(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.booking.Create(rec, authedRequest(http.MethodPost, "/api/v1/bookings", map[string]string{}, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingMisalignedIs422(t *testing.T) {
	f := newFixture(t)
	date, midnight := tomorrow()
	body := map[string]string{
		"provider_id":   "prov-1",
		"customer_name": "Dana",
		"date":          date,
		"start":         midnight.Add(9*time.Hour + 10*time.Minute).Format(time.RFC3339),
	}
	rec := httptest.NewRecorder()
	f.booking.Create(rec, authedRequest(http.MethodPost, "/api/v1/bookings", body, customerClaims("cust-1")))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "slot_misaligned", resp.Code)
}

func TestCancelOwnership(t *testing.T) {
	f := newFixture(t)
	date, midnight := tomorrow()
	body := map[string]string{
		"provider_id":   "prov-1",
		"customer_name": "Dana",
		"date":          date,
		"start":         midnight.Add(10 * time.Hour).Format(time.RFC3339),
	}
	rec := httptest.NewRecorder()
	f.booking.Create(rec, authedRequest(http.MethodPost, "/api/v1/bookings", body, customerClaims("cust-1")))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		AppointmentID string `json:"appointment_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	cancelBody := map[string]string{"appointment_id": created.AppointmentID}

	// A different customer cannot cancel.
	rec = httptest.NewRecorder()
	f.booking.Cancel(rec, authedRequest(http.MethodPost, "/api/v1/bookings/cancel", cancelBody, customerClaims("stranger")))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The provider can.
	rec = httptest.NewRecorder()
	f.booking.Cancel(rec, authedRequest(http.MethodPost, "/api/v1/bookings/cancel", cancelBody, providerClaims("prov-1")))
	require.Equal(t, http.StatusOK, rec.Code)

	// A second cancel is a conflict.
	rec = httptest.NewRecorder()
	f.booking.Cancel(rec, authedRequest(http.MethodPost, "/api/v1/bookings/cancel", cancelBody, providerClaims("prov-1")))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListScopesByRole(t *testing.T) {
	f := newFixture(t)
	date, midnight := tomorrow()
	for i, cust := range []string{"cust-1", "cust-2"} {
		body := map[string]string{
			"provider_id":   "prov-1",
			"customer_name": "C",
			"date":          date,
			"start":         midnight.Add(time.Duration(9+i) * time.Hour).Format(time.RFC3339),
		}
		rec := httptest.NewRecorder()
		f.booking.Create(rec, authedRequest(http.MethodPost, "/api/v1/bookings", body, customerClaims(cust)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := httptest.NewRecorder()
	f.booking.List(rec, authedRequest(http.MethodGet, "/api/v1/appointments", nil, customerClaims("cust-1")))
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)

	rec = httptest.NewRecorder()
	f.booking.List(rec, authedRequest(http.MethodGet, "/api/v1/appointments", nil, providerClaims("prov-1")))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestCalendarBuckets(t *testing.T) {
	f := newFixture(t)
	date, midnight := tomorrow()
	body := map[string]string{
		"provider_id":   "prov-1",
		"customer_name": "Dana",
		"date":          date,
		"start":         midnight.Add(11 * time.Hour).Format(time.RFC3339),
	}
	rec := httptest.NewRecorder()
	f.booking.Create(rec, authedRequest(http.MethodPost, "/api/v1/bookings", body, customerClaims("cust-1")))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	f.booking.Calendar(rec, authedRequest(http.MethodGet,
		"/api/v1/calendar?from="+date+"&to="+date, nil, providerClaims("prov-1")))
	require.Equal(t, http.StatusOK, rec.Code)

	var buckets []struct {
		Date         string            `json:"date"`
		Appointments []json.RawMessage `json:"appointments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buckets))
	require.Len(t, buckets, 1)
	assert.Equal(t, date, buckets[0].Date)
	assert.Len(t, buckets[0].Appointments, 1)

	// Customers cannot read the provider calendar.
	rec = httptest.NewRecorder()
	f.booking.Calendar(rec, authedRequest(http.MethodGet,
		"/api/v1/calendar?from="+date+"&to="+date, nil, customerClaims("cust-1")))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRuleRoundTrip(t *testing.T) {
	f := newFixture(t)

	put := map[string]any{
		"weekdays":     []string{"monday", "wednesday"},
		"start":        "08:00",
		"end":          "16:00",
		"slot_minutes": 45,
		"timezone":     "America/New_York",
		"breaks": []map[string]string{
			{"start": "12:00", "end": "13:00", "reason": "lunch"},
		},
	}
	rec := httptest.NewRecorder()
	f.provider.Rule(rec, authedRequest(http.MethodPut, "/api/v1/providers/rule", put, providerClaims("prov-1")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	f.provider.Rule(rec, authedRequest(http.MethodGet, "/api/v1/providers/rule", nil, providerClaims("prov-1")))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Weekdays    []string `json:"weekdays"`
		Start       string   `json:"start"`
		End         string   `json:"end"`
		SlotMinutes int      `json:"slot_minutes"`
		Version     int64    `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"monday", "wednesday"}, got.Weekdays)
	assert.Equal(t, "08:00", got.Start)
	assert.Equal(t, "16:00", got.End)
	assert.Equal(t, 45, got.SlotMinutes)
	assert.Equal(t, int64(2), got.Version)
}

func TestRuleRejectsBadWindow(t *testing.T) {
	f := newFixture(t)
	put := map[string]any{
		"weekdays":     []string{"monday"},
		"start":        "16:00",
		"end":          "08:00",
		"slot_minutes": 30,
		"timezone":     "UTC",
	}
	rec := httptest.NewRecorder()
	f.provider.Rule(rec, authedRequest(http.MethodPut, "/api/v1/providers/rule", put, providerClaims("prov-1")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHolidayLifecycle(t *testing.T) {
	f := newFixture(t)
	date, _ := tomorrow()

	rec := httptest.NewRecorder()
	f.provider.Holidays(rec, authedRequest(http.MethodPost, "/api/v1/providers/holidays",
		map[string]any{"date": date, "full_day": true, "reason": "closed"}, providerClaims("prov-1")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	// The day view is now empty.
	rec = httptest.NewRecorder()
	f.booking.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/slots?provider_id=prov-1&date="+date, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Empty(t, items)

	rec = httptest.NewRecorder()
	f.provider.Holidays(rec, authedRequest(http.MethodDelete,
		"/api/v1/providers/holidays?id="+created.ID, nil, providerClaims("prov-1")))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	f.provider.Holidays(rec, authedRequest(http.MethodGet, "/api/v1/providers/holidays", nil, providerClaims("prov-1")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Empty(t, items)
}

func TestAuthRegisterAndLogin(t *testing.T) {
	users := memstore.NewUsers()
	h := handlers.NewAuthHandler(users, nil, "test-secret", time.Hour)

	reg := map[string]string{
		"email":    "dana@example.com",
		"password": "hunter2hunter2",
		"name":     "Dana",
		"role":     "provider",
	}
	rec := httptest.NewRecorder()
	h.Register(rec, authedRequest(http.MethodPost, "/api/v1/auth/register", reg, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		AccessToken string `json:"access_token"`
		ProviderID  string `json:"provider_id"`
		Role        string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.AccessToken)
	assert.NotEmpty(t, created.ProviderID)
	assert.Equal(t, "provider", created.Role)

	// Duplicate email.
	rec = httptest.NewRecorder()
	h.Register(rec, authedRequest(http.MethodPost, "/api/v1/auth/register", reg, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Login with the right password.
	rec = httptest.NewRecorder()
	h.Login(rec, authedRequest(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "dana@example.com", "password": "hunter2hunter2"}, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// And the wrong one.
	rec = httptest.NewRecorder()
	h.Login(rec, authedRequest(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "dana@example.com", "password": "wrong"}, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthMiddleware(t *testing.T) {
	var got *handlers.TokenClaims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = handlers.ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := handlers.RequireAuth("test-secret")(inner)

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	users := memstore.NewUsers()
	h := handlers.NewAuthHandler(users, nil, "test-secret", time.Hour)
	rec = httptest.NewRecorder()
	h.Register(rec, authedRequest(http.MethodPost, "/register",
		map[string]string{"email": "a@b.c", "password": "longenough", "name": "A"}, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, resp.UserID, got.Sub)
}
