package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/slot"
)

type BookingHandler struct {
	coord    *booking.Coordinator
	resolver *booking.AvailabilityResolver
	store    booking.Store
	logger   *slog.Logger
}

func NewBookingHandler(coord *booking.Coordinator, resolver *booking.AvailabilityResolver, store booking.Store, logger *slog.Logger) *BookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingHandler{coord: coord, resolver: resolver, store: store, logger: logger}
}

type createBookingRequest struct {
	ProviderID    string `json:"provider_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	ServiceType   string `json:"service_type"`
	Notes         string `json:"notes"`
	Date          string `json:"date"`
	Start         string `json:"start"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Start         string `json:"start"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	ProviderID    string `json:"provider_id"`
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	ServiceType   string `json:"service_type,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Date          string `json:"date"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Status        string `json:"status"`
	CanceledAt    string `json:"canceled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toAppointmentResponse(a booking.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		CustomerID:    a.CustomerID,
		CustomerName:  a.CustomerName,
		ServiceType:   a.ServiceType,
		Notes:         a.Notes,
		Date:          a.Date,
		Start:         a.Start.UTC().Format(time.RFC3339),
		End:           a.End.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CanceledAt != nil {
		resp.CanceledAt = a.CanceledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Slots serves GET /api/v1/slots?provider_id=...&date=YYYY-MM-DD.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || date == "" {
		badRequest(w, "provider_id and date are required")
		return
	}
	if _, err := slot.ParseDate(date); err != nil {
		badRequest(w, "invalid date, want YYYY-MM-DD")
		return
	}

	views, err := h.resolver.DayView(r.Context(), providerID, date)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	type slotItem struct {
		Start     string `json:"start"`
		End       string `json:"end"`
		Booked    bool   `json:"booked"`
		Past      bool   `json:"past"`
		Available bool   `json:"available"`
	}
	items := make([]slotItem, 0, len(views))
	for _, v := range views {
		items = append(items, slotItem{
			Start:     v.Start.UTC().Format(time.RFC3339),
			End:       v.End.UTC().Format(time.RFC3339),
			Booked:    v.Booked,
			Past:      v.Past,
			Available: v.Available(),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// Create serves POST /api/v1/bookings. The customer identity comes from the
// access token; an Idempotency-Key header makes retries safe.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Date = strings.TrimSpace(req.Date)
	if req.ProviderID == "" || req.CustomerName == "" || req.Date == "" || req.Start == "" {
		badRequest(w, "provider_id, customer_name, date and start are required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		badRequest(w, "invalid start, want RFC3339")
		return
	}
	if _, err := slot.ParseDate(req.Date); err != nil {
		badRequest(w, "invalid date, want YYYY-MM-DD")
		return
	}

	appt, err := h.coord.Book(r.Context(), booking.BookRequest{
		ProviderID:     req.ProviderID,
		CustomerID:     claims.Sub,
		CustomerName:   req.CustomerName,
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		ServiceType:    strings.TrimSpace(req.ServiceType),
		Notes:          strings.TrimSpace(req.Notes),
		Date:           req.Date,
		Start:          start,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// Cancel serves POST /api/v1/bookings/cancel. Providers can cancel any of
// their appointments; customers only their own.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		badRequest(w, "appointment_id required")
		return
	}

	if !h.mayModify(w, r, claims, req.AppointmentID) {
		return
	}
	appt, err := h.coord.Cancel(r.Context(), req.AppointmentID)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Reschedule serves POST /api/v1/bookings/reschedule.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Date = strings.TrimSpace(req.Date)
	if req.AppointmentID == "" || req.Date == "" || req.Start == "" {
		badRequest(w, "appointment_id, date and start are required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		badRequest(w, "invalid start, want RFC3339")
		return
	}
	if _, err := slot.ParseDate(req.Date); err != nil {
		badRequest(w, "invalid date, want YYYY-MM-DD")
		return
	}

	if !h.mayModify(w, r, claims, req.AppointmentID) {
		return
	}
	appt, err := h.coord.Reschedule(r.Context(), req.AppointmentID, req.Date, start)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// List serves GET /api/v1/appointments. Providers see their book; customers
// see their own appointments.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var providerID, customerID string
	if claims.Role == RoleProvider {
		providerID = claims.ProviderID
	} else {
		customerID = claims.Sub
	}

	status := booking.Status(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", booking.StatusBooked, booking.StatusCanceled, booking.StatusCompleted:
	default:
		badRequest(w, "unknown status filter")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.store.List(r.Context(), providerID, customerID, status, limit)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, items)
}

// Calendar serves GET /api/v1/calendar?from=...&to=... for providers,
// bucketing appointments by date across the range.
func (h *BookingHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil || claims.Role != RoleProvider {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		badRequest(w, "from and to are required")
		return
	}
	fromDay, err := slot.ParseDate(from)
	if err != nil {
		badRequest(w, "invalid from, want YYYY-MM-DD")
		return
	}
	toDay, err := slot.ParseDate(to)
	if err != nil {
		badRequest(w, "invalid to, want YYYY-MM-DD")
		return
	}
	if toDay.Before(fromDay) || toDay.Sub(fromDay) > 62*24*time.Hour {
		badRequest(w, "range must be ascending and at most 62 days")
		return
	}
	includeCanceled := r.URL.Query().Get("include_canceled") == "true"

	appts, err := h.store.ListRange(r.Context(), claims.ProviderID, from, to, includeCanceled)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	type dayBucket struct {
		Date         string                `json:"date"`
		Appointments []appointmentResponse `json:"appointments"`
	}
	byDate := make(map[string][]appointmentResponse)
	for _, a := range appts {
		byDate[a.Date] = append(byDate[a.Date], toAppointmentResponse(a))
	}
	var buckets []dayBucket
	for d := fromDay; !d.After(toDay); d = d.AddDate(0, 0, 1) {
		key := d.Format(slot.DateFormat)
		if items, ok := byDate[key]; ok {
			buckets = append(buckets, dayBucket{Date: key, Appointments: items})
		}
	}
	if buckets == nil {
		buckets = []dayBucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

// mayModify enforces appointment ownership before cancel and reschedule.
func (h *BookingHandler) mayModify(w http.ResponseWriter, r *http.Request, claims *TokenClaims, appointmentID string) bool {
	appt, err := h.store.Get(r.Context(), appointmentID)
	if err != nil {
		writeBookingError(w, err)
		return false
	}
	if claims.Role == RoleProvider && appt.ProviderID == claims.ProviderID {
		return true
	}
	if appt.CustomerID == claims.Sub {
		return true
	}
	http.Error(w, "forbidden", http.StatusForbidden)
	return false
}
