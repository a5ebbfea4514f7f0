package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
	"github.com/slotline/slotline/services/scheduling-service/internal/slot"
)

// RuleStore is what the provider surface needs from rule storage.
type RuleStore interface {
	RuleFor(ctx context.Context, providerID string) (rule.Rule, error)
	Replace(ctx context.Context, rl rule.Rule) (rule.Rule, error)
	ListHolidays(ctx context.Context, providerID string) ([]rule.Holiday, error)
	AddHoliday(ctx context.Context, h rule.Holiday) (rule.Holiday, error)
	DeleteHoliday(ctx context.Context, providerID, holidayID string) error
}

// ProviderHandler owns the provider-facing configuration surface: the
// weekly availability rule and holiday exceptions.
type ProviderHandler struct {
	rules  RuleStore
	cache  booking.SlotCache
	logger *slog.Logger
}

func NewProviderHandler(rules RuleStore, cache booking.SlotCache, logger *slog.Logger) *ProviderHandler {
	if cache == nil {
		cache = booking.NopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderHandler{rules: rules, cache: cache, logger: logger}
}

type windowBody struct {
	Start  string `json:"start"` // HH:MM
	End    string `json:"end"`
	Reason string `json:"reason,omitempty"`
}

type ruleBody struct {
	Weekdays    []string     `json:"weekdays"`
	Start       string       `json:"start"` // HH:MM
	End         string       `json:"end"`
	SlotMinutes int          `json:"slot_minutes"`
	Breaks      []windowBody `json:"breaks,omitempty"`
	Timezone    string       `json:"timezone"`
	Version     int64        `json:"version,omitempty"`
	UpdatedAt   string       `json:"updated_at,omitempty"`
}

func toRuleBody(rl rule.Rule) ruleBody {
	body := ruleBody{
		Weekdays:    rl.Weekdays.Names(),
		Start:       minuteClock(rl.StartMinute),
		End:         minuteClock(rl.EndMinute),
		SlotMinutes: rl.SlotMinutes,
		Timezone:    rl.Timezone,
		Version:     rl.Version,
	}
	if !rl.UpdatedAt.IsZero() {
		body.UpdatedAt = rl.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, b := range rl.Breaks {
		body.Breaks = append(body.Breaks, windowBody{
			Start:  minuteClock(b.StartMinute),
			End:    minuteClock(b.EndMinute),
			Reason: b.Reason,
		})
	}
	return body
}

// Rule serves GET and PUT /api/v1/providers/rule. PUT replaces the whole
// rule; there is no partial patching of individual weekdays or windows.
func (h *ProviderHandler) Rule(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil || claims.Role != RoleProvider {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rl, err := h.rules.RuleFor(r.Context(), claims.ProviderID)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRuleBody(rl))

	case http.MethodPut:
		var body ruleBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		rl, err := ruleFromBody(claims.ProviderID, body)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		stored, err := h.rules.Replace(r.Context(), rl)
		if err != nil {
			if booking.KindOf(err) == booking.KindStorageUnavailable {
				writeBookingError(w, err)
				return
			}
			badRequest(w, err.Error())
			return
		}
		// Future day views may now differ; drop what is cached.
		h.invalidateUpcoming(r.Context(), claims.ProviderID)
		writeJSON(w, http.StatusOK, toRuleBody(stored))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type holidayBody struct {
	ID      string `json:"id,omitempty"`
	Date    string `json:"date"`
	Reason  string `json:"reason,omitempty"`
	FullDay bool   `json:"full_day"`
	Start   string `json:"start,omitempty"` // HH:MM, windowed holidays only
	End     string `json:"end,omitempty"`
}

// Holidays serves GET and POST /api/v1/providers/holidays plus DELETE with
// an id query parameter.
func (h *ProviderHandler) Holidays(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil || claims.Role != RoleProvider {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		holidays, err := h.rules.ListHolidays(r.Context(), claims.ProviderID)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		items := make([]holidayBody, 0, len(holidays))
		for _, hd := range holidays {
			items = append(items, toHolidayBody(hd))
		}
		writeJSON(w, http.StatusOK, items)

	case http.MethodPost:
		var body holidayBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		hd, err := holidayFromBody(claims.ProviderID, body)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		stored, err := h.rules.AddHoliday(r.Context(), hd)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		h.cache.InvalidateDay(r.Context(), claims.ProviderID, stored.Date)
		writeJSON(w, http.StatusCreated, toHolidayBody(stored))

	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			badRequest(w, "id required")
			return
		}
		if err := h.rules.DeleteHoliday(r.Context(), claims.ProviderID, id); err != nil {
			writeBookingError(w, err)
			return
		}
		h.invalidateUpcoming(r.Context(), claims.ProviderID)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// invalidateUpcoming drops cached day views for the near future. Cached
// entries carry a short TTL anyway, so bounding the horizon is fine.
func (h *ProviderHandler) invalidateUpcoming(ctx context.Context, providerID string) {
	today := time.Now().UTC()
	for i := 0; i < 31; i++ {
		h.cache.InvalidateDay(ctx, providerID, today.AddDate(0, 0, i).Format(slot.DateFormat))
	}
}

func toHolidayBody(hd rule.Holiday) holidayBody {
	body := holidayBody{
		ID:      hd.ID,
		Date:    hd.Date,
		Reason:  hd.Reason,
		FullDay: hd.FullDay,
	}
	if !hd.FullDay {
		body.Start = minuteClock(hd.Window.StartMinute)
		body.End = minuteClock(hd.Window.EndMinute)
	}
	return body
}

func holidayFromBody(providerID string, body holidayBody) (rule.Holiday, error) {
	if _, err := slot.ParseDate(strings.TrimSpace(body.Date)); err != nil {
		return rule.Holiday{}, err
	}
	hd := rule.Holiday{
		ProviderID: providerID,
		Date:       strings.TrimSpace(body.Date),
		Reason:     strings.TrimSpace(body.Reason),
		FullDay:    body.FullDay,
	}
	if !hd.FullDay {
		start, err := clockMinute(body.Start)
		if err != nil {
			return rule.Holiday{}, err
		}
		end, err := clockMinute(body.End)
		if err != nil {
			return rule.Holiday{}, err
		}
		hd.Window = rule.Window{StartMinute: start, EndMinute: end}
		if end <= start {
			return rule.Holiday{}, rule.ErrBadWindow
		}
	}
	return hd, nil
}

func ruleFromBody(providerID string, body ruleBody) (rule.Rule, error) {
	weekdays, err := rule.ParseWeekdays(body.Weekdays)
	if err != nil {
		return rule.Rule{}, err
	}
	start, err := clockMinute(body.Start)
	if err != nil {
		return rule.Rule{}, err
	}
	end, err := clockMinute(body.End)
	if err != nil {
		return rule.Rule{}, err
	}
	rl := rule.Rule{
		ProviderID:  providerID,
		Weekdays:    weekdays,
		StartMinute: start,
		EndMinute:   end,
		SlotMinutes: body.SlotMinutes,
		Timezone:    strings.TrimSpace(body.Timezone),
	}
	for _, b := range body.Breaks {
		bs, err := clockMinute(b.Start)
		if err != nil {
			return rule.Rule{}, err
		}
		be, err := clockMinute(b.End)
		if err != nil {
			return rule.Rule{}, err
		}
		rl.Breaks = append(rl.Breaks, rule.Window{StartMinute: bs, EndMinute: be, Reason: strings.TrimSpace(b.Reason)})
	}
	if err := rl.Validate(); err != nil {
		return rule.Rule{}, err
	}
	return rl, nil
}

func minuteClock(min int) string {
	return time.Date(2000, 1, 1, min/60, min%60, 0, 0, time.UTC).Format("15:04")
}

func clockMinute(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
