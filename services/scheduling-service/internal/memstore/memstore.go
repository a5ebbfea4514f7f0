// Package memstore is an in-memory implementation of the booking storage
// interfaces, used by tests and by dev mode when no database is configured.
// Atomicity is per (providerID, date) key: each day holds its own mutex, so
// bookings for different days never contend.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
	"github.com/slotline/slotline/services/scheduling-service/internal/slot"
)

type day struct {
	mu    sync.Mutex
	appts []string // appointment ids, insertion order
}

// Store keeps appointments in memory with per-day locking.
type Store struct {
	mu   sync.Mutex // guards the maps, not the day contents
	days map[string]*day
	byID map[string]*booking.Appointment
}

func NewStore() *Store {
	return &Store{
		days: make(map[string]*day),
		byID: make(map[string]*booking.Appointment),
	}
}

func dayKey(providerID, date string) string { return providerID + "|" + date }

func (s *Store) dayFor(providerID, date string) *day {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dayKey(providerID, date)
	d, ok := s.days[k]
	if !ok {
		d = &day{}
		s.days[k] = d
	}
	return d
}

func (s *Store) ListActive(_ context.Context, providerID, date string) ([]booking.Appointment, error) {
	d := s.dayFor(providerID, date)
	d.mu.Lock()
	defer d.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Appointment
	for _, id := range d.appts {
		a := s.byID[id]
		if a.Status == booking.StatusBooked {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *Store) HasOverlap(ctx context.Context, providerID, date string, start, end time.Time) (bool, error) {
	active, err := s.ListActive(ctx, providerID, date)
	if err != nil {
		return false, err
	}
	for _, a := range active {
		if slot.Overlaps(start, end, a.Start, a.End) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertIfAvailable(_ context.Context, appt booking.Appointment) (booking.Appointment, error) {
	d := s.dayFor(appt.ProviderID, appt.Date)
	d.mu.Lock()
	defer d.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if appt.IdempotencyKey != "" {
		for _, a := range s.byID {
			if a.ProviderID == appt.ProviderID && a.IdempotencyKey == appt.IdempotencyKey {
				return booking.Appointment{}, booking.ErrIdempotentReplay()
			}
		}
	}
	for _, id := range d.appts {
		a := s.byID[id]
		if a.Status == booking.StatusBooked && slot.Overlaps(appt.Start, appt.End, a.Start, a.End) {
			return booking.Appointment{}, booking.Errorf(booking.KindConflict, "slot already booked")
		}
	}

	stored := appt
	s.byID[stored.ID] = &stored
	d.appts = append(d.appts, stored.ID)
	return stored, nil
}

func (s *Store) Transition(_ context.Context, id string, from, to booking.Status) (booking.Appointment, error) {
	s.mu.Lock()
	a, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return booking.Appointment{}, booking.Errorf(booking.KindNotFound, "appointment %s not found", id)
	}

	d := s.dayFor(a.ProviderID, a.Date)
	d.mu.Lock()
	defer d.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status != from {
		return booking.Appointment{}, booking.Errorf(booking.KindInvalidTransition,
			"appointment %s is %s, expected %s", id, a.Status, from)
	}
	a.Status = to
	if to == booking.StatusCanceled {
		now := time.Now().UTC()
		a.CanceledAt = &now
	}
	return *a, nil
}

func (s *Store) Get(_ context.Context, id string) (booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return booking.Appointment{}, booking.Errorf(booking.KindNotFound, "appointment %s not found", id)
	}
	return *a, nil
}

func (s *Store) GetByIdempotencyKey(_ context.Context, providerID, key string) (booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.ProviderID == providerID && a.IdempotencyKey == key {
			return *a, nil
		}
	}
	return booking.Appointment{}, booking.Errorf(booking.KindNotFound, "no appointment for key %s", key)
}

func (s *Store) List(_ context.Context, providerID, customerID string, status booking.Status, limit int) ([]booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Appointment
	for _, a := range s.byID {
		if providerID != "" && a.ProviderID != providerID {
			continue
		}
		if customerID != "" && a.CustomerID != customerID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListRange(_ context.Context, providerID, from, to string, includeCanceled bool) ([]booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Appointment
	for _, a := range s.byID {
		if a.ProviderID != providerID {
			continue
		}
		if strings.Compare(a.Date, from) < 0 || strings.Compare(a.Date, to) > 0 {
			continue
		}
		if !includeCanceled && a.Status == booking.StatusCanceled {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) DueForCompletion(_ context.Context, cutoff time.Time, limit int) ([]booking.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Appointment
	for _, a := range s.byID {
		if a.Status == booking.StatusBooked && !a.End.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].End.Before(out[j].End) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Rules is an in-memory RuleSource.
type Rules struct {
	mu       sync.Mutex
	rules    map[string]rule.Rule
	holidays map[string][]rule.Holiday // keyed by providerID|date
}

func NewRules() *Rules {
	return &Rules{
		rules:    make(map[string]rule.Rule),
		holidays: make(map[string][]rule.Holiday),
	}
}

func (r *Rules) Put(rl rule.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rl.ProviderID] = rl
}

// Replace swaps the provider's rule wholesale, bumping the version.
func (r *Rules) Replace(_ context.Context, rl rule.Rule) (rule.Rule, error) {
	if err := rl.Validate(); err != nil {
		return rule.Rule{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.rules[rl.ProviderID]; ok {
		rl.Version = prev.Version + 1
	} else {
		rl.Version = 1
	}
	rl.UpdatedAt = time.Now().UTC()
	r.rules[rl.ProviderID] = rl
	return rl, nil
}

func (r *Rules) AddHoliday(_ context.Context, h rule.Holiday) (rule.Holiday, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.CreatedAt = time.Now().UTC()
	k := h.ProviderID + "|" + h.Date
	r.holidays[k] = append(r.holidays[k], h)
	return h, nil
}

func (r *Rules) ListHolidays(_ context.Context, providerID string) ([]rule.Holiday, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []rule.Holiday
	for _, hs := range r.holidays {
		for _, h := range hs {
			if h.ProviderID == providerID {
				out = append(out, h)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *Rules) DeleteHoliday(_ context.Context, providerID, holidayID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, hs := range r.holidays {
		for i, h := range hs {
			if h.ID == holidayID && h.ProviderID == providerID {
				r.holidays[k] = append(hs[:i], hs[i+1:]...)
				return nil
			}
		}
	}
	return booking.Errorf(booking.KindNotFound, "holiday %s not found", holidayID)
}

func (r *Rules) RuleFor(_ context.Context, providerID string) (rule.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.rules[providerID]
	if !ok {
		return rule.Rule{}, booking.Errorf(booking.KindNotFound, "no rule for provider %s", providerID)
	}
	return rl, nil
}

func (r *Rules) HolidaysOn(_ context.Context, providerID, date string) ([]rule.Holiday, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rule.Holiday(nil), r.holidays[providerID+"|"+date]...), nil
}
