package booking

import (
	"context"
	"time"

	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
	"github.com/slotline/slotline/services/scheduling-service/internal/slot"
)

// SlotView is one generated slot annotated with its current state.
type SlotView struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Booked bool      `json:"booked"`
	Past   bool      `json:"past"`
}

// Available reports whether the slot can still be booked.
func (v SlotView) Available() bool { return !v.Booked && !v.Past }

// AvailabilityResolver merges the generated slot grid with live booking and
// holiday state into the day view served to clients.
type AvailabilityResolver struct {
	store Store
	rules RuleSource
	cache SlotCache
	now   func() time.Time
}

func NewAvailabilityResolver(store Store, rules RuleSource, cache SlotCache) *AvailabilityResolver {
	if cache == nil {
		cache = NopCache{}
	}
	return &AvailabilityResolver{store: store, rules: rules, cache: cache, now: time.Now}
}

// DayView returns every slot the provider's rule generates for the date,
// each flagged booked and/or past. A provider without a rule, or a date its
// rule does not cover, yields an empty view rather than an error.
//
// The booked flags come from one ListActive snapshot per call, so the view
// is internally consistent but may already be stale when returned. Past
// flags are computed against the caller's clock after any cache fetch, so
// cached entries stay valid as the day advances.
func (r *AvailabilityResolver) DayView(ctx context.Context, providerID, date string) ([]SlotView, error) {
	if views, ok := r.cache.GetDay(ctx, providerID, date); ok {
		return r.markPast(views), nil
	}

	rl, err := r.rules.RuleFor(ctx, providerID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return []SlotView{}, nil
		}
		return nil, err
	}

	slots, err := slot.Generate(rl, date)
	if err != nil {
		return nil, Errorf(KindUnknown, "generate slots: %v", err)
	}
	if len(slots) == 0 {
		return []SlotView{}, nil
	}

	holidays, err := r.rules.HolidaysOn(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	slots = dropHolidaySlots(rl, slots, holidays)
	if len(slots) == 0 {
		return []SlotView{}, nil
	}

	active, err := r.store.ListActive(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	views := make([]SlotView, 0, len(slots))
	for _, s := range slots {
		v := SlotView{Start: s.Start, End: s.End}
		for _, a := range active {
			if slot.Overlaps(s.Start, s.End, a.Start, a.End) {
				v.Booked = true
				break
			}
		}
		views = append(views, v)
	}

	r.cache.SetDay(ctx, providerID, date, views)
	return r.markPast(views), nil
}

// markPast flags slots whose start is not after now. Applied after the
// cache so stored entries never carry a clock-dependent bit.
func (r *AvailabilityResolver) markPast(views []SlotView) []SlotView {
	now := r.now()
	out := make([]SlotView, len(views))
	for i, v := range views {
		v.Past = !v.Start.After(now)
		out[i] = v
	}
	return out
}

// dropHolidaySlots removes slots blocked by a full-day or windowed holiday.
func dropHolidaySlots(rl rule.Rule, slots []slot.Slot, holidays []rule.Holiday) []slot.Slot {
	if len(holidays) == 0 {
		return slots
	}
	loc := rl.Location()
	out := slots[:0]
	for _, s := range slots {
		start := s.Start.In(loc)
		startMin := start.Hour()*60 + start.Minute()
		blocked := false
		for _, h := range holidays {
			if h.Blocks(startMin, startMin+rl.SlotMinutes) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, s)
		}
	}
	return out
}
