package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/memstore"
	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
)

// memCache is a trivially observable SlotCache for resolver tests.
type memCache struct {
	mu   sync.Mutex
	days map[string][]booking.SlotView
	sets int
	hits int
}

func newMemCache() *memCache { return &memCache{days: make(map[string][]booking.SlotView)} }

func (c *memCache) GetDay(_ context.Context, providerID, date string) ([]booking.SlotView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.days[providerID+"|"+date]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *memCache) SetDay(_ context.Context, providerID, date string, slots []booking.SlotView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.days[providerID+"|"+date] = slots
	c.sets++
}

func (c *memCache) InvalidateDay(_ context.Context, providerID, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.days, providerID+"|"+date)
}

func TestDayViewMarksBookedSlots(t *testing.T) {
	c, store, rules := newCoordinator(t)
	resolver := booking.NewAvailabilityResolver(store, rules, nil)
	date, start := tomorrowAt(9 * 60)

	_, err := c.Book(context.Background(), booking.BookRequest{
		ProviderID: "prov-1", CustomerID: "cust-1", Date: date, Start: start,
	})
	require.NoError(t, err)

	views, err := resolver.DayView(context.Background(), "prov-1", date)
	require.NoError(t, err)
	// 09:00-17:00 at 30 minutes is 16 slots.
	require.Len(t, views, 16)

	assert.True(t, views[0].Booked)
	assert.False(t, views[0].Available())
	for _, v := range views[1:] {
		assert.False(t, v.Booked)
	}
}

func TestDayViewUnknownProviderIsEmpty(t *testing.T) {
	store := memstore.NewStore()
	rules := memstore.NewRules()
	resolver := booking.NewAvailabilityResolver(store, rules, nil)

	views, err := resolver.DayView(context.Background(), "nobody", "2026-06-01")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestDayViewInactiveWeekdayIsEmpty(t *testing.T) {
	store := memstore.NewStore()
	rules := memstore.NewRules()
	rl := testRule("prov-1")
	rl.Weekdays = rule.Weekdays(0).With(time.Monday)
	rules.Put(rl)
	resolver := booking.NewAvailabilityResolver(store, rules, nil)

	// 2026-06-02 is a Tuesday.
	views, err := resolver.DayView(context.Background(), "prov-1", "2026-06-02")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestDayViewPastMarking(t *testing.T) {
	store := memstore.NewStore()
	rules := memstore.NewRules()
	rules.Put(testRule("prov-1"))
	resolver := booking.NewAvailabilityResolver(store, rules, nil)

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	views, err := resolver.DayView(context.Background(), "prov-1", yesterday)
	require.NoError(t, err)
	require.NotEmpty(t, views)
	for _, v := range views {
		assert.True(t, v.Past)
		assert.False(t, v.Available())
	}
}

func TestDayViewHolidayWindow(t *testing.T) {
	store := memstore.NewStore()
	rules := memstore.NewRules()
	rules.Put(testRule("prov-1"))
	date, _ := tomorrowAt(0)
	// Block the morning only.
	rules.AddHoliday(context.Background(), rule.Holiday{
		ProviderID: "prov-1", Date: date, Reason: "training",
		Window: rule.Window{StartMinute: 9 * 60, EndMinute: 12 * 60},
	})
	resolver := booking.NewAvailabilityResolver(store, rules, nil)

	views, err := resolver.DayView(context.Background(), "prov-1", date)
	require.NoError(t, err)
	// 12:00-17:00 at 30 minutes is 10 slots.
	require.Len(t, views, 10)
	assert.Equal(t, 12, views[0].Start.UTC().Hour())
}

func TestDayViewUsesCacheAndInvalidation(t *testing.T) {
	store := memstore.NewStore()
	rules := memstore.NewRules()
	rules.Put(testRule("prov-1"))
	cache := newMemCache()
	resolver := booking.NewAvailabilityResolver(store, rules, cache)
	coord := booking.NewCoordinator(store, rules, nil, cache, nil)
	date, start := tomorrowAt(9 * 60)

	_, err := resolver.DayView(context.Background(), "prov-1", date)
	require.NoError(t, err)
	_, err = resolver.DayView(context.Background(), "prov-1", date)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 1, cache.hits)

	// Booking invalidates the day, so the next read repopulates.
	_, err = coord.Book(context.Background(), booking.BookRequest{
		ProviderID: "prov-1", CustomerID: "cust-1", Date: date, Start: start,
	})
	require.NoError(t, err)

	views, err := resolver.DayView(context.Background(), "prov-1", date)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets)
	assert.True(t, views[0].Booked)
}
