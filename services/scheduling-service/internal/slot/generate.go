// Package slot turns a weekly availability rule and a calendar date into the
// finite, ordered set of bookable intervals for that date. Generation is a
// pure function of its inputs: no clock, no storage, safe under any
// concurrency.
package slot

import (
	"fmt"
	"time"

	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
)

// Slot is one candidate interval, half-open [Start,End).
type Slot struct {
	Start time.Time
	End   time.Time
}

// DateFormat is the canonical wire format for provider-local dates.
const DateFormat = "2006-01-02"

// ParseDate validates a YYYY-MM-DD wire date. The result is midnight UTC;
// it identifies a calendar day for validation and range arithmetic, not an
// instant. Interpretation in the provider's zone happens in Generate.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateFormat, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	return t, nil
}

// Generate enumerates the candidate slots for the YYYY-MM-DD date under r,
// ascending by start time, anchored in r's zone. The date's weekday must be
// active or the result is empty. The walk steps by the slot duration from
// the day's start; an incomplete trailing interval is dropped, never
// shortened. Slots overlapping a break window are omitted.
func Generate(r rule.Rule, date string) ([]Slot, error) {
	loc := r.Location()
	day, err := time.ParseInLocation(DateFormat, date, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	if !r.Weekdays.On(day.Weekday()) {
		return nil, nil
	}

	step := time.Duration(r.SlotMinutes) * time.Minute
	y, m, d := day.Date()
	dayStart := time.Date(y, m, d, 0, r.StartMinute, 0, 0, loc)
	dayEnd := time.Date(y, m, d, 0, r.EndMinute, 0, 0, loc)

	var slots []Slot
	for t := dayStart; !t.Add(step).After(dayEnd); t = t.Add(step) {
		startMin := r.StartMinute + int(t.Sub(dayStart)/time.Minute)
		endMin := startMin + r.SlotMinutes
		if overlapsBreak(r.Breaks, startMin, endMin) {
			continue
		}
		slots = append(slots, Slot{Start: t, End: t.Add(step)})
	}
	return slots, nil
}

// Aligned reports whether (start,end) is exactly one of the candidates
// Generate would produce for date under r. An unparsable date aligns with
// nothing.
func Aligned(r rule.Rule, date string, start, end time.Time) bool {
	slots, err := Generate(r, date)
	if err != nil {
		return false
	}
	for _, s := range slots {
		if s.Start.Equal(start) && s.End.Equal(end) {
			return true
		}
	}
	return false
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func overlapsBreak(breaks []rule.Window, startMin, endMin int) bool {
	for _, b := range breaks {
		if b.Overlaps(startMin, endMin) {
			return true
		}
	}
	return false
}
