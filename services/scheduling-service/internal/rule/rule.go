// Package rule models a provider's weekly availability template: the active
// weekdays, the daily working window, the slot length, and optional break
// windows inside the day. A provider has exactly one rule; saving a new one
// replaces the previous rule wholesale.
package rule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Weekdays is a bitmask over time.Weekday (bit 0 = Sunday).
type Weekdays uint8

func (w Weekdays) On(d time.Weekday) bool {
	return w&(1<<uint(d)) != 0
}

func (w Weekdays) With(d time.Weekday) Weekdays {
	return w | (1 << uint(d))
}

func (w Weekdays) Count() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.On(d) {
			n++
		}
	}
	return n
}

// Names returns the active weekdays as lowercase names, Sunday first.
func (w Weekdays) Names() []string {
	var names []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.On(d) {
			names = append(names, strings.ToLower(d.String()))
		}
	}
	return names
}

// ParseWeekdays accepts lowercase or capitalized weekday names.
func ParseWeekdays(names []string) (Weekdays, error) {
	var w Weekdays
	for _, name := range names {
		matched := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.EqualFold(strings.TrimSpace(name), d.String()) {
				w = w.With(d)
				matched = true
				break
			}
		}
		if !matched {
			return 0, fmt.Errorf("unknown weekday %q", name)
		}
	}
	return w, nil
}

// Window is a clock-time interval inside a working day, in minutes since
// midnight. Used for break windows and partial-day holidays.
type Window struct {
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Reason      string `json:"reason,omitempty"`
}

func (w Window) valid() bool {
	return w.StartMinute >= 0 && w.EndMinute <= 24*60 && w.StartMinute < w.EndMinute
}

// Overlaps reports whether [startMin,endMin) intersects the window.
func (w Window) Overlaps(startMin, endMin int) bool {
	return startMin < w.EndMinute && w.StartMinute < endMin
}

// Rule is a provider's current weekly availability template.
type Rule struct {
	ProviderID  string
	Weekdays    Weekdays
	StartMinute int
	EndMinute   int
	SlotMinutes int
	Breaks      []Window
	Timezone    string
	Version     int64
	UpdatedAt   time.Time
}

var (
	ErrNoWeekdays  = errors.New("rule must have at least one active weekday")
	ErrBadWindow   = errors.New("rule start must be before end, within one day")
	ErrBadDuration = errors.New("slot duration must be positive")
	ErrBadBreak    = errors.New("break windows must be valid and inside working hours")
)

func (r Rule) Validate() error {
	if r.Weekdays == 0 {
		return ErrNoWeekdays
	}
	if r.StartMinute < 0 || r.EndMinute > 24*60 || r.StartMinute >= r.EndMinute {
		return ErrBadWindow
	}
	if r.SlotMinutes <= 0 {
		return ErrBadDuration
	}
	for _, b := range r.Breaks {
		if !b.valid() || b.StartMinute < r.StartMinute || b.EndMinute > r.EndMinute {
			return ErrBadBreak
		}
	}
	return nil
}

// Location resolves the provider's canonical time zone, defaulting to UTC.
// All of the provider's slots and appointments live in this one zone.
func (r Rule) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
