package rule

import (
	"testing"
	"time"
)

func TestParseWeekdays(t *testing.T) {
	w, err := ParseWeekdays([]string{"monday", "Wednesday", " friday "})
	if err != nil {
		t.Fatalf("ParseWeekdays failed: %v", err)
	}
	if !w.On(time.Monday) || !w.On(time.Wednesday) || !w.On(time.Friday) {
		t.Fatalf("expected mon/wed/fri active, got %v", w.Names())
	}
	if w.On(time.Sunday) || w.Count() != 3 {
		t.Fatalf("unexpected weekday set: %v", w.Names())
	}

	if _, err := ParseWeekdays([]string{"caturday"}); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}

func TestRuleValidate(t *testing.T) {
	base := Rule{
		ProviderID:  "p1",
		Weekdays:    Weekdays(0).With(time.Monday),
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
		SlotMinutes: 30,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"no weekdays", func(r *Rule) { r.Weekdays = 0 }},
		{"start after end", func(r *Rule) { r.StartMinute = 18 * 60 }},
		{"start equals end", func(r *Rule) { r.StartMinute = r.EndMinute }},
		{"zero duration", func(r *Rule) { r.SlotMinutes = 0 }},
		{"negative duration", func(r *Rule) { r.SlotMinutes = -15 }},
		{"break outside hours", func(r *Rule) {
			r.Breaks = []Window{{StartMinute: 8 * 60, EndMinute: 9*60 + 30}}
		}},
		{"inverted break", func(r *Rule) {
			r.Breaks = []Window{{StartMinute: 13 * 60, EndMinute: 12 * 60}}
		}},
	}
	for _, tc := range cases {
		r := base
		tc.mutate(&r)
		if err := r.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestHolidayBlocks(t *testing.T) {
	full := Holiday{FullDay: true}
	if !full.Blocks(9*60, 9*60+30) {
		t.Fatal("full-day holiday should block every slot")
	}

	partial := Holiday{Window: Window{StartMinute: 12 * 60, EndMinute: 13 * 60}}
	if !partial.Blocks(12*60+30, 13*60) {
		t.Fatal("slot inside the window should be blocked")
	}
	if partial.Blocks(13*60, 13*60+30) {
		t.Fatal("slot starting at window end should not be blocked")
	}
}

func TestLocationFallback(t *testing.T) {
	if (Rule{}).Location() != time.UTC {
		t.Fatal("empty timezone should fall back to UTC")
	}
	if (Rule{Timezone: "not/azone"}).Location() != time.UTC {
		t.Fatal("bad timezone should fall back to UTC")
	}
}
