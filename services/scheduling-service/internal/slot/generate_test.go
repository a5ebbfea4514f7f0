package slot

import (
	"testing"
	"time"

	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
)

func mondayRule(slotMinutes int) rule.Rule {
	return rule.Rule{
		ProviderID:  "p1",
		Weekdays:    rule.Weekdays(0).With(time.Monday),
		StartMinute: 9 * 60,
		EndMinute:   10 * 60,
		SlotMinutes: slotMinutes,
	}
}

// 2026-01-05 is a Monday.
const monday = "2026-01-05"

func mustGenerate(t *testing.T, r rule.Rule, date string) []Slot {
	t.Helper()
	slots, err := Generate(r, date)
	if err != nil {
		t.Fatalf("Generate(%q): %v", date, err)
	}
	return slots
}

func TestGenerateBasic(t *testing.T) {
	slots := mustGenerate(t, mondayRule(30), monday)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	want0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	want1 := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	if !slots[0].Start.Equal(want0) || !slots[0].End.Equal(want1) {
		t.Fatalf("slot 0 wrong: %v", slots[0])
	}
	if !slots[1].Start.Equal(want1) || !slots[1].End.Equal(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("slot 1 wrong: %v", slots[1])
	}
}

func TestGenerateInactiveWeekday(t *testing.T) {
	if slots := mustGenerate(t, mondayRule(30), "2026-01-06"); len(slots) != 0 {
		t.Fatalf("expected no slots on inactive weekday, got %d", len(slots))
	}
}

func TestGenerateBadDate(t *testing.T) {
	if _, err := Generate(mondayRule(30), "05/01/2026"); err == nil {
		t.Fatal("expected an error for a non-ISO date")
	}
	if _, err := Generate(mondayRule(30), ""); err == nil {
		t.Fatal("expected an error for an empty date")
	}
}

func TestGenerateRespectsRuleZone(t *testing.T) {
	r := mondayRule(30)
	r.Timezone = "America/New_York"
	slots := mustGenerate(t, r, monday)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	// 09:00 New York is 14:00 UTC in January.
	if want := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC); !slots[0].Start.Equal(want) {
		t.Fatalf("zone-anchored start wrong: got %v, want %v", slots[0].Start, want)
	}
}

func TestGenerateDropsPartialTrailingSlot(t *testing.T) {
	// 60 minutes of working time, 45-minute slots: only one fits; the
	// trailing 15 minutes must be dropped rather than shortened.
	slots := mustGenerate(t, mondayRule(45), monday)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if got := slots[0].End.Sub(slots[0].Start); got != 45*time.Minute {
		t.Fatalf("slot length %v, want 45m", got)
	}
}

func TestGenerateProperties(t *testing.T) {
	r := rule.Rule{
		Weekdays:    rule.Weekdays(0).With(time.Monday),
		StartMinute: 8 * 60,
		EndMinute:   18*60 + 10,
		SlotMinutes: 25,
	}
	slots := mustGenerate(t, r, monday)
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	dayStart := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	dayEnd := time.Date(2026, 1, 5, 18, 10, 0, 0, time.UTC)
	for i, s := range slots {
		if s.Start.Before(dayStart) || s.End.After(dayEnd) {
			t.Fatalf("slot %d escapes the working window: %v", i, s)
		}
		if s.End.Sub(s.Start) != 25*time.Minute {
			t.Fatalf("slot %d has wrong length", i)
		}
		if i > 0 && slots[i-1].End.After(s.Start) {
			t.Fatalf("slot %d overlaps its predecessor", i)
		}
		if i > 0 && !s.Start.After(slots[i-1].Start) {
			t.Fatalf("slots not strictly ascending at %d", i)
		}
	}
}

func TestGenerateSkipsBreaks(t *testing.T) {
	r := rule.Rule{
		Weekdays:    rule.Weekdays(0).With(time.Monday),
		StartMinute: 9 * 60,
		EndMinute:   12 * 60,
		SlotMinutes: 60,
		Breaks:      []rule.Window{{StartMinute: 10 * 60, EndMinute: 11 * 60, Reason: "lunch"}},
	}
	slots := mustGenerate(t, r, monday)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots around the break, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Hour() == 10 {
			t.Fatalf("break slot leaked through: %v", s)
		}
	}
}

func TestAligned(t *testing.T) {
	r := mondayRule(30)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if !Aligned(r, monday, start, start.Add(30*time.Minute)) {
		t.Fatal("expected 09:00-09:30 to be aligned")
	}
	off := time.Date(2026, 1, 5, 9, 5, 0, 0, time.UTC)
	if Aligned(r, monday, off, off.Add(30*time.Minute)) {
		t.Fatal("09:05 must not be aligned on 30-minute boundaries")
	}
	if Aligned(r, monday, start, start.Add(time.Hour)) {
		t.Fatal("double-length interval must not be aligned")
	}
	if Aligned(r, "not-a-date", start, start.Add(30*time.Minute)) {
		t.Fatal("an unparsable date must align with nothing")
	}
}

func TestParseDate(t *testing.T) {
	day, err := ParseDate(monday)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if day.Format(DateFormat) != monday {
		t.Fatalf("round-trip lost the date: %v", day)
	}
	if _, err := ParseDate("2026-13-40"); err == nil {
		t.Fatal("expected an error for an impossible date")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	r := mondayRule(20)
	a := mustGenerate(t, r, monday)
	b := mustGenerate(t, r, monday)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic lengths: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			t.Fatalf("non-deterministic slot %d", i)
		}
	}
}
