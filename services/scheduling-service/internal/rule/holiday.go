package rule

import "time"

// Holiday blocks a provider's availability for one calendar date, either the
// whole day or a clock-time window inside it.
type Holiday struct {
	ID         string
	ProviderID string
	Date       string // provider-local date, YYYY-MM-DD
	Reason     string
	FullDay    bool
	Window     Window // only meaningful when FullDay is false
	CreatedAt  time.Time
}

// Blocks reports whether the holiday suppresses a slot spanning
// [startMin,endMin) minutes since midnight on its date.
func (h Holiday) Blocks(startMin, endMin int) bool {
	if h.FullDay {
		return true
	}
	return h.Window.Overlaps(startMin, endMin)
}
