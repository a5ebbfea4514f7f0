package booking

import "time"

// Status is the appointment lifecycle state. BOOKED transitions to CANCELED
// or COMPLETED; both are terminal.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

// Appointment is one reserved slot. The (ProviderID, Date, Start, End) tuple
// of an active (non-canceled) appointment never overlaps another active
// appointment for the same provider; the store enforces this at insert.
type Appointment struct {
	ID             string
	ProviderID     string
	CustomerID     string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	ServiceType    string
	Notes          string
	Date           string // provider-local date, YYYY-MM-DD
	Start          time.Time
	End            time.Time
	Status         Status
	IdempotencyKey string
	CreatedAt      time.Time
	CanceledAt     *time.Time
}

// Active reports whether the appointment still occupies its slot.
func (a Appointment) Active() bool {
	return a.Status == StatusBooked
}
