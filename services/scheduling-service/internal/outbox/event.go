package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
)

// Topic names equal event types, one event per topic.
const (
	EventAppointmentBooked    = "scheduling.appointment.booked.v1"
	EventAppointmentCanceled  = "scheduling.appointment.canceled.v1"
	EventAppointmentCompleted = "scheduling.appointment.completed.v1"
	EventReminderDue          = "scheduling.reminder.due.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentPayload is the JSON body of all appointment lifecycle events.
type AppointmentPayload struct {
	AppointmentID string     `json:"appointment_id"`
	ProviderID    string     `json:"provider_id"`
	CustomerID    string     `json:"customer_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	ServiceType   string     `json:"service_type"`
	Date          string     `json:"date"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Status        string     `json:"status"`
	CanceledAt    *time.Time `json:"canceled_at,omitempty"`
}

// ReminderDuePayload is the JSON body of reminder.due events.
type ReminderDuePayload struct {
	ReminderID    string    `json:"reminder_id"`
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Start         time.Time `json:"start"`
	OffsetMinutes int       `json:"offset_minutes"`
}

// InsertAppointmentEvent records an appointment lifecycle event inside the
// caller's transaction, so the event is durable iff the state change is.
func (r *Repository) InsertAppointmentEvent(ctx context.Context, tx pgx.Tx, eventType string, appt booking.Appointment) error {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		CustomerID:    appt.CustomerID,
		CustomerName:  appt.CustomerName,
		CustomerEmail: appt.CustomerEmail,
		CustomerPhone: appt.CustomerPhone,
		ServiceType:   appt.ServiceType,
		Date:          appt.Date,
		Start:         appt.Start,
		End:           appt.End,
		Status:        string(appt.Status),
		CanceledAt:    appt.CanceledAt,
	})
	if err != nil {
		return err
	}
	return r.Insert(ctx, tx, Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
