package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
)

// DefaultOffsets are how far before the appointment start each reminder
// fires: one the day before and one an hour out.
var DefaultOffsets = []time.Duration{24 * time.Hour, time.Hour}

// JobStore is where pending reminder jobs live. *Repository is the
// Postgres implementation.
type JobStore interface {
	Insert(ctx context.Context, job Job) error
	CancelForAppointment(ctx context.Context, appointmentID string) error
}

// Scheduler enqueues reminder jobs when appointments are booked and clears
// them on cancel. Offsets that already lie in the past at booking time are
// skipped, so a same-hour booking simply gets fewer reminders.
type Scheduler struct {
	store   JobStore
	logger  *slog.Logger
	offsets []time.Duration
	now     func() time.Time
}

func NewScheduler(store JobStore, logger *slog.Logger, offsets []time.Duration) *Scheduler {
	if len(offsets) == 0 {
		offsets = DefaultOffsets
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: store, logger: logger, offsets: offsets, now: time.Now}
}

func (s *Scheduler) Schedule(ctx context.Context, appt booking.Appointment) {
	now := s.now()
	for _, off := range s.offsets {
		remindAt := appt.Start.Add(-off)
		if !remindAt.After(now) {
			continue
		}
		job := Job{
			AppointmentID: appt.ID,
			ProviderID:    appt.ProviderID,
			CustomerID:    appt.CustomerID,
			CustomerName:  appt.CustomerName,
			CustomerEmail: appt.CustomerEmail,
			CustomerPhone: appt.CustomerPhone,
			Start:         appt.Start,
			OffsetMinutes: int(off / time.Minute),
			RemindAt:      remindAt,
		}
		if err := s.store.Insert(ctx, job); err != nil {
			// A lost reminder is not worth failing the booking over.
			s.logger.ErrorContext(ctx, "reminder enqueue failed",
				"appointment_id", appt.ID, "offset_minutes", job.OffsetMinutes, "err", err)
		}
	}
}

func (s *Scheduler) CancelFor(ctx context.Context, appointmentID string) {
	if err := s.store.CancelForAppointment(ctx, appointmentID); err != nil {
		s.logger.ErrorContext(ctx, "reminder cancel failed", "appointment_id", appointmentID, "err", err)
	}
}
