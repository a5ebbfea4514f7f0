package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/slotline/slotline/services/scheduling-service/internal/slot"
)

// BookRequest carries everything needed to place one appointment.
type BookRequest struct {
	ProviderID     string
	CustomerID     string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	ServiceType    string
	Notes          string
	Date           string
	Start          time.Time
	IdempotencyKey string
}

// Coordinator owns the appointment lifecycle: BOOKED at creation, then one
// hop to CANCELED or COMPLETED. All validation runs against a fresh rule
// snapshot; the final availability check is delegated to the store's atomic
// insert so a stale read can never double-book.
type Coordinator struct {
	store     Store
	rules     RuleSource
	reminders Reminders
	cache     SlotCache
	logger    *slog.Logger
	now       func() time.Time
}

func NewCoordinator(store Store, rules RuleSource, reminders Reminders, cache SlotCache, logger *slog.Logger) *Coordinator {
	if reminders == nil {
		reminders = NopReminders{}
	}
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     store,
		rules:     rules,
		reminders: reminders,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// Book validates the requested slot against the provider's current rule and
// holidays, then attempts the atomic insert. A repeated idempotency key
// returns the original appointment without firing events again, whether the
// duplicate is caught by the pre-check or by the insert racing a twin.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (Appointment, error) {
	rl, err := c.rules.RuleFor(ctx, req.ProviderID)
	if err != nil {
		return Appointment{}, err
	}

	if !req.Start.After(c.now()) {
		return Appointment{}, Errorf(KindPastSlot, "slot start %s is not in the future", req.Start.Format(time.RFC3339))
	}

	end := req.Start.Add(time.Duration(rl.SlotMinutes) * time.Minute)
	if !slot.Aligned(rl, req.Date, req.Start, end) {
		return Appointment{}, Errorf(KindSlotMisaligned, "slot %s does not align with the provider's schedule", req.Start.Format(time.RFC3339))
	}

	holidays, err := c.rules.HolidaysOn(ctx, req.ProviderID, req.Date)
	if err != nil {
		return Appointment{}, err
	}
	loc := rl.Location()
	startMin := req.Start.In(loc).Hour()*60 + req.Start.In(loc).Minute()
	for _, h := range holidays {
		if h.Blocks(startMin, startMin+rl.SlotMinutes) {
			return Appointment{}, Errorf(KindSlotMisaligned, "slot falls on a holiday")
		}
	}

	if req.IdempotencyKey != "" {
		prior, err := c.store.GetByIdempotencyKey(ctx, req.ProviderID, req.IdempotencyKey)
		if err == nil {
			return prior, nil
		}
		if KindOf(err) != KindNotFound {
			return Appointment{}, err
		}
	}

	// Advisory fast-fail on an already-taken slot. Racy by design; the
	// store's atomic insert is the check that counts.
	taken, err := c.store.HasOverlap(ctx, req.ProviderID, req.Date, req.Start, end)
	if err != nil {
		return Appointment{}, err
	}
	if taken {
		return Appointment{}, Errorf(KindConflict, "slot %s is already booked", req.Start.Format(time.RFC3339))
	}

	appt := Appointment{
		ID:             uuid.NewString(),
		ProviderID:     req.ProviderID,
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		ServiceType:    req.ServiceType,
		Notes:          req.Notes,
		Date:           req.Date,
		Start:          req.Start,
		End:            end,
		Status:         StatusBooked,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      c.now().UTC(),
	}

	stored, err := c.store.InsertIfAvailable(ctx, appt)
	if err != nil {
		if IsIdempotentReplay(err) {
			return c.store.GetByIdempotencyKey(ctx, req.ProviderID, req.IdempotencyKey)
		}
		return Appointment{}, err
	}

	c.cache.InvalidateDay(ctx, stored.ProviderID, stored.Date)
	c.reminders.Schedule(ctx, stored)
	c.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", stored.ID,
		"provider_id", stored.ProviderID,
		"start", stored.Start.Format(time.RFC3339))
	return stored, nil
}

// Cancel moves a BOOKED appointment to CANCELED. Canceling a canceled or
// completed appointment is rejected as an invalid transition.
func (c *Coordinator) Cancel(ctx context.Context, id string) (Appointment, error) {
	appt, err := c.store.Transition(ctx, id, StatusBooked, StatusCanceled)
	if err != nil {
		return Appointment{}, err
	}
	c.cache.InvalidateDay(ctx, appt.ProviderID, appt.Date)
	c.reminders.CancelFor(ctx, appt.ID)
	c.logger.InfoContext(ctx, "appointment canceled", "appointment_id", appt.ID)
	return appt, nil
}

// Complete moves a BOOKED appointment to COMPLETED.
func (c *Coordinator) Complete(ctx context.Context, id string) (Appointment, error) {
	appt, err := c.store.Transition(ctx, id, StatusBooked, StatusCompleted)
	if err != nil {
		return Appointment{}, err
	}
	c.cache.InvalidateDay(ctx, appt.ProviderID, appt.Date)
	c.logger.InfoContext(ctx, "appointment completed", "appointment_id", appt.ID)
	return appt, nil
}

// Reschedule is cancel-then-book, not an atomic swap. If the new slot is
// unavailable the original stays canceled; the caller sees the booking
// error and must pick another slot. Each reschedule books under a derived
// idempotency key so retries of the same move stay idempotent without
// colliding with the original booking's key.
func (c *Coordinator) Reschedule(ctx context.Context, id, date string, start time.Time) (Appointment, error) {
	orig, err := c.store.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if _, err := c.Cancel(ctx, id); err != nil {
		return Appointment{}, err
	}

	req := BookRequest{
		ProviderID:    orig.ProviderID,
		CustomerID:    orig.CustomerID,
		CustomerName:  orig.CustomerName,
		CustomerEmail: orig.CustomerEmail,
		CustomerPhone: orig.CustomerPhone,
		ServiceType:   orig.ServiceType,
		Notes:         orig.Notes,
		Date:          date,
		Start:         start,
	}
	if orig.IdempotencyKey != "" {
		req.IdempotencyKey = orig.IdempotencyKey + ":" + start.UTC().Format(time.RFC3339)
	}
	return c.Book(ctx, req)
}

// CompleteDue sweeps BOOKED appointments whose end time has passed and
// marks them COMPLETED. Returns how many were completed. Appointments that
// race a cancellation are skipped without failing the sweep.
func (c *Coordinator) CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	due, err := c.store.DueForCompletion(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, appt := range due {
		if _, err := c.Complete(ctx, appt.ID); err != nil {
			if KindOf(err) == KindInvalidTransition || KindOf(err) == KindNotFound {
				continue
			}
			return completed, err
		}
		completed++
	}
	return completed, nil
}
