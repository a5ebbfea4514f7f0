package booking

import (
	"context"
	"time"

	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
)

// Store is the authoritative appointment set, keyed by (providerID, date).
//
// Reads are snapshots and may be stale by the time a booking races in; that
// staleness is resolved by InsertIfAvailable, never by the read path. Only
// InsertIfAvailable and Transition are atomic, and their atomicity is scoped
// to one (providerID, date) key: implementations use a per-key mutex or a
// database constraint plus transaction, not a store-wide lock. Stores backed
// by an outbox record the matching lifecycle event inside the same
// transaction as the state change.
type Store interface {
	// ListActive returns the BOOKED appointments for the provider/date.
	// Order is unspecified.
	ListActive(ctx context.Context, providerID, date string) ([]Appointment, error)

	// HasOverlap reports whether any active appointment for the
	// provider/date intersects the half-open interval [start,end).
	HasOverlap(ctx context.Context, providerID, date string, start, end time.Time) (bool, error)

	// InsertIfAvailable atomically re-checks overlap freedom and inserts.
	// A lost slot race yields KindConflict; a lost idempotency-key race
	// yields the replay sentinel (see IsIdempotentReplay).
	InsertIfAvailable(ctx context.Context, appt Appointment) (Appointment, error)

	// Transition is an atomic compare-and-set on status. A current status
	// different from `from` yields KindInvalidTransition; an unknown id
	// yields KindNotFound.
	Transition(ctx context.Context, id string, from, to Status) (Appointment, error)

	// Get returns the appointment by id, or KindNotFound.
	Get(ctx context.Context, id string) (Appointment, error)

	// GetByIdempotencyKey returns the provider's appointment recorded under
	// key, or KindNotFound.
	GetByIdempotencyKey(ctx context.Context, providerID, key string) (Appointment, error)

	// List returns appointments filtered by provider or customer (either
	// may be empty) and optional status, newest start first.
	List(ctx context.Context, providerID, customerID string, status Status, limit int) ([]Appointment, error)

	// ListRange returns the provider's appointments with Date in
	// [from,to], optionally including canceled ones, ascending by start.
	ListRange(ctx context.Context, providerID, from, to string, includeCanceled bool) ([]Appointment, error)

	// DueForCompletion returns BOOKED appointments whose end time is at or
	// before the cutoff, oldest first, for the completion sweeper.
	DueForCompletion(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error)
}

// RuleSource provides the provider's current availability configuration.
// The rule is fetched fresh per request: validation always sees the rule
// current at validation time, and an update racing an in-flight booking is
// an accepted, documented outcome.
type RuleSource interface {
	// RuleFor returns the provider's active rule, or KindNotFound.
	RuleFor(ctx context.Context, providerID string) (rule.Rule, error)

	// HolidaysOn returns the provider's holidays for a date.
	HolidaysOn(ctx context.Context, providerID, date string) ([]rule.Holiday, error)
}

// Reminders schedules and clears reminder jobs for appointments.
type Reminders interface {
	Schedule(ctx context.Context, appt Appointment)
	CancelFor(ctx context.Context, appointmentID string)
}

// SlotCache is the day-view cache invalidated on every state transition.
// Implementations must tolerate being nil-configured via NopCache.
type SlotCache interface {
	GetDay(ctx context.Context, providerID, date string) ([]SlotView, bool)
	SetDay(ctx context.Context, providerID, date string, slots []SlotView)
	InvalidateDay(ctx context.Context, providerID, date string)
}

// NopReminders and NopCache are the defaults when a collaborator is not
// wired (tests, dev mode without Kafka/Redis).
type NopReminders struct{}

func (NopReminders) Schedule(context.Context, Appointment) {}
func (NopReminders) CancelFor(context.Context, string)     {}

type NopCache struct{}

func (NopCache) GetDay(context.Context, string, string) ([]SlotView, bool) { return nil, false }
func (NopCache) SetDay(context.Context, string, string, []SlotView)        {}
func (NopCache) InvalidateDay(context.Context, string, string)             {}
