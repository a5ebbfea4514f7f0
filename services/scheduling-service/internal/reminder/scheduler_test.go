package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
)

type fakeJobStore struct {
	jobs      []Job
	canceled  []string
	insertErr error
}

func (f *fakeJobStore) Insert(_ context.Context, job Job) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeJobStore) CancelForAppointment(_ context.Context, appointmentID string) error {
	f.canceled = append(f.canceled, appointmentID)
	return nil
}

func testAppointment(start time.Time) booking.Appointment {
	return booking.Appointment{
		ID:            "appt-1",
		ProviderID:    "prov-1",
		CustomerID:    "cust-1",
		CustomerName:  "Alice",
		CustomerEmail: "alice@example.com",
		Start:         start,
	}
}

func newTestScheduler(store JobStore, now time.Time) *Scheduler {
	s := NewScheduler(store, nil, []time.Duration{24 * time.Hour, time.Hour})
	s.now = func() time.Time { return now }
	return s
}

func TestScheduleFarFutureGetsAllOffsets(t *testing.T) {
	store := &fakeJobStore{}
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	start := now.Add(48 * time.Hour)

	newTestScheduler(store, now).Schedule(context.Background(), testAppointment(start))

	require.Len(t, store.jobs, 2)
	require.Equal(t, 1440, store.jobs[0].OffsetMinutes)
	require.True(t, store.jobs[0].RemindAt.Equal(start.Add(-24*time.Hour)))
	require.Equal(t, 60, store.jobs[1].OffsetMinutes)
	require.True(t, store.jobs[1].RemindAt.Equal(start.Add(-time.Hour)))
	require.Equal(t, "appt-1", store.jobs[0].AppointmentID)
}

func TestScheduleSkipsPastOffsets(t *testing.T) {
	store := &fakeJobStore{}
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	// Two hours out: the day-before reminder would fire in the past.
	start := now.Add(2 * time.Hour)

	newTestScheduler(store, now).Schedule(context.Background(), testAppointment(start))

	require.Len(t, store.jobs, 1)
	require.Equal(t, 60, store.jobs[0].OffsetMinutes)
}

func TestScheduleSameMinuteBookingGetsNoReminders(t *testing.T) {
	store := &fakeJobStore{}
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	newTestScheduler(store, now).Schedule(context.Background(), testAppointment(now.Add(30*time.Minute)))

	require.Empty(t, store.jobs)
}

func TestScheduleInsertFailureIsSwallowed(t *testing.T) {
	store := &fakeJobStore{insertErr: errors.New("db down")}
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	// Must not panic or surface the error; the booking already succeeded.
	newTestScheduler(store, now).Schedule(context.Background(), testAppointment(now.Add(48*time.Hour)))

	require.Empty(t, store.jobs)
}

func TestCancelForClearsPendingJobs(t *testing.T) {
	store := &fakeJobStore{}
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s := newTestScheduler(store, now)

	s.Schedule(context.Background(), testAppointment(now.Add(48*time.Hour)))
	s.CancelFor(context.Background(), "appt-1")

	require.Equal(t, []string{"appt-1"}, store.canceled)
}
