package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slotline/slotline/libs/db"
	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/outbox"
)

const appointmentColumns = `
	id::text, provider_id::text, customer_id::text, customer_name, customer_email,
	COALESCE(customer_phone, ''), service_type, COALESCE(notes, ''),
	to_char(day, 'YYYY-MM-DD'), start_time, end_time, status,
	COALESCE(idempotency_key, ''), created_at, canceled_at`

// AppointmentRepository is the Postgres booking.Store. The appointments
// table carries an exclusion constraint over
// (provider_id, tstzrange(start_time, end_time)) scoped to status='booked',
// plus a partial unique index on (provider_id, idempotency_key).
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, ob *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: ob}
}

func (r *AppointmentRepository) InsertIfAvailable(ctx context.Context, appt booking.Appointment) (booking.Appointment, error) {
	var stored booking.Appointment
	err := retrySerialization(ctx, func() error {
		return r.insertTx(ctx, appt, &stored)
	})
	if err != nil {
		if isPgCode(err, pgOverlapViolation) {
			return booking.Appointment{}, booking.Errorf(booking.KindConflict, "slot already booked")
		}
		if isPgCode(err, pgUniqueViolation) && isConstraint(err, idempotencyConstraint) {
			return booking.Appointment{}, booking.ErrIdempotentReplay()
		}
		return booking.Appointment{}, mapError(err, "insert appointment")
	}
	return stored, nil
}

func (r *AppointmentRepository) insertTx(ctx context.Context, appt booking.Appointment, out *booking.Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, customer_id, customer_name, customer_email, customer_phone,
			 service_type, notes, day, start_time, end_time, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9::date, $10, $11, $12, NULLIF($13, ''))
		RETURNING `+appointmentColumns,
		appt.ID, appt.ProviderID, appt.CustomerID, appt.CustomerName, appt.CustomerEmail,
		appt.CustomerPhone, appt.ServiceType, appt.Notes, appt.Date, appt.Start, appt.End,
		string(appt.Status), appt.IdempotencyKey)
	if err := scanAppointment(row, out); err != nil {
		return err
	}

	if r.outbox != nil {
		if err := r.outbox.InsertAppointmentEvent(ctx, tx, outbox.EventAppointmentBooked, *out); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *AppointmentRepository) Transition(ctx context.Context, id string, from, to booking.Status) (booking.Appointment, error) {
	var stored booking.Appointment
	err := retrySerialization(ctx, func() error {
		return r.transitionTx(ctx, id, from, to, &stored)
	})
	if err != nil {
		return booking.Appointment{}, err
	}
	return stored, nil
}

func (r *AppointmentRepository) transitionTx(ctx context.Context, id string, from, to booking.Status, out *booking.Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapError(err, "begin transition")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			canceled_at = CASE WHEN $3 = 'canceled' THEN now() ELSE canceled_at END
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		id, string(from), string(to))
	if err := scanAppointment(row, out); err != nil {
		if booking.KindOf(mapError(err, "")) == booking.KindNotFound {
			return r.classifyMissedCAS(ctx, tx, id, from)
		}
		return mapError(err, "transition appointment")
	}

	if r.outbox != nil {
		evt := outbox.EventAppointmentCanceled
		if to == booking.StatusCompleted {
			evt = outbox.EventAppointmentCompleted
		}
		if err := r.outbox.InsertAppointmentEvent(ctx, tx, evt, *out); err != nil {
			return mapError(err, "record transition event")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "commit transition")
	}
	return nil
}

// classifyMissedCAS distinguishes "no such appointment" from "wrong current
// status" after the compare-and-set matched zero rows.
func (r *AppointmentRepository) classifyMissedCAS(ctx context.Context, tx pgx.Tx, id string, want booking.Status) error {
	var current string
	err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return mapError(err, "appointment "+id)
	}
	return booking.Errorf(booking.KindInvalidTransition,
		"appointment %s is %s, expected %s", id, current, want)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (booking.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	var appt booking.Appointment
	if err := scanAppointment(row, &appt); err != nil {
		return booking.Appointment{}, mapError(err, "appointment "+id)
	}
	return appt, nil
}

func (r *AppointmentRepository) GetByIdempotencyKey(ctx context.Context, providerID, key string) (booking.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND idempotency_key = $2
	`, providerID, key)
	var appt booking.Appointment
	if err := scanAppointment(row, &appt); err != nil {
		return booking.Appointment{}, mapError(err, "idempotency key lookup")
	}
	return appt, nil
}

func (r *AppointmentRepository) ListActive(ctx context.Context, providerID, date string) ([]booking.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND day = $2::date AND status = 'booked'
		ORDER BY start_time ASC
	`, providerID, date)
	if err != nil {
		return nil, mapError(err, "list active appointments")
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) HasOverlap(ctx context.Context, providerID, date string, start, end time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1
				AND day = $2::date
				AND status = 'booked'
				AND start_time < $4
				AND end_time > $3
		)
	`, providerID, date, start, end).Scan(&exists)
	if err != nil {
		return false, mapError(err, "overlap probe")
	}
	return exists, nil
}

func (r *AppointmentRepository) List(ctx context.Context, providerID, customerID string, status booking.Status, limit int) ([]booking.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR provider_id::text = $1)
			AND ($2 = '' OR customer_id::text = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY start_time DESC
		LIMIT $4
	`, providerID, customerID, string(status), limit)
	if err != nil {
		return nil, mapError(err, "list appointments")
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListRange(ctx context.Context, providerID, from, to string, includeCanceled bool) ([]booking.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND day BETWEEN $2::date AND $3::date
			AND ($4 OR status <> 'canceled')
		ORDER BY start_time ASC
	`, providerID, from, to, includeCanceled)
	if err != nil {
		return nil, mapError(err, "list appointment range")
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) DueForCompletion(ctx context.Context, cutoff time.Time, limit int) ([]booking.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'booked' AND end_time <= $1
		ORDER BY end_time ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, mapError(err, "list due appointments")
	}
	return collectAppointments(rows)
}

func scanAppointment(row pgx.Row, appt *booking.Appointment) error {
	var status string
	var canceledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ProviderID,
		&appt.CustomerID,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.ServiceType,
		&appt.Notes,
		&appt.Date,
		&appt.Start,
		&appt.End,
		&status,
		&appt.IdempotencyKey,
		&appt.CreatedAt,
		&canceledAt,
	)
	if err != nil {
		return err
	}
	appt.Status = booking.Status(status)
	appt.CanceledAt = canceledAt
	return nil
}

func collectAppointments(rows pgx.Rows) ([]booking.Appointment, error) {
	defer rows.Close()
	var appts []booking.Appointment
	for rows.Next() {
		var appt booking.Appointment
		if err := scanAppointment(rows, &appt); err != nil {
			return nil, mapError(err, "scan appointment")
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, mapError(rows.Err(), "iterate appointments")
	}
	return appts, nil
}
