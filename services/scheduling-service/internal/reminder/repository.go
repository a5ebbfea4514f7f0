package reminder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slotline/slotline/libs/db"
	otelx "github.com/slotline/slotline/libs/otel"
)

// Job is one pending reminder for a booked appointment. An appointment gets
// one job per configured offset; (appointment_id, offset_minutes) is unique
// so re-scheduling is a no-op.
type Job struct {
	ID            int64
	AppointmentID string
	ProviderID    string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Start         time.Time
	OffsetMinutes int
	RemindAt      time.Time
	Traceparent   string
	Tracestate    string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, job Job) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_jobs
			(appointment_id, provider_id, customer_id, customer_name, customer_email, customer_phone,
			 start_time, offset_minutes, remind_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
		ON CONFLICT (appointment_id, offset_minutes) DO NOTHING
	`, job.AppointmentID, job.ProviderID, job.CustomerID, job.CustomerName, job.CustomerEmail,
		job.CustomerPhone, job.Start, job.OffsetMinutes, job.RemindAt, traceparent, tracestate)
	return err
}

// CancelForAppointment drops the appointment's pending jobs. Already
// processed jobs stay as history.
func (r *Repository) CancelForAppointment(ctx context.Context, appointmentID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM reminder_jobs
		WHERE appointment_id = $1 AND status = 'pending'
	`, appointmentID)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, appointment_id::text, provider_id::text, customer_id::text,
			customer_name, customer_email, COALESCE(customer_phone, ''),
			start_time, offset_minutes, remind_at, COALESCE(traceparent, ''), COALESCE(tracestate, '')
		FROM reminder_jobs
		WHERE status = 'pending' AND remind_at <= now()
		ORDER BY remind_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.ProviderID, &j.CustomerID,
			&j.CustomerName, &j.CustomerEmail, &j.CustomerPhone,
			&j.Start, &j.OffsetMinutes, &j.RemindAt, &j.Traceparent, &j.Tracestate); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
