package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/slotline/slotline/libs/db"
	otelx "github.com/slotline/slotline/libs/otel"
	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/outbox"
)

// Worker turns due reminder jobs into outbox events. Jobs whose appointment
// is no longer booked by the time they come due are dropped instead of
// emitted: a cancellation races only the delete of its own jobs.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	store     booking.Store
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(pool *db.Pool, repo *Repository, store booking.Store, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		store:     store,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)

		appt, err := w.store.Get(ctx, job.AppointmentID)
		if err != nil || appt.Status != booking.StatusBooked {
			continue
		}

		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		payload, err := json.Marshal(outbox.ReminderDuePayload{
			ReminderID:    strconv.FormatInt(job.ID, 10),
			AppointmentID: job.AppointmentID,
			ProviderID:    job.ProviderID,
			CustomerID:    job.CustomerID,
			CustomerName:  job.CustomerName,
			CustomerEmail: job.CustomerEmail,
			CustomerPhone: job.CustomerPhone,
			Start:         job.Start,
			OffsetMinutes: job.OffsetMinutes,
		})
		if err != nil {
			return err
		}
		if err := w.outbox.Insert(jobCtx, tx, outbox.Event{
			AggregateType: "reminder",
			AggregateID:   job.AppointmentID,
			EventType:     outbox.EventReminderDue,
			Payload:       payload,
		}); err != nil {
			return err
		}
	}

	if err := w.repo.MarkProcessed(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
