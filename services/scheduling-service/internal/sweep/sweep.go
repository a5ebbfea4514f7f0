// Package sweep moves appointments whose end time has passed from BOOKED to
// COMPLETED in the background, so day views and listings reflect reality
// without waiting for a client to touch the row.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
)

type Sweeper struct {
	coord     *booking.Coordinator
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

func New(coord *booking.Coordinator, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Sweeper{coord: coord, logger: logger, interval: cfg.Interval, batchSize: cfg.BatchSize}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.coord.CompleteDue(ctx, time.Now().UTC(), s.batchSize)
			if err != nil {
				s.logger.Error("completion sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("completion sweep", "completed", n)
			}
		}
	}
}
