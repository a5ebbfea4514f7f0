// Package storage implements the booking interfaces on Postgres. Overlap
// freedom is enforced by an exclusion constraint on the appointments table,
// so the database is the single arbiter of slot races regardless of how
// many service replicas run.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
)

// ErrEmailTaken is returned by UserRepository.Create on a duplicate email.
var ErrEmailTaken = errors.New("email already registered")

const (
	pgOverlapViolation = "23P01"
	pgUniqueViolation  = "23505"

	idempotencyConstraint = "appointments_provider_idem_key"
)

// mapError translates driver errors to the booking taxonomy. Constraint
// violations are handled at the call sites that know which constraint
// means what; everything else that reaches here is a storage fault.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Errorf(booking.KindNotFound, "%s: not found", op)
	}
	var be *booking.Error
	if errors.As(err, &be) {
		return err
	}
	return booking.WrapError(booking.KindStorageUnavailable, err, op)
}

// retrySerialization retries fn a bounded number of times on serialization
// failures and deadlocks. Other errors pass through on the first attempt.
func retrySerialization(ctx context.Context, fn func() error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 25 * time.Millisecond):
		}
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == name
}
