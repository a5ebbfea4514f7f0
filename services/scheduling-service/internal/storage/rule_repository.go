package storage

import (
	"context"

	"github.com/slotline/slotline/libs/db"
	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/rule"
)

// RuleRepository stores one availability rule per provider plus its break
// windows and holidays. Updates are wholesale: the new rule replaces the old
// one atomically, breaks included, and the version bumps.
type RuleRepository struct {
	pool *db.Pool
}

func NewRuleRepository(pool *db.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

func (r *RuleRepository) RuleFor(ctx context.Context, providerID string) (rule.Rule, error) {
	var rl rule.Rule
	var weekdays int
	err := r.pool.QueryRow(ctx, `
		SELECT provider_id::text, weekdays, start_minute, end_minute, slot_minutes, timezone, version, updated_at
		FROM availability_rules
		WHERE provider_id = $1
	`, providerID).Scan(&rl.ProviderID, &weekdays, &rl.StartMinute, &rl.EndMinute, &rl.SlotMinutes, &rl.Timezone, &rl.Version, &rl.UpdatedAt)
	if err != nil {
		return rule.Rule{}, mapError(err, "rule for provider "+providerID)
	}
	rl.Weekdays = rule.Weekdays(weekdays)

	rows, err := r.pool.Query(ctx, `
		SELECT start_minute, end_minute, COALESCE(reason, '')
		FROM availability_breaks
		WHERE provider_id = $1
		ORDER BY start_minute
	`, providerID)
	if err != nil {
		return rule.Rule{}, mapError(err, "rule breaks")
	}
	defer rows.Close()
	for rows.Next() {
		var w rule.Window
		if err := rows.Scan(&w.StartMinute, &w.EndMinute, &w.Reason); err != nil {
			return rule.Rule{}, mapError(err, "scan break")
		}
		rl.Breaks = append(rl.Breaks, w)
	}
	if rows.Err() != nil {
		return rule.Rule{}, mapError(rows.Err(), "iterate breaks")
	}
	return rl, nil
}

// Replace swaps the provider's rule for rl in one transaction and returns
// the stored rule with its new version.
func (r *RuleRepository) Replace(ctx context.Context, rl rule.Rule) (rule.Rule, error) {
	if err := rl.Validate(); err != nil {
		return rule.Rule{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return rule.Rule{}, mapError(err, "begin rule replace")
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO availability_rules (provider_id, weekdays, start_minute, end_minute, slot_minutes, timezone, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (provider_id) DO UPDATE
		SET weekdays = EXCLUDED.weekdays,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			slot_minutes = EXCLUDED.slot_minutes,
			timezone = EXCLUDED.timezone,
			version = availability_rules.version + 1,
			updated_at = now()
		RETURNING version, updated_at
	`, rl.ProviderID, int(rl.Weekdays), rl.StartMinute, rl.EndMinute, rl.SlotMinutes, rl.Timezone).
		Scan(&rl.Version, &rl.UpdatedAt)
	if err != nil {
		return rule.Rule{}, mapError(err, "upsert rule")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM availability_breaks WHERE provider_id = $1`, rl.ProviderID); err != nil {
		return rule.Rule{}, mapError(err, "clear breaks")
	}
	for _, w := range rl.Breaks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_breaks (provider_id, start_minute, end_minute, reason)
			VALUES ($1, $2, $3, NULLIF($4, ''))
		`, rl.ProviderID, w.StartMinute, w.EndMinute, w.Reason); err != nil {
			return rule.Rule{}, mapError(err, "insert break")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return rule.Rule{}, mapError(err, "commit rule replace")
	}
	return rl, nil
}

func (r *RuleRepository) HolidaysOn(ctx context.Context, providerID, date string) ([]rule.Holiday, error) {
	return r.queryHolidays(ctx, `
		SELECT id::text, provider_id::text, to_char(day, 'YYYY-MM-DD'), COALESCE(reason, ''),
			full_day, COALESCE(start_minute, 0), COALESCE(end_minute, 0), created_at
		FROM provider_holidays
		WHERE provider_id = $1 AND day = $2::date
		ORDER BY created_at
	`, providerID, date)
}

func (r *RuleRepository) ListHolidays(ctx context.Context, providerID string) ([]rule.Holiday, error) {
	return r.queryHolidays(ctx, `
		SELECT id::text, provider_id::text, to_char(day, 'YYYY-MM-DD'), COALESCE(reason, ''),
			full_day, COALESCE(start_minute, 0), COALESCE(end_minute, 0), created_at
		FROM provider_holidays
		WHERE provider_id = $1
		ORDER BY day
	`, providerID)
}

func (r *RuleRepository) AddHoliday(ctx context.Context, h rule.Holiday) (rule.Holiday, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO provider_holidays (provider_id, day, reason, full_day, start_minute, end_minute)
		VALUES ($1, $2::date, NULLIF($3, ''), $4, NULLIF($5, 0), NULLIF($6, 0))
		RETURNING id::text, created_at
	`, h.ProviderID, h.Date, h.Reason, h.FullDay, h.Window.StartMinute, h.Window.EndMinute).
		Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return rule.Holiday{}, mapError(err, "insert holiday")
	}
	return h, nil
}

func (r *RuleRepository) DeleteHoliday(ctx context.Context, providerID, holidayID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM provider_holidays WHERE id = $1 AND provider_id = $2
	`, holidayID, providerID)
	if err != nil {
		return mapError(err, "delete holiday")
	}
	if tag.RowsAffected() == 0 {
		return booking.Errorf(booking.KindNotFound, "holiday %s not found", holidayID)
	}
	return nil
}

func (r *RuleRepository) queryHolidays(ctx context.Context, sql string, args ...any) ([]rule.Holiday, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query holidays")
	}
	defer rows.Close()

	var out []rule.Holiday
	for rows.Next() {
		var h rule.Holiday
		if err := rows.Scan(&h.ID, &h.ProviderID, &h.Date, &h.Reason, &h.FullDay,
			&h.Window.StartMinute, &h.Window.EndMinute, &h.CreatedAt); err != nil {
			return nil, mapError(err, "scan holiday")
		}
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, mapError(rows.Err(), "iterate holidays")
	}
	return out, nil
}
