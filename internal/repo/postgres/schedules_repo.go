package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
)

type SchedulesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSchedulesRepo(pool *pgxpool.Pool, prom *observability.Prom) *SchedulesRepo {
	return &SchedulesRepo{pool: pool, prom: prom}
}

func (r *SchedulesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const scheduleColumns = `id, title, message, kind, local_time, fire_at,
	       audience, filter, category, status, is_active,
	       total_targeted, success_count, failure_count,
	       last_run_at, last_run_status, failure_reason,
	       created_at, updated_at`

func scanSchedule(row pgx.Row) (schedule.Schedule, error) {
	var s schedule.Schedule
	var kind, audience, category, status string
	var filterJSON []byte

	err := row.Scan(
		&s.ID, &s.Title, &s.Message, &kind, &s.LocalTime, &s.FireAt,
		&audience, &filterJSON, &category, &status, &s.IsActive,
		&s.TotalTargeted, &s.SuccessCount, &s.FailureCount,
		&s.LastRunAt, &s.LastRunStatus, &s.FailureReason,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return schedule.Schedule{}, err
	}

	s.Kind = schedule.Kind(kind)
	s.Audience = schedule.Audience(audience)
	s.Category = schedule.Category(category)
	s.Status = schedule.Status(status)

	if len(filterJSON) > 0 {
		var f schedule.Filter
		if err := json.Unmarshal(filterJSON, &f); err != nil {
			return schedule.Schedule{}, fmt.Errorf("decode schedule filter: %w", err)
		}
		if !f.Empty() {
			s.Filter = &f
		}
	}

	return s, nil
}

func (r *SchedulesRepo) Create(ctx context.Context, s schedule.Schedule) error {
	var filterJSON []byte
	if s.Filter != nil {
		var err error
		filterJSON, err = json.Marshal(s.Filter)
		if err != nil {
			return fmt.Errorf("encode schedule filter: %w", err)
		}
	}

	return r.observe("schedules.create", func() error {
		_, err := r.pool.Exec(ctx, `INSERT INTO schedules(
	 id, title, message, kind, local_time, fire_at, audience, filter, category, status, is_active,
	 total_targeted, success_count, failure_count, last_run_at, last_run_status, failure_reason,
	 created_at, updated_at
	 ) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
	 )
	 `, s.ID, s.Title, s.Message, string(s.Kind), s.LocalTime, s.FireAt,
			string(s.Audience), filterJSON, string(s.Category), string(s.Status), s.IsActive,
			s.TotalTargeted, s.SuccessCount, s.FailureCount,
			s.LastRunAt, s.LastRunStatus, s.FailureReason,
			s.CreatedAt, s.UpdatedAt)
		return err
	})
}

func (r *SchedulesRepo) GetByID(ctx context.Context, id string) (schedule.Schedule, error) {
	var s schedule.Schedule
	var err error

	err = r.observe("schedules.get_by_id", func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
		var scanErr error
		s, scanErr = scanSchedule(row)
		return scanErr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schedule.Schedule{}, schedule.ErrScheduleNotFound
		}
		return schedule.Schedule{}, err
	}
	return s, nil
}

// SetActive flips the pause switch and records the resulting status.
func (r *SchedulesRepo) SetActive(ctx context.Context, id string, isActive bool, status schedule.Status) error {
	var err error

	err = r.observe("schedules.set_active", func() error {
		tag, execErr := r.pool.Exec(ctx, `
		UPDATE schedules
		SET is_active = $2,
		    status = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, isActive, string(status))
		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return schedule.ErrScheduleNotFound
		}
		return nil
	})

	return err
}

// RunUpdate is applied once per firing: counter deltas, last-run fields and,
// for instant/once schedules, the terminal status.
type RunUpdate struct {
	TargetedDelta int
	SuccessDelta  int
	FailureDelta  int
	LastRunAt     time.Time
	LastRunStatus string
	FailureReason string
	Status        *schedule.Status // nil leaves status unchanged
}

func (r *SchedulesRepo) UpdateRun(ctx context.Context, id string, u RunUpdate) error {
	return r.observe("schedules.update_run", func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET total_targeted = total_targeted + $2,
		    success_count = success_count + $3,
		    failure_count = failure_count + $4,
		    last_run_at = $5,
		    last_run_status = $6,
		    failure_reason = $7,
		    status = COALESCE($8, status),
		    updated_at = NOW()
		WHERE id = $1
	`, id, u.TargetedDelta, u.SuccessDelta, u.FailureDelta,
			u.LastRunAt, u.LastRunStatus, u.FailureReason, statusOrNil(u.Status))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return schedule.ErrScheduleNotFound
		}
		return nil
	})
}

func statusOrNil(s *schedule.Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

// ApplyRetryDelta moves counts between failure and success after a retry
// attempt resolves recipients the original firing could not reach.
func (r *SchedulesRepo) ApplyRetryDelta(ctx context.Context, id string, successDelta, failureDelta int) error {
	return r.observe("schedules.apply_retry_delta", func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET success_count = success_count + $2,
		    failure_count = failure_count + $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, successDelta, failureDelta)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return schedule.ErrScheduleNotFound
		}
		return nil
	})
}

// ListActiveDaily returns every daily schedule the planner must keep jobs
// alive for.
func (r *SchedulesRepo) ListActiveDaily(ctx context.Context) ([]schedule.Schedule, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("schedules.list_active_daily", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE kind = 'daily'
		  AND is_active = TRUE
		  AND status = 'active'
		ORDER BY created_at ASC
	`)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Schedule
	for rows.Next() {
		s, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListParams filters the admin schedule listing. Instant schedules never
// appear (they are fire-and-forget), and neither do paused once schedules
// whose fire time already passed.
type ListParams struct {
	Status schedule.Status
	Kind   schedule.Kind
	Search string
	Page   int
	Limit  int
}

func (p ListParams) normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	return p
}

func listFilterSQL(p ListParams, args *[]any) string {
	var b strings.Builder
	b.WriteString(`WHERE kind <> 'instant'
	  AND NOT (kind = 'once' AND status = 'paused' AND fire_at <= NOW())`)

	if p.Status != "" {
		*args = append(*args, string(p.Status))
		fmt.Fprintf(&b, " AND status = $%d", len(*args))
	}
	if p.Kind != "" {
		*args = append(*args, string(p.Kind))
		fmt.Fprintf(&b, " AND kind = $%d", len(*args))
	}
	if p.Search != "" {
		*args = append(*args, "%"+p.Search+"%")
		fmt.Fprintf(&b, " AND (title ILIKE $%d OR message ILIKE $%d)", len(*args), len(*args))
	}
	return b.String()
}

func (r *SchedulesRepo) List(ctx context.Context, p ListParams) ([]schedule.Schedule, error) {
	p = p.normalize()

	var args []any
	where := listFilterSQL(p, &args)

	args = append(args, p.Limit)
	limitIdx := len(args)
	args = append(args, (p.Page-1)*p.Limit)
	offsetIdx := len(args)

	q := fmt.Sprintf(`
		SELECT `+scheduleColumns+`
		FROM schedules
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, limitIdx, offsetIdx)

	var rows pgx.Rows
	var err error

	err = r.observe("schedules.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Schedule
	for rows.Next() {
		s, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SchedulesRepo) Count(ctx context.Context, p ListParams) (int, error) {
	p = p.normalize()

	var args []any
	where := listFilterSQL(p, &args)

	var total int
	err := r.observe("schedules.count", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schedules `+where, args...).Scan(&total)
	})
	return total, err
}
