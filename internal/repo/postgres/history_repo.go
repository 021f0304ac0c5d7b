package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/notification"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
)

var ErrHistoryNotFound = errors.New("history entry not found")

type HistoryRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewHistoryRepo(pool *pgxpool.Pool, prom *observability.Prom) *HistoryRepo {
	return &HistoryRepo{pool: pool, prom: prom}
}

func (r *HistoryRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *HistoryRepo) Insert(ctx context.Context, h notification.History) error {
	return r.observe("history.insert", func() error {
		_, err := r.pool.Exec(ctx, `INSERT INTO notification_history(
	 id, schedule_id, fired_at, timezone, total_targeted, success_count, failure_count, status, error_message
	 ) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	 )
	 `, h.ID, h.ScheduleID, h.FiredAt, h.Timezone,
			h.TotalTargeted, h.SuccessCount, h.FailureCount, string(h.Status), h.ErrorMessage)
		return err
	})
}

// ApplyRetryDelta folds a retry attempt's outcome into the original firing's
// aggregate and recomputes its status from the new counts. Total targeted is
// fixed at firing time and never moves.
func (r *HistoryRepo) ApplyRetryDelta(ctx context.Context, id string, successDelta, failureDelta int) error {
	return r.observe("history.apply_retry_delta", func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE notification_history
		SET success_count = success_count + $2,
		    failure_count = failure_count + $3,
		    status = CASE
		        WHEN total_targeted <= 0 THEN 'failed'
		        WHEN success_count + $2 >= total_targeted THEN 'sent'
		        WHEN (success_count + $2) * 2 >= total_targeted THEN 'partial_success'
		        ELSE 'failed'
		    END
		WHERE id = $1
	`, id, successDelta, failureDelta)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrHistoryNotFound
		}
		return nil
	})
}

// HistoryItem is one firing joined with the schedule it came from, for the
// admin history listing.
type HistoryItem struct {
	notification.History
	ScheduleTitle string `json:"scheduleTitle"`
	ScheduleKind  string `json:"scheduleKind"`
}

// HistoryListParams filters and orders the admin history listing.
type HistoryListParams struct {
	Status notification.HistoryStatus
	Search string // matches schedule title or message
	From   *time.Time
	To     *time.Time
	Sort   string // fired_at | success_count | failure_count
	Order  string // asc | desc
	Page   int
	Limit  int
}

func (p HistoryListParams) normalize() HistoryListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	switch p.Sort {
	case "fired_at", "success_count", "failure_count":
	default:
		p.Sort = "fired_at"
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

func historyFilterSQL(p HistoryListParams, args *[]any) string {
	var b strings.Builder
	b.WriteString("WHERE 1=1")

	if p.Status != "" {
		*args = append(*args, string(p.Status))
		fmt.Fprintf(&b, " AND h.status = $%d", len(*args))
	}
	if p.Search != "" {
		*args = append(*args, "%"+p.Search+"%")
		fmt.Fprintf(&b, " AND (s.title ILIKE $%d OR s.message ILIKE $%d)", len(*args), len(*args))
	}
	if p.From != nil {
		*args = append(*args, *p.From)
		fmt.Fprintf(&b, " AND h.fired_at >= $%d", len(*args))
	}
	if p.To != nil {
		*args = append(*args, *p.To)
		fmt.Fprintf(&b, " AND h.fired_at <= $%d", len(*args))
	}

	return b.String()
}

func (r *HistoryRepo) List(ctx context.Context, p HistoryListParams) ([]HistoryItem, error) {
	p = p.normalize()

	var args []any
	where := historyFilterSQL(p, &args)

	args = append(args, p.Limit)
	limitIdx := len(args)
	args = append(args, (p.Page-1)*p.Limit)
	offsetIdx := len(args)

	// Sort and order come from the normalized whitelist, never from the
	// caller verbatim.
	sql := fmt.Sprintf(`
		SELECT h.id, h.schedule_id, h.fired_at, h.timezone,
		       h.total_targeted, h.success_count, h.failure_count,
		       h.status, h.error_message,
		       COALESCE(s.title, ''), COALESCE(s.kind, '')
		FROM notification_history h
		LEFT JOIN schedules s ON s.id = h.schedule_id
		%s
		ORDER BY h.%s %s, h.id DESC
		LIMIT $%d OFFSET $%d
	`, where, p.Sort, strings.ToUpper(p.Order), limitIdx, offsetIdx)

	var rows pgx.Rows
	var err error

	err = r.observe("history.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, sql, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryItem
	for rows.Next() {
		var item HistoryItem
		var status string
		if err := rows.Scan(&item.ID, &item.ScheduleID, &item.FiredAt, &item.Timezone,
			&item.TotalTargeted, &item.SuccessCount, &item.FailureCount,
			&status, &item.ErrorMessage,
			&item.ScheduleTitle, &item.ScheduleKind); err != nil {
			return nil, err
		}
		item.Status = notification.HistoryStatus(status)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *HistoryRepo) Count(ctx context.Context, p HistoryListParams) (int, error) {
	p = p.normalize()

	var args []any
	where := historyFilterSQL(p, &args)

	var total int
	err := r.observe("history.count", func() error {
		return r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM notification_history h
		LEFT JOIN schedules s ON s.id = h.schedule_id
		`+where, args...).Scan(&total)
	})
	return total, err
}

// Stats aggregates firing outcomes over a window.
type Stats struct {
	TotalFirings   int `json:"totalFirings"`
	Sent           int `json:"sent"`
	PartialSuccess int `json:"partialSuccess"`
	Failed         int `json:"failed"`
	TotalTargeted  int `json:"totalTargeted"`
	SuccessCount   int `json:"successCount"`
	FailureCount   int `json:"failureCount"`
}

func (r *HistoryRepo) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	var s Stats
	err := r.observe("history.stats", func() error {
		return r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'partial_success'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(SUM(total_targeted), 0),
		       COALESCE(SUM(success_count), 0),
		       COALESCE(SUM(failure_count), 0)
		FROM notification_history
		WHERE fired_at >= $1 AND fired_at <= $2
	`, from, to).Scan(
			&s.TotalFirings, &s.Sent, &s.PartialSuccess, &s.Failed,
			&s.TotalTargeted, &s.SuccessCount, &s.FailureCount,
		)
	})
	return s, err
}
