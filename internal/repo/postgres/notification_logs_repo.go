package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/notification"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
)

type NotificationLogsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewNotificationLogsRepo(pool *pgxpool.Pool, prom *observability.Prom) *NotificationLogsRepo {
	return &NotificationLogsRepo{pool: pool, prom: prom}
}

func (r *NotificationLogsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// BulkInsert writes one firing's worth of per-recipient logs in a single
// COPY. A firing for a large shard can easily be tens of thousands of rows.
func (r *NotificationLogsRepo) BulkInsert(ctx context.Context, logs []notification.Log) error {
	if len(logs) == 0 {
		return nil
	}

	return r.observe("notification_logs.bulk_insert", func() error {
		_, err := r.pool.CopyFrom(ctx,
			pgx.Identifier{"notification_logs"},
			[]string{"id", "user_id", "schedule_id", "title", "message", "category", "status", "device_token", "sent_at"},
			pgx.CopyFromSlice(len(logs), func(i int) ([]any, error) {
				l := logs[i]
				return []any{
					l.ID, l.UserID, l.ScheduleID, l.Title, l.Message,
					l.Category, string(l.Status), l.DeviceToken, l.SentAt,
				}, nil
			}),
		)
		return err
	})
}

// FeedCursor is the keyset position for a user's notification feed, ordered
// newest first.
type FeedCursor struct {
	SentAt time.Time
	ID     string
}

// ListByUser pages one user's feed. A zero cursor starts from the newest
// entry.
func (r *NotificationLogsRepo) ListByUser(ctx context.Context, userID string, after FeedCursor, limit int) ([]notification.Log, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	args := []any{userID}
	where := `WHERE user_id = $1`

	if !after.SentAt.IsZero() {
		args = append(args, after.SentAt, after.ID)
		where += ` AND (sent_at, id) < ($2, $3)`
	}

	args = append(args, limit)

	sql := fmt.Sprintf(`
		SELECT id, user_id, schedule_id, title, message, category, status, device_token, sent_at
		FROM notification_logs
		%s
		ORDER BY sent_at DESC, id DESC
		LIMIT $%d
	`, where, len(args))

	var rows pgx.Rows
	var err error

	err = r.observe("notification_logs.list_by_user", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, sql, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notification.Log
	for rows.Next() {
		var l notification.Log
		var status string
		if err := rows.Scan(&l.ID, &l.UserID, &l.ScheduleID, &l.Title, &l.Message,
			&l.Category, &status, &l.DeviceToken, &l.SentAt); err != nil {
			return nil, err
		}
		l.Status = notification.LogStatus(status)
		out = append(out, l)
	}
	return out, rows.Err()
}
