package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/audience"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/user"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Recipient is the slim projection the dispatcher pages over.
type Recipient struct {
	ID          string
	DeviceToken string
	Timezone    string
}

// eligibleSQL is the base predicate every recipient query starts from: an
// active user with a registered token who has not opted out.
const eligibleSQL = `is_active = TRUE
	  AND device_token <> ''
	  AND (opt_out IS NULL OR opt_out = FALSE)`

func recipientFilterSQL(q audience.Query, args *[]any) string {
	var b strings.Builder
	b.WriteString("WHERE " + eligibleSQL)

	if q.Timezone != "" {
		*args = append(*args, q.Timezone)
		fmt.Fprintf(&b, " AND timezone = $%d", len(*args))
	}
	if len(q.Genders) > 0 {
		*args = append(*args, q.Genders)
		fmt.Fprintf(&b, " AND gender = ANY($%d)", len(*args))
	}
	if len(q.Platforms) > 0 {
		*args = append(*args, q.Platforms)
		fmt.Fprintf(&b, " AND device_platform = ANY($%d)", len(*args))
	}
	if q.AgeMax > 0 {
		*args = append(*args, q.AgeMin)
		fmt.Fprintf(&b, " AND age >= $%d", len(*args))
		*args = append(*args, q.AgeMax)
		fmt.Fprintf(&b, " AND age <= $%d", len(*args))
	}

	return b.String()
}

// FindRecipientsPage pages eligible recipients with a keyset on id. Pass the
// last id of the previous page as afterID; empty starts from the beginning.
func (r *UsersRepo) FindRecipientsPage(ctx context.Context, q audience.Query, afterID string, limit int) ([]Recipient, error) {
	if limit <= 0 {
		limit = 500
	}

	var args []any
	where := recipientFilterSQL(q, &args)

	if afterID != "" {
		args = append(args, afterID)
		where += fmt.Sprintf(" AND id > $%d", len(args))
	}

	args = append(args, limit)
	limitIdx := len(args)

	sql := fmt.Sprintf(`
		SELECT id, device_token, timezone
		FROM users
		%s
		ORDER BY id ASC
		LIMIT $%d
	`, where, limitIdx)

	var rows pgx.Rows
	var err error

	err = r.observe("users.find_recipients", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, sql, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.ID, &rec.DeviceToken, &rec.Timezone); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DistinctTimezones lists the timezone shards that currently hold at least
// one eligible recipient for the given audience.
func (r *UsersRepo) DistinctTimezones(ctx context.Context, q audience.Query) ([]string, error) {
	var args []any
	where := recipientFilterSQL(q, &args)

	sql := `
		SELECT DISTINCT timezone
		FROM users
		` + where + `
		  AND timezone <> ''
		ORDER BY timezone ASC
	`

	var rows pgx.Rows
	var err error

	err = r.observe("users.distinct_timezones", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, sql, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var zone string
		if err := rows.Scan(&zone); err != nil {
			return nil, err
		}
		out = append(out, zone)
	}
	return out, rows.Err()
}

// ClearDeviceToken wipes a token everywhere it appears. Called when the
// provider reports the token as dead.
func (r *UsersRepo) ClearDeviceToken(ctx context.Context, token string) (int64, error) {
	var cleared int64
	err := r.observe("users.clear_device_token", func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET device_token = '',
		    device_platform = '',
		    token_last_used_at = NULL,
		    updated_at = NOW()
		WHERE device_token = $1
	`, token)
		if err != nil {
			return err
		}
		cleared = tag.RowsAffected()
		return nil
	})
	return cleared, err
}

// TokenChange is what SaveDeviceToken observed before overwriting, so the
// registration hook can tell a timezone move from a fresh device.
type TokenChange struct {
	OldTimezone string
	OldToken    string
}

// SaveDeviceToken upserts the user's current device registration and returns
// the previous timezone and token in the same statement.
func (r *UsersRepo) SaveDeviceToken(ctx context.Context, userID, token, platform, timezone string) (TokenChange, error) {
	var change TokenChange
	var err error

	err = r.observe("users.save_device_token", func() error {
		return r.pool.QueryRow(ctx, `
		UPDATE users u
		SET device_token = $2,
		    device_platform = $3,
		    timezone = $4,
		    token_last_used_at = NOW(),
		    updated_at = NOW()
		FROM users old
		WHERE u.id = $1 AND old.id = u.id
		RETURNING old.timezone, old.device_token
	`, userID, token, platform, timezone).Scan(&change.OldTimezone, &change.OldToken)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenChange{}, user.ErrUserNotFound
		}
		return TokenChange{}, err
	}
	return change, nil
}

const userColumns = `id, email, password_hash, name, role, timezone,
	       device_token, device_platform, token_last_used_at,
	       gender, age, is_active, opt_out, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Timezone,
		&u.DeviceToken.Token, &u.DeviceToken.Platform, &u.DeviceToken.LastUsedAt,
		&u.Gender, &u.Age, &u.IsActive, &u.OptOut, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_email", func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_id", func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}
