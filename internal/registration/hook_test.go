package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/tz"
)

type fakeTokens struct {
	change postgres.TokenChange
	saved  []string // timezone per call
}

func (f *fakeTokens) SaveDeviceToken(ctx context.Context, userID, token, platform, timezone string) (postgres.TokenChange, error) {
	f.saved = append(f.saved, timezone)
	return f.change, nil
}

type fakeCatalog struct {
	active []schedule.Schedule
}

func (f *fakeCatalog) ListActiveDaily(ctx context.Context) ([]schedule.Schedule, error) {
	return f.active, nil
}

type fakePlanner struct {
	ensured []string // "scheduleID/timezone"
}

func (f *fakePlanner) EnsureTimezoneJob(ctx context.Context, s schedule.Schedule, timezone string) error {
	f.ensured = append(f.ensured, s.ID+"/"+timezone)
	return nil
}

func newTestHook(change postgres.TokenChange, active []schedule.Schedule) (*Hook, *fakeTokens, *fakePlanner) {
	tokens := &fakeTokens{change: change}
	planner := &fakePlanner{}
	h := NewHook(tokens, &fakeCatalog{active: active}, planner,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h, tokens, planner
}

func daily(id string) schedule.Schedule {
	return schedule.Schedule{ID: id, Kind: schedule.KindDaily, LocalTime: "09:00", IsActive: true, Status: schedule.StatusActive}
}

func TestRegister_FirstDeviceCoversAllDailySchedules(t *testing.T) {
	h, tokens, planner := newTestHook(postgres.TokenChange{}, []schedule.Schedule{daily("s1"), daily("s2")})

	canonical, err := h.Register(context.Background(), "u1", "tok-1", "android", "Asia/Kolkata")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if canonical != "asia/kolkata" {
		t.Fatalf("timezone must be canonicalized, got %s", canonical)
	}
	if len(tokens.saved) != 1 || tokens.saved[0] != "asia/kolkata" {
		t.Fatalf("token must be saved with canonical timezone: %v", tokens.saved)
	}
	if len(planner.ensured) != 2 {
		t.Fatalf("every active daily schedule must be covered, got %v", planner.ensured)
	}
}

func TestRegister_UnchangedRegistrationSkipsPlanning(t *testing.T) {
	h, _, planner := newTestHook(postgres.TokenChange{
		OldToken:    "tok-1",
		OldTimezone: "asia/kolkata",
	}, []schedule.Schedule{daily("s1")})

	if _, err := h.Register(context.Background(), "u1", "tok-1", "android", "asia/kolkata"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(planner.ensured) != 0 {
		t.Fatalf("unchanged registration must not re-plan, got %v", planner.ensured)
	}
}

func TestRegister_TimezoneMoveReplans(t *testing.T) {
	h, _, planner := newTestHook(postgres.TokenChange{
		OldToken:    "tok-1",
		OldTimezone: "europe/london",
	}, []schedule.Schedule{daily("s1")})

	if _, err := h.Register(context.Background(), "u1", "tok-1", "android", "asia/kolkata"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(planner.ensured) != 1 || planner.ensured[0] != "s1/asia/kolkata" {
		t.Fatalf("timezone move must cover the new shard, got %v", planner.ensured)
	}
}

func TestRegister_Validation(t *testing.T) {
	h, _, _ := newTestHook(postgres.TokenChange{}, nil)
	ctx := context.Background()

	if _, err := h.Register(ctx, "u1", "  ", "android", "asia/kolkata"); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if _, err := h.Register(ctx, "u1", "tok", "windows", "asia/kolkata"); !errors.Is(err, ErrInvalidPlatform) {
		t.Fatalf("expected ErrInvalidPlatform, got %v", err)
	}
	if _, err := h.Register(ctx, "u1", "tok", "android", "not/a/zone"); !errors.Is(err, tz.ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}
}
