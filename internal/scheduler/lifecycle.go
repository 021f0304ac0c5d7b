package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
)

// ScheduleStore is the slice of schedule persistence the lifecycle needs.
type ScheduleStore interface {
	Create(ctx context.Context, s schedule.Schedule) error
	GetByID(ctx context.Context, id string) (schedule.Schedule, error)
	SetActive(ctx context.Context, id string, isActive bool, status schedule.Status) error
}

// Lifecycle owns the schedule state machine: creation with immediate
// planning, pause and resume. Firing-side transitions (completed, failed)
// belong to the dispatcher.
type Lifecycle struct {
	store   ScheduleStore
	planner *Planner
	log     *slog.Logger

	now func() time.Time
}

func NewLifecycle(store ScheduleStore, planner *Planner, log *slog.Logger) *Lifecycle {
	return &Lifecycle{
		store:   store,
		planner: planner,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create validates, persists and plans a schedule in one step. The schedule
// row exists before any job references it, so a worker claiming the job
// always finds it.
func (l *Lifecycle) Create(ctx context.Context, req schedule.CreateRequest) (schedule.Schedule, error) {
	now := l.now()

	if err := schedule.Validate(req, now); err != nil {
		return schedule.Schedule{}, err
	}

	s := schedule.New(req, now)
	if err := l.store.Create(ctx, s); err != nil {
		return schedule.Schedule{}, fmt.Errorf("create schedule: %w", err)
	}

	var planErr error
	switch s.Kind {
	case schedule.KindInstant:
		planErr = l.planner.PlanInstant(ctx, s)
	case schedule.KindOnce:
		planErr = l.planner.PlanOnce(ctx, s)
	case schedule.KindDaily:
		planErr = l.planner.PlanDaily(ctx, s)
	}
	if planErr != nil {
		// The schedule row stays; a failed shard is retried by the
		// discovery path rather than rolling back the create.
		l.log.Error("plan after create", "schedule_id", s.ID, "kind", s.Kind, "error", planErr)
	}

	return s, nil
}

// Pause deactivates a schedule and removes its waiting jobs. In-flight
// firings are not interrupted; the dispatcher re-checks isActive before
// sending.
func (l *Lifecycle) Pause(ctx context.Context, id string) (schedule.Schedule, error) {
	s, err := l.store.GetByID(ctx, id)
	if err != nil {
		return schedule.Schedule{}, err
	}

	if s.Status.Terminal() {
		return schedule.Schedule{}, schedule.ErrInvalidOperation
	}
	if !s.IsActive {
		return schedule.Schedule{}, schedule.ErrInvalidOperation
	}

	if err := l.store.SetActive(ctx, id, false, schedule.StatusPaused); err != nil {
		return schedule.Schedule{}, err
	}

	removed, err := l.planner.queue.RemoveBySchedule(ctx, id)
	if err != nil {
		// Jobs left behind are harmless: the dispatcher drops firings
		// for inactive schedules.
		l.log.Error("remove jobs on pause", "schedule_id", id, "error", err)
	}

	l.log.Info("schedule paused", "schedule_id", id, "jobs_removed", removed)

	s.IsActive = false
	s.Status = schedule.StatusPaused
	return s, nil
}

// Resume reactivates a paused schedule and re-plans its jobs. Resuming a
// once schedule whose fire time already passed is rejected.
func (l *Lifecycle) Resume(ctx context.Context, id string) (schedule.Schedule, error) {
	s, err := l.store.GetByID(ctx, id)
	if err != nil {
		return schedule.Schedule{}, err
	}

	if s.Status.Terminal() {
		return schedule.Schedule{}, schedule.ErrInvalidOperation
	}
	if s.IsActive {
		return schedule.Schedule{}, schedule.ErrInvalidOperation
	}

	if s.Kind == schedule.KindOnce && s.FireAt != nil && !s.FireAt.After(l.now()) {
		return schedule.Schedule{}, schedule.ErrScheduleExpired
	}

	status := schedule.StatusActive
	if s.Kind != schedule.KindDaily {
		status = schedule.StatusPending
	}

	if err := l.store.SetActive(ctx, id, true, status); err != nil {
		return schedule.Schedule{}, err
	}

	s.IsActive = true
	s.Status = status

	var planErr error
	switch s.Kind {
	case schedule.KindInstant:
		planErr = l.planner.PlanInstant(ctx, s)
	case schedule.KindOnce:
		planErr = l.planner.PlanOnce(ctx, s)
	case schedule.KindDaily:
		planErr = l.planner.PlanDaily(ctx, s)
	}
	if planErr != nil {
		l.log.Error("plan after resume", "schedule_id", id, "error", planErr)
	}

	l.log.Info("schedule resumed", "schedule_id", id, "status", status)
	return s, nil
}
