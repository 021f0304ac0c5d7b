package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/audience"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/job"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/jobs"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/tz"
)

// Queue is the slice of the job queue the planner needs.
type Queue interface {
	Enqueue(ctx context.Context, req job.CreateRequest) (job.Job, error)
	PendingExists(ctx context.Context, scheduleID, timezone string) (bool, error)
	RemoveBySchedule(ctx context.Context, scheduleID string) (int64, error)
}

// UserDirectory answers which timezone shards currently hold eligible
// recipients.
type UserDirectory interface {
	DistinctTimezones(ctx context.Context, q audience.Query) ([]string, error)
}

// DailyCatalog lists the schedules the discovery sweep must keep covered.
type DailyCatalog interface {
	ListActiveDaily(ctx context.Context) ([]schedule.Schedule, error)
}

// Planner turns schedules into queued jobs: one immediate job per instant
// schedule, one delayed job per once schedule, and one self-renewing job per
// (daily schedule, timezone shard).
type Planner struct {
	queue   Queue
	users   UserDirectory
	catalog DailyCatalog
	log     *slog.Logger

	now func() time.Time

	// testInterval, when positive, replaces the "next local occurrence"
	// delay for daily re-plans so a full cycle can be observed in seconds.
	testInterval time.Duration
}

func NewPlanner(queue Queue, users UserDirectory, catalog DailyCatalog, log *slog.Logger, testInterval time.Duration) *Planner {
	return &Planner{
		queue:        queue,
		users:        users,
		catalog:      catalog,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		testInterval: testInterval,
	}
}

func (p *Planner) PlanInstant(ctx context.Context, s schedule.Schedule) error {
	payload, err := jobs.EncodePayload(jobs.JobInstantSend, jobs.InstantSendPayload{ScheduleID: s.ID})
	if err != nil {
		return err
	}

	_, err = p.queue.Enqueue(ctx, job.CreateRequest{
		Type:       string(jobs.JobInstantSend),
		Payload:    payload,
		RunAt:      p.now(),
		ScheduleID: s.ID,
	})
	if err != nil {
		return fmt.Errorf("plan instant schedule %s: %w", s.ID, err)
	}

	p.log.Info("planned instant send", "schedule_id", s.ID)
	return nil
}

func (p *Planner) PlanOnce(ctx context.Context, s schedule.Schedule) error {
	if s.FireAt == nil {
		return schedule.ErrInvalidSchedule
	}

	payload, err := jobs.EncodePayload(jobs.JobOnceSend, jobs.OnceSendPayload{ScheduleID: s.ID})
	if err != nil {
		return err
	}

	_, err = p.queue.Enqueue(ctx, job.CreateRequest{
		ID:         jobs.OnceJobID(s.ID, *s.FireAt),
		Type:       string(jobs.JobOnceSend),
		Payload:    payload,
		RunAt:      s.FireAt.UTC(),
		ScheduleID: s.ID,
	})
	if errors.Is(err, job.ErrDuplicateJob) {
		// already planned for this hour, nothing to do
		p.log.Info("once send already planned", "schedule_id", s.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("plan once schedule %s: %w", s.ID, err)
	}

	p.log.Info("planned once send", "schedule_id", s.ID, "fire_at", s.FireAt.UTC())
	return nil
}

// PlanDaily seeds one occurrence job per timezone shard that has eligible
// recipients right now. Shards discovered later are picked up by the
// registration hook and the post-firing sweep.
func (p *Planner) PlanDaily(ctx context.Context, s schedule.Schedule) error {
	zones, err := p.users.DistinctTimezones(ctx, audience.Build(s, ""))
	if err != nil {
		return fmt.Errorf("plan daily schedule %s: %w", s.ID, err)
	}

	var firstErr error
	planned := 0
	for _, zone := range zones {
		if err := p.EnsureTimezoneJob(ctx, s, zone); err != nil {
			p.log.Error("plan timezone shard", "schedule_id", s.ID, "timezone", zone, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		planned++
	}

	p.log.Info("planned daily schedule", "schedule_id", s.ID, "timezones", planned)
	return firstErr
}

// EnsureTimezoneJob enqueues the next occurrence for (schedule, timezone)
// unless one is already waiting or in flight. Safe to call from concurrent
// registration hooks: a lost race lands on the duplicate-id rejection.
func (p *Planner) EnsureTimezoneJob(ctx context.Context, s schedule.Schedule, timezone string) error {
	exists, err := p.queue.PendingExists(ctx, s.ID, timezone)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return p.enqueueDaily(ctx, s, timezone)
}

// ReplanTimezone enqueues the next occurrence unconditionally. The dispatcher
// calls this at the end of a firing, while the fired job still counts as in
// flight, so the PendingExists guard would wrongly skip it.
func (p *Planner) ReplanTimezone(ctx context.Context, s schedule.Schedule, timezone string) error {
	return p.enqueueDaily(ctx, s, timezone)
}

func (p *Planner) enqueueDaily(ctx context.Context, s schedule.Schedule, timezone string) error {
	runAt, err := p.nextDailyRun(s, timezone)
	if err != nil {
		return err
	}

	payload, err := jobs.EncodePayload(jobs.JobDailyTimezoneSend, jobs.DailySendPayload{
		ScheduleID: s.ID,
		Timezone:   timezone,
	})
	if err != nil {
		return err
	}

	_, err = p.queue.Enqueue(ctx, job.CreateRequest{
		ID:         jobs.DailyJobID(s.ID, timezone, runAt),
		Type:       string(jobs.JobDailyTimezoneSend),
		Payload:    payload,
		RunAt:      runAt,
		ScheduleID: s.ID,
		Timezone:   timezone,
	})
	if errors.Is(err, job.ErrDuplicateJob) {
		return nil
	}
	if err != nil {
		return err
	}

	p.log.Info("planned daily occurrence",
		"schedule_id", s.ID, "timezone", timezone, "run_at", runAt)
	return nil
}

func (p *Planner) nextDailyRun(s schedule.Schedule, timezone string) (time.Time, error) {
	if p.testInterval > 0 {
		return p.now().Add(p.testInterval), nil
	}
	return tz.NextOccurrenceUTC(s.LocalTime, timezone, p.now())
}

// DiscoverySweep walks every active daily schedule and ensures each shard
// with recipients has a waiting job. The (schedule, timezone) pair that just
// fired is skipped: its re-plan is unconditional and already done. Run by
// the dispatcher after each daily firing so schedules follow the user base
// into new timezones without a central rescan.
func (p *Planner) DiscoverySweep(ctx context.Context, firedScheduleID, firedTimezone string) error {
	schedules, err := p.catalog.ListActiveDaily(ctx)
	if err != nil {
		return fmt.Errorf("discovery sweep: %w", err)
	}

	var firstErr error
	for _, s := range schedules {
		zones, err := p.users.DistinctTimezones(ctx, audience.Build(s, ""))
		if err != nil {
			p.log.Error("discovery sweep timezones", "schedule_id", s.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, zone := range zones {
			if s.ID == firedScheduleID && zone == firedTimezone {
				continue
			}
			if err := p.EnsureTimezoneJob(ctx, s, zone); err != nil {
				p.log.Error("discovery sweep shard", "schedule_id", s.ID, "timezone", zone, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}
