package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/audience"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/job"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/notification"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/gateway"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/jobs"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
)

const noValidUsers = "no valid users"

// ScheduleStore is the schedule persistence the dispatcher needs.
type ScheduleStore interface {
	GetByID(ctx context.Context, id string) (schedule.Schedule, error)
	UpdateRun(ctx context.Context, id string, u postgres.RunUpdate) error
	ApplyRetryDelta(ctx context.Context, id string, successDelta, failureDelta int) error
}

// UserStore pages recipients and cleans dead tokens.
type UserStore interface {
	FindRecipientsPage(ctx context.Context, q audience.Query, afterID string, limit int) ([]postgres.Recipient, error)
	ClearDeviceToken(ctx context.Context, token string) (int64, error)
}

type LogStore interface {
	BulkInsert(ctx context.Context, logs []notification.Log) error
}

type HistoryStore interface {
	Insert(ctx context.Context, h notification.History) error
	ApplyRetryDelta(ctx context.Context, id string, successDelta, failureDelta int) error
}

type Queue interface {
	Enqueue(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

// Replanner is the slice of the planner the dispatcher drives after a daily
// firing.
type Replanner interface {
	ReplanTimezone(ctx context.Context, s schedule.Schedule, timezone string) error
	DiscoverySweep(ctx context.Context, firedScheduleID, firedTimezone string) error
}

// Dispatcher runs one firing end to end: load and gate the schedule, page
// recipients, multicast in batches, triage failures, persist logs and the
// firing's history row, then keep daily schedules rolling.
type Dispatcher struct {
	schedules ScheduleStore
	users     UserStore
	logs      LogStore
	history   HistoryStore
	queue     Queue
	planner   Replanner
	gw        gateway.Gateway
	prom      *observability.Prom
	log       *slog.Logger

	now func() time.Time
}

func New(
	schedules ScheduleStore,
	users UserStore,
	logs LogStore,
	history HistoryStore,
	queue Queue,
	planner Replanner,
	gw gateway.Gateway,
	prom *observability.Prom,
	log *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		schedules: schedules,
		users:     users,
		logs:      logs,
		history:   history,
		queue:     queue,
		planner:   planner,
		gw:        gw,
		prom:      prom,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute routes a claimed job to its handler. Unknown or undecodable
// payloads are permanent job failures.
func (d *Dispatcher) Execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return fmt.Errorf("decode job %s: %w", j.ID, err)
	}

	switch p := payload.(type) {
	case jobs.InstantSendPayload:
		return d.Dispatch(ctx, p.ScheduleID, "")
	case jobs.OnceSendPayload:
		return d.Dispatch(ctx, p.ScheduleID, "")
	case jobs.DailySendPayload:
		return d.Dispatch(ctx, p.ScheduleID, p.Timezone)
	case jobs.RetrySendPayload:
		return d.Retry(ctx, p)
	default:
		return jobs.ErrInvalidJobType
	}
}

// sendOutcome accumulates one firing's result across batches.
type sendOutcome struct {
	targeted  int
	success   int
	logs      []notification.Log
	retryable []string
	permanent []string
	lastError string
}

// Dispatch is the shared core routine for instant, once and daily firings.
// timezone is empty for instant and once.
func (d *Dispatcher) Dispatch(ctx context.Context, scheduleID, timezone string) error {
	s, err := d.schedules.GetByID(ctx, scheduleID)
	if errors.Is(err, schedule.ErrScheduleNotFound) {
		// schedule deleted after the job was planned; drop without retry
		d.log.Warn("firing for missing schedule dropped", "schedule_id", scheduleID)
		return nil
	}
	if err != nil {
		return err
	}

	if !s.IsActive {
		d.log.Info("firing skipped, schedule inactive", "schedule_id", scheduleID, "timezone", timezone)
		return nil
	}

	firedAt := d.now()
	out, err := d.send(ctx, s, timezone, firedAt)
	if err != nil {
		return err
	}

	if out.targeted == 0 {
		return d.finishEmpty(ctx, s, timezone, firedAt)
	}

	failure := out.targeted - out.success
	h := notification.NewHistory(s.ID, timezone, firedAt, out.targeted, out.success, failure, out.lastError)

	if err := d.logs.BulkInsert(ctx, out.logs); err != nil {
		return fmt.Errorf("persist logs for schedule %s: %w", s.ID, err)
	}
	if err := d.history.Insert(ctx, h); err != nil {
		return fmt.Errorf("persist history for schedule %s: %w", s.ID, err)
	}

	d.clearTokens(ctx, out.permanent)

	if len(out.retryable) > 0 {
		d.enqueueRetry(ctx, s, h.ID, out.retryable, 1)
	}

	update := postgres.RunUpdate{
		TargetedDelta: out.targeted,
		SuccessDelta:  out.success,
		FailureDelta:  failure,
		LastRunAt:     firedAt,
		LastRunStatus: string(h.Status),
	}
	if s.Kind != schedule.KindDaily {
		terminal := schedule.StatusCompleted
		if h.Status == notification.HistoryFailed {
			terminal = schedule.StatusFailed
			update.FailureReason = out.lastError
		}
		update.Status = &terminal
	}
	if err := d.schedules.UpdateRun(ctx, s.ID, update); err != nil {
		return fmt.Errorf("update schedule %s after firing: %w", s.ID, err)
	}

	d.log.Info("firing complete",
		"schedule_id", s.ID, "timezone", timezone,
		"targeted", out.targeted, "success", out.success, "failure", failure,
		"status", h.Status)

	if s.Kind == schedule.KindDaily {
		d.keepRolling(ctx, s, timezone)
	}
	return nil
}

// send pages recipients in gateway-sized batches and multicasts each page.
func (d *Dispatcher) send(ctx context.Context, s schedule.Schedule, timezone string, firedAt time.Time) (sendOutcome, error) {
	var out sendOutcome

	payload := gateway.Payload{
		Title: s.Title,
		Body:  s.Message,
		Data: map[string]string{
			"category":   string(s.Category),
			"scheduleId": s.ID,
		},
	}

	q := audience.Build(s, timezone)

	afterID := ""
	for {
		page, err := d.users.FindRecipientsPage(ctx, q, afterID, gateway.MaxBatchSize)
		if err != nil {
			return sendOutcome{}, fmt.Errorf("resolve audience for schedule %s: %w", s.ID, err)
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		// defence in depth; the SQL predicate already excludes empty tokens
		batch := make([]postgres.Recipient, 0, len(page))
		tokens := make([]string, 0, len(page))
		for _, rec := range page {
			if rec.DeviceToken == "" {
				continue
			}
			batch = append(batch, rec)
			tokens = append(tokens, rec.DeviceToken)
		}
		if len(tokens) == 0 {
			if len(page) < gateway.MaxBatchSize {
				break
			}
			continue
		}

		out.targeted += len(tokens)

		failed := d.multicast(ctx, tokens, payload, &out)
		out.success += len(tokens) - len(failed)

		for _, rec := range batch {
			status := notification.LogSent
			if _, ok := failed[rec.DeviceToken]; ok {
				status = notification.LogFailed
			}
			out.logs = append(out.logs, notification.NewLog(
				rec.ID, s.ID, s.Title, s.Message, string(s.Category),
				rec.DeviceToken, status, firedAt,
			))
		}

		triage(failed, &out)

		if len(page) < gateway.MaxBatchSize {
			break
		}
	}

	return out, nil
}

// triage splits one batch's failures into the retry set and the tokens to
// clear.
func triage(failed map[string]string, out *sendOutcome) {
	fails := make([]gateway.Failure, 0, len(failed))
	for token, code := range failed {
		fails = append(fails, gateway.Failure{Token: token, Code: code})
	}

	retryable, permanent := gateway.Partition(fails)
	for _, f := range retryable {
		out.retryable = append(out.retryable, f.Token)
	}
	for _, f := range permanent {
		out.permanent = append(out.permanent, f.Token)
	}
}

// multicast sends one batch and returns the failed tokens keyed by error
// code. A batch-level error marks every token retryable.
func (d *Dispatcher) multicast(ctx context.Context, tokens []string, payload gateway.Payload, out *sendOutcome) map[string]string {
	report, err := d.gw.SendMulticast(ctx, tokens, payload)

	failed := make(map[string]string)
	if err != nil {
		out.lastError = err.Error()
		for _, token := range tokens {
			failed[token] = gateway.CodeBatchError
		}
		d.observeBatch("error", tokens, failed)
		return failed
	}

	for _, f := range report.Failures {
		failed[f.Token] = f.Code
	}
	d.observeBatch("ok", tokens, failed)
	return failed
}

func (d *Dispatcher) observeBatch(outcome string, tokens []string, failed map[string]string) {
	if d.prom == nil {
		return
	}
	d.prom.PushBatches.WithLabelValues(outcome).Inc()
	d.prom.PushTokens.WithLabelValues("success").Add(float64(len(tokens) - len(failed)))
	for _, code := range failed {
		if gateway.Retryable(code) {
			d.prom.PushTokens.WithLabelValues("retryable").Inc()
		} else {
			d.prom.PushTokens.WithLabelValues("permanent").Inc()
		}
	}
}

// finishEmpty records a firing that found nobody to send to.
func (d *Dispatcher) finishEmpty(ctx context.Context, s schedule.Schedule, timezone string, firedAt time.Time) error {
	h := notification.NewHistory(s.ID, timezone, firedAt, 0, 0, 0, noValidUsers)
	if err := d.history.Insert(ctx, h); err != nil {
		return fmt.Errorf("persist empty history for schedule %s: %w", s.ID, err)
	}

	update := postgres.RunUpdate{
		LastRunAt:     firedAt,
		LastRunStatus: string(notification.HistoryFailed),
		FailureReason: noValidUsers,
	}
	if s.Kind != schedule.KindDaily {
		failedStatus := schedule.StatusFailed
		update.Status = &failedStatus
	}
	if err := d.schedules.UpdateRun(ctx, s.ID, update); err != nil {
		return fmt.Errorf("update schedule %s after empty firing: %w", s.ID, err)
	}

	d.log.Warn("firing had no recipients", "schedule_id", s.ID, "timezone", timezone)

	if s.Kind == schedule.KindDaily {
		d.keepRolling(ctx, s, timezone)
	}
	return nil
}

// keepRolling re-plans the fired shard and sweeps for newly appeared ones.
// Planner errors are logged, not returned: the firing itself succeeded and
// must not be re-run by the queue.
func (d *Dispatcher) keepRolling(ctx context.Context, s schedule.Schedule, timezone string) {
	if err := d.planner.ReplanTimezone(ctx, s, timezone); err != nil {
		d.log.Error("replan after firing", "schedule_id", s.ID, "timezone", timezone, "error", err)
	}
	if err := d.planner.DiscoverySweep(ctx, s.ID, timezone); err != nil {
		d.log.Error("discovery sweep after firing", "schedule_id", s.ID, "error", err)
	}
}

func (d *Dispatcher) clearTokens(ctx context.Context, tokens []string) {
	for _, token := range tokens {
		if _, err := d.users.ClearDeviceToken(ctx, token); err != nil {
			d.log.Error("clear dead token", "error", err)
		}
	}
}
