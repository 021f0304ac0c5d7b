package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/job"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/gateway"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/jobs"
)

// MaxRetryAttempts bounds the retry pipeline; after the third attempt the
// remaining recipients are final failures.
const MaxRetryAttempts = 3

// RetryDelay is the backoff before a given attempt: 60s for the first, then
// doubling.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Minute << (attempt - 1)
}

func (d *Dispatcher) enqueueRetry(ctx context.Context, s schedule.Schedule, historyID string, tokens []string, attempt int) {
	payload, err := jobs.EncodePayload(jobs.JobRetrySend, jobs.RetrySendPayload{
		ScheduleID: s.ID,
		HistoryID:  historyID,
		Tokens:     tokens,
		Attempt:    attempt,
		Title:      s.Title,
		Message:    s.Message,
		Category:   string(s.Category),
	})
	if err != nil {
		d.log.Error("encode retry payload", "schedule_id", s.ID, "error", err)
		return
	}

	_, err = d.queue.Enqueue(ctx, job.CreateRequest{
		Type:       string(jobs.JobRetrySend),
		Payload:    payload,
		RunAt:      d.now().Add(RetryDelay(attempt)),
		ScheduleID: s.ID,
	})
	if err != nil {
		// Losing a retry degrades the firing's final counts, nothing more.
		d.log.Error("enqueue retry", "schedule_id", s.ID, "attempt", attempt, "error", err)
		return
	}

	d.log.Info("retry enqueued",
		"schedule_id", s.ID, "attempt", attempt, "tokens", len(tokens),
		"delay", RetryDelay(attempt))
}

// Retry re-sends one firing's transient failures. A recipient's outcome is
// decided by the first definitive result: a retry success moves the original
// firing's count from failure to success, a now-permanent token is cleared
// without touching counts (it was already counted failed), and tokens still
// failing transiently roll into the next attempt until the cap.
func (d *Dispatcher) Retry(ctx context.Context, p jobs.RetrySendPayload) error {
	s, err := d.schedules.GetByID(ctx, p.ScheduleID)
	if errors.Is(err, schedule.ErrScheduleNotFound) {
		d.log.Warn("retry for missing schedule dropped", "schedule_id", p.ScheduleID)
		return nil
	}
	if err != nil {
		return err
	}
	if !s.IsActive {
		d.log.Info("retry skipped, schedule inactive", "schedule_id", p.ScheduleID)
		return nil
	}

	payload := gateway.Payload{
		Title: p.Title,
		Body:  p.Message,
		Data: map[string]string{
			"category":   p.Category,
			"scheduleId": p.ScheduleID,
		},
	}

	var out sendOutcome
	success := 0
	for start := 0; start < len(p.Tokens); start += gateway.MaxBatchSize {
		end := start + gateway.MaxBatchSize
		if end > len(p.Tokens) {
			end = len(p.Tokens)
		}
		batch := p.Tokens[start:end]

		failed := d.multicast(ctx, batch, payload, &out)
		success += len(batch) - len(failed)

		triage(failed, &out)
	}

	d.clearTokens(ctx, out.permanent)

	if success > 0 {
		if err := d.history.ApplyRetryDelta(ctx, p.HistoryID, success, -success); err != nil {
			d.log.Error("apply retry delta to history", "history_id", p.HistoryID, "error", err)
		}
		if err := d.schedules.ApplyRetryDelta(ctx, p.ScheduleID, success, -success); err != nil {
			d.log.Error("apply retry delta to schedule", "schedule_id", p.ScheduleID, "error", err)
		}
	}

	d.log.Info("retry attempt finished",
		"schedule_id", p.ScheduleID, "attempt", p.Attempt,
		"recovered", success, "permanent", len(out.permanent), "still_failing", len(out.retryable))

	if len(out.retryable) == 0 {
		return nil
	}

	if p.Attempt >= MaxRetryAttempts {
		d.log.Warn("retries exhausted",
			"schedule_id", p.ScheduleID, "tokens", len(out.retryable))
		return nil
	}

	d.enqueueRetry(ctx, s, p.HistoryID, out.retryable, p.Attempt+1)
	return nil
}
