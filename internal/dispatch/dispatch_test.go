package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/audience"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/job"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/notification"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/gateway"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/jobs"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
)

type fakeSchedules struct {
	byID        map[string]schedule.Schedule
	runUpdates  []postgres.RunUpdate
	retryDeltas [][2]int
}

func (f *fakeSchedules) GetByID(ctx context.Context, id string) (schedule.Schedule, error) {
	s, ok := f.byID[id]
	if !ok {
		return schedule.Schedule{}, schedule.ErrScheduleNotFound
	}
	return s, nil
}

func (f *fakeSchedules) UpdateRun(ctx context.Context, id string, u postgres.RunUpdate) error {
	f.runUpdates = append(f.runUpdates, u)
	return nil
}

func (f *fakeSchedules) ApplyRetryDelta(ctx context.Context, id string, successDelta, failureDelta int) error {
	f.retryDeltas = append(f.retryDeltas, [2]int{successDelta, failureDelta})
	return nil
}

type fakeUsers struct {
	recipients []postgres.Recipient
	cleared    []string
}

func (f *fakeUsers) FindRecipientsPage(ctx context.Context, q audience.Query, afterID string, limit int) ([]postgres.Recipient, error) {
	var out []postgres.Recipient
	for _, r := range f.recipients {
		if afterID != "" && r.ID <= afterID {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeUsers) ClearDeviceToken(ctx context.Context, token string) (int64, error) {
	f.cleared = append(f.cleared, token)
	return 1, nil
}

type fakeLogs struct {
	inserted []notification.Log
}

func (f *fakeLogs) BulkInsert(ctx context.Context, logs []notification.Log) error {
	f.inserted = append(f.inserted, logs...)
	return nil
}

type fakeHistory struct {
	inserted []notification.History
	deltas   []struct {
		id       string
		success  int
		failure  int
	}
}

func (f *fakeHistory) Insert(ctx context.Context, h notification.History) error {
	f.inserted = append(f.inserted, h)
	return nil
}

func (f *fakeHistory) ApplyRetryDelta(ctx context.Context, id string, successDelta, failureDelta int) error {
	f.deltas = append(f.deltas, struct {
		id      string
		success int
		failure int
	}{id, successDelta, failureDelta})
	return nil
}

type fakeQueue struct {
	enqueued []job.Job
}

func (f *fakeQueue) Enqueue(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)
	f.enqueued = append(f.enqueued, j)
	return j, nil
}

type fakePlanner struct {
	replans []string // timezone
	sweeps  []string // fired schedule id
}

func (f *fakePlanner) ReplanTimezone(ctx context.Context, s schedule.Schedule, timezone string) error {
	f.replans = append(f.replans, timezone)
	return nil
}

func (f *fakePlanner) DiscoverySweep(ctx context.Context, firedScheduleID, firedTimezone string) error {
	f.sweeps = append(f.sweeps, firedScheduleID)
	return nil
}

// scriptedGateway fails the tokens it is told to, with the given codes.
type scriptedGateway struct {
	failures map[string]string
	batchErr error
	calls    [][]string
}

func (g *scriptedGateway) SendMulticast(ctx context.Context, tokens []string, payload gateway.Payload) (gateway.Report, error) {
	g.calls = append(g.calls, tokens)
	if g.batchErr != nil {
		return gateway.Report{}, g.batchErr
	}

	var rep gateway.Report
	for _, token := range tokens {
		if code, ok := g.failures[token]; ok {
			rep.FailureCount++
			rep.Failures = append(rep.Failures, gateway.Failure{Token: token, Code: code})
		} else {
			rep.SuccessCount++
		}
	}
	return rep, nil
}

type harness struct {
	d         *Dispatcher
	schedules *fakeSchedules
	users     *fakeUsers
	logs      *fakeLogs
	history   *fakeHistory
	queue     *fakeQueue
	planner   *fakePlanner
	gw        *scriptedGateway
}

func fixedNow() time.Time {
	return time.Date(2036, 4, 1, 9, 0, 0, 0, time.UTC)
}

func newHarness(s schedule.Schedule, recipients []postgres.Recipient, gw *scriptedGateway) *harness {
	h := &harness{
		schedules: &fakeSchedules{byID: map[string]schedule.Schedule{s.ID: s}},
		users:     &fakeUsers{recipients: recipients},
		logs:      &fakeLogs{},
		history:   &fakeHistory{},
		queue:     &fakeQueue{},
		planner:   &fakePlanner{},
		gw:        gw,
	}
	h.d = New(h.schedules, h.users, h.logs, h.history, h.queue, h.planner, h.gw,
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.d.now = fixedNow
	return h
}

func dailySchedule() schedule.Schedule {
	return schedule.Schedule{
		ID:        "s1",
		Title:     "Hydrate",
		Message:   "Drink some water",
		Kind:      schedule.KindDaily,
		LocalTime: "09:00",
		Audience:  schedule.AudienceAll,
		Category:  schedule.CategoryHydration,
		Status:    schedule.StatusActive,
		IsActive:  true,
	}
}

func recipients(n int) []postgres.Recipient {
	out := make([]postgres.Recipient, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, postgres.Recipient{
			ID:          string(rune('a' + i)),
			DeviceToken: "tok-" + string(rune('a'+i)),
			Timezone:    "asia/kolkata",
		})
	}
	return out
}

func TestDispatch_AllSuccess(t *testing.T) {
	h := newHarness(dailySchedule(), recipients(3), &scriptedGateway{})

	if err := h.d.Dispatch(context.Background(), "s1", "asia/kolkata"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(h.history.inserted) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(h.history.inserted))
	}
	got := h.history.inserted[0]
	if got.Status != notification.HistorySent || got.TotalTargeted != 3 || got.SuccessCount != 3 {
		t.Fatalf("unexpected history: %+v", got)
	}

	if len(h.logs.inserted) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(h.logs.inserted))
	}
	for _, l := range h.logs.inserted {
		if l.Status != notification.LogSent {
			t.Fatalf("expected sent log, got %s", l.Status)
		}
	}

	if len(h.planner.replans) != 1 || h.planner.replans[0] != "asia/kolkata" {
		t.Fatalf("daily firing must replan its shard: %v", h.planner.replans)
	}
	if len(h.planner.sweeps) != 1 {
		t.Fatalf("daily firing must run the discovery sweep")
	}
	if len(h.queue.enqueued) != 0 {
		t.Fatalf("no retries expected, got %d", len(h.queue.enqueued))
	}
}

func TestDispatch_PermanentFailureCleansToken(t *testing.T) {
	gw := &scriptedGateway{failures: map[string]string{"tok-a": gateway.CodeUnregistered}}
	h := newHarness(dailySchedule(), recipients(2), gw)

	if err := h.d.Dispatch(context.Background(), "s1", "asia/kolkata"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(h.users.cleared) != 1 || h.users.cleared[0] != "tok-a" {
		t.Fatalf("dead token must be cleared, got %v", h.users.cleared)
	}
	if len(h.queue.enqueued) != 0 {
		t.Fatalf("permanent failure must not enqueue a retry")
	}

	var failedLogs int
	for _, l := range h.logs.inserted {
		if l.Status == notification.LogFailed {
			failedLogs++
		}
	}
	if failedLogs != 1 {
		t.Fatalf("expected 1 failed log, got %d", failedLogs)
	}
}

func TestDispatch_TransientFailureEnqueuesRetry(t *testing.T) {
	gw := &scriptedGateway{failures: map[string]string{"tok-b": gateway.CodeTimeout}}
	h := newHarness(dailySchedule(), recipients(2), gw)

	if err := h.d.Dispatch(context.Background(), "s1", "asia/kolkata"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(h.queue.enqueued) != 1 {
		t.Fatalf("expected 1 retry job, got %d", len(h.queue.enqueued))
	}
	j := h.queue.enqueued[0]
	if j.Type != string(jobs.JobRetrySend) {
		t.Fatalf("wrong job type %s", j.Type)
	}
	if want := fixedNow().Add(time.Minute); !j.RunAt.Equal(want) {
		t.Fatalf("first retry must run at +60s, got %v", j.RunAt)
	}

	p, err := jobs.DecodePayload(j)
	if err != nil {
		t.Fatalf("decode retry payload: %v", err)
	}
	rp := p.(jobs.RetrySendPayload)
	if rp.Attempt != 1 || len(rp.Tokens) != 1 || rp.Tokens[0] != "tok-b" {
		t.Fatalf("unexpected retry payload: %+v", rp)
	}
	if rp.HistoryID != h.history.inserted[0].ID {
		t.Fatalf("retry must reference the firing's history row")
	}
	if len(h.users.cleared) != 0 {
		t.Fatalf("transient failure must not clear the token")
	}
}

func TestDispatch_HistoryThresholds(t *testing.T) {
	cases := []struct {
		name     string
		failures map[string]string
		want     notification.HistoryStatus
	}{
		{"half succeeds", map[string]string{"tok-a": gateway.CodeTimeout}, notification.HistoryPartialSuccess},
		{"most fail", map[string]string{"tok-a": gateway.CodeTimeout, "tok-b": gateway.CodeTimeout, "tok-c": gateway.CodeTimeout}, notification.HistoryFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(dailySchedule(), recipients(4), &scriptedGateway{failures: tc.failures})

			if err := h.d.Dispatch(context.Background(), "s1", "asia/kolkata"); err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if got := h.history.inserted[0].Status; got != tc.want {
				t.Fatalf("history status = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDispatch_NoRecipients(t *testing.T) {
	h := newHarness(dailySchedule(), nil, &scriptedGateway{})

	if err := h.d.Dispatch(context.Background(), "s1", "asia/kolkata"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got := h.history.inserted[0]
	if got.Status != notification.HistoryFailed || got.TotalTargeted != 0 || got.ErrorMessage != "no valid users" {
		t.Fatalf("unexpected empty history: %+v", got)
	}
	if len(h.planner.replans) != 1 {
		t.Fatalf("daily schedule must replan even with no recipients")
	}
}

func TestDispatch_OnceNoRecipientsFails(t *testing.T) {
	fireAt := fixedNow().Add(-time.Minute)
	s := schedule.Schedule{
		ID:       "s2",
		Title:    "Launch",
		Message:  "We are live",
		Kind:     schedule.KindOnce,
		FireAt:   &fireAt,
		Audience: schedule.AudienceAll,
		Category: schedule.CategoryGeneral,
		Status:   schedule.StatusPending,
		IsActive: true,
	}
	h := newHarness(s, nil, &scriptedGateway{})

	if err := h.d.Dispatch(context.Background(), "s2", ""); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(h.schedules.runUpdates) != 1 {
		t.Fatalf("expected a run update")
	}
	u := h.schedules.runUpdates[0]
	if u.Status == nil || *u.Status != schedule.StatusFailed {
		t.Fatalf("once schedule with no recipients must fail, got %+v", u.Status)
	}
	if len(h.planner.replans) != 0 {
		t.Fatalf("once schedules are never re-planned")
	}
}

func TestDispatch_OnceCompletes(t *testing.T) {
	fireAt := fixedNow().Add(-time.Minute)
	s := schedule.Schedule{
		ID:       "s2",
		Title:    "Launch",
		Message:  "We are live",
		Kind:     schedule.KindOnce,
		FireAt:   &fireAt,
		Audience: schedule.AudienceAll,
		Category: schedule.CategoryGeneral,
		Status:   schedule.StatusPending,
		IsActive: true,
	}
	h := newHarness(s, recipients(2), &scriptedGateway{})

	if err := h.d.Dispatch(context.Background(), "s2", ""); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	u := h.schedules.runUpdates[0]
	if u.Status == nil || *u.Status != schedule.StatusCompleted {
		t.Fatalf("once schedule must complete, got %+v", u.Status)
	}
}

func TestDispatch_InactiveIsNoop(t *testing.T) {
	s := dailySchedule()
	s.IsActive = false
	h := newHarness(s, recipients(2), &scriptedGateway{})

	if err := h.d.Dispatch(context.Background(), "s1", "asia/kolkata"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(h.gw.calls) != 0 || len(h.history.inserted) != 0 || len(h.logs.inserted) != 0 {
		t.Fatalf("inactive schedule must produce no side effects")
	}
}

func TestDispatch_MissingScheduleDropsJob(t *testing.T) {
	h := newHarness(dailySchedule(), nil, &scriptedGateway{})

	if err := h.d.Dispatch(context.Background(), "gone", ""); err != nil {
		t.Fatalf("missing schedule must not error (job would be retried): %v", err)
	}
}

func TestRetry_SuccessMovesCounts(t *testing.T) {
	h := newHarness(dailySchedule(), nil, &scriptedGateway{})

	err := h.d.Retry(context.Background(), jobs.RetrySendPayload{
		ScheduleID: "s1",
		HistoryID:  "h1",
		Tokens:     []string{"tok-a", "tok-b"},
		Attempt:    1,
		Title:      "Hydrate",
		Message:    "Drink some water",
		Category:   "hydration",
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if len(h.history.inserted) != 0 {
		t.Fatalf("retry must not create a new history row")
	}
	if len(h.history.deltas) != 1 {
		t.Fatalf("expected 1 history delta, got %d", len(h.history.deltas))
	}
	delta := h.history.deltas[0]
	if delta.id != "h1" || delta.success != 2 || delta.failure != -2 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
	if len(h.schedules.retryDeltas) != 1 || h.schedules.retryDeltas[0] != [2]int{2, -2} {
		t.Fatalf("schedule counters must move with the history")
	}
	if len(h.queue.enqueued) != 0 {
		t.Fatalf("fully recovered retry must not re-enqueue")
	}
}

func TestRetry_PermanentNotCountedInDelta(t *testing.T) {
	gw := &scriptedGateway{failures: map[string]string{"tok-a": gateway.CodeUnregistered}}
	h := newHarness(dailySchedule(), nil, gw)

	err := h.d.Retry(context.Background(), jobs.RetrySendPayload{
		ScheduleID: "s1", HistoryID: "h1",
		Tokens: []string{"tok-a", "tok-b"}, Attempt: 2,
		Title: "Hydrate", Message: "Drink some water", Category: "hydration",
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}

	// tok-b recovered, tok-a went permanent: only the recovery moves counts
	if h.history.deltas[0].success != 1 || h.history.deltas[0].failure != -1 {
		t.Fatalf("unexpected delta: %+v", h.history.deltas[0])
	}
	if len(h.users.cleared) != 1 || h.users.cleared[0] != "tok-a" {
		t.Fatalf("now-permanent token must be cleared")
	}
}

func TestRetry_ReenqueuesWithBackoff(t *testing.T) {
	gw := &scriptedGateway{failures: map[string]string{"tok-a": gateway.CodeUnavailable}}
	h := newHarness(dailySchedule(), nil, gw)

	err := h.d.Retry(context.Background(), jobs.RetrySendPayload{
		ScheduleID: "s1", HistoryID: "h1",
		Tokens: []string{"tok-a"}, Attempt: 1,
		Title: "Hydrate", Message: "Drink some water", Category: "hydration",
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if len(h.queue.enqueued) != 1 {
		t.Fatalf("expected re-enqueue, got %d", len(h.queue.enqueued))
	}
	j := h.queue.enqueued[0]
	if want := fixedNow().Add(2 * time.Minute); !j.RunAt.Equal(want) {
		t.Fatalf("attempt 2 must run at +120s, got %v", j.RunAt)
	}

	p, _ := jobs.DecodePayload(j)
	if rp := p.(jobs.RetrySendPayload); rp.Attempt != 2 {
		t.Fatalf("attempt must increment, got %d", rp.Attempt)
	}
}

func TestRetry_SurrendersAtCap(t *testing.T) {
	gw := &scriptedGateway{failures: map[string]string{"tok-a": gateway.CodeUnavailable}}
	h := newHarness(dailySchedule(), nil, gw)

	err := h.d.Retry(context.Background(), jobs.RetrySendPayload{
		ScheduleID: "s1", HistoryID: "h1",
		Tokens: []string{"tok-a"}, Attempt: MaxRetryAttempts,
		Title: "Hydrate", Message: "Drink some water", Category: "hydration",
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if len(h.queue.enqueued) != 0 {
		t.Fatalf("attempt %d must surrender, got re-enqueue", MaxRetryAttempts)
	}
}

func TestRetryDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
	}
	for _, tc := range cases {
		if got := RetryDelay(tc.attempt); got != tc.want {
			t.Fatalf("RetryDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExecute_RoutesByJobType(t *testing.T) {
	h := newHarness(dailySchedule(), recipients(1), &scriptedGateway{})

	payload, err := jobs.EncodePayload(jobs.JobDailyTimezoneSend, jobs.DailySendPayload{
		ScheduleID: "s1",
		Timezone:   "asia/kolkata",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	j := job.New(job.CreateRequest{
		Type:    string(jobs.JobDailyTimezoneSend),
		Payload: payload,
	})
	if err := h.d.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(h.history.inserted) != 1 {
		t.Fatalf("daily job must dispatch")
	}
}
