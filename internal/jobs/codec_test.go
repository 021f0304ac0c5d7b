package jobs

import (
	"testing"
	"time"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/job"
)

func TestEncodeDecode_DailySend(t *testing.T) {
	payload := DailySendPayload{
		ScheduleID: "sched-123",
		Timezone:   "asia/tokyo",
	}

	b, err := EncodePayload(JobDailyTimezoneSend, payload)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}

	j := job.New(job.CreateRequest{
		Type:       string(JobDailyTimezoneSend),
		Payload:    b,
		ScheduleID: payload.ScheduleID,
		Timezone:   payload.Timezone,
	})

	decoded, err := DecodePayload(j)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(DailySendPayload)
	if !ok {
		t.Fatalf("expected DailySendPayload, got %T", decoded)
	}

	if p.ScheduleID != payload.ScheduleID || p.Timezone != payload.Timezone {
		t.Fatalf("round trip mismatch: %+v", p)
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobDailyTimezoneSend, OnceSendPayload{ScheduleID: "s1"})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if err != ErrPayloadTypeMismatch {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestValidatePayload_RequiredFields(t *testing.T) {
	if err := ValidatePayload(JobDailyTimezoneSend, DailySendPayload{ScheduleID: "s1"}); err == nil {
		t.Fatalf("expected error for missing timezone")
	}

	if err := ValidatePayload(JobRetrySend, RetrySendPayload{ScheduleID: "s1", Tokens: []string{"t"}, Attempt: 0}); err == nil {
		t.Fatalf("expected error for attempt < 1")
	}

	if err := ValidatePayload(JobRetrySend, RetrySendPayload{ScheduleID: "s1", Tokens: []string{"t"}, Attempt: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJobIDs(t *testing.T) {
	at := time.UnixMilli(1712345678901)

	id := DailyJobID("s1", "europe/london", at)
	if id != "daily-s1-europe/london-1712345678901" {
		t.Fatalf("unexpected daily id: %s", id)
	}

	fireAt := time.Date(2026, 4, 5, 14, 30, 0, 0, time.UTC)
	if got := OnceJobID("s1", fireAt); got != "once-s1-20260405T14" {
		t.Fatalf("unexpected once id: %s", got)
	}
}
