package job

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrDuplicateJob = errors.New("job id already enqueued")
)

// Job is one unit of delayed work in the jobs table. ScheduleID and Timezone
// are denormalized out of the payload so pause/resume and the discovery
// duplicate guard can enumerate jobs without decoding payloads.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LockedAt    *time.Time      `json:"lockedAt,omitempty"`
	LockedBy    *string         `json:"lockedBy,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	ScheduleID  *string         `json:"scheduleId,omitempty"`
	Timezone    *string         `json:"timezone,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type CreateRequest struct {
	// ID is the stable job id. Empty means queue-assigned (uuid).
	ID          string
	Type        string
	Payload     json.RawMessage
	RunAt       time.Time
	MaxAttempts int
	ScheduleID  string
	Timezone    string
}

func New(req CreateRequest) Job {
	now := time.Now().UTC()

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	maxA := req.MaxAttempts
	if maxA <= 0 {
		maxA = 3
	}

	runAt := req.RunAt
	if runAt.IsZero() || runAt.Before(now) {
		// negative delays fire immediately
		runAt = now
	}

	j := Job{
		ID:          id,
		Type:        req.Type,
		Payload:     req.Payload,
		Status:      StatusPending,
		Attempts:    0,
		MaxAttempts: maxA,
		RunAt:       runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.ScheduleID != "" {
		sid := req.ScheduleID
		j.ScheduleID = &sid
	}
	if req.Timezone != "" {
		tz := req.Timezone
		j.Timezone = &tz
	}

	return j
}
