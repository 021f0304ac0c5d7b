package schedule

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/tz"
)

type Kind string

const (
	KindInstant Kind = "instant"
	KindOnce    Kind = "once"
	KindDaily   Kind = "daily"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindInstant, KindOnce, KindDaily:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceFiltered Audience = "filtered"
)

type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryWorkout  Category = "workout"
	CategoryHydration Category = "hydration"
	CategoryReminder Category = "reminder"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryGeneral, CategoryWorkout, CategoryHydration, CategoryReminder:
		return true
	default:
		return false
	}
}

// Filter narrows a filtered audience. At least one sub-field must be set.
type Filter struct {
	Genders   []string  `json:"genders,omitempty"`
	Platforms []string  `json:"platforms,omitempty"`
	AgeRange  *AgeRange `json:"ageRange,omitempty"`
}

type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (f Filter) Empty() bool {
	return len(f.Genders) == 0 && len(f.Platforms) == 0 && f.AgeRange == nil
}

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrScheduleExpired  = errors.New("schedule fire time already passed")
	ErrInvalidOperation = errors.New("operation not allowed in current state")
	ErrInvalidSchedule  = errors.New("invalid schedule")
)

const (
	MaxTitleLen   = 65
	MaxMessageLen = 240
	MinFilterAge  = 13
	MaxFilterAge  = 120
)

type Schedule struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"kind"`
	LocalTime string    `json:"localTime,omitempty"` // "HH:MM", daily only
	FireAt    *time.Time `json:"fireAt,omitempty"`   // once only
	Audience  Audience  `json:"audience"`
	Filter    *Filter   `json:"filter,omitempty"`
	Category  Category  `json:"category"`
	Status    Status    `json:"status"`
	IsActive  bool      `json:"isActive"`

	TotalTargeted int        `json:"totalTargeted"`
	SuccessCount  int        `json:"successCount"`
	FailureCount  int        `json:"failureCount"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastRunStatus string     `json:"lastRunStatus,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Title     string
	Message   string
	Kind      Kind
	LocalTime string
	FireAt    *time.Time
	Audience  Audience
	Filter    *Filter
	Category  Category
}

var validGenders = map[string]bool{"male": true, "female": true, "other": true}
var validPlatforms = map[string]bool{"android": true, "ios": true, "web": true}

// Validate checks a create request against the creation rules. now is passed
// in so the fireAt-in-future check is deterministic in tests.
func Validate(req CreateRequest, now time.Time) error {
	title := strings.TrimSpace(req.Title)
	message := strings.TrimSpace(req.Message)

	// rune counts, matching the handler's binding limits on multibyte input
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLen {
		return errInvalid("title must be 1-65 characters")
	}
	if message == "" || utf8.RuneCountInString(message) > MaxMessageLen {
		return errInvalid("message must be 1-240 characters")
	}
	if !req.Kind.IsValid() {
		return errInvalid("kind must be instant, once or daily")
	}
	if req.Category != "" && !req.Category.IsValid() {
		return errInvalid("unknown category")
	}

	switch req.Kind {
	case KindDaily:
		if _, _, err := tz.ParseLocalTime(req.LocalTime); err != nil {
			return errInvalid("localTime must be HH:MM")
		}
		if req.FireAt != nil {
			return errInvalid("fireAt is not allowed for daily schedules")
		}
	case KindOnce:
		if req.FireAt == nil {
			return errInvalid("fireAt is required for once schedules")
		}
		if !req.FireAt.After(now) {
			return ErrScheduleExpired
		}
		if req.LocalTime != "" {
			return errInvalid("localTime is not allowed for once schedules")
		}
	case KindInstant:
		if req.FireAt != nil || req.LocalTime != "" {
			return errInvalid("instant schedules take no fire time")
		}
	}

	switch req.Audience {
	case AudienceAll:
		if req.Filter != nil && !req.Filter.Empty() {
			return errInvalid("filter is not allowed when audience is all")
		}
	case AudienceFiltered:
		if req.Filter == nil || req.Filter.Empty() {
			return errInvalid("filtered audience requires at least one filter field")
		}
		for _, g := range req.Filter.Genders {
			if !validGenders[g] {
				return errInvalid("gender must be male, female or other")
			}
		}
		for _, p := range req.Filter.Platforms {
			if !validPlatforms[p] {
				return errInvalid("platform must be android, ios or web")
			}
		}
		if r := req.Filter.AgeRange; r != nil {
			if r.Min < MinFilterAge || r.Max > MaxFilterAge || r.Min > r.Max {
				return errInvalid("ageRange must satisfy 13 <= min <= max <= 120")
			}
		}
	default:
		return errInvalid("audience must be all or filtered")
	}

	return nil
}

func errInvalid(msg string) error {
	return errors.Join(ErrInvalidSchedule, errors.New(msg))
}

// New builds a Schedule from a validated request. Instant and once schedules
// start pending; daily schedules are active from creation.
func New(req CreateRequest, now time.Time) Schedule {
	status := StatusPending
	if req.Kind == KindDaily {
		status = StatusActive
	}

	category := req.Category
	if category == "" {
		category = CategoryGeneral
	}

	return Schedule{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		Message:   strings.TrimSpace(req.Message),
		Kind:      req.Kind,
		LocalTime: req.LocalTime,
		FireAt:    req.FireAt,
		Audience:  req.Audience,
		Filter:    req.Filter,
		Category:  category,
		Status:    status,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
