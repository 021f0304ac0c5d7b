package notification

import (
	"time"

	"github.com/google/uuid"
)

type LogStatus string

const (
	LogSent   LogStatus = "sent"
	LogFailed LogStatus = "failed"
)

// Log is the per (user, firing) record behind the user-visible feed.
type Log struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ScheduleID  string    `json:"scheduleId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Category    string    `json:"category"`
	Status      LogStatus `json:"status"`
	DeviceToken string    `json:"deviceToken"`
	SentAt      time.Time `json:"sentAt"`
}

func NewLog(userID, scheduleID, title, message, category, token string, status LogStatus, sentAt time.Time) Log {
	return Log{
		ID:          uuid.NewString(),
		UserID:      userID,
		ScheduleID:  scheduleID,
		Title:       title,
		Message:     message,
		Category:    category,
		Status:      status,
		DeviceToken: token,
		SentAt:      sentAt,
	}
}

type HistoryStatus string

const (
	HistorySent           HistoryStatus = "sent"
	HistoryPartialSuccess HistoryStatus = "partial_success"
	HistoryFailed         HistoryStatus = "failed"
)

// HistoryStatusFor derives the aggregate outcome of a firing from its
// counts: every recipient reached is sent, at least half is partial_success,
// anything less is failed.
func HistoryStatusFor(targeted, success int) HistoryStatus {
	if targeted <= 0 {
		return HistoryFailed
	}
	if success == targeted {
		return HistorySent
	}
	if success*2 >= targeted {
		return HistoryPartialSuccess
	}
	return HistoryFailed
}

// History is the per (schedule, firing) aggregate; exactly one row exists
// per firing.
type History struct {
	ID            string        `json:"id"`
	ScheduleID    string        `json:"scheduleId"`
	FiredAt       time.Time     `json:"firedAt"`
	Timezone      string        `json:"timezone,omitempty"`
	TotalTargeted int           `json:"totalTargeted"`
	SuccessCount  int           `json:"successCount"`
	FailureCount  int           `json:"failureCount"`
	Status        HistoryStatus `json:"status"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
}

func NewHistory(scheduleID, timezone string, firedAt time.Time, targeted, success, failure int, errMsg string) History {
	return History{
		ID:            uuid.NewString(),
		ScheduleID:    scheduleID,
		FiredAt:       firedAt,
		Timezone:      timezone,
		TotalTargeted: targeted,
		SuccessCount:  success,
		FailureCount:  failure,
		Status:        HistoryStatusFor(targeted, success),
		ErrorMessage:  errMsg,
	}
}
