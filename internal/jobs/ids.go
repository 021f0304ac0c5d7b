package jobs

import (
	"fmt"
	"time"
)

// Daily occurrences get a fresh unique id per plan; the trailing epoch
// millis keeps consecutive self-scheduling from colliding. Deduplication for
// daily jobs happens by enumeration (PendingExists), not by id.
func DailyJobID(scheduleID, timezone string, at time.Time) string {
	return fmt.Sprintf("daily-%s-%s-%d", scheduleID, timezone, at.UnixMilli())
}

// Once jobs use a truly stable id so a double plan for the same hour is
// rejected by the queue's primary key.
func OnceJobID(scheduleID string, fireAt time.Time) string {
	return fmt.Sprintf("once-%s-%s", scheduleID, fireAt.UTC().Format("20060102T15"))
}
