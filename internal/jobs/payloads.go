package jobs

// InstantSendPayload delivers a pending instant schedule.
// Keep payloads minimal and ID-based; the worker loads details from the DB.
type InstantSendPayload struct {
	ScheduleID string `json:"scheduleId"`
}

// OnceSendPayload delivers a one-shot schedule once its fireAt is due.
type OnceSendPayload struct {
	ScheduleID string `json:"scheduleId"`
}

// DailySendPayload delivers one occurrence of a daily schedule to the
// recipients sharing Timezone (canonical lowercased IANA name).
type DailySendPayload struct {
	ScheduleID string `json:"scheduleId"`
	Timezone   string `json:"timezone"`
}

// RetrySendPayload re-sends a firing's retryable failures. The message body
// is carried along so the retry does not depend on the schedule being
// unchanged; HistoryID points retry deltas at the original firing's
// aggregate.
type RetrySendPayload struct {
	ScheduleID string   `json:"scheduleId"`
	HistoryID  string   `json:"historyId"`
	Tokens     []string `json:"tokens"`
	Attempt    int      `json:"attempt"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Category   string   `json:"category"`
}
