package jobs

type JobType string

const (
	// JobInstantSend delivers an instant schedule to its whole audience.
	JobInstantSend JobType = "notification.instant_send"

	// JobOnceSend delivers a one-shot schedule at its absolute fire time.
	JobOnceSend JobType = "notification.once_send"

	// JobDailyTimezoneSend delivers one occurrence of a daily schedule to a
	// single timezone shard.
	JobDailyTimezoneSend JobType = "notification.daily_timezone_send"

	// JobRetrySend re-sends a firing's transient failures with backoff.
	JobRetrySend JobType = "notification.retry_send"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobInstantSend, JobOnceSend, JobDailyTimezoneSend, JobRetrySend:
		return true
	default:
		return false
	}
}

// All lists every job type owned by the notification core; the queue adapter
// scopes enumeration to these.
func All() []JobType {
	return []JobType{JobInstantSend, JobOnceSend, JobDailyTimezoneSend, JobRetrySend}
}
