package jobs

import "strings"

// ValidatePayload performs minimal validation on decoded payloads.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobInstantSend:
		var p InstantSendPayload
		switch v := payload.(type) {
		case InstantSendPayload:
			p = v
		case *InstantSendPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.ScheduleID) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobOnceSend:
		var p OnceSendPayload
		switch v := payload.(type) {
		case OnceSendPayload:
			p = v
		case *OnceSendPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.ScheduleID) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobDailyTimezoneSend:
		var p DailySendPayload
		switch v := payload.(type) {
		case DailySendPayload:
			p = v
		case *DailySendPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.ScheduleID) == "" || trim(p.Timezone) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobRetrySend:
		var p RetrySendPayload
		switch v := payload.(type) {
		case RetrySendPayload:
			p = v
		case *RetrySendPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.ScheduleID) == "" || len(p.Tokens) == 0 || p.Attempt < 1 {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
