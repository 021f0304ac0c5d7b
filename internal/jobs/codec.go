package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/job"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}

	ok := false

	switch t {
	case JobInstantSend:
		switch payload.(type) {
		case InstantSendPayload, *InstantSendPayload:
			ok = true
		}
	case JobOnceSend:
		switch payload.(type) {
		case OnceSendPayload, *OnceSendPayload:
			ok = true
		}
	case JobDailyTimezoneSend:
		switch payload.(type) {
		case DailySendPayload, *DailySendPayload:
			ok = true
		}
	case JobRetrySend:
		switch payload.(type) {
		case RetrySendPayload, *RetrySendPayload:
			ok = true
		}
	}

	if !ok {
		return nil, ErrPayloadTypeMismatch
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals job.Payload into the correct typed payload struct.
func DecodePayload(j job.Job) (any, error) {
	if !JobType(j.Type).IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	switch JobType(j.Type) {
	case JobInstantSend:
		var p InstantSendPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobOnceSend:
		var p OnceSendPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobDailyTimezoneSend:
		var p DailySendPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobRetrySend:
		var p RetrySendPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	default:
		return nil, ErrInvalidJobType
	}
}
