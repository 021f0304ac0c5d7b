package gateway

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM sends through Firebase Cloud Messaging. One multicast call covers up
// to MaxBatchSize tokens.
type FCM struct {
	client *messaging.Client
}

func NewFCM(ctx context.Context, credentialsFile string) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}

	return &FCM{client: client}, nil
}

func (g *FCM) SendMulticast(ctx context.Context, tokens []string, payload Payload) (Report, error) {
	if len(tokens) == 0 {
		return Report{}, nil
	}
	if len(tokens) > MaxBatchSize {
		return Report{}, fmt.Errorf("batch of %d exceeds gateway limit %d", len(tokens), MaxBatchSize)
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
	}

	br, err := g.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		SuccessCount: br.SuccessCount,
		FailureCount: br.FailureCount,
	}

	for i, resp := range br.Responses {
		if resp.Success {
			continue
		}
		report.Failures = append(report.Failures, Failure{
			Token: tokens[i],
			Code:  classifyFCMError(resp.Error),
		})
	}

	return report, nil
}

func classifyFCMError(err error) string {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case messaging.IsUnregistered(err):
		return CodeUnregistered
	case messaging.IsInvalidArgument(err):
		return CodeInvalidToken
	case messaging.IsSenderIDMismatch(err):
		return CodeMismatchedCredential
	case messaging.IsThirdPartyAuthError(err):
		return CodeThirdPartyAuth
	case messaging.IsQuotaExceeded(err):
		return CodeQuotaExceeded
	case messaging.IsInternal(err):
		return CodeInternalError
	case messaging.IsUnavailable(err):
		return CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeUnknown
	}
}
