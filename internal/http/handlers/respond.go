package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/user"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/registration"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/tz"
)

// Every response carries the same envelope.
type APIError struct {
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")
	if ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ctx.GetHeader("X-Request-Id")
}

func Respond(ctx *gin.Context, status int, message string, data any) {
	ctx.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.JSON(status, gin.H{
		"success": false,
		"message": message,
		"error": APIError{
			Code:      code,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, code, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, code, message, details)
}

func RespondNotFound(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusNotFound, code, message, nil)
}

func RespondInternal(ctx *gin.Context) {
	RespondError(ctx, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong", nil)
}

// RespondDomainError maps the domain error taxonomy onto HTTP codes. Unknown
// errors become 500s without leaking internals.
func RespondDomainError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, schedule.ErrScheduleNotFound):
		RespondNotFound(ctx, "SCHEDULE_NOT_FOUND", "Schedule not found")
	case errors.Is(err, schedule.ErrScheduleExpired):
		RespondBadRequest(ctx, "INVALID_SCHEDULE_DATE", "Schedule fire time has already passed", nil)
	case errors.Is(err, schedule.ErrInvalidOperation):
		RespondBadRequest(ctx, "INVALID_OPERATION", "Operation not allowed in the schedule's current state", nil)
	case errors.Is(err, schedule.ErrInvalidSchedule):
		RespondBadRequest(ctx, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, tz.ErrInvalidTimezone):
		RespondBadRequest(ctx, "INVALID_TIMEZONE", "Timezone must be a valid IANA name", nil)
	case errors.Is(err, registration.ErrEmptyToken):
		RespondBadRequest(ctx, "VALIDATION_ERROR", "Device token must not be empty", nil)
	case errors.Is(err, registration.ErrInvalidPlatform):
		RespondBadRequest(ctx, "VALIDATION_ERROR", "Platform must be android, ios or web", nil)
	case errors.Is(err, user.ErrUserNotFound):
		RespondNotFound(ctx, "USER_NOT_FOUND", "User not found")
	default:
		RespondInternal(ctx)
	}
}
