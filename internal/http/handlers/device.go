package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/http/middlewares"
)

type Registrar interface {
	Register(ctx context.Context, userID, token, platform, rawTimezone string) (string, error)
}

// DeviceHandler is the registration entry point for the timezone discovery
// hook.
type DeviceHandler struct {
	registrar Registrar
}

func NewDeviceHandler(registrar Registrar) *DeviceHandler {
	return &DeviceHandler{registrar: registrar}
}

type registerDeviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=android ios web"`
}

func (h *DeviceHandler) Register(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondError(ctx, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity context", nil)
		return
	}

	var req registerDeviceRequest
	if !BindJSON(ctx, &req) {
		return
	}

	timezone := ctx.GetHeader("timezone")
	if timezone == "" {
		RespondBadRequest(ctx, "INVALID_TIMEZONE", "timezone header is required", nil)
		return
	}

	canonical, err := h.registrar.Register(ctx.Request.Context(), userID, req.Token, req.Platform, timezone)
	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	Respond(ctx, http.StatusOK, "Device registered", gin.H{
		"timezone": canonical,
	})
}
