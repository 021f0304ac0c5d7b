package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/notification"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/http/middlewares"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/utils"
)

type FeedStore interface {
	ListByUser(ctx context.Context, userID string, after postgres.FeedCursor, limit int) ([]notification.Log, error)
}

// FeedHandler serves the authenticated user's own notification feed, newest
// first, with an opaque keyset cursor.
type FeedHandler struct {
	store FeedStore
}

func NewFeedHandler(store FeedStore) *FeedHandler {
	return &FeedHandler{store: store}
}

func (h *FeedHandler) List(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondError(ctx, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity context", nil)
		return
	}

	limit := queryInt(ctx, "limit", 20)

	var after postgres.FeedCursor
	if raw := ctx.Query("cursor"); raw != "" {
		if err := utils.DecodeCursor(raw, &after); err != nil {
			RespondBadRequest(ctx, "VALIDATION_ERROR", "Malformed cursor", nil)
			return
		}
	}

	logs, err := h.store.ListByUser(ctx.Request.Context(), userID, after, limit)
	if err != nil {
		RespondInternal(ctx)
		return
	}

	next := ""
	if len(logs) > 0 && len(logs) == limit {
		last := logs[len(logs)-1]
		next = utils.EncodeCursor(postgres.FeedCursor{SentAt: last.SentAt, ID: last.ID})
	}

	if logs == nil {
		logs = []notification.Log{}
	}

	Respond(ctx, http.StatusOK, "Notifications", gin.H{
		"items":      logs,
		"nextCursor": next,
	})
}
