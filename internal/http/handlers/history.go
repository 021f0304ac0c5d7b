package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/cache"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/notification"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
)

type HistoryStore interface {
	List(ctx context.Context, p postgres.HistoryListParams) ([]postgres.HistoryItem, error)
	Count(ctx context.Context, p postgres.HistoryListParams) (int, error)
	Stats(ctx context.Context, from, to time.Time) (postgres.Stats, error)
}

const statsCacheTTL = 30 * time.Second

type HistoryHandler struct {
	store HistoryStore
	cache *cache.Cache
}

func NewHistoryHandler(store HistoryStore, c *cache.Cache) *HistoryHandler {
	return &HistoryHandler{store: store, cache: c}
}

func (h *HistoryHandler) List(ctx *gin.Context) {
	p := postgres.HistoryListParams{
		Status: notification.HistoryStatus(ctx.Query("status")),
		Search: ctx.Query("search"),
		Sort:   ctx.Query("sortBy"),
		Order:  ctx.Query("order"),
		Page:   queryInt(ctx, "page", 1),
		Limit:  queryInt(ctx, "limit", 20),
	}

	var ok bool
	if p.From, ok = queryTime(ctx, "startDate"); !ok {
		return
	}
	if p.To, ok = queryTime(ctx, "endDate"); !ok {
		return
	}

	items, err := h.store.List(ctx.Request.Context(), p)
	if err != nil {
		RespondInternal(ctx)
		return
	}
	total, err := h.store.Count(ctx.Request.Context(), p)
	if err != nil {
		RespondInternal(ctx)
		return
	}

	if items == nil {
		items = []postgres.HistoryItem{}
	}

	RespondWithETag(ctx, http.StatusOK, "Notification history", gin.H{
		"items": items,
		"page":  p.Page,
		"limit": p.Limit,
		"total": total,
	})
}

// Stats serves the dashboard aggregate, cached briefly: the query scans the
// whole window and dashboards poll it.
func (h *HistoryHandler) Stats(ctx *gin.Context) {
	from, ok := queryTime(ctx, "startDate")
	if !ok {
		return
	}
	to, ok := queryTime(ctx, "endDate")
	if !ok {
		return
	}

	now := time.Now().UTC()
	fromAt := now.AddDate(0, 0, -30)
	toAt := now
	if from != nil {
		fromAt = *from
	}
	if to != nil {
		toAt = *to
	}

	key := fmt.Sprintf("history:stats:%d:%d", fromAt.Unix(), toAt.Unix())

	var stats postgres.Stats
	hit, err := h.cache.GetJSON(ctx.Request.Context(), key, &stats)
	if err == nil && hit {
		Respond(ctx, http.StatusOK, "History stats", stats)
		return
	}

	stats, err = h.store.Stats(ctx.Request.Context(), fromAt, toAt)
	if err != nil {
		RespondInternal(ctx)
		return
	}

	// cache failures only cost the next caller a recount
	_ = h.cache.SetJSON(ctx.Request.Context(), key, stats, statsCacheTTL)

	Respond(ctx, http.StatusOK, "History stats", stats)
}

// queryTime parses an optional RFC 3339 or YYYY-MM-DD query parameter. The
// bool is false when a response has already been written.
func queryTime(ctx *gin.Context, key string) (*time.Time, bool) {
	v := ctx.Query(key)
	if v == "" {
		return nil, true
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, true
		}
	}

	RespondBadRequest(ctx, "VALIDATION_ERROR",
		fmt.Sprintf("%s must be an RFC 3339 timestamp or YYYY-MM-DD date", key), nil)
	return nil, false
}
