package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
)

// ScheduleService is the lifecycle slice the handler drives.
type ScheduleService interface {
	Create(ctx context.Context, req schedule.CreateRequest) (schedule.Schedule, error)
	Pause(ctx context.Context, id string) (schedule.Schedule, error)
	Resume(ctx context.Context, id string) (schedule.Schedule, error)
}

type ScheduleLister interface {
	List(ctx context.Context, p postgres.ListParams) ([]schedule.Schedule, error)
	Count(ctx context.Context, p postgres.ListParams) (int, error)
}

type SchedulesHandler struct {
	service ScheduleService
	lister  ScheduleLister
}

func NewSchedulesHandler(service ScheduleService, lister ScheduleLister) *SchedulesHandler {
	return &SchedulesHandler{service: service, lister: lister}
}

type createScheduleRequest struct {
	Title     string           `json:"title" binding:"required,max=65"`
	Message   string           `json:"message" binding:"required,max=240"`
	Kind      string           `json:"kind" binding:"required,oneof=instant once daily"`
	LocalTime string           `json:"localTime,omitempty"`
	FireAt    *time.Time       `json:"fireAt,omitempty"`
	Audience  string           `json:"audience" binding:"required,oneof=all filtered"`
	Filter    *schedule.Filter `json:"filter,omitempty"`
	Category  string           `json:"category,omitempty" binding:"omitempty,oneof=general workout hydration reminder"`
}

func (h *SchedulesHandler) Create(ctx *gin.Context) {
	var req createScheduleRequest
	if !BindJSON(ctx, &req) {
		return
	}

	s, err := h.service.Create(ctx.Request.Context(), schedule.CreateRequest{
		Title:     req.Title,
		Message:   req.Message,
		Kind:      schedule.Kind(req.Kind),
		LocalTime: req.LocalTime,
		FireAt:    req.FireAt,
		Audience:  schedule.Audience(req.Audience),
		Filter:    req.Filter,
		Category:  schedule.Category(req.Category),
	})
	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	Respond(ctx, http.StatusCreated, "Schedule created", s)
}

type setStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

func (h *SchedulesHandler) SetStatus(ctx *gin.Context) {
	var req setStatusRequest
	if !BindJSON(ctx, &req) {
		return
	}

	id := ctx.Param("id")

	var (
		s   schedule.Schedule
		err error
	)
	if *req.IsActive {
		s, err = h.service.Resume(ctx.Request.Context(), id)
	} else {
		s, err = h.service.Pause(ctx.Request.Context(), id)
	}
	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	message := "Schedule paused"
	if s.IsActive {
		message = "Schedule resumed"
	}
	Respond(ctx, http.StatusOK, message, s)
}

func (h *SchedulesHandler) List(ctx *gin.Context) {
	p := postgres.ListParams{
		Status: schedule.Status(ctx.Query("status")),
		Kind:   schedule.Kind(ctx.Query("kind")),
		Search: ctx.Query("search"),
		Page:   queryInt(ctx, "page", 1),
		Limit:  queryInt(ctx, "limit", 20),
	}

	items, err := h.lister.List(ctx.Request.Context(), p)
	if err != nil {
		RespondInternal(ctx)
		return
	}
	total, err := h.lister.Count(ctx.Request.Context(), p)
	if err != nil {
		RespondInternal(ctx)
		return
	}

	if items == nil {
		items = []schedule.Schedule{}
	}

	RespondWithETag(ctx, http.StatusOK, "Schedules", gin.H{
		"items": items,
		"page":  p.Page,
		"limit": p.Limit,
		"total": total,
	})
}

func queryInt(ctx *gin.Context, key string, fallback int) int {
	v := ctx.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
