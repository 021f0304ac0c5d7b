package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/tz"
)

var (
	ErrEmptyToken      = errors.New("device token must not be empty")
	ErrInvalidPlatform = errors.New("platform must be android, ios or web")
)

// TokenStore persists a device registration atomically and reports what it
// replaced.
type TokenStore interface {
	SaveDeviceToken(ctx context.Context, userID, token, platform, timezone string) (postgres.TokenChange, error)
}

// Catalog lists the schedules a fresh timezone must be covered for.
type Catalog interface {
	ListActiveDaily(ctx context.Context) ([]schedule.Schedule, error)
}

// JobPlanner ensures one waiting occurrence exists per (schedule, shard).
type JobPlanner interface {
	EnsureTimezoneJob(ctx context.Context, s schedule.Schedule, timezone string) error
}

// Hook is the timezone discovery entry point: every device registration may
// reveal a timezone no daily schedule has a job for yet.
type Hook struct {
	tokens  TokenStore
	catalog Catalog
	planner JobPlanner
	log     *slog.Logger
}

func NewHook(tokens TokenStore, catalog Catalog, planner JobPlanner, log *slog.Logger) *Hook {
	return &Hook{tokens: tokens, catalog: catalog, planner: planner, log: log}
}

var validPlatforms = map[string]bool{"android": true, "ios": true, "web": true}

// Register validates and stores a device token plus timezone, then ensures
// every active daily schedule has a job for that timezone if anything
// actually changed (new timezone, new token, or first registration).
func (h *Hook) Register(ctx context.Context, userID, token, platform, rawTimezone string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}
	if !validPlatforms[platform] {
		return "", ErrInvalidPlatform
	}

	canonical, err := tz.Canonical(rawTimezone)
	if err != nil {
		return "", err
	}

	change, err := h.tokens.SaveDeviceToken(ctx, userID, token, platform, canonical)
	if err != nil {
		return "", fmt.Errorf("save device token: %w", err)
	}

	fresh := change.OldToken == "" ||
		change.OldToken != token ||
		change.OldTimezone != canonical
	if !fresh {
		return canonical, nil
	}

	h.log.Info("device registration changed",
		"user_id", userID, "timezone", canonical,
		"first_device", change.OldToken == "")

	if err := h.coverTimezone(ctx, canonical); err != nil {
		// Coverage is best effort here; the post-firing sweep will catch
		// anything missed.
		h.log.Error("cover timezone after registration", "timezone", canonical, "error", err)
	}

	return canonical, nil
}

func (h *Hook) coverTimezone(ctx context.Context, timezone string) error {
	schedules, err := h.catalog.ListActiveDaily(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, s := range schedules {
		if err := h.planner.EnsureTimezoneJob(ctx, s, timezone); err != nil {
			h.log.Error("ensure shard job", "schedule_id", s.ID, "timezone", timezone, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
