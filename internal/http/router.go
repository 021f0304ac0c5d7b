package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/auth"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/cache"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/http/handlers"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/http/middlewares"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/registration"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/scheduler"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Deps is everything the API process wires into the router.
type Deps struct {
	Log  *slog.Logger
	Pool *pgxpool.Pool
	Prom *observability.Prom
	JWT  *auth.Manager

	Lifecycle *scheduler.Lifecycle
	Schedules *postgres.SchedulesRepo
	Users     *postgres.UsersRepo
	History   *postgres.HistoryRepo
	Logs      *postgres.NotificationLogsRepo
	Hook      *registration.Hook
	Cache     *cache.Cache
}

func NewRouter(env string, d Deps) *gin.Engine {
	if env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	// health
	ping := func() error {
		if d.Pool == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		return d.Pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMW := middlewares.NewAuthMiddleware(d.JWT)

	// login gets its own tight limiter
	loginLimiter := middlewares.NewRateLimiter(10, time.Minute)
	authHandler := handlers.NewAuthHandler(d.Users, d.JWT)
	r.POST("/auth/login", loginLimiter.Middleware(nil), authHandler.Login)

	schedulesHandler := handlers.NewSchedulesHandler(d.Lifecycle, d.Schedules)
	historyHandler := handlers.NewHistoryHandler(d.History, d.Cache)

	admin := r.Group("/", authMW.RequireAuth(), authMW.RequireRole("admin"))
	admin.POST("/schedules", schedulesHandler.Create)
	admin.POST("/schedules/:id/status", schedulesHandler.SetStatus)
	admin.GET("/schedules", schedulesHandler.List)
	admin.GET("/history", historyHandler.List)
	admin.GET("/history/stats", historyHandler.Stats)

	feedHandler := handlers.NewFeedHandler(d.Logs)
	deviceHandler := handlers.NewDeviceHandler(d.Hook)

	me := r.Group("/", authMW.RequireAuth())
	me.GET("/notifications", feedHandler.List)
	me.POST("/fcm-token", deviceHandler.Register)

	return r
}
