package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/auth"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/cache"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/config"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/db"
	httpx "github.com/yashrajsinhjadej/health-hustle-sub000/internal/http"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/registration"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "hustle-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing disabled", "err", err)
		shutdownTracer = func(context.Context) error { return nil }
	}

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	if err := db.EnsureAdminUser(ctx, pool, cfg); err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	jwtMgr, err := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL)
	if err != nil {
		log.Error("jwt setup failed", "err", err)
		os.Exit(1)
	}

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	schedulesRepo := postgres.NewSchedulesRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool, prom)
	historyRepo := postgres.NewHistoryRepo(pool, prom)
	logsRepo := postgres.NewNotificationLogsRepo(pool, prom)

	planner := scheduler.NewPlanner(jobsRepo, usersRepo, schedulesRepo, log, cfg.TestInterval)
	lifecycle := scheduler.NewLifecycle(schedulesRepo, planner, log)
	hook := registration.NewHook(usersRepo, schedulesRepo, planner, log)

	router := httpx.NewRouter(cfg.Env, httpx.Deps{
		Log:       log,
		Pool:      pool,
		Prom:      prom,
		JWT:       jwtMgr,
		Lifecycle: lifecycle,
		Schedules: schedulesRepo,
		Users:     usersRepo,
		History:   historyRepo,
		Logs:      logsRepo,
		Hook:      hook,
		Cache:     cache.New(rdb),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("api shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}
