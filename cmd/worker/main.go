package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/config"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/db"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/dispatch"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/gateway"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/queue/worker"
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

	shutdownTracer, err := observability.InitTracer(ctx, "hustle-worker", cfg.OTLPEndpoint)
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

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	schedulesRepo := postgres.NewSchedulesRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool, prom)
	historyRepo := postgres.NewHistoryRepo(pool, prom)
	logsRepo := postgres.NewNotificationLogsRepo(pool, prom)

	var gw gateway.Gateway
	if cfg.FCMCredentialsFile != "" {
		fcm, err := gateway.NewFCM(ctx, cfg.FCMCredentialsFile)
		if err != nil {
			log.Error("fcm setup failed", "err", err)
			os.Exit(1)
		}
		gw = fcm
	} else {
		log.Warn("FCM_CREDENTIALS_FILE not set, sends go to the log gateway")
		gw = gateway.NewLogGateway()
	}
	gw = gateway.NewProtectedGateway(gw, gateway.ProtectedGatewayConfig{})

	planner := scheduler.NewPlanner(jobsRepo, usersRepo, schedulesRepo, log, cfg.TestInterval)

	dispatcher := dispatch.New(
		schedulesRepo,
		usersRepo,
		logsRepo,
		historyRepo,
		jobsRepo,
		planner,
		gw,
		prom,
		log,
	)

	// Boot-time reconciliation: make sure every active daily schedule has a
	// waiting job per timezone shard. Covers jobs lost to crashes between a
	// firing and its re-plan.
	if err := planner.DiscoverySweep(ctx, "", ""); err != nil {
		log.Warn("startup sweep incomplete", "err", err)
	}

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  cfg.PollInterval,
		WorkerID:      workerID,
		Concurrency:   cfg.Concurrency,
		ShutdownGrace: cfg.ShutdownGrace,
		LockTTL:       cfg.LockTTL,
		HealthAddr:    cfg.HealthAddr,
	}, jobsRepo, dispatcher, log)

	log.Info("worker started", "worker_id", workerID)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(cfg.ShutdownGrace)
	defer cancel()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("worker shutdown complete")
}
