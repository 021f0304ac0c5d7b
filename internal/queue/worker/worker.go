package worker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/job"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/observability"
)

// JobsRepository is the slice of the jobs store the worker loop needs.
type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	MarkDone(ctx context.Context, id string) error
}

// Executor runs one claimed job to completion. The dispatcher implements it.
type Executor interface {
	Execute(ctx context.Context, j job.Job) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
	LockTTL       time.Duration
	HealthAddr    string
}

type Worker struct {
	cfg     Config
	repo    JobsRepository
	exec    Executor
	log     *slog.Logger
	metrics *observability.JobMetrics

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, exec Executor, log *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.WorkerID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "worker"
		}
		cfg.WorkerID = host
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:     cfg,
		repo:    repo,
		exec:    exec,
		log:     log,
		metrics: observability.NewJobMetrics(),
		ready:   true,
	}
}

var tracer = otel.Tracer("hustle-worker")

func (w *Worker) logMetricsLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.C:
			s := w.metrics.Snapshot()
			w.log.Info("job metrics",
				"claimed", s.Claimed,
				"done", s.Done,
				"failed", s.Failed,
				"retried", s.Retried,
				"dead_lettered", s.DeadLettered,
				"duration_avg", s.AverageDuration.String(),
				"duration_max", s.MaxDuration.String(),
			)
		}
	}
}

// requeueLoop returns jobs whose lock outlived a crashed worker to pending.
func (w *Worker) requeueLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.C:
			hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			n, err := w.repo.RequeueStaleProcessing(hctx, w.cfg.LockTTL)
			cancel()

			if err != nil {
				w.log.Error("worker.requeue_stale", "err", err)
				continue
			}
			if n > 0 {
				w.log.Warn("worker.requeue_stale", "count", n)
			}
		}
	}
}

func (w *Worker) Run(ctx context.Context) error {
	srv := &http.Server{Addr: w.cfg.HealthAddr, Handler: w.HealthHandler()}

	healthDone := make(chan struct{})
	go func() {
		w.log.Info("worker boot",
			"pid", os.Getpid(),
			"worker_id", w.cfg.WorkerID,
			"health_addr", w.cfg.HealthAddr,
			"concurrency", w.cfg.Concurrency,
		)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("worker health server", "err", err)
		}
		close(healthDone)
	}()

	// On shutdown: flip readiness, hold briefly so load balancers notice,
	// then close the health server.
	go func() {
		<-ctx.Done()

		w.readyMu.Lock()
		w.ready = false
		w.readyMu.Unlock()

		time.Sleep(5 * time.Second)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	jobsCh := make(chan job.Job)

	go w.logMetricsLoop(ctx, 30*time.Second)
	go w.requeueLoop(ctx)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			for j := range jobsCh {
				w.process(context.WithoutCancel(ctx), workerNum, j)
			}
		}(i + 1)
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

producerLoop:
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker: shutdown signal received; stopping claims")
			break producerLoop

		case <-ticker.C:
			for i := 0; i < w.cfg.Concurrency; i++ {
				claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
				cancel()

				if err != nil {
					if !errors.Is(err, job.ErrJobNotFound) {
						w.log.Error("worker: claim", "err", err)
					}
					break
				}

				select {
				case jobsCh <- j:
					w.metrics.IncClaimed()
				case <-ctx.Done():
					break producerLoop
				}
			}
		}
	}

	close(jobsCh)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker: all in-flight jobs completed")
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("worker: shutdown grace exceeded", "grace", w.cfg.ShutdownGrace.String())
	}

	// keep the process alive until the health server has drained
	select {
	case <-healthDone:
	case <-time.After(7 * time.Second):
	}

	return nil
}

// process runs one claimed job: execute, then mark done, reschedule with
// backoff, or dead-letter once attempts are exhausted.
func (w *Worker) process(ctx context.Context, workerNum int, j job.Job) {
	start := time.Now()

	execCtx, span := tracer.Start(ctx, "job.run",
		trace.WithAttributes(
			attribute.String("job.id", j.ID),
			attribute.String("job.type", j.Type),
			attribute.Int("job.attempts", j.Attempts),
			attribute.Int("job.max_attempts", j.MaxAttempts),
			attribute.String("worker.id", w.cfg.WorkerID),
			attribute.Int("worker.num", workerNum),
		),
	)
	defer span.End()

	w.log.InfoContext(execCtx, "job.start",
		"worker_num", workerNum,
		"job_id", j.ID,
		"job_type", j.Type,
		"attempts", j.Attempts,
		"max_attempts", j.MaxAttempts,
	)

	if err := w.exec.Execute(execCtx, j); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		w.handleFailure(execCtx, j, err)

		d := time.Since(start)
		w.metrics.ObserveDuration(d)
		w.metrics.IncFailed()

		span.SetAttributes(
			attribute.Int64("job.duration_ms", d.Milliseconds()),
			attribute.String("job.result", "error"),
		)

		w.log.ErrorContext(execCtx, "job.error",
			"worker_num", workerNum,
			"job_id", j.ID,
			"job_type", j.Type,
			"duration_ms", d.Milliseconds(),
			"err", err,
		)
		return
	}

	if err := w.repo.MarkDone(execCtx, j.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark_done_failed")

		d := time.Since(start)
		w.metrics.ObserveDuration(d)
		w.metrics.IncFailed()

		w.log.ErrorContext(execCtx, "job.mark_done_failed",
			"worker_num", workerNum,
			"job_id", j.ID,
			"err", err,
		)

		_ = w.repo.MarkFailed(execCtx, j.ID, "mark_done_failed: "+err.Error())
		return
	}

	d := time.Since(start)
	w.metrics.ObserveDuration(d)
	w.metrics.IncDone()

	span.SetStatus(codes.Ok, "done")
	span.SetAttributes(
		attribute.Int64("job.duration_ms", d.Milliseconds()),
		attribute.String("job.result", "done"),
	)

	w.log.InfoContext(execCtx, "job.done",
		"worker_num", workerNum,
		"job_id", j.ID,
		"job_type", j.Type,
		"duration_ms", d.Milliseconds(),
	)
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, execError error) {
	errMsg := execError.Error()
	nextAttempt := j.Attempts + 1

	if nextAttempt < j.MaxAttempts {
		delay := ExponentialBackoff(j.Attempts)
		runAt := time.Now().UTC().Add(delay)

		if err := w.repo.Reschedule(ctx, j.ID, runAt, errMsg); err != nil {
			w.log.Error("job reschedule", "job_id", j.ID, "err", err)
			_ = w.repo.MarkFailed(ctx, j.ID, "reschedule_failed: "+errMsg)
			return
		}

		w.metrics.IncRetried()
		w.log.Warn("job retry scheduled",
			"job_id", j.ID,
			"attempt", nextAttempt,
			"max_attempts", j.MaxAttempts,
			"next_run", runAt.Format(time.RFC3339),
			"err", errMsg,
		)
		return
	}

	if err := w.repo.MarkFailed(ctx, j.ID, errMsg); err != nil {
		w.log.Error("job mark failed", "job_id", j.ID, "err", err)
		return
	}

	w.metrics.IncDeadLettered()
	w.log.Error("job dead-lettered",
		"job_id", j.ID,
		"attempts", nextAttempt,
		"max_attempts", j.MaxAttempts,
		"err", errMsg,
	)
}
