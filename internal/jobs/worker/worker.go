package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/mediaforge-backend/internal/data/repos/jobs"
	types "github.com/yungbote/mediaforge-backend/internal/domain/jobs"
	"github.com/yungbote/mediaforge-backend/internal/jobs/runtime"
	"github.com/yungbote/mediaforge-backend/internal/observability"
	"github.com/yungbote/mediaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

type Config struct {
	Concurrency    int
	PollInterval   time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	StaleAfter     time.Duration
	HeartbeatEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 30 * time.Second
	}
	return c
}

// Worker is a bounded pool of goroutines draining job_run. Backlog waits
// durably in the table; Wake shortens the poll delay after an enqueue.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobrepo.JobRunRepo
	registry *runtime.Registry
	metrics  *observability.Metrics
	cfg      Config

	wake chan struct{}
	wg   sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo jobrepo.JobRunRepo, registry *runtime.Registry, metrics *observability.Metrics, cfg Config) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		metrics:  metrics,
		cfg:      cfg,
		wake:     make(chan struct{}, cfg.Concurrency),
	}
}

// Wake never blocks.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "handlers", w.registry.Types())
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop has returned after ctx cancellation.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain without waiting while jobs are available.
		for ctx.Err() == nil {
			if !w.RunOnce(ctx, workerID) {
				break
			}
		}
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job was
// claimed.
func (w *Worker) RunOnce(ctx context.Context, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleAfter)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}
	w.execute(ctx, workerID, job)
	return true
}

func (w *Worker) execute(ctx context.Context, workerID int, job *types.JobRun) {
	start := time.Now()
	jobLog := w.log.With("worker_id", workerID, "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)

	spanCtx, span := otel.Tracer("mediaforge/jobs").Start(ctx, "job."+job.JobType)
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.type", job.JobType),
		attribute.Int("job.attempt", job.Attempts),
	)
	defer span.End()

	jc := runtime.NewContext(spanCtx, w.db, job, w.repo)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		jobLog.Warn("No handler registered for job_type")
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		w.finish(span, jc, start, jobLog)
		return
	}

	stopBeat := w.heartbeat(spanCtx, jc)
	func() {
		defer func() {
			if r := recover(); r != nil {
				jobLog.Error("Job handler panic", "panic", r)
				jc.Fail("panic", errFromRecover(r))
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			// Most handlers call jc.Fail themselves; this is a safety net.
			jc.Fail("run", runErr)
		}
	}()
	stopBeat()

	if !jc.Finished() {
		jc.Fail("run", fmt.Errorf("handler returned without a terminal state"))
	}
	w.finish(span, jc, start, jobLog)
}

func (w *Worker) finish(span trace.Span, jc *runtime.Context, start time.Time, jobLog *logger.Logger) {
	status := jc.Job.Status
	if status == types.StatusFailed {
		span.SetStatus(codes.Error, jc.Job.Error)
		jobLog.Warn("Job failed", "stage", jc.Job.Stage, "error", jc.Job.Error, "elapsed", time.Since(start))
	} else {
		jobLog.Info("Job finished", "status", status, "elapsed", time.Since(start))
	}
	w.metrics.ObserveJobRun(jc.Job.JobType, status, time.Since(start))
}

// heartbeat keeps heartbeat_at fresh so long transcodes are not reclaimed as
// stale. The returned func stops it and waits for the goroutine.
func (w *Worker) heartbeat(ctx context.Context, jc *runtime.Context) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(w.cfg.HeartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, jc.Job.ID); err != nil {
					w.log.Debug("heartbeat failed", "job_id", jc.Job.ID, "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
