package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/mediaforge-backend/internal/domain/jobs"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

// Metrics is nil when disabled; every method is nil-safe so callers never
// branch on configuration.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *GaugeVec

	uploads       *CounterVec
	jobRuns       *CounterVec
	jobDuration   *HistogramVec
	transcodes    *CounterVec
	transcodeTime *HistogramVec
	edits         *CounterVec

	queueDepth *GaugeVec
	dbStats    *GaugeVec
	redisUp    *GaugeVec
	redisPing  *GaugeVec

	scrapeInterval time.Duration
}

type MetricsConfig struct {
	Enabled        bool
	ScrapeInterval time.Duration
}

func NewMetrics(log *logger.Logger, cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	interval := cfg.ScrapeInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m := &Metrics{
		apiRequests: NewCounterVec("mf_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"mf_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGaugeVec("mf_api_inflight_requests", "In-flight API requests.", nil),
		uploads:     NewCounterVec("mf_uploads_total", "Upload attempts by result.", []string{"result"}),
		jobRuns:     NewCounterVec("mf_job_runs_total", "Finished job runs by type/status.", []string{"job_type", "status"}),
		jobDuration: NewHistogramVec(
			"mf_job_run_duration_seconds",
			"Job run duration in seconds by type/status.",
			[]string{"job_type", "status"},
			[]float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		),
		transcodes: NewCounterVec("mf_transcodes_total", "Per-quality transcodes by quality/status/failure kind.", []string{"quality", "status", "failure_kind"}),
		transcodeTime: NewHistogramVec(
			"mf_transcode_duration_seconds",
			"Per-quality transcode duration in seconds.",
			[]string{"quality"},
			[]float64{1, 5, 10, 30, 60, 120, 300, 600},
		),
		edits:      NewCounterVec("mf_edits_total", "Synchronous edits by kind/status.", []string{"kind", "status"}),
		queueDepth: NewGaugeVec("mf_job_queue_depth", "Job rows by status.", []string{"status"}),
		dbStats:    NewGaugeVec("mf_db_stats", "Database connection pool stats.", []string{"metric"}),
		redisUp:    NewGaugeVec("mf_redis_up", "Redis connectivity (1=up, 0=down).", nil),
		redisPing:  NewGaugeVec("mf_redis_ping_seconds", "Redis ping latency in seconds.", nil),

		scrapeInterval: interval,
	}
	if log != nil {
		log.Info("Observability metrics enabled")
	}
	return m
}

func (m *Metrics) writers() []interface{ WritePrometheus(io.Writer) error } {
	return []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.uploads, m.jobRuns, m.jobDuration, m.transcodes, m.transcodeTime, m.edits,
		m.queueDepth, m.dbStats, m.redisUp, m.redisPing,
	}
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, wr := range m.writers() {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

// StartServer serves /metrics on a dedicated listener until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.WriteHTTP)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) IncUpload(result string) {
	if m == nil {
		return
	}
	m.uploads.Inc(result)
}

func (m *Metrics) ObserveJobRun(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Inc(jobType, status)
	m.jobDuration.Observe(dur.Seconds(), jobType, status)
}

// ObserveTranscode records one quality's final outcome; failureKind is empty
// on success.
func (m *Metrics) ObserveTranscode(quality, status, failureKind string, dur time.Duration) {
	if m == nil {
		return
	}
	if failureKind == "" {
		failureKind = "none"
	}
	m.transcodes.Inc(quality, status, failureKind)
	m.transcodeTime.Observe(dur.Seconds(), quality)
}

func (m *Metrics) IncEdit(kind, status string) {
	if m == nil {
		return
	}
	m.edits.Inc(kind, status)
}

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	statuses := []string{jobs.StatusQueued, jobs.StatusRunning, jobs.StatusSucceeded, jobs.StatusFailed}
	m.every(ctx, func() {
		var rows []struct {
			Status string
			Count  int64
		}
		if err := db.WithContext(ctx).
			Model(&jobs.JobRun{}).
			Select("status, count(*) as count").
			Group("status").
			Scan(&rows).Error; err != nil {
			if log != nil {
				log.Warn("metrics: job queue depth query failed", "error", err)
			}
			return
		}
		for _, s := range statuses {
			m.queueDepth.Set(0, s)
		}
		for _, row := range rows {
			m.queueDepth.Set(float64(row.Count), row.Status)
		}
	})
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
		}
		return
	}
	m.every(ctx, func() {
		st := sqlDB.Stats()
		m.dbStats.Set(float64(st.OpenConnections), "open")
		m.dbStats.Set(float64(st.InUse), "in_use")
		m.dbStats.Set(float64(st.Idle), "idle")
		m.dbStats.Set(float64(st.WaitCount), "wait_count")
		m.dbStats.Set(st.WaitDuration.Seconds(), "wait_seconds")
	})
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil || strings.TrimSpace(addr) == "" {
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 2 * time.Second})
	go func() {
		<-ctx.Done()
		_ = rdb.Close()
	}()
	m.every(ctx, func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		start := time.Now()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil {
				log.Debug("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

func (m *Metrics) every(ctx context.Context, fn func()) {
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		fn()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}
