package app

import (
	"gorm.io/gorm"

	httpapi "github.com/yungbote/mediaforge-backend/internal/http"
	httpH "github.com/yungbote/mediaforge-backend/internal/http/handlers"
	"github.com/yungbote/mediaforge-backend/internal/observability"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
)

func wireServer(db *gorm.DB, log *logger.Logger, cfg Config, svcs Services, hub *realtime.SSEHub, metrics *observability.Metrics) *httpapi.Server {
	log.Info("Wiring HTTP server...")

	tracing := ""
	if cfg.Otel.Enabled {
		tracing = cfg.Otel.ServiceName
	}
	srv := httpapi.NewServer(log, httpapi.ServerConfig{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
	}, httpapi.RouterConfig{
		Log:                log,
		Metrics:            metrics,
		TracingService:     tracing,
		CORSOrigins:        cfg.HTTP.CORSOrigins,
		MediaRoot:          cfg.Media.Root,
		MaxMultipartMemory: cfg.HTTP.MaxMultipartMemory,
		VideoHandler:       httpH.NewVideoHandler(log, svcs.Intake, svcs.Readiness),
		EditHandler:        httpH.NewEditHandler(log, svcs.Edits),
		RealtimeHandler:    httpH.NewRealtimeHandler(log, hub),
		HealthHandler:      httpH.NewHealthHandler(db),
	})
	// Open event streams would otherwise hold shutdown until the drain timeout.
	srv.OnShutdown(hub.CloseAll)
	return srv
}
