package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/mediaforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/mediaforge-backend/internal/http/middleware"
	"github.com/yungbote/mediaforge-backend/internal/observability"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	// TracingService names otelgin spans; empty disables the middleware.
	TracingService string
	CORSOrigins    []string
	// MediaRoot is served read-only under /media when set.
	MediaRoot string
	// MaxMultipartMemory bounds the in-memory part of upload parsing.
	MaxMultipartMemory int64

	VideoHandler    *httpH.VideoHandler
	EditHandler     *httpH.EditHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingService != "" {
		r.Use(otelgin.Middleware(cfg.TracingService))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))
	if cfg.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = cfg.MaxMultipartMemory
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/", cfg.HealthHandler.Welcome)
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Media (static, read-only)
	if cfg.MediaRoot != "" {
		r.StaticFS("/media", gin.Dir(cfg.MediaRoot, false))
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Videos
		if cfg.VideoHandler != nil {
			api.POST("/upload", cfg.VideoHandler.Upload)
			api.GET("/videos", cfg.VideoHandler.ListVideos)
			api.GET("/videos/:id", cfg.VideoHandler.GetVideo)
			api.DELETE("/videos/:id", cfg.VideoHandler.DeleteVideo)
			api.GET("/download/:video_id", cfg.VideoHandler.Download)
		}

		// Edits
		if cfg.EditHandler != nil {
			api.POST("/trim", cfg.EditHandler.Trim)
			api.POST("/overlay/text", cfg.EditHandler.OverlayText)
			api.POST("/overlay/watermark", cfg.EditHandler.Watermark)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/events", cfg.RealtimeHandler.Stream)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})

	return r
}
