package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/mediaforge-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// videoParams are the route params that name a video.
var videoParams = []string{"id", "video_id"}

// AttachTraceContext stores trace and request ids on the request context and
// echoes them as response headers. Routes addressing one video also carry
// its id, on the trace data and on the active span.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		span := trace.SpanFromContext(c.Request.Context())
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" && span.SpanContext().HasTraceID() {
			traceID = span.SpanContext().TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		td := &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
			VideoID:   routeVideoID(c),
		}
		if td.VideoID != "" {
			span.SetAttributes(attribute.String("video.id", td.VideoID))
			c.Set("video_id", td.VideoID)
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// routeVideoID returns the canonical form of a well-formed video id param.
func routeVideoID(c *gin.Context) string {
	for _, name := range videoParams {
		if id, err := uuid.Parse(strings.TrimSpace(c.Param(name))); err == nil {
			return id.String()
		}
	}
	return ""
}
