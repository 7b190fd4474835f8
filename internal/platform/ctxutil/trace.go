package ctxutil

import "context"

type traceDataKey struct{}

// TraceData follows a request into the jobs it enqueues. VideoID is set when
// the work is about one video.
type TraceData struct {
	TraceID   string
	RequestID string
	VideoID   string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// WithVideoID returns a context whose trace data names videoID. The parent's
// trace data is copied, never mutated.
func WithVideoID(ctx context.Context, videoID string) context.Context {
	if videoID == "" {
		return ctx
	}
	td := TraceData{VideoID: videoID}
	if cur := GetTraceData(ctx); cur != nil {
		td.TraceID = cur.TraceID
		td.RequestID = cur.RequestID
	}
	return WithTraceData(ctx, &td)
}

// LogFields renders the trace data as logger key/value pairs.
func (td *TraceData) LogFields() []interface{} {
	if td == nil {
		return nil
	}
	var out []interface{}
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	if td.VideoID != "" {
		out = append(out, "video_id", td.VideoID)
	}
	return out
}
