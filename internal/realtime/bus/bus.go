package bus

import (
	"context"

	"github.com/yungbote/mediaforge-backend/internal/realtime"
)

// Bus carries readiness events between processes. Every instance forwards
// what it receives to its local SSE hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
