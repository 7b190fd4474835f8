package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
)

// memoryBus is the single-process bus used when no Redis address is set.
type memoryBus struct {
	log *logger.Logger

	mu       sync.RWMutex
	handlers map[int]func(realtime.SSEMessage)
	nextID   int
	closed   bool
}

func NewMemoryBus(log *logger.Logger) Bus {
	return &memoryBus{
		log:      log.With("service", "MemoryEventBus"),
		handlers: make(map[int]func(realtime.SSEMessage)),
	}
}

func (b *memoryBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("event bus closed")
	}
	for _, h := range b.handlers {
		h(msg)
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus closed")
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = onMsg
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = map[int]func(realtime.SSEMessage){}
	return nil
}
