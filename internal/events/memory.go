package events

import (
	"context"
	"sync"

	"mwork_messaging/internal/logger"
)

// MemoryBus - буферизованный канал внутри процесса. События теряются при рестарте,
// доставку переживает только outbox уведомлений.
type MemoryBus struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryBus{ch: make(chan Event, buffer)}
}

func (b *MemoryBus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-b.ch:
			if !ok {
				return ErrBusClosed
			}
			if err := handler(ctx, evt); err != nil {
				logger.CtxWithError(ctx, "Event handler failed", err, "event_id", evt.ID, "type", evt.Type)
			}
		}
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}
