package events

import (
	"context"
	"sync"

	"github.com/fjod/storefront-cart/internal/domain"
	"go.uber.org/zap"
)

// Listener receives cart events after they have been validated and persisted.
type Listener interface {
	HandleCartEvent(ctx context.Context, event domain.CartEvent)
}

type ListenerFunc func(ctx context.Context, event domain.CartEvent)

func (f ListenerFunc) HandleCartEvent(ctx context.Context, event domain.CartEvent) {
	f(ctx, event)
}

type subscription struct {
	id       uint64
	listener Listener
}

// Bus fans events out to listeners synchronously, in subscription order.
// A panicking listener is logged and does not affect the others.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log}
}

// Subscribe registers l and returns a function removing it again.
func (b *Bus) Subscribe(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, listener: l})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) Emit(ctx context.Context, event domain.CartEvent) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s.listener, event)
	}
}

func (b *Bus) deliver(ctx context.Context, l Listener, event domain.CartEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("cart event listener panicked",
				zap.String("event_type", string(event.Type)),
				zap.String("cart_id", event.CartID),
				zap.Any("panic", r))
		}
	}()
	l.HandleCartEvent(ctx, event)
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
