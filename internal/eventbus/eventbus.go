package eventbus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type entry struct {
	id uint64
	fn func(context.Context, any)
}

// Bus is a simple in-process event dispatcher. Handlers run synchronously
// on the publishing goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]entry
	nextID   atomic.Uint64
}

// New creates a new Bus.
func New() *Bus { return &Bus{handlers: make(map[reflect.Type][]entry)} }

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], entry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			hs := b.handlers[t]
			for i, e := range hs {
				if e.id == id {
					hs = append(hs[:i:i], hs[i+1:]...)
					break
				}
			}
			if len(hs) == 0 {
				delete(b.handlers, t)
			} else {
				b.handlers[t] = hs
			}
		})
	}
}

// emit dispatches e to all handlers of its dynamic type.
func (b *Bus) emit(ctx context.Context, e any) {
	if b == nil {
		return
	}
	t := reflect.TypeOf(e)
	b.mu.RLock()
	hs := b.handlers[t]
	if len(hs) == 0 {
		b.mu.RUnlock()
		return
	}
	copied := append([]entry(nil), hs...)
	b.mu.RUnlock()
	for _, h := range copied {
		h.fn(ctx, e)
	}
}

// On registers h with b.
func On[T any](b *Bus, h Handler[T]) (unsubscribe func()) {
	if b == nil {
		return func() {}
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	return b.subscribe(t, func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Emit sends e through b.
func Emit[T any](b *Bus, ctx context.Context, e T) {
	b.emit(ctx, e)
}

var global atomic.Pointer[Bus]

// Use sets the global bus. Passing nil disables event publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers h with the global bus.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	return On(global.Load(), h)
}

// Publish sends e through the global bus.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, e)
	}
}
