package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ping struct{ N int }
type pong struct{}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	b := New()
	var got []string
	// both closures share one function body
	mk := func(name string) Handler[ping] {
		return func(ctx context.Context, p ping) { got = append(got, name) }
	}
	unA := On(b, mk("a"))
	On(b, mk("b"))
	On(b, func(ctx context.Context, p pong) { got = append(got, "pong") })

	Emit(b, context.Background(), ping{N: 1})
	assert.Equal(t, []string{"a", "b"}, got)

	got = nil
	unA()
	unA()
	Emit(b, context.Background(), ping{N: 2})
	Emit(b, context.Background(), pong{})
	assert.Equal(t, []string{"b", "pong"}, got)
}

func TestGlobalBus(t *testing.T) {
	Use(nil)
	// no bus: subscribing and publishing are no-ops
	Subscribe(func(ctx context.Context, p ping) { t.Fatal("unexpected delivery") })()
	Publish(context.Background(), ping{})

	b := New()
	Use(b)
	defer Use(nil)

	var n int
	unsub := Subscribe(func(ctx context.Context, p ping) { n += p.N })
	Publish(context.Background(), ping{N: 2})
	unsub()
	Publish(context.Background(), ping{N: 3})
	assert.Equal(t, 2, n)
}
