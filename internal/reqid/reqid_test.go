package reqid

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %s from context, got %s ok=%v", id, got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestWithID(t *testing.T) {
	want := uuid.NewString()
	ctx, id := WithID(context.Background(), want)
	if got, _ := FromContext(ctx); got != want || id != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	_, id = WithID(context.Background(), "not-a-uuid")
	if id == "not-a-uuid" {
		t.Fatalf("invalid id was kept")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("replacement id is not a uuid: %v", err)
	}
}
