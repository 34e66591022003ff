package items

import (
	"context"
	"testing"
	"time"

	"ruletimer/internal/eventbus"
	"ruletimer/internal/storage"
	logx "ruletimer/pkg/logx"
)

func TestRegistryStateRoundTrip(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(eventbus.New(), nil, logx.Nop())
	ctx := context.Background()

	if _, ok := reg.State("kitchen"); ok {
		t.Fatal("unexpected state for unknown item")
	}
	if err := reg.SetState(ctx, "kitchen", "ON"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	v, ok := reg.State("kitchen")
	if !ok || v != "ON" {
		t.Fatalf("State = (%q, %v), want (ON, true)", v, ok)
	}
}

func TestRegistryChangeFanout(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(eventbus.New(), nil, logx.Nop())
	ctx := context.Background()

	changes, unsub := reg.Subscribe(8)
	defer unsub()

	if err := reg.SetState(ctx, "door", "OPEN"); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	select {
	case ch := <-changes:
		if ch.Item != "door" || ch.Value != "OPEN" || ch.Previous != "" {
			t.Fatalf("unexpected change %+v", ch)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	// Unchanged value produces no event.
	if err := reg.SetState(ctx, "door", "OPEN"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	select {
	case ch := <-changes:
		t.Fatalf("unexpected change for unchanged value: %+v", ch)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRegistryPersistsAndRestores(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	store, err := storage.Open(storage.Config{Driver: "file", Path: dir + "/states"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	reg := NewRegistry(eventbus.New(), store, logx.Nop())
	if err := reg.SetState(ctx, "alarm", "2026-06-01T07:00:00Z"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	store2, err := storage.Open(storage.Config{Driver: "file", Path: dir + "/states"}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store2.Close()

	reg2 := NewRegistry(eventbus.New(), store2, logx.Nop())
	if err := reg2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := reg2.State("alarm")
	if !ok || v != "2026-06-01T07:00:00Z" {
		t.Fatalf("restored state = (%q, %v)", v, ok)
	}
}
