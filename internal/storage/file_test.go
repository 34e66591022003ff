package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "ruletimer/pkg/logx"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	at := time.Now().Truncate(time.Millisecond)
	if err := st.PutState(ctx, "lamp", "ON", at); err != nil {
		t.Fatalf("PutState: %v", err)
	}
	if err := st.PutState(ctx, "lamp", "OFF", at.Add(time.Second)); err != nil {
		t.Fatalf("PutState: %v", err)
	}

	rec, ok, err := st.GetState(ctx, "lamp")
	if err != nil || !ok {
		t.Fatalf("GetState = (%v, %v)", ok, err)
	}
	if rec.Value != "OFF" {
		t.Fatalf("value = %q, want OFF", rec.Value)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen replays the journal.
	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	recs, err := st2.ListStates(ctx)
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(recs) != 1 || recs[0].Item != "lamp" || recs[0].Value != "OFF" {
		t.Fatalf("unexpected states %+v", recs)
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled storage = (%v, %v), want (nil, nil)", st, err)
	}
	if _, err := Open(Config{Driver: "etcd", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestClosedStoreReportsDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.PutState(context.Background(), "lamp", "ON", time.Now()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("PutState on closed store = %v, want ErrDisabled", err)
	}
}

func TestGetStateUnknownItem(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	_, ok, err := st.GetState(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("GetState unknown = (%v, %v), want (false, nil)", ok, err)
	}
}
