package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestWatcher_CoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snippet.js")
	if err := os.WriteFile(path, []byte("let x = 1;"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, WithDelay(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("let x = 2;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ev := waitEvent(t, w)
	if !ev.Op.Has(OpWrite) {
		t.Errorf("Op = %v, want write", ev.Op)
	}
	if ev.Path != w.Path() {
		t.Errorf("Path = %q, want %q", ev.Path, w.Path())
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected second event %v", ev.Op)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.js")

	w, err := New(path, WithDelay(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "b.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(150 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, w); !ev.Op.Has(OpCreate) {
		t.Errorf("Op = %v, want create", ev.Op)
	}
}

func TestWatcher_FollowsRenameSaves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.js")
	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, WithDelay(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer w.Close()

	tmp := filepath.Join(dir, ".a.js.swp")
	if err := os.WriteFile(tmp, []byte("2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, w)

	if err := os.WriteFile(path, []byte("3"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, w)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	_, err := New("/nonexistent/dir/file.js")
	if !errors.Is(err, ErrPathNotExist) {
		t.Errorf("New error = %v, want ErrPathNotExist", err)
	}
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.js")
	w, err := New(path, WithDelay(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer w.Close()

	stop := errors.New("stop")
	done := make(chan error, 1)
	go func() {
		done <- w.Run(context.Background(), func(Event) error { return stop })
	}()

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, stop) {
			t.Errorf("Run error = %v, want stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestWatcher_RunEndsOnContextAndClose(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "a.js"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx, func(Event) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
	if err := w.Run(context.Background(), func(Event) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close error = %v, want ErrClosed", err)
	}
}

func TestOp_String(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{0, "none"},
		{OpWrite, "write"},
		{OpCreate | OpRename, "create|rename"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}
