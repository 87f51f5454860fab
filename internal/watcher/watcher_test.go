package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcherTriggersReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if errWrite := os.WriteFile(path, []byte("a: 1\n"), 0o600); errWrite != nil {
		t.Fatalf("seed file: %v", errWrite)
	}

	var reloads atomic.Int32
	w := New(path, func() error {
		reloads.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if errStart := w.Start(ctx); errStart != nil {
		t.Fatalf("start: %v", errStart)
	}

	if errWrite := os.WriteFile(path, []byte("a: 2\n"), 0o600); errWrite != nil {
		t.Fatalf("rewrite file: %v", errWrite)
	}

	if !waitFor(t, 3*time.Second, func() bool { return reloads.Load() >= 1 }) {
		t.Fatalf("expected reload after write, got %d", reloads.Load())
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if errWrite := os.WriteFile(path, []byte("a: 1\n"), 0o600); errWrite != nil {
		t.Fatalf("seed file: %v", errWrite)
	}

	var reloads atomic.Int32
	w := New(path, func() error {
		reloads.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if errStart := w.Start(ctx); errStart != nil {
		t.Fatalf("start: %v", errStart)
	}

	if errWrite := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600); errWrite != nil {
		t.Fatalf("write other: %v", errWrite)
	}

	time.Sleep(600 * time.Millisecond)
	if reloads.Load() != 0 {
		t.Fatalf("expected no reload for unrelated file, got %d", reloads.Load())
	}
}
