package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcherCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("a = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var batches [][]Event
	w, err := New(func(events []Event) {
		mu.Lock()
		batches = append(batches, events)
		mu.Unlock()
	}, WithDebounceDuration(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// A burst of writes inside one debounce window.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("a = 2\n"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(batches)
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("callback never fired")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	// Give a second window to prove the burst did not fan out into many
	// callbacks.
	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(batches) > 2 {
		t.Errorf("burst produced %d callbacks, want 1-2", len(batches))
	}
	if len(batches[0]) == 0 {
		t.Error("first batch is empty")
	}
	if batches[0][0].Path == "" {
		t.Error("event has no path")
	}
}

func TestWatcherCloseStopsCallbacks(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	fired := 0
	w, err := New(func([]Event) {
		mu.Lock()
		fired++
		mu.Unlock()
	}, WithDebounceDuration(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Add(dir); err != nil {
		t.Fatalf("Add: %v", err)
	}

	w.Close()

	if err := os.WriteFile(filepath.Join(dir, "late.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 0 {
		t.Errorf("callback fired %d times after Close", fired)
	}
}

func TestWatcherAddMissingPath(t *testing.T) {
	w, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error adding a missing path")
	}
}
