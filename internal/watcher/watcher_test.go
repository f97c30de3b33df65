package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mimecast/logdcore/internal/config"
)

func TestAddFileDetectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	os.WriteFile(path, []byte("hello\n"), 0o644)

	cfg := config.Default()
	cfg.WatcherDebounceMs = 20
	cfg.WatcherPollIntervalMs = 30
	w, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	notified := make(chan struct{}, 4)
	w.AddFile(path, func() { notified <- struct{}{} })

	time.Sleep(50 * time.Millisecond)
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("more\n")
	f.Close()

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestRemoveFileStopsNotifications(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	os.WriteFile(path, []byte("hello\n"), 0o644)

	cfg := config.Default()
	cfg.WatcherDebounceMs = 10
	cfg.WatcherPollIntervalMs = 20
	w, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	notified := make(chan struct{}, 4)
	w.AddFile(path, func() { notified <- struct{}{} })
	w.RemoveFile(path)

	time.Sleep(30 * time.Millisecond)
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("more\n")
	f.Close()

	select {
	case <-notified:
		t.Fatal("expected no notification once removed")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDefaultSingletonSubstitution(t *testing.T) {
	fake, err := New(config.Default(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fake.Close()
	SetDefault(fake)
	if Default() != fake {
		t.Error("expected SetDefault to substitute the singleton")
	}
}
