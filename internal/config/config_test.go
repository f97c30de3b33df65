package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.IndexBlockSize != 1<<20 {
		t.Errorf("expected 1MiB default block size, got %d", cfg.IndexBlockSize)
	}
	if cfg.SearchChunkLines != 5000 {
		t.Errorf("expected default chunk size 5000, got %d", cfg.SearchChunkLines)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte(`{"searchChunkLines": 1234}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SearchChunkLines != 1234 {
		t.Errorf("expected 1234, got %d", cfg.SearchChunkLines)
	}
	// Untouched fields keep their defaults.
	if cfg.TabStopWidth != 8 {
		t.Errorf("expected default tab stop 8, got %d", cfg.TabStopWidth)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	os.WriteFile(path, []byte(`{"searchChunkLines": 1234}`), 0o644)
	t.Setenv("LOGDCORE_SEARCH_CHUNK_LINES", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SearchChunkLines != 42 {
		t.Errorf("expected env override 42, got %d", cfg.SearchChunkLines)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/cfg.json"); err == nil {
		t.Error("expected error for missing config file")
	}
}
