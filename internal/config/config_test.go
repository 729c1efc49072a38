package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MaxParallelTasks != 10 {
		t.Errorf("expected MaxParallelTasks=10, got %d", cfg.MaxParallelTasks)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	success, speed, load := cfg.SelectionWeights()
	if success != 0.5 || speed != 0.3 || load != 0.2 {
		t.Errorf("expected weights 0.5/0.3/0.2, got %v/%v/%v", success, speed, load)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.MaxParallelTasks != 10 {
		t.Errorf("expected default MaxParallelTasks, got %d", cfg.MaxParallelTasks)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskmesh.toml")
	contents := "max_parallel_tasks = 25\nmax_retries = 5\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.MaxParallelTasks != 25 {
		t.Errorf("expected MaxParallelTasks=25 from file, got %d", cfg.MaxParallelTasks)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("expected MaxRetries=5 from file, got %d", cfg.MaxRetries)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskmesh.toml")
	if err := os.WriteFile(path, []byte("max_retries = 5\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	t.Setenv("TASKMESH_MAX_RETRIES", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("expected env override MaxRetries=7, got %d", cfg.MaxRetries)
	}
}
