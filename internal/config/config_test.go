package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Errorf("HTTPAddr %q", cfg.HTTPAddr)
	}
	if cfg.Stream != "LENS" || cfg.Subject != "lens.request.*" {
		t.Errorf("Queue defaults: stream %q subject %q", cfg.Stream, cfg.Subject)
	}
	if cfg.JobTTL != 15*time.Minute {
		t.Errorf("JobTTL %s, want 15m", cfg.JobTTL)
	}
	if cfg.TopK != 5 {
		t.Errorf("TopK %d, want 5", cfg.TopK)
	}
	if cfg.JobWorkers != 4 {
		t.Errorf("JobWorkers %d, want 4", cfg.JobWorkers)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
http_addr: ":9999"
backend_url: "http://gpu-box:5001"
models:
  - gpt2
  - pythia-70m
top_k: 10
job_ttl: "30m"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr %q", cfg.HTTPAddr)
	}
	if cfg.BackendURL != "http://gpu-box:5001" {
		t.Errorf("BackendURL %q", cfg.BackendURL)
	}
	if len(cfg.Models) != 2 || cfg.Models[0] != "gpt2" {
		t.Errorf("Models %v", cfg.Models)
	}
	if cfg.TopK != 10 {
		t.Errorf("TopK %d", cfg.TopK)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("JobTTL %s", cfg.JobTTL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http_addr: \":9999\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("MODELS", "gpt2, pythia-70m ,")
	t.Setenv("JOB_TTL", "1h")

	cfg, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr %q, env must win over file", cfg.HTTPAddr)
	}
	if len(cfg.Models) != 2 || cfg.Models[1] != "pythia-70m" {
		t.Errorf("Models %v", cfg.Models)
	}
	if cfg.JobTTL != time.Hour {
		t.Errorf("JobTTL %s", cfg.JobTTL)
	}
}

func TestDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "# comment\nGRID_TOP_K=3\n\nBACKEND_TIMEOUT = 45s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GRID_TOP_K", "")
	t.Setenv("BACKEND_TIMEOUT", "")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TopK != 3 {
		t.Errorf("TopK %d, want 3", cfg.TopK)
	}
	if cfg.BackendTimeout != 45*time.Second {
		t.Errorf("BackendTimeout %s, want 45s", cfg.BackendTimeout)
	}
}
