package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("FASHN_API_KEY", "")

	_, err := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	if err == nil {
		t.Fatal("expected error when FASHN_API_KEY is unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FASHN_API_KEY", "test-key")
	t.Setenv("FASHN_API_BASE", "")

	result, err := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg := result.Config
	if result.Path != "defaults" {
		t.Errorf("origin = %q, expected defaults", result.Path)
	}
	if cfg.Inference.BaseURL != "https://api.fashn.ai/v1" {
		t.Errorf("base URL = %q", cfg.Inference.BaseURL)
	}
	if cfg.Inference.APIKey != "test-key" {
		t.Errorf("api key = %q", cfg.Inference.APIKey)
	}
	if cfg.Inference.MaxPolls != 40 {
		t.Errorf("max polls = %d, expected 40", cfg.Inference.MaxPolls)
	}
	if cfg.Inference.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %v, expected 2s", cfg.Inference.PollInterval)
	}
	if len(cfg.Catalog) != 4 {
		t.Errorf("catalog size = %d, expected 4", len(cfg.Catalog))
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	t.Setenv("FASHN_API_KEY", "test-key")
	t.Setenv("FASHN_API_BASE", "http://stub.local/v1")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
inference:
  max_polls: 5
  poll_interval: 50ms
storage:
  uploads_dir: /tmp/tryon-uploads
catalog:
  - id: "9"
    name: Test Jacket
    image_url: /clothing_images/clothing_9.png
    type: upper
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	result, err := NewLoader().WithDotEnv(false).WithPath(path).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg := result.Config
	if result.Path != path {
		t.Errorf("origin = %q, expected %q", result.Path, path)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, expected 9090", cfg.Server.Port)
	}
	if cfg.Inference.MaxPolls != 5 {
		t.Errorf("max polls = %d, expected 5", cfg.Inference.MaxPolls)
	}
	if cfg.Inference.BaseURL != "http://stub.local/v1" {
		t.Errorf("env override lost: base URL = %q", cfg.Inference.BaseURL)
	}
	if len(cfg.Catalog) != 1 || cfg.Catalog[0].Name != "Test Jacket" {
		t.Errorf("catalog not replaced by file: %+v", cfg.Catalog)
	}
	// Untouched sections keep defaults.
	if cfg.Inference.ModelName != "tryon-v1.6" {
		t.Errorf("model name = %q, expected default", cfg.Inference.ModelName)
	}
}
