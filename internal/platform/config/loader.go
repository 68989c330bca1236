package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	apiKeyEnv  = "FASHN_API_KEY"
	apiBaseEnv = "FASHN_API_BASE"
)

// Loader assembles the runtime configuration from defaults, an optional
// yaml file, and environment variables.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader reading the default config file path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      "config.yaml",
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin.
type Result struct {
	Config *Config
	Path   string
}

// Load merges the config file over defaults and applies environment
// overrides. A missing inference API key is a fatal configuration error.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := Default()
	origin := "defaults"

	if data, err := os.ReadFile(l.path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", l.path, err)
		}
		origin = l.path
	}

	if base := os.Getenv(apiBaseEnv); base != "" {
		cfg.Inference.BaseURL = base
	}

	cfg.Inference.APIKey = os.Getenv(apiKeyEnv)
	if cfg.Inference.APIKey == "" {
		return nil, fmt.Errorf("%s not found in environment, check your .env file", apiKeyEnv)
	}

	return &Result{Config: cfg, Path: origin}, nil
}
