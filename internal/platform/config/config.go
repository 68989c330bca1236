package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Inference InferenceConfig `yaml:"inference"`
	Storage   StorageConfig   `yaml:"storage"`
	Image     ImageConfig     `yaml:"image"`
	Catalog   []CatalogItem   `yaml:"catalog"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// InferenceConfig describes the external try-on inference API. APIKey is
// environment-provided and never read from the config file.
type InferenceConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"-"`
	ModelName     string        `yaml:"model_name"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxPolls      int           `yaml:"max_polls"`
	StartTick     time.Duration `yaml:"start_tick"`
}

// UnmarshalYAML accepts "2s" style duration strings for the timeout and
// interval fields.
func (c *InferenceConfig) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		BaseURL       string `yaml:"base_url"`
		ModelName     string `yaml:"model_name"`
		SubmitTimeout string `yaml:"submit_timeout"`
		PollTimeout   string `yaml:"poll_timeout"`
		FetchTimeout  string `yaml:"fetch_timeout"`
		PollInterval  string `yaml:"poll_interval"`
		MaxPolls      *int   `yaml:"max_polls"`
		StartTick     string `yaml:"start_tick"`
	}

	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}

	if r.BaseURL != "" {
		c.BaseURL = r.BaseURL
	}
	if r.ModelName != "" {
		c.ModelName = r.ModelName
	}
	if r.MaxPolls != nil {
		c.MaxPolls = *r.MaxPolls
	}

	assign := func(field *time.Duration, value, name string) error {
		if value == "" {
			return nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("inference.%s: %w", name, err)
		}
		*field = d
		return nil
	}

	for _, pair := range []struct {
		field *time.Duration
		value string
		name  string
	}{
		{&c.SubmitTimeout, r.SubmitTimeout, "submit_timeout"},
		{&c.PollTimeout, r.PollTimeout, "poll_timeout"},
		{&c.FetchTimeout, r.FetchTimeout, "fetch_timeout"},
		{&c.PollInterval, r.PollInterval, "poll_interval"},
		{&c.StartTick, r.StartTick, "start_tick"},
	} {
		if err := assign(pair.field, pair.value, pair.name); err != nil {
			return err
		}
	}
	return nil
}

type StorageConfig struct {
	UploadsDir   string `yaml:"uploads_dir"`
	ClothingDir  string `yaml:"clothing_dir"`
	ClientDir    string `yaml:"client_dir"`
	FeedbackFile string `yaml:"feedback_file"`
	DatabasePath string `yaml:"database_path"`
}

// ImageConfig bounds accepted uploads before normalization.
type ImageConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"`
	MaxPixels   int64 `yaml:"max_pixels"`
	MaxWidth    int   `yaml:"max_width"`
	MaxHeight   int   `yaml:"max_height"`
}

type CatalogItem struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	ImageURL string `yaml:"image_url" json:"imageUrl"`
	Type     string `yaml:"type" json:"type"`
}
