package config

import "time"

// Default constructs the built-in configuration. The catalog entries mirror
// the assets shipped under the clothing images directory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Inference: InferenceConfig{
			BaseURL:       "https://api.fashn.ai/v1",
			ModelName:     "tryon-v1.6",
			SubmitTimeout: 30 * time.Second,
			PollTimeout:   10 * time.Second,
			FetchTimeout:  10 * time.Second,
			PollInterval:  2 * time.Second,
			MaxPolls:      40,
			StartTick:     500 * time.Millisecond,
		},
		Storage: StorageConfig{
			UploadsDir:   "data/uploads",
			ClothingDir:  "clothing_images",
			ClientDir:    "./client",
			FeedbackFile: "data/feedback.txt",
			DatabasePath: "data/tryon.db",
		},
		Image: ImageConfig{
			MaxFileSize: 10 * 1024 * 1024,
			MaxPixels:   64 * 1024 * 1024,
			MaxWidth:    8192,
			MaxHeight:   8192,
		},
		Catalog: []CatalogItem{
			{ID: "1", Name: "Ankara Dress", ImageURL: "/clothing_images/clothing_1.png", Type: "full"},
			{ID: "2", Name: "T-Shirt", ImageURL: "/clothing_images/clothing_2.png", Type: "upper"},
			{ID: "3", Name: "Formal Blazer", ImageURL: "/clothing_images/clothing_3.png", Type: "upper"},
			{ID: "4", Name: "Short Gown", ImageURL: "/clothing_images/clothing_4.png", Type: "upper"},
		},
	}
}
