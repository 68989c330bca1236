package testing

import (
	"path/filepath"
	"testing"

	"tryon-server-go/internal/platform/config"
	"tryon-server-go/internal/platform/logging"
)

// SetupTestConfig returns a configuration rooted in a per-test temp
// directory so tests never touch the real data dirs.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Dir = filepath.Join(root, "logs")
	cfg.Storage.UploadsDir = filepath.Join(root, "uploads")
	cfg.Storage.ClothingDir = filepath.Join(root, "clothing_images")
	cfg.Storage.FeedbackFile = filepath.Join(root, "feedback.txt")
	cfg.Storage.DatabasePath = filepath.Join(root, "tryon.db")
	cfg.Inference.APIKey = "test-key"
	return cfg
}

func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{
		Level:    "debug",
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
