package storage

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"tryon-server-go/internal/platform/errors"
	"tryon-server-go/internal/platform/logging"
)

// ResultStore writes try-on artifacts into the uploads directory. Result
// files get freshly generated unique names, so concurrent requests never
// collide.
type ResultStore struct {
	dir    string
	logger *logging.Logger
}

// NewResultStore creates the store and ensures the uploads directory exists.
func NewResultStore(dir string, logger *logging.Logger) (*ResultStore, error) {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "results.new", "create uploads directory", err)
	}
	return &ResultStore{dir: dir, logger: logger}, nil
}

// Dir returns the directory served under /uploads.
func (s *ResultStore) Dir() string {
	return s.dir
}

// SaveResult verifies data decodes as an image and writes it under a unique
// result filename. It returns the public /uploads path for the stream's
// terminal event.
func (s *ResultStore) SaveResult(data []byte) (string, error) {
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return "", errors.Wrap(errors.KindStorage, "results.save", "result is not a valid image", err)
	}

	filename := fmt.Sprintf("result_%s.png", uuid.New().String())
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(errors.KindStorage, "results.save", "write result file", err)
	}

	s.logger.InfoTag("Storage", "result saved: %s", path)
	return "/uploads/" + filename, nil
}

// SaveUpload persists the customer's original image under its (sanitized)
// filename, mirroring what the caller sent before any processing.
func (s *ResultStore) SaveUpload(filename string, data []byte) (string, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		name = fmt.Sprintf("upload_%s", uuid.New().String())
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(errors.KindStorage, "results.save_upload", "write upload file", err)
	}

	s.logger.DebugTag("Storage", "customer upload saved: %s (%d bytes)", path, len(data))
	return path, nil
}

// SanitizeFilename strips path components and characters that could escape
// the uploads directory.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
