package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"tryon-server-go/internal/platform/errors"
	"tryon-server-go/internal/platform/logging"
)

// Side is the fixed input resolution of the inference API. Every normalized
// image is exactly Side×Side pixels, 4 channels.
const Side = 1024

// Normalized is the canonical image representation submitted to inference.
// Immutable once produced.
type Normalized struct {
	Pixels *image.NRGBA
	PNG    []byte
	Role   Role
}

// DataURI renders the PNG payload as a base64 data URI for the API request
// body.
func (n *Normalized) DataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(n.PNG)
}

// Normalizer converts arbitrary input images into the fixed-size NRGBA
// representation the inference API expects.
type Normalizer struct {
	limits Limits
	logger *logging.Logger
}

// NewNormalizer constructs a normalizer. Zero-valued limits disable the
// corresponding check.
func NewNormalizer(limits Limits, logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Normalizer{limits: limits, logger: logger}
}

// Normalize decodes raw, resizes to Side×Side, and guarantees an alpha
// channel. Subject images receive no processing beyond the resize and alpha
// append: background removal or edge detection would degrade the inference
// model's pose conditioning.
func (n *Normalizer) Normalize(raw []byte, role Role) (*Normalized, error) {
	if len(raw) == 0 {
		return nil, errors.New(errors.KindNormalize, "normalize", "empty image payload")
	}
	if n.limits.MaxFileSize > 0 && int64(len(raw)) > n.limits.MaxFileSize {
		return nil, errors.New(errors.KindNormalize, "normalize",
			fmt.Sprintf("image exceeds maximum size of %d bytes", n.limits.MaxFileSize))
	}

	if err := n.checkDimensions(raw); err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(errors.KindNormalize, "normalize", "failed to decode image", err)
	}

	// NRGBA destination carries the alpha channel; opaque sources come out
	// with alpha 255 everywhere.
	dst := image.NewNRGBA(image.Rect(0, 0, Side, Side))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, errors.Wrap(errors.KindNormalize, "normalize", "failed to encode png", err)
	}

	n.logger.DebugTag("Normalize", "image normalized: role=%s format=%s in=%d bytes out=%d bytes",
		role, format, len(raw), buf.Len())

	return &Normalized{
		Pixels: dst,
		PNG:    buf.Bytes(),
		Role:   role,
	}, nil
}

func (n *Normalizer) checkDimensions(raw []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(errors.KindNormalize, "normalize", "failed to decode image", err)
	}

	if n.limits.MaxWidth > 0 && cfg.Width > n.limits.MaxWidth ||
		n.limits.MaxHeight > 0 && cfg.Height > n.limits.MaxHeight {
		return errors.New(errors.KindNormalize, "normalize",
			fmt.Sprintf("dimensions exceed limit: %dx%d (max %dx%d)",
				cfg.Width, cfg.Height, n.limits.MaxWidth, n.limits.MaxHeight))
	}

	totalPixels := int64(cfg.Width) * int64(cfg.Height)
	if n.limits.MaxPixels > 0 && totalPixels > n.limits.MaxPixels {
		return errors.New(errors.KindNormalize, "normalize",
			fmt.Sprintf("pixel count exceeds limit: %d (max %d)", totalPixels, n.limits.MaxPixels))
	}
	return nil
}
