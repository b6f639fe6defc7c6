package analyzer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// Size bounds for uploaded photos
const (
	MinFileSize = 1024
	MaxFileSize = 10 * 1024 * 1024
	// MaxPixels bounds the decoded size; a small file may declare huge dimensions
	MaxPixels = 40_000_000
)

// ImageAnalyzer decodes uploaded photos into pixel buffers
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image decoder
type Config struct {
	SupportedFormats []string
	MinFileSize      int
	MaxFileSize      int
	MaxPixels        int
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			SupportedFormats: []string{"jpeg", "jpg", "png", "gif", "webp", "bmp", "tiff"},
			MinFileSize:      MinFileSize,
			MaxFileSize:      MaxFileSize,
			MaxPixels:        MaxPixels,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// Decode validates the declared MIME type and size, then decodes data into a PixelBuffer.
func (a *ImageAnalyzer) Decode(data []byte, mimeType string) (*types.PixelBuffer, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/") {
		return nil, fmt.Errorf("%w: declared type %q is not an image", types.ErrInvalidFormat, mimeType)
	}
	if len(data) < a.config.MinFileSize {
		return nil, fmt.Errorf("%w: %d bytes (minimum: %d)", types.ErrTooSmall, len(data), a.config.MinFileSize)
	}
	if len(data) > a.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (maximum: %d)", types.ErrTooLarge, len(data), a.config.MaxFileSize)
	}

	img, err := a.decodeImageFromBytes(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, fmt.Errorf("%w: empty image", types.ErrDecode)
	}

	return types.FromNRGBA(imaging.Clone(img)), nil
}

// decodeImageFromBytes sniffs the content and decodes it, with an explicit WebP path
func (a *ImageAnalyzer) decodeImageFromBytes(data []byte) (image.Image, error) {
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, fmt.Errorf("%w: content is %s", types.ErrDecode, detected.String())
	}

	if err := a.checkDimensions(data, detected.Is("image/webp")); err != nil {
		return nil, err
	}

	if detected.Is("image/webp") {
		if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
			return img, nil
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}
	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("%w: unsupported image format: %s", types.ErrInvalidFormat, format)
	}
	return img, nil
}

// checkDimensions reads only the header and rejects images above MaxPixels
func (a *ImageAnalyzer) checkDimensions(data []byte, isWebP bool) error {
	var (
		cfg image.Config
		err error
	)
	if isWebP {
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	} else {
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrDecode, err)
	}

	if a.config.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(a.config.MaxPixels) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", types.ErrDecode, cfg.Width, cfg.Height, a.config.MaxPixels)
	}
	return nil
}

// GetImageInfo returns basic information about a decoded image
func (a *ImageAnalyzer) GetImageInfo(buf *types.PixelBuffer) ImageInfo {
	return ImageInfo{
		Width:       buf.Width,
		Height:      buf.Height,
		AspectRatio: float64(buf.Width) / float64(buf.Height),
		Area:        buf.Width * buf.Height,
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
