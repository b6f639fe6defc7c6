package processing

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/biometric-photo/internal/logger"
	"github.com/menta2k/biometric-photo/pkg/types"
)

// Reference byte budgets in KB
const (
	EmployeePhotoKB  = 200
	BiometricPhotoKB = 150
)

// Output formats
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// CompressConfig controls the quality-stepping loop
type CompressConfig struct {
	Format       string
	StartQuality int
	QualityStep  int
	MinQuality   int
}

// DefaultCompressConfig starts at quality 90 and steps down by 10 to a floor of 10
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Format:       FormatJPEG,
		StartQuality: 90,
		QualityStep:  10,
		MinQuality:   10,
	}
}

// Compressor re-encodes pixels at decreasing quality until they fit a byte budget
type Compressor struct {
	config CompressConfig
}

// NewCompressor creates a JPEG compressor with the default quality loop
func NewCompressor() *Compressor {
	return &Compressor{config: DefaultCompressConfig()}
}

// NewCompressorWithConfig creates a compressor with a custom quality loop
func NewCompressorWithConfig(config CompressConfig) *Compressor {
	if config.QualityStep <= 0 {
		config.QualityStep = 10
	}
	if config.MinQuality <= 0 {
		config.MinQuality = 1
	}
	return &Compressor{config: config}
}

// Compress encodes buf at StartQuality and lowers the quality by QualityStep until the
// output fits in targetKB or MinQuality is reached. Missing the budget at the floor is
// not an error: the smallest encoding is returned with OverBudget set.
func (c *Compressor) Compress(buf *types.PixelBuffer, targetKB int) (*types.EncodedImage, error) {
	if buf == nil || buf.Width == 0 || buf.Height == 0 {
		return nil, fmt.Errorf("%w: empty pixel buffer", types.ErrDecode)
	}

	img := buf.NRGBA()
	target := targetKB * 1024
	quality := c.config.StartQuality
	attempts := 0

	var data []byte
	for {
		attempts++
		encoded, err := c.encode(img, quality)
		if err != nil {
			return nil, fmt.Errorf("encoding at quality %d: %w", quality, err)
		}
		data = encoded

		if len(data) <= target || quality <= c.config.MinQuality {
			break
		}
		quality = max(quality-c.config.QualityStep, c.config.MinQuality)
	}

	result := &types.EncodedImage{
		Data:       data,
		MIMEType:   c.MIMEType(),
		Size:       len(data),
		OverBudget: len(data) > target,
		Attempts:   attempts,
	}

	if result.OverBudget {
		logger.Warning("compression budget not met at quality floor",
			logger.LoggerOptions{Key: "target_kb", Data: targetKB},
			logger.LoggerOptions{Key: "size", Data: result.Size},
			logger.LoggerOptions{Key: "error", Data: types.ErrCompressionBudgetUnreachable.Error()},
		)
	} else {
		logger.Debug("compressed image",
			logger.LoggerOptions{Key: "quality", Data: quality},
			logger.LoggerOptions{Key: "size", Data: result.Size},
			logger.LoggerOptions{Key: "attempts", Data: attempts},
		)
	}

	return result, nil
}

// MIMEType returns the MIME type of the configured output format
func (c *Compressor) MIMEType() string {
	if strings.EqualFold(c.config.Format, FormatWebP) {
		return "image/webp"
	}
	return "image/jpeg"
}

func (c *Compressor) encode(img image.Image, quality int) ([]byte, error) {
	var out bytes.Buffer
	switch strings.ToLower(c.config.Format) {
	case FormatWebP:
		if err := webp.Encode(&out, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, err
		}
	default:
		if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}
