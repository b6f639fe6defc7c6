// Package biophoto prepares uploaded portraits for biometric enrollment.
//
// A photo goes through four stages: it is decoded and validated, a single face is
// located, the face placement is graded, and the operator frames a square crop that
// is compressed under a byte budget.
//
// Basic usage:
//
//	pipeline := biophoto.New()
//
//	report, err := pipeline.DetectAndScore(ctx, data, "image/jpeg")
//	if err != nil {
//		// report is non-nil for detection and quality rejections
//		log.Fatal(err)
//	}
//
//	id, err := pipeline.BeginCrop(data, "image/jpeg")
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = pipeline.SetZoomPercent(id, 120)
//	out, err := pipeline.CommitCrop(id)
//
// The package consists of these components:
//
// 1. Analyzer (pkg/analyzer): upload validation and decoding
// 2. Vision (pkg/vision): skin and edge heuristics for face candidates
// 3. Detection (pkg/detection): heuristic, cascade and vision model backends
// 4. Quality (pkg/quality): recommendations and the quality tier
// 5. Cropper (pkg/cropper): the interactive crop window
// 6. Processing (pkg/processing): resampling and budgeted compression
package biophoto

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/menta2k/biometric-photo/internal/logger"
	"github.com/menta2k/biometric-photo/pkg/analyzer"
	"github.com/menta2k/biometric-photo/pkg/cropper"
	"github.com/menta2k/biometric-photo/pkg/detection"
	"github.com/menta2k/biometric-photo/pkg/processing"
	"github.com/menta2k/biometric-photo/pkg/quality"
	"github.com/menta2k/biometric-photo/pkg/types"
	"github.com/menta2k/biometric-photo/pkg/vision"
)

// Version of the biometric photo library
const Version = "1.0.0"

// Normalization is an optional brightness/contrast pass applied before compression.
// Both values are percentages in [-100, 100].
type Normalization struct {
	Brightness float64
	Contrast   float64
}

// Config holds the configuration of every pipeline stage
type Config struct {
	Analyzer  analyzer.Config
	Detection vision.DetectionConfig
	Quality   quality.Config
	Crop      cropper.CropConfig
	Compress  processing.CompressConfig
	// TargetKB is the compression budget used by CommitCrop
	TargetKB  int
	Normalize *Normalization
	// Backend overrides the heuristic detector built from Detection
	Backend detection.Backend
}

// DefaultConfig returns the reference configuration
func DefaultConfig() Config {
	return Config{
		Analyzer: analyzer.Config{
			SupportedFormats: []string{"jpeg", "jpg", "png", "gif", "webp", "bmp", "tiff"},
			MinFileSize:      analyzer.MinFileSize,
			MaxFileSize:      analyzer.MaxFileSize,
			MaxPixels:        analyzer.MaxPixels,
		},
		Detection: vision.DefaultConfig(),
		Quality:   quality.DefaultConfig(),
		Crop:      cropper.DefaultConfig(),
		Compress:  processing.DefaultCompressConfig(),
		TargetKB:  processing.BiometricPhotoKB,
	}
}

// Pipeline provides a high-level interface over decoding, detection, scoring,
// cropping and compression. Crop sessions are keyed by id and safe for concurrent use;
// every other call owns its buffers for its duration.
type Pipeline struct {
	analyzer   *analyzer.ImageAnalyzer
	backend    detection.Backend
	scorer     *quality.Scorer
	cropper    *cropper.Cropper
	compressor *processing.Compressor
	processor  *processing.Processor
	targetKB   int
	normalize  *Normalization

	mu       sync.Mutex
	sessions map[uuid.UUID]*cropper.Session
}

// New creates a Pipeline with default configuration and the heuristic detector
func New() *Pipeline {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Pipeline with custom configuration
func NewWithConfig(config Config) *Pipeline {
	backend := config.Backend
	if backend == nil {
		backend = detection.NewHeuristic(vision.NewWithConfig(config.Detection))
	}

	return &Pipeline{
		analyzer:   analyzer.NewWithConfig(config.Analyzer),
		backend:    backend,
		scorer:     quality.NewWithConfig(config.Quality),
		cropper:    cropper.NewWithConfig(config.Crop),
		compressor: processing.NewCompressorWithConfig(config.Compress),
		processor:  processing.NewProcessor(),
		targetKB:   config.TargetKB,
		normalize:  config.Normalize,
		sessions:   make(map[uuid.UUID]*cropper.Session),
	}
}

// Backend returns the name of the active detector backend
func (p *Pipeline) Backend() string {
	return p.backend.Name()
}

// Decode validates and decodes an upload
func (p *Pipeline) Decode(data []byte, mimeType string) (*types.PixelBuffer, error) {
	return p.analyzer.Decode(data, mimeType)
}

// ImageInfo returns the dimensions of a decoded buffer
func (p *Pipeline) ImageInfo(buf *types.PixelBuffer) analyzer.ImageInfo {
	return p.analyzer.GetImageInfo(buf)
}

// DetectAndScore decodes an upload, locates the single face and grades it.
//
// Detection rejections (ErrNoFaceDetected, ErrMultipleFacesDetected) and a Poor tier
// (ErrPoorQuality) return the report together with the error. Decode failures and
// ErrImageTooSmall return no report.
func (p *Pipeline) DetectAndScore(ctx context.Context, data []byte, mimeType string) (*types.QualityReport, error) {
	buf, err := p.analyzer.Decode(data, mimeType)
	if err != nil {
		return nil, err
	}
	return p.Score(ctx, buf)
}

// Score runs detection and scoring on a decoded buffer
func (p *Pipeline) Score(ctx context.Context, buf *types.PixelBuffer) (*types.QualityReport, error) {
	det, err := p.backend.Detect(ctx, buf)
	if err != nil {
		if errors.Is(err, types.ErrNoFaceDetected) || errors.Is(err, types.ErrMultipleFacesDetected) {
			logger.Info("Photo rejected by detection", logger.LoggerOptions{Key: "reason", Data: err.Error()})
			return p.scorer.Rejected(err), err
		}
		return nil, fmt.Errorf("%s detection: %w", p.backend.Name(), err)
	}

	report, err := p.scorer.Score(buf, det)
	if err != nil {
		return nil, err
	}

	logger.Info("Photo scored",
		logger.LoggerOptions{Key: "method", Data: det.Method},
		logger.LoggerOptions{Key: "candidates", Data: det.RawCandidates},
		logger.LoggerOptions{Key: "tier", Data: report.Tier},
		logger.LoggerOptions{Key: "recommendations", Data: len(report.Recommendations)},
	)

	if !report.Valid() {
		return report, fmt.Errorf("%w: %d recommendations", types.ErrPoorQuality, len(report.Recommendations))
	}
	return report, nil
}

// BeginCrop decodes an upload and opens a crop session on it
func (p *Pipeline) BeginCrop(data []byte, mimeType string) (uuid.UUID, error) {
	buf, err := p.analyzer.Decode(data, mimeType)
	if err != nil {
		return uuid.Nil, err
	}
	return p.BeginCropBuffer(buf)
}

// BeginCropBuffer opens a crop session on a decoded buffer
func (p *Pipeline) BeginCropBuffer(buf *types.PixelBuffer) (uuid.UUID, error) {
	session, err := p.cropper.Begin(buf)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	p.mu.Lock()
	p.sessions[id] = session
	p.mu.Unlock()

	logger.Debug("Crop session started",
		logger.LoggerOptions{Key: "session", Data: id.String()},
		logger.LoggerOptions{Key: "scale", Data: session.Crop().Scale},
	)
	return id, nil
}

// withSession runs fn on the session while holding the pipeline lock
func (p *Pipeline) withSession(id uuid.UUID, fn func(s *cropper.Session) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	return fn(session)
}

// Pan moves the image under the crop window by (dx, dy) canvas pixels
func (p *Pipeline) Pan(id uuid.UUID, dx, dy float64) error {
	return p.withSession(id, func(s *cropper.Session) error {
		return s.Pan(dx, dy)
	})
}

// SetZoomPercent sets the zoom slider position, 0 to 200 with 100 meaning scale 1 (one source
// pixel per canvas pixel)
func (p *Pipeline) SetZoomPercent(id uuid.UUID, pct float64) error {
	return p.withSession(id, func(s *cropper.Session) error {
		return s.SetZoomPercent(pct)
	})
}

// ZoomPercent returns the zoom slider position of a session
func (p *Pipeline) ZoomPercent(id uuid.UUID) (float64, error) {
	var pct float64
	err := p.withSession(id, func(s *cropper.Session) error {
		pct = s.ZoomPercent()
		return nil
	})
	return pct, err
}

// CropState returns the current window, scale and offset of a session
func (p *Pipeline) CropState(id uuid.UUID) (cropper.CropState, error) {
	var state cropper.CropState
	err := p.withSession(id, func(s *cropper.Session) error {
		state = s.Crop()
		return nil
	})
	return state, err
}

// HandlePointer forwards a canvas pointer event to a session
func (p *Pipeline) HandlePointer(id uuid.UUID, ev cropper.PointerEvent) error {
	return p.withSession(id, func(s *cropper.Session) error {
		return s.HandlePointer(ev)
	})
}

// RenderPreview draws the editing canvas of a session
func (p *Pipeline) RenderPreview(id uuid.UUID) (*image.NRGBA, error) {
	var preview *image.NRGBA
	err := p.withSession(id, func(s *cropper.Session) error {
		var err error
		preview, err = s.RenderPreview()
		return err
	})
	return preview, err
}

// ResetCrop restores the initial scale and offset
func (p *Pipeline) ResetCrop(id uuid.UUID) error {
	return p.withSession(id, func(s *cropper.Session) error {
		return s.Reset()
	})
}

// CancelCrop discards a session without producing output
func (p *Pipeline) CancelCrop(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	delete(p.sessions, id)
	return session.Cancel()
}

// CommitCrop resamples the selected region and compresses it to the configured budget.
// A window outside the image fails with ErrCropOutOfBounds and leaves the session open
// for further edits; any other outcome closes it.
func (p *Pipeline) CommitCrop(id uuid.UUID) (*types.EncodedImage, error) {
	p.mu.Lock()
	session, ok := p.sessions[id]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	buf, err := session.Commit()
	if err != nil && errors.Is(err, types.ErrCropOutOfBounds) {
		p.mu.Unlock()
		logger.Warning("Crop window outside the image", logger.LoggerOptions{Key: "session", Data: id.String()})
		return nil, err
	}
	delete(p.sessions, id)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return p.Compress(buf, p.targetKB)
}

// Compress applies the optional normalization and encodes buf under targetKB kilobytes.
// Missing the budget at the quality floor is reported through OverBudget, not an error.
func (p *Pipeline) Compress(buf *types.PixelBuffer, targetKB int) (*types.EncodedImage, error) {
	if buf == nil {
		return nil, fmt.Errorf("compress: nil buffer")
	}
	if p.normalize != nil {
		buf = p.processor.Normalize(buf, p.normalize.Brightness, p.normalize.Contrast)
	}
	return p.compressor.Compress(buf, targetKB)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
