package detection

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// CascadeConfig tunes the pigo pixel-intensity-comparison cascade
type CascadeConfig struct {
	// MinSize and MaxSize bound the face side in pixels; 0 derives them from the image
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	// Detections below MinQuality are discarded
	MinQuality float32
	// QualityCeiling maps cascade quality onto a [0,1] score
	QualityCeiling float32
}

// DefaultCascadeConfig returns the usual pigo facefinder settings
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		ShiftFactor:    0.1,
		ScaleFactor:    1.1,
		IoUThreshold:   0.2,
		MinQuality:     5,
		QualityCeiling: 50,
	}
}

// Cascade is a model-backed face detector running a pigo cascade
type Cascade struct {
	classifier *pigo.Pigo
	config     CascadeConfig
}

// NewCascade unpacks a binary pigo cascade such as facefinder
func NewCascade(data []byte, config CascadeConfig) (*Cascade, error) {
	// Unpack indexes the header without bounds checks
	if len(data) < 16 {
		return nil, fmt.Errorf("cascade file too short (%d bytes)", len(data))
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("error unpacking cascade file: %w", err)
	}
	return &Cascade{classifier: classifier, config: config}, nil
}

// LoadCascade reads and unpacks a cascade file
func LoadCascade(path string, config CascadeConfig) (*Cascade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cascade file: %w", err)
	}
	return NewCascade(data, config)
}

func (c *Cascade) Name() string {
	return "pigo-cascade"
}

func (c *Cascade) Detect(_ context.Context, buf *types.PixelBuffer) (types.Detection, error) {
	minSide := min(buf.Width, buf.Height)
	minSize := c.config.MinSize
	if minSize <= 0 {
		minSize = max(20, minSide/10)
	}
	maxSize := c.config.MaxSize
	if maxSize <= 0 {
		maxSize = minSide
	}

	params := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     maxSize,
		ShiftFactor: c.config.ShiftFactor,
		ScaleFactor: c.config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(buf.NRGBA()),
			Rows:   buf.Height,
			Cols:   buf.Width,
			Dim:    buf.Width,
		},
	}

	dets := c.classifier.RunCascade(params, 0)
	dets = c.classifier.ClusterDetections(dets, c.config.IoUThreshold)

	return c.toDetection(dets, buf.Width, buf.Height)
}

// toDetection keeps detections above MinQuality and requires exactly one
func (c *Cascade) toDetection(dets []pigo.Detection, width, height int) (types.Detection, error) {
	var faces []pigo.Detection
	for _, d := range dets {
		if d.Q >= c.config.MinQuality {
			faces = append(faces, d)
		}
	}

	none := types.Detection{Method: types.MethodNone, RawCandidates: len(dets)}
	switch {
	case len(faces) == 0:
		return none, types.ErrNoFaceDetected
	case len(faces) > 1:
		return none, fmt.Errorf("%w: cascade found %d faces", types.ErrMultipleFacesDetected, len(faces))
	}

	f := faces[0]
	r := image.Rect(f.Col-f.Scale/2, f.Row-f.Scale/2, f.Col+f.Scale/2, f.Row+f.Scale/2)
	rect := types.Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}.Clamp(width, height)

	score := float64(f.Q / c.config.QualityCeiling)
	return types.Detection{
		Candidate:     types.FaceCandidate{Rect: rect, Score: clamp(score, 0, 1)},
		Method:        types.MethodCascade,
		RawCandidates: len(dets),
	}, nil
}
