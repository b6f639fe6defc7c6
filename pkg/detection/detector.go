package detection

import (
	"context"

	"github.com/menta2k/biometric-photo/pkg/types"
	"github.com/menta2k/biometric-photo/pkg/vision"
)

// Backend finds the single face of an image. A failed detection returns the partial
// Detection together with ErrNoFaceDetected or ErrMultipleFacesDetected.
type Backend interface {
	Name() string
	Detect(ctx context.Context, buf *types.PixelBuffer) (types.Detection, error)
}

// Heuristic is the model-free backend: simple layout detector, multi-scale skin/edge scan
// and candidate filter, then the permissive fallback
type Heuristic struct {
	detector *vision.FaceDetector
}

// NewHeuristic creates the heuristic backend around detector; nil uses the defaults
func NewHeuristic(detector *vision.FaceDetector) *Heuristic {
	if detector == nil {
		detector = vision.New()
	}
	return &Heuristic{detector: detector}
}

func (h *Heuristic) Name() string {
	return "heuristic"
}

// Detect ignores ctx; the scan is a bounded CPU pass
func (h *Heuristic) Detect(_ context.Context, buf *types.PixelBuffer) (types.Detection, error) {
	return h.detector.FindFace(buf)
}
