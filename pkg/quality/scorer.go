package quality

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// Recommendation texts, in the order they are checked
const (
	RecommendProportions = "Face needs more natural proportions"
	RecommendTooSmall    = "Face is too small in the frame; move closer to the camera"
	RecommendTooLarge    = "Face is too large in the frame; move further from the camera"
	RecommendCenter      = "Face should be more centered in the frame"
	RecommendEstimated   = "Face position could not be verified; it was estimated from the image layout"
	RecommendNoFace      = "No face was found; use a photo showing exactly one face"
	RecommendOneFace     = "More than one face was found; use a photo showing exactly one face"
)

// Scorer grades an accepted face region for biometric enrollment
type Scorer struct {
	config Config
}

// Config holds the quality thresholds
type Config struct {
	MinDimension   int
	MinAspectRatio float64
	MaxAspectRatio float64
	MinAreaRatio   float64
	MaxAreaRatio   float64
	// Maximum center offset as a fraction of min(width, height)
	MaxCenterOffset float64
	// More recommendations than this make the tier Poor
	MaxRecommendations int
}

// DefaultConfig returns the reference thresholds
func DefaultConfig() Config {
	return Config{
		MinDimension:       300,
		MinAspectRatio:     0.7,
		MaxAspectRatio:     1.3,
		MinAreaRatio:       0.1,
		MaxAreaRatio:       0.7,
		MaxCenterOffset:    0.3,
		MaxRecommendations: 2,
	}
}

// New creates a Scorer with default thresholds
func New() *Scorer {
	return &Scorer{config: DefaultConfig()}
}

// NewWithConfig creates a Scorer with custom thresholds
func NewWithConfig(config Config) *Scorer {
	return &Scorer{config: config}
}

// CheckDimensions fails with ErrImageTooSmall when either side is below MinDimension
func (s *Scorer) CheckDimensions(buf *types.PixelBuffer) error {
	if buf.Width < s.config.MinDimension || buf.Height < s.config.MinDimension {
		return fmt.Errorf("%w: %dx%d (minimum: %d)", types.ErrImageTooSmall, buf.Width, buf.Height, s.config.MinDimension)
	}
	return nil
}

// Score grades the detected face. The tier is derived only from the recommendations:
// none is Excellent, up to MaxRecommendations is Fair (Good for model-backed detections
// with a single recommendation), more is Poor.
func (s *Scorer) Score(buf *types.PixelBuffer, det types.Detection) (*types.QualityReport, error) {
	if err := s.CheckDimensions(buf); err != nil {
		return nil, err
	}

	face := det.Candidate.Rect.Clamp(buf.Width, buf.Height)
	recommendations := s.recommend(buf, face, det.Method)

	return &types.QualityReport{
		FaceDetected:    true,
		FaceSize:        max(face.Width, face.Height),
		FacePosition:    face,
		Score:           det.Candidate.Score,
		Method:          det.Method,
		Tier:            s.tier(len(recommendations), det.Method),
		Recommendations: recommendations,
		Metrics:         Measure(buf, face),
	}, nil
}

// Rejected builds the report returned alongside a detection failure
func (s *Scorer) Rejected(reason error) *types.QualityReport {
	recommendation := RecommendNoFace
	if errors.Is(reason, types.ErrMultipleFacesDetected) {
		recommendation = RecommendOneFace
	}
	return &types.QualityReport{
		FaceDetected:    false,
		Method:          types.MethodNone,
		Tier:            types.TierPoor,
		Recommendations: []string{recommendation},
	}
}

func (s *Scorer) recommend(buf *types.PixelBuffer, face types.Rect, method types.Method) []string {
	recommendations := []string{}

	aspect := face.AspectRatio()
	if aspect < s.config.MinAspectRatio || aspect > s.config.MaxAspectRatio {
		recommendations = append(recommendations, RecommendProportions)
	}

	areaRatio := float64(face.Area()) / float64(buf.Width*buf.Height)
	if areaRatio < s.config.MinAreaRatio {
		recommendations = append(recommendations, RecommendTooSmall)
	} else if areaRatio > s.config.MaxAreaRatio {
		recommendations = append(recommendations, RecommendTooLarge)
	}

	cx, cy := face.Center()
	offset := math.Hypot(cx-float64(buf.Width)/2, cy-float64(buf.Height)/2)
	if offset > s.config.MaxCenterOffset*float64(min(buf.Width, buf.Height)) {
		recommendations = append(recommendations, RecommendCenter)
	}

	if method == types.MethodFallback {
		recommendations = append(recommendations, RecommendEstimated)
	}

	return recommendations
}

func (s *Scorer) tier(recommendations int, method types.Method) types.Tier {
	switch {
	case recommendations == 0:
		return types.TierExcellent
	case recommendations > s.config.MaxRecommendations:
		return types.TierPoor
	case recommendations == 1 && method.ModelBacked():
		return types.TierGood
	default:
		return types.TierFair
	}
}
