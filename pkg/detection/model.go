package detection

import (
	"context"
	"fmt"

	"github.com/menta2k/biometric-photo/pkg/client"
	"github.com/menta2k/biometric-photo/pkg/processing"
	"github.com/menta2k/biometric-photo/pkg/types"
)

// VisionModel locates faces by asking a vision-language model server
type VisionModel struct {
	client        client.VisionClient
	processor     *processing.Processor
	model         string
	prompt        string
	minConfidence float64
	maxDim        int
}

// DefaultMinConfidence is the model confidence below which reported faces are ignored
const DefaultMinConfidence = 0.5

// NewVisionModel creates a backend for model served by c
func NewVisionModel(c client.VisionClient, model string) *VisionModel {
	return &VisionModel{
		client:        c,
		processor:     processing.NewProcessor(),
		model:         model,
		prompt:        client.FacePrompt,
		minConfidence: DefaultMinConfidence,
		maxDim:        768,
	}
}

// WithMinConfidence sets the confidence below which reported faces are ignored
func (m *VisionModel) WithMinConfidence(v float64) *VisionModel {
	m.minConfidence = v
	return m
}

func (m *VisionModel) Name() string {
	return "vision-model:" + m.model
}

func (m *VisionModel) Detect(ctx context.Context, buf *types.PixelBuffer) (types.Detection, error) {
	none := types.Detection{Method: types.MethodNone}

	imgB64, err := m.processor.PrepareImageForModel(buf, m.maxDim, 85)
	if err != nil {
		return none, fmt.Errorf("preparing image for model: %w", err)
	}

	analysis, err := m.client.DetectFaces(ctx, m.model, m.prompt, imgB64)
	if err != nil {
		return none, fmt.Errorf("model face detection: %w", err)
	}

	var faces []types.ModelFace
	for _, f := range analysis.Faces {
		if f.Confidence >= m.minConfidence {
			faces = append(faces, f)
		}
	}
	none.RawCandidates = len(analysis.Faces)

	switch {
	case len(faces) == 0:
		return none, types.ErrNoFaceDetected
	case len(faces) > 1:
		return none, fmt.Errorf("%w: model reported %d faces", types.ErrMultipleFacesDetected, len(faces))
	}

	return types.Detection{
		Candidate: types.FaceCandidate{
			Rect:  faces[0].Box.ToRect(buf.Width, buf.Height),
			Score: clamp(faces[0].Confidence, 0, 1),
		},
		Method:        types.MethodModel,
		RawCandidates: len(analysis.Faces),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
