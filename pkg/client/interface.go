package client

import (
	"context"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// VisionClient is a vision-language model server that can locate faces
type VisionClient interface {
	// Ping succeeds when the server is reachable and ready
	Ping(ctx context.Context) error
	DetectFaces(ctx context.Context, model, prompt, imgB64 string) (*types.FaceAnalysis, error)
}
