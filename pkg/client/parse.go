package client

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// FacePrompt asks a vision model for face boxes in a fixed JSON shape
const FacePrompt = `You are a face locator for identity photos.

Return JSON only:
{
  "face_count": 0,
  "faces": [
    {"confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (<= 20 words)"
}

HARD RULES
- Count only real human faces, not faces on posters, screens or printed photos.
- All coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- The box should tightly include forehead to chin and ear to ear.
- Do not guess identities, age, gender or emotion.
- If no face is found, return {"face_count":0,"faces":[],"description":"no face"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseFaceAnalysis decodes a model reply into a FaceAnalysis. Boxes are clamped to
// [0,1] and FaceCount is reconciled with the number of boxes.
func ParseFaceAnalysis(raw string) (*types.FaceAnalysis, error) {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("model returned non-JSON response: %.80q", raw)
	}

	var result types.FaceAnalysis
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	faces := result.Faces[:0]
	for _, f := range result.Faces {
		f.Box = normalizeBox(f.Box)
		if f.Box.W > 0 && f.Box.H > 0 {
			faces = append(faces, f)
		}
	}
	result.Faces = faces
	result.FaceCount = len(faces)

	return &result, nil
}

// SanitizeModelJSON removes code fences, comments and trailing commas and keeps only the
// outermost object
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
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
