package vision

import (
	"math"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// FaceDetector finds face-like regions with skin-tone and edge heuristics, no trained model
type FaceDetector struct {
	config DetectionConfig
}

// DetectionConfig holds the tunable thresholds of the heuristic detector.
// The defaults are empirically tuned and kept for behavioral compatibility.
type DetectionConfig struct {
	// Scan window sizes as fractions of min(width, height)
	ScaleFactors    []float64
	MinFaceRatio    float64
	MaxFaceRatio    float64
	MinWindowStep   int
	WindowStepRatio float64
	SamplesPerAxis  int

	// Raw candidate gate
	MinSkinRatio float64
	MaxSkinRatio float64
	MinEdgeRatio float64
	EdgeDelta    float64

	// Skin classifier, on r+g+b and channel shares of it
	MinSkinTotal int
	MaxSkinTotal int

	// Simple ID-photo layout detector
	LayoutFaceRatio  float64
	LayoutCenterYs   []float64
	MinOpaqueRatio   float64
	MaxLayoutOffsetX float64
	MaxLayoutOffsetY float64
	LayoutIdealY     float64
	MinLayoutArea    float64
	MaxLayoutArea    float64

	// Candidate filter
	DuplicateOverlap float64
	MaxCandidates    int
	SameFaceOverlap  float64
	SameFaceDistance float64
	AcceptScore      float64

	// Permissive fallback: center Y and size as fractions
	FallbackCenterY float64
	FallbackSize    float64
}

// DefaultConfig returns the reference thresholds
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		ScaleFactors:    []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
		MinFaceRatio:    0.1,
		MaxFaceRatio:    0.8,
		MinWindowStep:   10,
		WindowStepRatio: 0.1,
		SamplesPerAxis:  20,

		MinSkinRatio: 0.2,
		MaxSkinRatio: 0.95,
		MinEdgeRatio: 0.03,
		EdgeDelta:    25,

		MinSkinTotal: 80,
		MaxSkinTotal: 750,

		LayoutFaceRatio:  0.45,
		LayoutCenterYs:   []float64{0.4, 0.35, 0.45, 0.5},
		MinOpaqueRatio:   0.1,
		MaxLayoutOffsetX: 0.2,
		MaxLayoutOffsetY: 0.15,
		LayoutIdealY:     0.4,
		MinLayoutArea:    0.1,
		MaxLayoutArea:    0.6,

		DuplicateOverlap: 0.4,
		MaxCandidates:    5,
		SameFaceOverlap:  0.6,
		SameFaceDistance: 0.5,
		AcceptScore:      0.15,

		FallbackCenterY: 0.4,
		FallbackSize:    0.5,
	}
}

// New creates a new FaceDetector with default configuration
func New() *FaceDetector {
	return &FaceDetector{config: DefaultConfig()}
}

// NewWithConfig creates a new FaceDetector with custom configuration
func NewWithConfig(config DetectionConfig) *FaceDetector {
	return &FaceDetector{config: config}
}

// Config returns the detector configuration
func (d *FaceDetector) Config() DetectionConfig {
	return d.config
}

// RegionStats summarizes a sampled region
type RegionStats struct {
	Samples     int
	SkinRatio   float64
	EdgeRatio   float64
	OpaqueRatio float64
}

// IsSkin classifies a pixel with the normalized-RGB skin heuristic
func (d *FaceDetector) IsSkin(r, g, b uint8) bool {
	total := int(r) + int(g) + int(b)
	if total < d.config.MinSkinTotal || total > d.config.MaxSkinTotal {
		return false
	}
	t := float64(total)
	rn, gn, bn := float64(r)/t, float64(g)/t, float64(b)/t
	return rn > 0.25 && rn < 0.65 &&
		gn > 0.15 && gn < 0.55 &&
		bn > 0.05 && bn < 0.45 &&
		r > g
}

// sampleStep is the grid stride for a region of the given size
func (d *FaceDetector) sampleStep(size int) int {
	samples := d.config.SamplesPerAxis
	if samples <= 0 {
		samples = 20
	}
	return max(2, size/samples)
}

// AnalyzeRegion samples r on a sparse grid and measures skin, edge and opacity ratios.
// An edge is counted when the brightness differs by more than EdgeDelta from the
// previous sample along either axis.
func (d *FaceDetector) AnalyzeRegion(buf *types.PixelBuffer, r types.Rect) RegionStats {
	r = r.Clamp(buf.Width, buf.Height)
	if r.Width == 0 || r.Height == 0 {
		return RegionStats{}
	}

	step := d.sampleStep(min(r.Width, r.Height))
	var samples, skin, edges, opaque int

	for y := r.Y; y < r.Y+r.Height; y += step {
		for x := r.X; x < r.X+r.Width; x += step {
			cr, cg, cb, ca := buf.RGBA(x, y)
			samples++
			if ca > 0 {
				opaque++
			}
			if d.IsSkin(cr, cg, cb) {
				skin++
			}

			cur := (float64(cr) + float64(cg) + float64(cb)) / 3
			edge := false
			if x-step >= r.X && math.Abs(cur-buf.Brightness(x-step, y)) > d.config.EdgeDelta {
				edge = true
			}
			if !edge && y-step >= r.Y && math.Abs(cur-buf.Brightness(x, y-step)) > d.config.EdgeDelta {
				edge = true
			}
			if edge {
				edges++
			}
		}
	}

	n := float64(samples)
	return RegionStats{
		Samples:     samples,
		SkinRatio:   float64(skin) / n,
		EdgeRatio:   float64(edges) / n,
		OpaqueRatio: float64(opaque) / n,
	}
}

// looksLikeFace applies the raw candidate gate
func (d *FaceDetector) looksLikeFace(s RegionStats) bool {
	return s.SkinRatio > d.config.MinSkinRatio &&
		s.SkinRatio < d.config.MaxSkinRatio &&
		s.EdgeRatio > d.config.MinEdgeRatio
}

// faceSizeBounds returns the allowed window size range in pixels
func (d *FaceDetector) faceSizeBounds(buf *types.PixelBuffer) (int, int) {
	minDim := float64(min(buf.Width, buf.Height))
	return int(minDim * d.config.MinFaceRatio), int(minDim * d.config.MaxFaceRatio)
}

// ScanCandidates slides square windows over the image at every configured scale and
// returns every window passing the skin/edge gate, in scan order.
func (d *FaceDetector) ScanCandidates(buf *types.PixelBuffer) []types.FaceCandidate {
	var candidates []types.FaceCandidate

	minDim := min(buf.Width, buf.Height)
	lo, hi := d.faceSizeBounds(buf)

	for _, scale := range d.config.ScaleFactors {
		size := int(float64(minDim) * scale)
		if size < lo {
			size = lo
		}
		if size > hi {
			size = hi
		}
		if size < 1 {
			continue
		}

		step := max(d.config.MinWindowStep, int(float64(size)*d.config.WindowStepRatio))

		for y := 0; y+size <= buf.Height; y += step {
			for x := 0; x+size <= buf.Width; x += step {
				window := types.Rect{X: x, Y: y, Width: size, Height: size}
				stats := d.AnalyzeRegion(buf, window)
				if d.looksLikeFace(stats) {
					candidates = append(candidates, types.FaceCandidate{
						Rect:  window,
						Score: stats.SkinRatio,
					})
				}
			}
		}
	}

	return candidates
}

// DetectSimple tries the canonical ID-photo layouts: a face centered horizontally with its
// center between 35% and 50% of the height. The first layout whose region has content and a
// plausible face position is returned.
func (d *FaceDetector) DetectSimple(buf *types.PixelBuffer) (types.FaceCandidate, bool) {
	minDim := min(buf.Width, buf.Height)
	size := int(float64(minDim) * d.config.LayoutFaceRatio)
	if size < 1 {
		return types.FaceCandidate{}, false
	}

	for _, cy := range d.config.LayoutCenterYs {
		region := types.Rect{
			X:      buf.Width/2 - size/2,
			Y:      int(float64(buf.Height)*cy) - size/2,
			Width:  size,
			Height: size,
		}.Clamp(buf.Width, buf.Height)

		stats := d.AnalyzeRegion(buf, region)
		if stats.OpaqueRatio < d.config.MinOpaqueRatio || !d.looksLikeFace(stats) {
			continue
		}
		if !d.isGoodIDPhotoPosition(region, buf.Width, buf.Height) {
			continue
		}

		score := d.EvaluateCandidate(buf, region)
		if score > d.config.AcceptScore {
			return types.FaceCandidate{Rect: region, Score: score}, true
		}
	}

	return types.FaceCandidate{}, false
}

func (d *FaceDetector) isGoodIDPhotoPosition(face types.Rect, width, height int) bool {
	cx, cy := face.Center()
	offsetX := math.Abs(cx - float64(width)/2)
	offsetY := math.Abs(cy - float64(height)*d.config.LayoutIdealY)
	areaRatio := float64(face.Area()) / float64(width*height)

	return offsetX < float64(width)*d.config.MaxLayoutOffsetX &&
		offsetY < float64(height)*d.config.MaxLayoutOffsetY &&
		areaRatio >= d.config.MinLayoutArea &&
		areaRatio <= d.config.MaxLayoutArea
}

// Fallback returns the permissive centered region used when nothing usable was found
func (d *FaceDetector) Fallback(buf *types.PixelBuffer) types.FaceCandidate {
	size := int(float64(min(buf.Width, buf.Height)) * d.config.FallbackSize)
	region := types.Rect{
		X:      buf.Width/2 - size/2,
		Y:      int(float64(buf.Height)*d.config.FallbackCenterY) - size/2,
		Width:  size,
		Height: size,
	}.Clamp(buf.Width, buf.Height)

	return types.FaceCandidate{Rect: region, Score: d.EvaluateCandidate(buf, region)}
}

// EvaluateCandidate scores a region in [0,1]:
//   - aspect ratio within [0.7, 1.3]: 0.3
//   - centeredness: up to 0.2
//   - luminance contrast: up to 0.3
//   - 3x3 skin distribution (center > sides > corners): up to 0.5
func (d *FaceDetector) EvaluateCandidate(buf *types.PixelBuffer, r types.Rect) float64 {
	r = r.Clamp(buf.Width, buf.Height)
	if r.Width == 0 || r.Height == 0 {
		return 0
	}

	score := 0.0

	aspect := r.AspectRatio()
	if aspect >= 0.7 && aspect <= 1.3 {
		score += 0.3
	}

	cx, cy := r.Center()
	dist := math.Hypot(cx-float64(buf.Width)/2, cy-float64(buf.Height)/2)
	halfDiagonal := math.Hypot(float64(buf.Width), float64(buf.Height)) / 2
	score += 0.2 * math.Max(0, 1-dist/halfDiagonal)

	score += 0.3 * math.Min(d.luminanceStdDev(buf, r)/64, 1)

	score += d.skinDistributionScore(buf, r)

	return math.Max(0, math.Min(1, score))
}

// luminanceStdDev is the standard deviation of sampled brightness in r
func (d *FaceDetector) luminanceStdDev(buf *types.PixelBuffer, r types.Rect) float64 {
	step := d.sampleStep(min(r.Width, r.Height))
	var sum, sumSq float64
	n := 0
	for y := r.Y; y < r.Y+r.Height; y += step {
		for x := r.X; x < r.X+r.Width; x += step {
			v := buf.Brightness(x, y)
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// skinDistributionScore splits r into a 3x3 grid and rewards skin concentrated in the
// center cell, then the edge-middle cells, then the corners.
func (d *FaceDetector) skinDistributionScore(buf *types.PixelBuffer, r types.Rect) float64 {
	cellW, cellH := r.Width/3, r.Height/3
	if cellW == 0 || cellH == 0 {
		return 0
	}

	var cells [3][3]float64
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			cell := types.Rect{X: r.X + col*cellW, Y: r.Y + row*cellH, Width: cellW, Height: cellH}
			cells[row][col] = d.AnalyzeRegion(buf, cell).SkinRatio
		}
	}

	center := cells[1][1]
	sides := (cells[0][1] + cells[1][0] + cells[1][2] + cells[2][1]) / 4
	corners := (cells[0][0] + cells[0][2] + cells[2][0] + cells[2][2]) / 4

	score := 0.1 * center
	if center > sides {
		score += 0.2
	}
	if sides > corners {
		score += 0.2
	}
	return score
}
