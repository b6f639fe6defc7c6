package types

import (
	"image"
	"math"
)

// PixelBuffer is a decoded image: row-major RGBA, 4 bytes per pixel, non-premultiplied.
// It is never mutated after decode; passes that change pixels return a new buffer.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewPixelBuffer allocates an opaque-black buffer of the given size
func NewPixelBuffer(width, height int) *PixelBuffer {
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// FromNRGBA wraps the pixels of img without copying when the stride is tight,
// and copies row by row otherwise.
func FromNRGBA(img *image.NRGBA) *PixelBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if img.Stride == w*4 && b.Min == (image.Point{}) {
		return &PixelBuffer{Width: w, Height: h, Pix: img.Pix[:w*h*4]}
	}
	buf := NewPixelBuffer(w, h)
	for y := 0; y < h; y++ {
		src := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(buf.Pix[y*w*4:(y+1)*w*4], img.Pix[src:src+w*4])
	}
	return buf
}

// NRGBA exposes the buffer as an image without copying
func (p *PixelBuffer) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    p.Pix,
		Stride: p.Width * 4,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

// RGBA returns the channels of the pixel at (x, y). Coordinates must be in bounds.
func (p *PixelBuffer) RGBA(x, y int) (r, g, b, a uint8) {
	i := (y*p.Width + x) * 4
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3]
}

// Brightness is the unweighted channel mean used by the edge and contrast heuristics
func (p *PixelBuffer) Brightness(x, y int) float64 {
	r, g, b, _ := p.RGBA(x, y)
	return (float64(r) + float64(g) + float64(b)) / 3
}

// Bounds returns the full image as a Rect
func (p *PixelBuffer) Bounds() Rect {
	return Rect{Width: p.Width, Height: p.Height}
}

// Rect is an axis-aligned rectangle in pixel units
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the rect
func (r Rect) Center() (float64, float64) {
	return float64(r.X) + float64(r.Width)/2, float64(r.Y) + float64(r.Height)/2
}

// Area returns the area of the rect
func (r Rect) Area() int {
	return r.Width * r.Height
}

// AspectRatio returns width/height, or 0 for a degenerate rect
func (r Rect) AspectRatio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// MinSide returns the shorter side
func (r Rect) MinSide() int {
	if r.Width < r.Height {
		return r.Width
	}
	return r.Height
}

// Clamp restricts the rect to [0, width] x [0, height]
func (r Rect) Clamp(width, height int) Rect {
	x0, y0 := clampInt(r.X, 0, width), clampInt(r.Y, 0, height)
	x1, y1 := clampInt(r.X+r.Width, 0, width), clampInt(r.Y+r.Height, 0, height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Overlap returns intersection-over-union of two rects
func (r Rect) Overlap(o Rect) float64 {
	ix0 := max(r.X, o.X)
	iy0 := max(r.Y, o.Y)
	ix1 := min(r.X+r.Width, o.X+o.Width)
	iy1 := min(r.Y+r.Height, o.Y+o.Height)
	if ix1 <= ix0 || iy1 <= iy0 {
		return 0
	}
	inter := float64((ix1 - ix0) * (iy1 - iy0))
	union := float64(r.Area()+o.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterDistance returns the euclidean distance between the centers of two rects
func (r Rect) CenterDistance(o Rect) float64 {
	ax, ay := r.Center()
	bx, by := o.Center()
	return math.Hypot(ax-bx, ay-by)
}

// Image converts the rect to an image.Rectangle
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// FaceCandidate is a rectangular region hypothesized to contain a face
type FaceCandidate struct {
	Rect  Rect    `json:"rect"`
	Score float64 `json:"score"`
}

// Method records how the accepted face region was found
type Method string

const (
	MethodNone     Method = "none"
	MethodSimple   Method = "simple_layout"
	MethodScan     Method = "full_scan"
	MethodFallback Method = "permissive_fallback"
	MethodCascade  Method = "cascade"
	MethodModel    Method = "model"
)

// ModelBacked reports whether the method relies on a trained model rather than heuristics
func (m Method) ModelBacked() bool {
	return m == MethodModel || m == MethodCascade
}

// Detection is the outcome of a face detector backend
type Detection struct {
	Candidate FaceCandidate
	Method    Method
	// RawCandidates is the size of the candidate set before filtering
	RawCandidates int
}

// Tier summarizes how usable a photo is for biometric enrollment
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
)

// Metrics are informational measurements of the face region
type Metrics struct {
	Brightness         float64 `json:"brightness"`
	Contrast           float64 `json:"contrast"`
	Sharpness          float64 `json:"sharpness"`
	LightingUniformity float64 `json:"lighting_uniformity"`
}

// QualityReport is the result of scoring a detected face
type QualityReport struct {
	FaceDetected    bool     `json:"face_detected"`
	FaceSize        int      `json:"face_size"`
	FacePosition    Rect     `json:"face_position"`
	Score           float64  `json:"score"`
	Method          Method   `json:"method"`
	Tier            Tier     `json:"tier"`
	Recommendations []string `json:"recommendations"`
	Metrics         Metrics  `json:"metrics"`
}

// Valid reports whether the photo may be used downstream
func (q *QualityReport) Valid() bool {
	return q.FaceDetected && q.Tier != TierPoor
}

// EncodedImage is compressed output handed over to the caller
type EncodedImage struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
	// OverBudget is set when the quality floor was reached without meeting the target size
	OverBudget bool `json:"over_budget"`
	Attempts   int  `json:"attempts"`
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
