package cropper

import (
	"fmt"
	"image"
	"math"

	"github.com/menta2k/biometric-photo/pkg/processing"
	"github.com/menta2k/biometric-photo/pkg/types"
)

// State is the lifecycle position of a crop session
type State int

const (
	StateIdle State = iota
	StateEditing
	StateCommitted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateCommitted:
		return "committed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Point is a position or offset in canvas space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

const boundsEpsilon = 1e-9

// CropConfig holds the editing canvas geometry
type CropConfig struct {
	CanvasSize int
	WindowSize int
	OutputSize int
	MinScale   float64
	MaxScale   float64
}

// DefaultConfig returns a 300x300 canvas with a centered 250x250 window and 300x300 output
func DefaultConfig() CropConfig {
	return CropConfig{
		CanvasSize: 300,
		WindowSize: 250,
		OutputSize: 300,
		MinScale:   0.1,
		MaxScale:   10,
	}
}

// ScaleFromPercent maps a zoom readout in [0, 200] to a scale. 100 is scale 1; the upper
// half is linear over (1, MaxScale] and the lower half over [MinScale, 1).
func (c CropConfig) ScaleFromPercent(pct float64) float64 {
	pct = clamp(pct, 0, 200)
	if pct >= 100 {
		return 1 + (pct-100)/100*(c.MaxScale-1)
	}
	return c.MinScale + pct/100*(1-c.MinScale)
}

// PercentFromScale is the exact inverse of ScaleFromPercent
func (c CropConfig) PercentFromScale(scale float64) float64 {
	scale = clamp(scale, c.MinScale, c.MaxScale)
	if scale >= 1 {
		return 100 + (scale-1)/(c.MaxScale-1)*100
	}
	return (scale - c.MinScale) / (1 - c.MinScale) * 100
}

// CropState is the operator-controlled geometry of a session. Window never changes
// during zoom or pan.
type CropState struct {
	Window types.Rect `json:"window"`
	Scale  float64    `json:"scale"`
	Offset Point      `json:"offset"`
}

// DragState tracks an in-progress pan. Start is the pointer position at PointerDown and
// Origin the image offset at that moment.
type DragState struct {
	Dragging bool
	Start    Point
	Origin   Point
}

// SourceRect is a rectangle in source image coordinates
type SourceRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the rect
func (r SourceRect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Pixels rounds the rect to whole source pixels
func (r SourceRect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	)
}

// MapWindow converts a canvas window into source pixel coordinates for an image of
// srcW x srcH drawn at scale, centered on a canvas x canvas square and shifted by offset.
// The result is clamped to the source.
func MapWindow(window types.Rect, scale float64, offset Point, canvas, srcW, srcH int) SourceRect {
	drawX := (float64(canvas)-float64(srcW)*scale)/2 + offset.X
	drawY := (float64(canvas)-float64(srcH)*scale)/2 + offset.Y

	x := clamp((float64(window.X)-drawX)/scale, 0, float64(srcW))
	y := clamp((float64(window.Y)-drawY)/scale, 0, float64(srcH))
	w := math.Min(float64(window.Width)/scale, float64(srcW)-x)
	h := math.Min(float64(window.Height)/scale, float64(srcH)-y)

	return SourceRect{X: x, Y: y, Width: w, Height: h}
}

// Cropper creates crop sessions sharing one canvas geometry
type Cropper struct {
	config    CropConfig
	processor *processing.Processor
}

// New creates a Cropper with the default geometry
func New() *Cropper {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Cropper with custom geometry
func NewWithConfig(config CropConfig) *Cropper {
	return &Cropper{
		config:    config,
		processor: processing.NewProcessor(),
	}
}

// Config returns the crop geometry
func (c *Cropper) Config() CropConfig {
	return c.config
}

// NewSession returns an idle session
func (c *Cropper) NewSession() *Session {
	return &Session{config: c.config, processor: c.processor}
}

// Begin starts editing buf in a new session
func (c *Cropper) Begin(buf *types.PixelBuffer) (*Session, error) {
	s := c.NewSession()
	if err := s.Begin(buf); err != nil {
		return nil, err
	}
	return s, nil
}

// Session is one interactive crop over a single source image. It is not safe for
// concurrent use.
type Session struct {
	config    CropConfig
	processor *processing.Processor

	state  State
	source *types.PixelBuffer
	crop   CropState
	drag   DragState
}

// Begin moves an idle session to editing with the initial geometry
func (s *Session) Begin(buf *types.PixelBuffer) error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: session is %s", types.ErrSessionClosed, s.state)
	}
	if buf == nil || buf.Width == 0 || buf.Height == 0 {
		return fmt.Errorf("%w: empty source image", types.ErrDecode)
	}
	s.source = buf
	s.crop = s.initial()
	s.drag = DragState{}
	s.state = StateEditing
	return nil
}

func (s *Session) initial() CropState {
	margin := (s.config.CanvasSize - s.config.WindowSize) / 2
	fit := float64(s.config.CanvasSize) / float64(max(s.source.Width, s.source.Height))
	return CropState{
		Window: types.Rect{X: margin, Y: margin, Width: s.config.WindowSize, Height: s.config.WindowSize},
		Scale:  clamp(fit, s.config.MinScale, s.config.MaxScale),
	}
}

// State returns the lifecycle state
func (s *Session) State() State {
	return s.state
}

// Crop returns a copy of the current geometry
func (s *Session) Crop() CropState {
	return s.crop
}

// Drag returns the current drag state
func (s *Session) Drag() DragState {
	return s.drag
}

func (s *Session) editing() error {
	if s.state != StateEditing {
		return fmt.Errorf("%w: session is %s", types.ErrSessionClosed, s.state)
	}
	return nil
}

// Pan shifts the image under the window by (dx, dy) canvas pixels
func (s *Session) Pan(dx, dy float64) error {
	if err := s.editing(); err != nil {
		return err
	}
	if !finite(dx, dy) {
		return fmt.Errorf("%w: pan (%v, %v)", types.ErrInvalidGeometry, dx, dy)
	}
	s.crop.Offset.X += dx
	s.crop.Offset.Y += dy
	return nil
}

// SetZoomPercent sets the scale from a readout in [0, 200]; out-of-range values are clamped
func (s *Session) SetZoomPercent(pct float64) error {
	if err := s.editing(); err != nil {
		return err
	}
	if !finite(pct) {
		return fmt.Errorf("%w: zoom %v", types.ErrInvalidGeometry, pct)
	}
	s.crop.Scale = s.config.ScaleFromPercent(pct)
	return nil
}

// ZoomPercent returns the readout for the current scale
func (s *Session) ZoomPercent() float64 {
	return s.config.PercentFromScale(s.crop.Scale)
}

// MapToSource returns the current window in source coordinates, clamped to the source.
// It fails with ErrCropOutOfBounds when the clamped rect is empty or the geometry is not finite.
func (s *Session) MapToSource() (SourceRect, error) {
	if s.source == nil {
		return SourceRect{}, fmt.Errorf("%w: no source image", types.ErrSessionClosed)
	}
	if !finite(s.crop.Scale, s.crop.Offset.X, s.crop.Offset.Y) || s.crop.Scale <= 0 {
		return SourceRect{}, fmt.Errorf("%w: scale %v offset (%v, %v)", types.ErrCropOutOfBounds, s.crop.Scale, s.crop.Offset.X, s.crop.Offset.Y)
	}
	r := MapWindow(s.crop.Window, s.crop.Scale, s.crop.Offset, s.config.CanvasSize, s.source.Width, s.source.Height)
	if !finite(r.X, r.Y, r.Width, r.Height) || r.Width <= 0 || r.Height <= 0 ||
		r.X+r.Width > float64(s.source.Width)+boundsEpsilon || r.Y+r.Height > float64(s.source.Height)+boundsEpsilon {
		return r, fmt.Errorf("%w: source rect %.1fx%.1f at (%.1f, %.1f)", types.ErrCropOutOfBounds, r.Width, r.Height, r.X, r.Y)
	}
	return r, nil
}

// Commit extracts the window's source region resampled to OutputSize and closes the
// session. On ErrCropOutOfBounds the session stays editing.
func (s *Session) Commit() (*types.PixelBuffer, error) {
	if err := s.editing(); err != nil {
		return nil, err
	}

	r, err := s.MapToSource()
	if err != nil {
		return nil, err
	}

	out, err := s.processor.Resample(s.source, r.Pixels(), s.config.OutputSize, s.config.OutputSize)
	if err != nil {
		return nil, err
	}

	s.state = StateCommitted
	s.drag = DragState{}
	s.source = nil
	return out, nil
}

// Reset restores the geometry set by Begin
func (s *Session) Reset() error {
	if err := s.editing(); err != nil {
		return err
	}
	s.crop = s.initial()
	s.drag = DragState{}
	return nil
}

// Cancel discards the session
func (s *Session) Cancel() error {
	if err := s.editing(); err != nil {
		return err
	}
	s.state = StateCancelled
	s.drag = DragState{}
	s.source = nil
	return nil
}

// finite reports whether every value is neither NaN nor infinite
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
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
