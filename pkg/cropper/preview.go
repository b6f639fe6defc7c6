package cropper

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/menta2k/biometric-photo/pkg/processing"
)

var (
	canvasBackground = color.NRGBA{32, 32, 32, 255}
	windowOutline    = color.NRGBA{255, 255, 255, 255}
	outsideShade     = color.NRGBA{0, 0, 0, 110}
)

// RenderPreview draws the canvas as the operator sees it: the source at the current scale
// and offset, shaded outside the crop window, with the window outlined
func (s *Session) RenderPreview() (*image.NRGBA, error) {
	if err := s.editing(); err != nil {
		return nil, err
	}

	size := s.config.CanvasSize
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: canvasBackground}, image.Point{}, draw.Src)

	scale := s.crop.Scale
	dx := (float64(size)-float64(s.source.Width)*scale)/2 + s.crop.Offset.X
	dy := (float64(size)-float64(s.source.Height)*scale)/2 + s.crop.Offset.Y
	src := s.source.NRGBA()
	draw.ApproxBiLinear.Transform(dst, f64.Aff3{scale, 0, dx, 0, scale, dy}, src, src.Bounds(), draw.Over, nil)

	window := s.crop.Window.Image()
	shade := &image.Uniform{C: outsideShade}
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, size, window.Min.Y),
		image.Rect(0, window.Max.Y, size, size),
		image.Rect(0, window.Min.Y, window.Min.X, window.Max.Y),
		image.Rect(window.Max.X, window.Min.Y, size, window.Max.Y),
	} {
		draw.Draw(dst, r.Intersect(dst.Bounds()), shade, image.Point{}, draw.Over)
	}
	processing.DrawRect(dst, window, windowOutline, 2)

	return dst, nil
}
