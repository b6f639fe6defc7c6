package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"

	"github.com/disintegration/imaging"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// Processor handles pixel passes around the detection pipeline
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Normalize applies a brightness and contrast adjustment (percentages in [-100, 100])
// and returns a new buffer. The input is left untouched.
func (p *Processor) Normalize(buf *types.PixelBuffer, brightness, contrast float64) *types.PixelBuffer {
	img := imaging.Clone(buf.NRGBA())
	if brightness != 0 {
		img = imaging.AdjustBrightness(img, clamp(brightness, -100, 100))
	}
	if contrast != 0 {
		img = imaging.AdjustContrast(img, clamp(contrast, -100, 100))
	}
	return types.FromNRGBA(img)
}

// Resample extracts rect from buf and resizes it to width x height
func (p *Processor) Resample(buf *types.PixelBuffer, rect image.Rectangle, width, height int) (*types.PixelBuffer, error) {
	src := buf.NRGBA()
	rect = rect.Intersect(src.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: empty crop rectangle", types.ErrCropOutOfBounds)
	}
	cropped := imaging.Crop(src, rect)
	return types.FromNRGBA(imaging.Resize(cropped, width, height, imaging.Lanczos)), nil
}

// PrepareImageForModel downsizes buf so neither side exceeds maxDim and returns it as
// base64 JPEG for a vision model request
func (p *Processor) PrepareImageForModel(buf *types.PixelBuffer, maxDim int, quality int) (string, error) {
	var img image.Image = buf.NRGBA()
	if maxDim > 0 && (buf.Width > maxDim || buf.Height > maxDim) {
		if buf.Width >= buf.Height {
			img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
		}
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

// SaveEncoded writes compressed output to path
func (p *Processor) SaveEncoded(enc *types.EncodedImage, path string) error {
	return os.WriteFile(path, enc.Data, 0o644)
}

// CreateDebugOverlay draws the face region (green) and, when non-empty, the crop source
// region (gold) over a copy of buf, with crosshairs at the image center
func (p *Processor) CreateDebugOverlay(buf *types.PixelBuffer, face, crop types.Rect) *image.NRGBA {
	nrgba := imaging.Clone(buf.NRGBA())
	w, h := buf.Width, buf.Height

	green := color.NRGBA{0, 255, 0, 255}
	gold := color.NRGBA{255, 204, 0, 255}
	blue := color.NRGBA{0, 170, 255, 255}
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))

	if face.Width > 0 && face.Height > 0 {
		DrawRect(nrgba, face.Image(), green, stroke)
	}
	if crop.Width > 0 && crop.Height > 0 {
		DrawRect(nrgba, crop.Image(), gold, stroke)
	}

	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

// DrawRect outlines r on img with the given stroke width
func DrawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
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

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0 = max(x0, b.Min.X)
	x1 = min(x1, b.Max.X)
	for x := x0; x < x1; x++ {
		i := img.PixOffset(x, y)
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, b.Min.Y)
	y1 = min(y1, b.Max.Y)
	for y := y0; y < y1; y++ {
		i := img.PixOffset(x, y)
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
}
