package biophoto

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/menta2k/biometric-photo/pkg/cropper"
	"github.com/menta2k/biometric-photo/pkg/types"
)

var (
	background = color.NRGBA{40, 70, 130, 255}
	lightSkin  = color.NRGBA{220, 170, 140, 255}
	darkSkin   = color.NRGBA{170, 110, 80, 255}
	midGray    = color.NRGBA{128, 128, 128, 255}
)

// createTestImage fills an image with a single color
func createTestImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// paintFace draws a skin-toned checkerboard
func paintFace(img *image.NRGBA, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if (x/7+y/7)%2 == 0 {
				img.SetNRGBA(x, y, lightSkin)
			} else {
				img.SetNRGBA(x, y, darkSkin)
			}
		}
	}
}

// createQuadrantImage paints red, green, blue and yellow quadrants
func createQuadrantImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.NRGBA
			switch {
			case x < width/2 && y < height/2:
				c = color.NRGBA{255, 0, 0, 255}
			case x >= width/2 && y < height/2:
				c = color.NRGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.NRGBA{0, 0, 255, 255}
			default:
				c = color.NRGBA{255, 255, 0, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// encodePNG stores img uncompressed so flat test images stay above the minimum upload size
func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

type fakeBackend struct {
	det types.Detection
	err error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Detect(context.Context, *types.PixelBuffer) (types.Detection, error) {
	return f.det, f.err
}

func newWithBackend(b *fakeBackend) *Pipeline {
	cfg := DefaultConfig()
	cfg.Backend = b
	return NewWithConfig(cfg)
}

func TestNew(t *testing.T) {
	pipeline := New()
	if pipeline == nil {
		t.Fatal("New() returned nil")
	}

	if pipeline.analyzer == nil || pipeline.scorer == nil || pipeline.cropper == nil || pipeline.compressor == nil {
		t.Error("Pipeline component is nil")
	}
	if pipeline.Backend() != "heuristic" {
		t.Errorf("Expected heuristic backend, got %s", pipeline.Backend())
	}
	if pipeline.targetKB != 150 {
		t.Errorf("Expected 150 KB budget, got %d", pipeline.targetKB)
	}
}

func TestNewWithConfigBackend(t *testing.T) {
	pipeline := newWithBackend(&fakeBackend{})
	if pipeline.Backend() != "fake" {
		t.Errorf("Expected injected backend, got %s", pipeline.Backend())
	}
}

func TestDetectAndScoreNoFace(t *testing.T) {
	pipeline := New()
	data := encodePNG(t, createTestImage(400, 400, midGray))

	report, err := pipeline.DetectAndScore(context.Background(), data, "image/png")
	if !errors.Is(err, types.ErrNoFaceDetected) {
		t.Fatalf("Expected ErrNoFaceDetected, got %v", err)
	}
	if report == nil {
		t.Fatal("Expected a report alongside the rejection")
	}
	if report.FaceDetected || report.Tier != types.TierPoor || report.Valid() {
		t.Errorf("Unexpected rejection report: %+v", report)
	}
}

func TestDetectAndScoreMultipleFaces(t *testing.T) {
	pipeline := New()
	img := createTestImage(300, 300, background)
	paintFace(img, image.Rect(10, 10, 90, 90))
	paintFace(img, image.Rect(210, 210, 290, 290))

	report, err := pipeline.DetectAndScore(context.Background(), encodePNG(t, img), "image/png")
	if !errors.Is(err, types.ErrMultipleFacesDetected) {
		t.Fatalf("Expected ErrMultipleFacesDetected, got %v", err)
	}
	if report == nil || report.Tier != types.TierPoor {
		t.Errorf("Expected a Poor report, got %+v", report)
	}
}

func TestDetectAndScoreCenteredFace(t *testing.T) {
	pipeline := New()
	img := createTestImage(600, 600, background)
	paintFace(img, image.Rect(150, 150, 450, 450))

	report, err := pipeline.DetectAndScore(context.Background(), encodePNG(t, img), "image/png")
	if err != nil {
		t.Fatalf("DetectAndScore failed: %v", err)
	}

	if !report.FaceDetected || !report.Valid() {
		t.Errorf("Expected a valid report, got %+v", report)
	}
	if report.Tier != types.TierExcellent && report.Tier != types.TierFair {
		t.Errorf("Expected Excellent or Fair tier, got %s with %v", report.Tier, report.Recommendations)
	}
	if report.Method != types.MethodSimple {
		t.Errorf("Expected simple layout detection, got %s", report.Method)
	}
}

func TestDetectAndScoreDeterministic(t *testing.T) {
	pipeline := New()
	img := createTestImage(600, 600, background)
	paintFace(img, image.Rect(40, 40, 220, 220))
	data := encodePNG(t, img)

	first, err1 := pipeline.DetectAndScore(context.Background(), data, "image/png")
	second, err2 := pipeline.DetectAndScore(context.Background(), data, "image/png")
	if (err1 == nil) != (err2 == nil) {
		t.Fatalf("Expected identical outcomes, got %v and %v", err1, err2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical reports, got %+v and %+v", first, second)
	}
}

func TestDetectAndScoreInvalidInput(t *testing.T) {
	pipeline := New()

	_, err := pipeline.DetectAndScore(context.Background(), encodePNG(t, createTestImage(400, 400, midGray)), "text/plain")
	if !errors.Is(err, types.ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat, got %v", err)
	}

	_, err = pipeline.DetectAndScore(context.Background(), []byte("tiny"), "image/png")
	if !errors.Is(err, types.ErrTooSmall) {
		t.Errorf("Expected ErrTooSmall, got %v", err)
	}
}

func TestScoreImageTooSmall(t *testing.T) {
	pipeline := newWithBackend(&fakeBackend{det: types.Detection{
		Candidate: types.FaceCandidate{Rect: types.Rect{X: 50, Y: 50, Width: 150, Height: 150}, Score: 0.5},
		Method:    types.MethodSimple,
	}})
	buf := types.FromNRGBA(createTestImage(299, 400, midGray))

	report, err := pipeline.Score(context.Background(), buf)
	if !errors.Is(err, types.ErrImageTooSmall) {
		t.Fatalf("Expected ErrImageTooSmall, got %v", err)
	}
	if report != nil {
		t.Errorf("Expected no report, got %+v", report)
	}
}

func TestScorePoorQuality(t *testing.T) {
	pipeline := newWithBackend(&fakeBackend{det: types.Detection{
		Candidate: types.FaceCandidate{Rect: types.Rect{X: 0, Y: 0, Width: 60, Height: 150}, Score: 0.3},
		Method:    types.MethodScan,
	}})
	buf := types.FromNRGBA(createTestImage(600, 600, midGray))

	report, err := pipeline.Score(context.Background(), buf)
	if !errors.Is(err, types.ErrPoorQuality) {
		t.Fatalf("Expected ErrPoorQuality, got %v", err)
	}
	if report == nil || report.Tier != types.TierPoor || len(report.Recommendations) != 3 {
		t.Errorf("Expected a Poor report with 3 recommendations, got %+v", report)
	}
}

func TestScoreBackendError(t *testing.T) {
	failure := errors.New("model unavailable")
	pipeline := newWithBackend(&fakeBackend{err: failure})

	report, err := pipeline.Score(context.Background(), types.FromNRGBA(createTestImage(400, 400, midGray)))
	if !errors.Is(err, failure) {
		t.Fatalf("Expected backend error, got %v", err)
	}
	if report != nil {
		t.Errorf("Expected no report, got %+v", report)
	}
}

func TestCropCommitCentered(t *testing.T) {
	pipeline := New()
	data := encodePNG(t, createQuadrantImage(1000, 800))

	id, err := pipeline.BeginCrop(data, "image/png")
	if err != nil {
		t.Fatalf("BeginCrop failed: %v", err)
	}

	out, err := pipeline.CommitCrop(id)
	if err != nil {
		t.Fatalf("CommitCrop failed: %v", err)
	}
	if out.MIMEType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", out.MIMEType)
	}
	if out.Size > 150*1024 || out.OverBudget {
		t.Errorf("Expected output within 150 KB, got %d bytes", out.Size)
	}

	img, err := jpeg.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 300 {
		t.Fatalf("Expected 300x300 output, got %v", img.Bounds())
	}

	r, g, b, _ := img.At(10, 10).RGBA()
	if r>>8 < 200 || g>>8 > 60 || b>>8 > 60 {
		t.Errorf("Expected red top-left, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = img.At(290, 290).RGBA()
	if r>>8 < 200 || g>>8 < 200 || b>>8 > 60 {
		t.Errorf("Expected yellow bottom-right, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}

	if err := pipeline.Pan(id, 1, 1); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("Expected committed session to be gone, got %v", err)
	}
}

func TestCropOutOfBoundsKeepsSession(t *testing.T) {
	pipeline := New()
	id, err := pipeline.BeginCropBuffer(types.FromNRGBA(createQuadrantImage(1000, 800)))
	if err != nil {
		t.Fatalf("BeginCropBuffer failed: %v", err)
	}

	if err := pipeline.Pan(id, -1000, 0); err != nil {
		t.Fatalf("Pan failed: %v", err)
	}
	if _, err := pipeline.CommitCrop(id); !errors.Is(err, types.ErrCropOutOfBounds) {
		t.Fatalf("Expected ErrCropOutOfBounds, got %v", err)
	}

	if err := pipeline.ResetCrop(id); err != nil {
		t.Fatalf("Expected session to stay open, got %v", err)
	}
	if _, err := pipeline.CommitCrop(id); err != nil {
		t.Errorf("Expected commit after reset to succeed, got %v", err)
	}
}

func TestCropSessionEditing(t *testing.T) {
	pipeline := New()
	id, err := pipeline.BeginCropBuffer(types.FromNRGBA(createQuadrantImage(1000, 800)))
	if err != nil {
		t.Fatalf("BeginCropBuffer failed: %v", err)
	}

	if err := pipeline.SetZoomPercent(id, 150); err != nil {
		t.Fatalf("SetZoomPercent failed: %v", err)
	}
	pct, err := pipeline.ZoomPercent(id)
	if err != nil || pct < 149.999 || pct > 150.001 {
		t.Errorf("Expected zoom 150, got %f (%v)", pct, err)
	}

	for _, ev := range []cropper.PointerEvent{
		{Kind: cropper.PointerDown, X: 100, Y: 100},
		{Kind: cropper.PointerMove, X: 130, Y: 90},
		{Kind: cropper.PointerUp, X: 130, Y: 90},
	} {
		if err := pipeline.HandlePointer(id, ev); err != nil {
			t.Fatalf("HandlePointer(%s) failed: %v", ev.Kind, err)
		}
	}

	state, err := pipeline.CropState(id)
	if err != nil {
		t.Fatalf("CropState failed: %v", err)
	}
	if state.Offset.X != 30 || state.Offset.Y != -10 {
		t.Errorf("Expected offset (30,-10), got %+v", state.Offset)
	}

	preview, err := pipeline.RenderPreview(id)
	if err != nil {
		t.Fatalf("RenderPreview failed: %v", err)
	}
	if preview.Bounds().Dx() != 300 {
		t.Errorf("Expected 300px preview, got %v", preview.Bounds())
	}

	if err := pipeline.CancelCrop(id); err != nil {
		t.Fatalf("CancelCrop failed: %v", err)
	}
	if _, err := pipeline.CommitCrop(id); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after cancel, got %v", err)
	}
}

func TestCropRejectsNonFiniteInput(t *testing.T) {
	pipeline := New()
	id, err := pipeline.BeginCropBuffer(types.FromNRGBA(createQuadrantImage(1000, 800)))
	if err != nil {
		t.Fatalf("BeginCropBuffer failed: %v", err)
	}
	before, _ := pipeline.CropState(id)

	if err := pipeline.SetZoomPercent(id, math.NaN()); !errors.Is(err, types.ErrInvalidGeometry) {
		t.Errorf("Expected ErrInvalidGeometry for NaN zoom, got %v", err)
	}
	if err := pipeline.Pan(id, math.Inf(1), 0); !errors.Is(err, types.ErrInvalidGeometry) {
		t.Errorf("Expected ErrInvalidGeometry for infinite pan, got %v", err)
	}

	after, err := pipeline.CropState(id)
	if err != nil || after != before {
		t.Errorf("Expected unchanged state %+v, got %+v (%v)", before, after, err)
	}
	if _, err := pipeline.CommitCrop(id); err != nil {
		t.Errorf("Expected commit to succeed, got %v", err)
	}
}

func TestImageInfo(t *testing.T) {
	pipeline := New()
	buf, err := pipeline.Decode(encodePNG(t, createQuadrantImage(400, 200)), "image/png")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	info := pipeline.ImageInfo(buf)
	if info.Width != 400 || info.Height != 200 || info.AspectRatio != 2 || info.Area != 80000 {
		t.Errorf("Unexpected image info: %+v", info)
	}
}

func TestUnknownSession(t *testing.T) {
	pipeline := New()
	id := uuid.New()

	checks := map[string]error{
		"pan":    pipeline.Pan(id, 1, 1),
		"zoom":   pipeline.SetZoomPercent(id, 100),
		"reset":  pipeline.ResetCrop(id),
		"cancel": pipeline.CancelCrop(id),
	}
	for name, err := range checks {
		if !errors.Is(err, types.ErrSessionNotFound) {
			t.Errorf("%s: expected ErrSessionNotFound, got %v", name, err)
		}
	}
}

func TestCompressNormalized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Normalize = &Normalization{Brightness: 10, Contrast: 5}
	pipeline := NewWithConfig(cfg)

	out, err := pipeline.Compress(types.FromNRGBA(createQuadrantImage(300, 300)), 200)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if out.Size == 0 || out.Attempts != 1 {
		t.Errorf("Expected a single attempt within budget, got %+v", out)
	}

	if _, err := pipeline.Compress(nil, 200); err == nil {
		t.Error("Expected error for nil buffer")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected %s, got %s", Version, GetVersion())
	}
}
