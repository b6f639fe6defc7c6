package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// fakeVisionClient returns a canned analysis
type fakeVisionClient struct {
	analysis *types.FaceAnalysis
	err      error
	pingErr  error
	calls    int
}

func (f *fakeVisionClient) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeVisionClient) DetectFaces(ctx context.Context, model, prompt, imgB64 string) (*types.FaceAnalysis, error) {
	f.calls++
	if imgB64 == "" {
		return nil, errors.New("missing image")
	}
	return f.analysis, f.err
}

// fakeBackend is a named backend with a fixed detection
type fakeBackend struct {
	name string
}

func (f fakeBackend) Name() string { return f.name }

func (f fakeBackend) Detect(context.Context, *types.PixelBuffer) (types.Detection, error) {
	return types.Detection{Method: types.MethodModel}, nil
}

func createTestImage(width, height int) *types.PixelBuffer {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{128, 128, 128, 255})
		}
	}
	return types.FromNRGBA(img)
}

func TestHeuristicNoFace(t *testing.T) {
	h := NewHeuristic(nil)
	if h.Name() != "heuristic" {
		t.Errorf("Unexpected name %q", h.Name())
	}

	_, err := h.Detect(context.Background(), createTestImage(400, 400))
	if !errors.Is(err, types.ErrNoFaceDetected) {
		t.Errorf("Expected ErrNoFaceDetected, got %v", err)
	}
}

func TestVisionModelSingleFace(t *testing.T) {
	fake := &fakeVisionClient{analysis: &types.FaceAnalysis{
		FaceCount: 2,
		Faces: []types.ModelFace{
			{Confidence: 0.9, Box: types.Box{X: 0.25, Y: 0.2, W: 0.5, H: 0.5}},
			{Confidence: 0.2, Box: types.Box{X: 0, Y: 0, W: 0.1, H: 0.1}},
		},
	}}
	backend := NewVisionModel(fake, "llava")

	det, err := backend.Detect(context.Background(), createTestImage(400, 600))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if det.Method != types.MethodModel {
		t.Errorf("Expected model method, got %s", det.Method)
	}
	want := types.Rect{X: 100, Y: 120, Width: 200, Height: 300}
	if det.Candidate.Rect != want {
		t.Errorf("Expected %+v, got %+v", want, det.Candidate.Rect)
	}
	if det.Candidate.Score != 0.9 || det.RawCandidates != 2 {
		t.Errorf("Unexpected score/raw count: %f / %d", det.Candidate.Score, det.RawCandidates)
	}
}

func TestVisionModelOutcomes(t *testing.T) {
	face := types.ModelFace{Confidence: 0.8, Box: types.Box{X: 0.1, Y: 0.1, W: 0.3, H: 0.3}}
	tests := []struct {
		name  string
		faces []types.ModelFace
		want  error
	}{
		{"none", nil, types.ErrNoFaceDetected},
		{"low confidence", []types.ModelFace{{Confidence: 0.1, Box: face.Box}}, types.ErrNoFaceDetected},
		{"two faces", []types.ModelFace{face, face}, types.ErrMultipleFacesDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewVisionModel(&fakeVisionClient{analysis: &types.FaceAnalysis{Faces: tt.faces}}, "m")
			det, err := backend.Detect(context.Background(), createTestImage(300, 300))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if det.Method != types.MethodNone {
				t.Errorf("Expected method none, got %s", det.Method)
			}
		})
	}
}

func TestVisionModelClientError(t *testing.T) {
	backend := NewVisionModel(&fakeVisionClient{err: errors.New("connection refused")}, "m")
	_, err := backend.Detect(context.Background(), createTestImage(300, 300))
	if err == nil || errors.Is(err, types.ErrNoFaceDetected) {
		t.Errorf("Expected the client error to surface, got %v", err)
	}
}

func TestCascadeToDetection(t *testing.T) {
	c := &Cascade{config: DefaultCascadeConfig()}

	det, err := c.toDetection([]pigo.Detection{
		{Row: 200, Col: 150, Scale: 100, Q: 25},
		{Row: 20, Col: 20, Scale: 30, Q: 1},
	}, 300, 400)
	if err != nil {
		t.Fatalf("toDetection failed: %v", err)
	}
	if det.Method != types.MethodCascade || !det.Method.ModelBacked() {
		t.Errorf("Expected cascade method, got %s", det.Method)
	}
	if det.Candidate.Rect != (types.Rect{X: 100, Y: 150, Width: 100, Height: 100}) {
		t.Errorf("Unexpected rect %+v", det.Candidate.Rect)
	}
	if det.Candidate.Score != 0.5 {
		t.Errorf("Expected score 0.5, got %f", det.Candidate.Score)
	}

	_, err = c.toDetection([]pigo.Detection{
		{Row: 100, Col: 100, Scale: 80, Q: 20},
		{Row: 300, Col: 200, Scale: 80, Q: 30},
	}, 300, 400)
	if !errors.Is(err, types.ErrMultipleFacesDetected) {
		t.Errorf("Expected ErrMultipleFacesDetected, got %v", err)
	}

	if _, err := c.toDetection(nil, 300, 400); !errors.Is(err, types.ErrNoFaceDetected) {
		t.Errorf("Expected ErrNoFaceDetected, got %v", err)
	}
}

func TestLoadCascadeErrors(t *testing.T) {
	if _, err := LoadCascade(filepath.Join(t.TempDir(), "missing"), DefaultCascadeConfig()); err == nil {
		t.Error("Expected an error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "short")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCascade(path, DefaultCascadeConfig()); err == nil {
		t.Error("Expected an error for a truncated cascade")
	}
}

func TestSelectFirstWorkingLoader(t *testing.T) {
	fallback := NewHeuristic(nil)
	failing := func(ctx context.Context) (Backend, error) { return nil, errors.New("down") }
	working := func(ctx context.Context) (Backend, error) { return fakeBackend{name: "model"}, nil }

	got := Select(context.Background(), time.Second, fallback, failing, working)
	if got.Name() != "model" {
		t.Errorf("Expected the working loader, got %s", got.Name())
	}
}

func TestSelectFallsBackWhenAllFail(t *testing.T) {
	fallback := NewHeuristic(nil)
	failing := func(ctx context.Context) (Backend, error) { return nil, errors.New("down") }

	if got := Select(context.Background(), time.Second, fallback, failing, failing); got != Backend(fallback) {
		t.Errorf("Expected heuristic fallback, got %s", got.Name())
	}
	if got := Select(context.Background(), time.Second, fallback); got != Backend(fallback) {
		t.Errorf("Expected heuristic fallback without loaders, got %s", got.Name())
	}
}

func TestSelectTimeout(t *testing.T) {
	fallback := NewHeuristic(nil)
	hanging := func(ctx context.Context) (Backend, error) {
		time.Sleep(2 * time.Second)
		return fakeBackend{name: "late"}, nil
	}

	start := time.Now()
	got := Select(context.Background(), 50*time.Millisecond, fallback, hanging)
	if got != Backend(fallback) {
		t.Errorf("Expected heuristic fallback on timeout, got %s", got.Name())
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Select blocked for %v", elapsed)
	}
}

func TestOllamaLoaderUnreachable(t *testing.T) {
	load := OllamaLoader("http://127.0.0.1:1", "llava", DefaultMinConfidence)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := load(ctx); err == nil {
		t.Error("Expected an error for an unreachable server")
	}
}

func TestLlamaCppLoaderAppliesMinConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	backend, err := LlamaCppLoader(server.URL, "llava", 0.8)(context.Background())
	if err != nil {
		t.Fatalf("Loader failed: %v", err)
	}
	model, ok := backend.(*VisionModel)
	if !ok {
		t.Fatalf("Expected a vision model backend, got %T", backend)
	}
	if model.minConfidence != 0.8 {
		t.Errorf("Expected min confidence 0.8, got %f", model.minConfidence)
	}
}
