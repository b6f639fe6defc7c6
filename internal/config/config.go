package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	biophoto "github.com/menta2k/biometric-photo"
	"github.com/menta2k/biometric-photo/pkg/analyzer"
	"github.com/menta2k/biometric-photo/pkg/cropper"
	"github.com/menta2k/biometric-photo/pkg/detection"
	"github.com/menta2k/biometric-photo/pkg/processing"
	"github.com/menta2k/biometric-photo/pkg/quality"
	"github.com/menta2k/biometric-photo/pkg/vision"
)

// Detector backends
const (
	BackendHeuristic = "heuristic"
	BackendCascade   = "cascade"
	BackendOllama    = "ollama"
	BackendLlamaCpp  = "llamacpp"
	BackendAuto      = "auto"
)

// Config holds the application configuration
type Config struct {
	Decoder   DecoderConfig   `json:"decoder"`
	Detection DetectionConfig `json:"detection"`
	Quality   QualityConfig   `json:"quality"`
	Crop      CropConfig      `json:"crop"`
	Output    OutputConfig    `json:"output"`
	Model     ModelConfig     `json:"model"`
}

// DecoderConfig holds the upload constraints
type DecoderConfig struct {
	SupportedFormats []string `json:"supported_formats" validate:"min=1,dive,required"`
	MinFileSize      int      `json:"min_file_size" validate:"gte=1"`
	MaxFileSize      int      `json:"max_file_size" validate:"gtfield=MinFileSize"`
	MaxPixels        int      `json:"max_pixels" validate:"gte=1"`
}

// DetectionConfig exposes the tuned heuristic thresholds
type DetectionConfig struct {
	AcceptScore      float64 `json:"accept_score" validate:"ratio"`
	DuplicateOverlap float64 `json:"duplicate_overlap" validate:"ratio"`
	SameFaceOverlap  float64 `json:"same_face_overlap" validate:"ratio"`
	SameFaceDistance float64 `json:"same_face_distance" validate:"gt=0"`
	MinSkinRatio     float64 `json:"min_skin_ratio" validate:"ratio"`
	MaxSkinRatio     float64 `json:"max_skin_ratio" validate:"ratio,gtfield=MinSkinRatio"`
	MinEdgeRatio     float64 `json:"min_edge_ratio" validate:"ratio"`
	EdgeDelta        float64 `json:"edge_delta" validate:"gt=0,lte=255"`
	MaxCandidates    int     `json:"max_candidates" validate:"gte=1"`
}

// QualityConfig holds the scorer thresholds
type QualityConfig struct {
	MinDimension       int     `json:"min_dimension" validate:"gte=1"`
	MinAreaRatio       float64 `json:"min_area_ratio" validate:"ratio"`
	MaxAreaRatio       float64 `json:"max_area_ratio" validate:"ratio,gtfield=MinAreaRatio"`
	MaxCenterOffset    float64 `json:"max_center_offset" validate:"ratio"`
	MaxRecommendations int     `json:"max_recommendations" validate:"gte=0"`
}

// CropConfig holds the editing canvas geometry
type CropConfig struct {
	CanvasSize int `json:"canvas_size" validate:"gte=10"`
	WindowSize int `json:"window_size" validate:"gte=1,ltefield=CanvasSize"`
	OutputSize int `json:"output_size" validate:"gte=1"`
}

// OutputConfig holds compression and file output settings
type OutputConfig struct {
	Format     string  `json:"format" validate:"oneof=jpeg webp"`
	TargetKB   int     `json:"target_kb" validate:"gte=1"`
	Normalize  bool    `json:"normalize"`
	Brightness float64 `json:"brightness" validate:"gte=-100,lte=100"`
	Contrast   float64 `json:"contrast" validate:"gte=-100,lte=100"`
	OutputDir  string  `json:"output_dir"`
	Suffix     string  `json:"suffix"`
}

// ModelConfig selects the optional model-backed detector
type ModelConfig struct {
	Backend        string `json:"backend" validate:"oneof=heuristic cascade ollama llamacpp auto"`
	CascadePath    string `json:"cascade_path" validate:"required_if=Backend cascade"`
	VisionURL      string `json:"vision_url" validate:"omitempty,url"`
	VisionModel    string `json:"vision_model"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"gte=1,lte=300"`

	// MinConfidence drops vision model faces reported below it
	MinConfidence float64 `json:"min_confidence" validate:"ratio"`
}

// Default returns a configuration with the reference values
func Default() *Config {
	v := vision.DefaultConfig()
	q := quality.DefaultConfig()
	c := cropper.DefaultConfig()

	return &Config{
		Decoder: DecoderConfig{
			SupportedFormats: []string{"jpeg", "jpg", "png", "gif", "webp", "bmp", "tiff"},
			MinFileSize:      analyzer.MinFileSize,
			MaxFileSize:      analyzer.MaxFileSize,
			MaxPixels:        analyzer.MaxPixels,
		},
		Detection: DetectionConfig{
			AcceptScore:      v.AcceptScore,
			DuplicateOverlap: v.DuplicateOverlap,
			SameFaceOverlap:  v.SameFaceOverlap,
			SameFaceDistance: v.SameFaceDistance,
			MinSkinRatio:     v.MinSkinRatio,
			MaxSkinRatio:     v.MaxSkinRatio,
			MinEdgeRatio:     v.MinEdgeRatio,
			EdgeDelta:        v.EdgeDelta,
			MaxCandidates:    v.MaxCandidates,
		},
		Quality: QualityConfig{
			MinDimension:       q.MinDimension,
			MinAreaRatio:       q.MinAreaRatio,
			MaxAreaRatio:       q.MaxAreaRatio,
			MaxCenterOffset:    q.MaxCenterOffset,
			MaxRecommendations: q.MaxRecommendations,
		},
		Crop: CropConfig{
			CanvasSize: c.CanvasSize,
			WindowSize: c.WindowSize,
			OutputSize: c.OutputSize,
		},
		Output: OutputConfig{
			Format:    processing.FormatJPEG,
			TargetKB:  processing.BiometricPhotoKB,
			OutputDir: "./output",
			Suffix:    "_biometric",
		},
		Model: ModelConfig{
			Backend:        BackendHeuristic,
			VisionURL:      "http://localhost:11434",
			VisionModel:    "llava",
			TimeoutSeconds: int(detection.DefaultLoadTimeout / time.Second),
			MinConfidence:  detection.DefaultMinConfidence,
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename when it exists (defaults otherwise), then applies .env and
// BIOPHOTO_* overrides and validates the result
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if config, err = LoadFromFile(filename); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads .env files, if any, and applies BIOPHOTO_* variables
func (c *Config) LoadEnv(files ...string) error {
	// A missing .env is normal
	_ = godotenv.Load(files...)

	if v, ok := os.LookupEnv("BIOPHOTO_BACKEND"); ok {
		c.Model.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv("BIOPHOTO_CASCADE_PATH"); ok {
		c.Model.CascadePath = v
	}
	if v, ok := os.LookupEnv("BIOPHOTO_VISION_URL"); ok {
		c.Model.VisionURL = v
	}
	if v, ok := os.LookupEnv("BIOPHOTO_VISION_MODEL"); ok {
		c.Model.VisionModel = v
	}
	if v, ok := os.LookupEnv("BIOPHOTO_OUTPUT_FORMAT"); ok {
		c.Output.Format = strings.ToLower(strings.TrimSpace(v))
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"BIOPHOTO_MODEL_TIMEOUT", &c.Model.TimeoutSeconds},
		{"BIOPHOTO_TARGET_KB", &c.Output.TargetKB},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}

	return nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Pipeline maps the file configuration onto the library configuration
func (c *Config) Pipeline() biophoto.Config {
	cfg := biophoto.DefaultConfig()

	cfg.Analyzer = analyzer.Config{
		SupportedFormats: c.Decoder.SupportedFormats,
		MinFileSize:      c.Decoder.MinFileSize,
		MaxFileSize:      c.Decoder.MaxFileSize,
		MaxPixels:        c.Decoder.MaxPixels,
	}

	cfg.Detection.AcceptScore = c.Detection.AcceptScore
	cfg.Detection.DuplicateOverlap = c.Detection.DuplicateOverlap
	cfg.Detection.SameFaceOverlap = c.Detection.SameFaceOverlap
	cfg.Detection.SameFaceDistance = c.Detection.SameFaceDistance
	cfg.Detection.MinSkinRatio = c.Detection.MinSkinRatio
	cfg.Detection.MaxSkinRatio = c.Detection.MaxSkinRatio
	cfg.Detection.MinEdgeRatio = c.Detection.MinEdgeRatio
	cfg.Detection.EdgeDelta = c.Detection.EdgeDelta
	cfg.Detection.MaxCandidates = c.Detection.MaxCandidates

	cfg.Quality.MinDimension = c.Quality.MinDimension
	cfg.Quality.MinAreaRatio = c.Quality.MinAreaRatio
	cfg.Quality.MaxAreaRatio = c.Quality.MaxAreaRatio
	cfg.Quality.MaxCenterOffset = c.Quality.MaxCenterOffset
	cfg.Quality.MaxRecommendations = c.Quality.MaxRecommendations

	cfg.Crop.CanvasSize = c.Crop.CanvasSize
	cfg.Crop.WindowSize = c.Crop.WindowSize
	cfg.Crop.OutputSize = c.Crop.OutputSize

	cfg.Compress.Format = c.Output.Format
	cfg.TargetKB = c.Output.TargetKB
	if c.Output.Normalize {
		cfg.Normalize = &biophoto.Normalization{Brightness: c.Output.Brightness, Contrast: c.Output.Contrast}
	}

	return cfg
}

// Loaders returns the model loaders for the configured backend, in preference order
func (c *Config) Loaders() []detection.Loader {
	cascade := func() detection.Loader {
		return detection.CascadeLoader(c.Model.CascadePath, detection.DefaultCascadeConfig())
	}

	switch c.Model.Backend {
	case BackendCascade:
		return []detection.Loader{cascade()}
	case BackendOllama:
		return []detection.Loader{detection.OllamaLoader(c.Model.VisionURL, c.Model.VisionModel, c.Model.MinConfidence)}
	case BackendLlamaCpp:
		return []detection.Loader{detection.LlamaCppLoader(c.Model.VisionURL, c.Model.VisionModel, c.Model.MinConfidence)}
	case BackendAuto:
		var loaders []detection.Loader
		if c.Model.CascadePath != "" {
			loaders = append(loaders, cascade())
		}
		return append(loaders,
			detection.OllamaLoader(c.Model.VisionURL, c.Model.VisionModel, c.Model.MinConfidence),
			detection.LlamaCppLoader(c.Model.VisionURL, c.Model.VisionModel, c.Model.MinConfidence),
		)
	default:
		return nil
	}
}

// ModelTimeout returns the model load timeout
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "biophoto", "config.json")
}
