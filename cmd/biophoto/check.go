package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	biophoto "github.com/menta2k/biometric-photo"
	"github.com/menta2k/biometric-photo/internal/logger"
	"github.com/menta2k/biometric-photo/internal/utils"
	"github.com/menta2k/biometric-photo/pkg/analyzer"
	"github.com/menta2k/biometric-photo/pkg/cropper"
	"github.com/menta2k/biometric-photo/pkg/processing"
	"github.com/menta2k/biometric-photo/pkg/types"
)

var overlayDir string

type checkResult struct {
	File    string               `json:"file"`
	Valid   bool                 `json:"valid"`
	Error   string               `json:"error,omitempty"`
	Image   *analyzer.ImageInfo  `json:"image,omitempty"`
	Report  *types.QualityReport `json:"report,omitempty"`
	Overlay string               `json:"overlay,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check FILE|DIR...",
	Short: "Detect the face in each photo and report its quality tier",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), args)
	},
}

func init() {
	checkCmd.Flags().StringVar(&overlayDir, "debug-overlay", "", "write debug overlays with the face and initial crop to this directory")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(ctx context.Context, args []string) error {
	files, err := collectPhotos(args)
	if err != nil {
		return err
	}
	if overlayDir != "" {
		if err := utils.EnsureDir(overlayDir); err != nil {
			return fmt.Errorf("failed to create overlay directory: %w", err)
		}
	}

	pipeline := newPipeline(ctx)
	logger.Info("Checking photos",
		logger.LoggerOptions{Key: "count", Data: len(files)},
		logger.LoggerOptions{Key: "backend", Data: pipeline.Backend()},
	)

	results := make([]checkResult, 0, len(files))
	rejected := 0
	for _, file := range files {
		result := checkPhoto(ctx, pipeline, file)
		if !result.Valid {
			rejected++
		}
		results = append(results, result)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Println(string(out))

	if rejected > 0 {
		return fmt.Errorf("%d of %d photos rejected", rejected, len(files))
	}
	return nil
}

func checkPhoto(ctx context.Context, pipeline *biophoto.Pipeline, file string) checkResult {
	result := checkResult{File: file}

	upload, err := utils.ReadUpload(file)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	buf, err := pipeline.Decode(upload.Data, upload.MIMEType)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	info := pipeline.ImageInfo(buf)
	result.Image = &info

	report, err := pipeline.Score(ctx, buf)
	result.Report = report
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = report.Valid()
	}

	if overlayDir != "" && report != nil && report.FaceDetected {
		path, err := writeOverlay(pipeline, buf, report.FacePosition, file)
		if err != nil {
			logger.Warning("Overlay failed", logger.LoggerOptions{Key: "file", Data: file}, logger.LoggerOptions{Key: "error", Data: err.Error()})
		} else {
			result.Overlay = path
		}
	}
	return result
}

// writeOverlay marks the face and the region an untouched crop session would commit
func writeOverlay(pipeline *biophoto.Pipeline, buf *types.PixelBuffer, face types.Rect, file string) (string, error) {
	id, err := pipeline.BeginCropBuffer(buf)
	if err != nil {
		return "", err
	}
	state, err := pipeline.CropState(id)
	_ = pipeline.CancelCrop(id)
	if err != nil {
		return "", err
	}

	src := cropper.MapWindow(state.Window, state.Scale, state.Offset, cfg.Crop.CanvasSize, buf.Width, buf.Height)
	crop := types.Rect{X: int(src.X), Y: int(src.Y), Width: int(src.Width), Height: int(src.Height)}

	overlay := processing.NewProcessor().CreateDebugOverlay(buf, face, crop)
	path := utils.OutputFilename(file, overlayDir, "_overlay", "png")
	if err := imaging.Save(overlay, path); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return path, nil
}

// collectPhotos expands directories into the photo files they contain
func collectPhotos(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if utils.DirExists(arg) {
			found, err := utils.ListPhotoFiles(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", arg, err)
			}
			files = append(files, found...)
			continue
		}
		if !utils.FileExists(arg) {
			return nil, fmt.Errorf("%s: %w", filepath.Clean(arg), os.ErrNotExist)
		}
		files = append(files, arg)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no photos found")
	}
	return files, nil
}
