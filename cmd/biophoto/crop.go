package main

import (
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/menta2k/biometric-photo/internal/logger"
	"github.com/menta2k/biometric-photo/internal/utils"
	"github.com/menta2k/biometric-photo/pkg/processing"
)

var (
	cropZoom    float64
	cropPanX    float64
	cropPanY    float64
	cropOut     string
	cropPreview string
)

var cropCmd = &cobra.Command{
	Use:   "crop FILE",
	Short: "Crop a photo to the square biometric frame and compress it",
	Long: `Crop opens an editing session on FILE, applies the zoom and pan given as flags
exactly as the interactive editor would, then commits the window and compresses the
result under the configured budget.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrop(cmd, args[0])
	},
}

func init() {
	cropCmd.Flags().Float64Var(&cropZoom, "zoom", 100, "zoom slider position (0-200, 100 is scale 1; omit to keep the initial fit)")
	cropCmd.Flags().Float64Var(&cropPanX, "pan-x", 0, "horizontal pan in canvas pixels")
	cropCmd.Flags().Float64Var(&cropPanY, "pan-y", 0, "vertical pan in canvas pixels")
	cropCmd.Flags().StringVar(&cropOut, "out", "", "output file (default: <output_dir>/<name><suffix>.<format>)")
	cropCmd.Flags().StringVar(&cropPreview, "preview", "", "also save the editing canvas to this PNG file")
	rootCmd.AddCommand(cropCmd)
}

func runCrop(cmd *cobra.Command, file string) error {
	upload, err := utils.ReadUpload(file)
	if err != nil {
		return err
	}

	pipeline := newPipeline(cmd.Context())
	id, err := pipeline.BeginCrop(upload.Data, upload.MIMEType)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("zoom") {
		if err := pipeline.SetZoomPercent(id, cropZoom); err != nil {
			return err
		}
	}
	if err := pipeline.Pan(id, cropPanX, cropPanY); err != nil {
		return err
	}

	if cropPreview != "" {
		preview, err := pipeline.RenderPreview(id)
		if err != nil {
			return err
		}
		if err := imaging.Save(preview, cropPreview); err != nil {
			return fmt.Errorf("failed to save preview: %w", err)
		}
	}

	out, err := pipeline.CommitCrop(id)
	if err != nil {
		_ = pipeline.CancelCrop(id)
		return err
	}

	path := cropOut
	if path == "" {
		if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		path = utils.OutputFilename(file, cfg.Output.OutputDir, cfg.Output.Suffix, cfg.Output.Format)
	}
	if err := processing.NewProcessor().SaveEncoded(out, path); err != nil {
		return err
	}

	logger.Info("Crop saved",
		logger.LoggerOptions{Key: "path", Data: path},
		logger.LoggerOptions{Key: "size", Data: utils.FormatFileSize(int64(out.Size))},
		logger.LoggerOptions{Key: "over_budget", Data: out.OverBudget},
	)
	fmt.Printf("%s (%s, %d attempts)\n", path, utils.FormatFileSize(int64(out.Size)), out.Attempts)
	return nil
}
