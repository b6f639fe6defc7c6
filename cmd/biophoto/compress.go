package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/biometric-photo/internal/utils"
	"github.com/menta2k/biometric-photo/pkg/processing"
)

var (
	compressTargetKB int
	compressOut      string
)

var compressCmd = &cobra.Command{
	Use:   "compress FILE",
	Short: "Compress a photo under a byte budget without cropping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args[0])
	},
}

func init() {
	compressCmd.Flags().IntVar(&compressTargetKB, "target-kb", processing.EmployeePhotoKB, "size budget in kilobytes")
	compressCmd.Flags().StringVar(&compressOut, "out", "", "output file (default: <output_dir>/<name><suffix>.<format>)")
	rootCmd.AddCommand(compressCmd)
}

func runCompress(cmd *cobra.Command, file string) error {
	if compressTargetKB <= 0 {
		return fmt.Errorf("--target-kb must be positive, got %d", compressTargetKB)
	}

	upload, err := utils.ReadUpload(file)
	if err != nil {
		return err
	}

	pipeline := newPipeline(cmd.Context())
	buf, err := pipeline.Decode(upload.Data, upload.MIMEType)
	if err != nil {
		return err
	}

	out, err := pipeline.Compress(buf, compressTargetKB)
	if err != nil {
		return err
	}

	path := compressOut
	if path == "" {
		if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		path = utils.OutputFilename(file, cfg.Output.OutputDir, cfg.Output.Suffix, cfg.Output.Format)
	}
	if err := processing.NewProcessor().SaveEncoded(out, path); err != nil {
		return err
	}

	status := "within budget"
	if out.OverBudget {
		status = "over budget at the quality floor"
	}
	fmt.Printf("%s (%s, %s)\n", path, utils.FormatFileSize(int64(out.Size)), status)
	return nil
}
