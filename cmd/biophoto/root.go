package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	biophoto "github.com/menta2k/biometric-photo"
	"github.com/menta2k/biometric-photo/internal/config"
	"github.com/menta2k/biometric-photo/internal/logger"
	"github.com/menta2k/biometric-photo/pkg/detection"
	"github.com/menta2k/biometric-photo/pkg/vision"
)

var (
	configPath string
	debug      bool

	// cfg is loaded once by the root command before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "biophoto",
	Short:   "Validate, crop and compress photos for biometric enrollment",
	Version: biophoto.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	SilenceUsage: true,
}

// newPipeline builds the pipeline, racing the configured model backends against the
// load timeout and falling back to the heuristic detector
func newPipeline(ctx context.Context) *biophoto.Pipeline {
	pcfg := cfg.Pipeline()
	fallback := detection.NewHeuristic(vision.NewWithConfig(pcfg.Detection))
	pcfg.Backend = detection.Select(ctx, cfg.ModelTimeout(), fallback, cfg.Loaders()...)
	return biophoto.NewWithConfig(pcfg)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.GetConfigPath(), "configuration file (JSON)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable development logging")
}
