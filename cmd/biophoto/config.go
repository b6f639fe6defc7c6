package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/biometric-photo/internal/config"
	"github.com/menta2k/biometric-photo/internal/utils"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to --config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if utils.FileExists(configPath) && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := config.Default().SaveToFile(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
