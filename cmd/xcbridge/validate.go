package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aptove/xcbridge/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an xcbridge configuration file",
	Long: `Validate the syntax and semantics of an xcbridge configuration file.

This command loads and validates the configuration file without starting
the server. It checks for:
  - Valid YAML syntax
  - Valid server address and port
  - Valid history store driver configuration
  - Valid retention settings
  - Non-empty path allowlist entries

Example:
  xcbridge validate --config ./xcbridge.yaml`,
	RunE: validateConfig,
}

func init() {
	validateCmd.Flags().StringP("config", "c", "xcbridge.yaml", "Path to configuration file")
	validateCmd.MarkFlagRequired("config")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	logger.Info("validating configuration", "path", configPath)

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Error("configuration file not found", "path", configPath)
		return fmt.Errorf("configuration file not found: %s", configPath)
	}

	// Load and validate configuration (LoadConfig validates automatically)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("configuration validation failed", "error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	logger.Info("configuration is valid",
		"path", configPath,
		"addr", cfg.Addr(),
		"store_driver", cfg.Store.Driver,
		"max_completed", cfg.Retention.MaxCompleted,
		"allowed_paths", len(cfg.Security.AllowedPaths))

	fmt.Fprintf(os.Stdout, "\n✓ Configuration is valid: %s\n", configPath)
	fmt.Fprintf(os.Stdout, "  Listen: %s\n", cfg.Addr())
	fmt.Fprintf(os.Stdout, "  Tool: %s (default configuration %s)\n",
		cfg.Xcodebuild.Tool, cfg.Xcodebuild.DefaultConfiguration)
	fmt.Fprintf(os.Stdout, "  Store: %s (%s)\n", cfg.Store.Driver, cfg.Store.Path)
	if len(cfg.Security.AllowedPaths) == 0 {
		fmt.Fprintf(os.Stdout, "  Allowed paths: unrestricted\n")
	} else {
		fmt.Fprintf(os.Stdout, "  Allowed paths: %d\n", len(cfg.Security.AllowedPaths))
	}
	if cfg.Server.APIKey != "" {
		fmt.Fprintf(os.Stdout, "  API key: required\n")
	}

	return nil
}
