package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tepstack/tep-sentinel/internal/config"
	"github.com/tepstack/tep-sentinel/internal/utils"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Fault detection and diagnosis for chemical process telemetry",
	Long: "Sentinel trains a two-stage classifier cascade on labelled reactor\n" +
		"simulation runs and serves streaming fault detection over HTTP.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "", "Path to configuration file")
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// loadConfig resolves configuration and builds the process logger. Every
// subcommand starts here.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	return cfg, logger, nil
}
