// Package main provides the rescuecore CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rescuecore/internal/config"
	"rescuecore/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded configuration, available to every subcommand after PersistentPreRunE.
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rescuecore",
	Short: "rescuecore - emergency response decision core",
	Long: `rescuecore turns a free-text disaster report into ranked, explained
response plans.

The pipeline understands the report with an LLM, enriches it with similar
historical cases, reasons over trigger-response rules in a datalog knowledge
graph, decomposes the response into a task sequence, matches and allocates
rescue teams, and scores the resulting plans against hard and soft rules.

Run without arguments to start the interactive console.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Logging.Directory != "" {
			if err := logging.Init(cfg.Logging.Directory, cfg.Logging.Level); err != nil {
				logger.Warn("category logging disabled", zap.Error(err))
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/rescuecore.yaml", "path to the configuration file")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(teamsCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
