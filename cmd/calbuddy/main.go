package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/common"
)

var (
	configFiles []string

	// Global state, resolved before any subcommand runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "calbuddy",
	Short: "CalBuddy - install calendar collection and change reports",
	Long: `CalBuddy reads the install calendar of the scheduling site, collects
assignee, date, category and address for every job, and reports what moved
since the previous run.

Examples:
  calbuddy run                          # Collect today's installs
  calbuddy run --mode week --baseline-last
  calbuddy diff Jobs0407.txt Jobs0414.txt
  calbuddy schedule --cron "0 6 * * 1-5"
  calbuddy runs --limit 5`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil,
		"Configuration file path (can be specified multiple times, later files override earlier ones)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the configuration (defaults -> file1 -> file2 -> ... -> env)
// and initializes the logger from it
func loadConfig() error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("calbuddy.toml"); err == nil {
			configFiles = append(configFiles, "calbuddy.toml")
		} else if _, err := os.Stat("deployments/local/calbuddy.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/calbuddy.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.InitLogger(config)
	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Msg("Configuration loaded")

	return nil
}

func main() {
	common.InstallCrashHandler(common.LogsDir())
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
