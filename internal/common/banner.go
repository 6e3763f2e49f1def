package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner
func PrintBanner(version string) {
	banner.PrintSimple("CalBuddy", "Version "+version)
}

// LogStartup records the effective run settings once the banner is shown
func LogStartup(config *Config, logger arbor.ILogger) {
	logger.Info().
		Str("version", FullVersion()).
		Str("backend", config.Browser.Backend).
		Int("workers", config.Collector.Workers).
		Bool("test_mode", config.Collector.TestMode).
		Str("output_dir", config.Output.Dir).
		Msg("CalBuddy starting")
}
