package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Site        SiteConfig        `toml:"site"`
	Credentials CredentialsConfig `toml:"credentials"`
	Browser     BrowserConfig     `toml:"browser"`
	Collector   CollectorConfig   `toml:"collector"`
	Pacing      PacingConfig      `toml:"pacing"`
	Storage     StorageConfig     `toml:"storage"`
	Output      OutputConfig      `toml:"output"`
	Email       EmailConfig       `toml:"email"`
	Progress    ProgressConfig    `toml:"progress"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Logging     LoggingConfig     `toml:"logging"`
}

// SiteConfig describes the remote scheduling application
type SiteConfig struct {
	BaseURL       string `toml:"base_url" validate:"required,url"`
	LoginPath     string `toml:"login_path" validate:"required"`
	CalendarPath  string `toml:"calendar_path" validate:"required"`
	CustomerPath  string `toml:"customer_path" validate:"required,contains={id}"` // {id} is replaced with the customer id
	InstallMarker string `toml:"install_marker"`                                   // calendar event text that marks an install
}

type CredentialsConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// BrowserConfig selects and tunes the session back end
type BrowserConfig struct {
	Backend        string `toml:"backend" validate:"oneof=chromedp http"`
	Headless       bool   `toml:"headless"`
	UserAgent      string `toml:"user_agent"`
	PageTimeout    string `toml:"page_timeout"`    // e.g. "30s" - navigation timeout
	StartupTimeout string `toml:"startup_timeout"` // e.g. "20s" - browser launch timeout
	PollInterval   string `toml:"poll_interval"`   // e.g. "250ms" - WaitFor polling for the http back end
	SettleDelay    string `toml:"settle_delay"`    // e.g. "1s" - pause after calendar view changes
}

// CollectorConfig tunes the batch scheduler and per-job state machine
type CollectorConfig struct {
	Workers             int      `toml:"workers" validate:"min=1,max=64"`
	TestMode            bool     `toml:"test_mode"`
	TestLimit           int      `toml:"test_limit" validate:"min=1"`
	RecordAttempts      int      `toml:"record_attempts" validate:"min=1"`
	RecordTimeout       string   `toml:"record_timeout"` // wait for the record frame
	LookupAttempts      int      `toml:"lookup_attempts" validate:"min=1"`
	LookupDelay         string   `toml:"lookup_delay"`           // delay between work-order lookup attempts
	LookupTimeout       string   `toml:"lookup_timeout"`         // overall bound on the work-order lookup
	AssigneeTimeout     string   `toml:"assignee_timeout"`       // wait for the contractor list
	DateTimeout         string   `toml:"date_timeout"`           // poll bound for the scheduled-event list
	WorkOrderKeywords   []string `toml:"work_order_keywords"`    // all must appear in the work-order type
	ActiveStatus        string   `toml:"active_status"`          // lifecycle status that marks an open order
	TransientStatusCode []int    `toml:"transient_status_codes"` // responses reported as transient signals
}

// PacingConfig enables optional per-host request pacing. Zero disables it.
type PacingConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"min=0"`
	Burst             int     `toml:"burst" validate:"min=0"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	KeepRuns       int    `toml:"keep_runs"`        // Number of runs retained, 0 keeps all
}

type OutputConfig struct {
	Dir        string `toml:"dir"`
	PDF        bool   `toml:"pdf"`
	SaveRuns   bool   `toml:"save_runs"`
	ChangesDir string `toml:"changes_dir"` // defaults to Dir when empty
}

type EmailConfig struct {
	Enabled    bool     `toml:"enabled"`
	SMTPHost   string   `toml:"smtp_host" validate:"required_if=Enabled true"`
	SMTPPort   int      `toml:"smtp_port"`
	Username   string   `toml:"username"`
	Password   string   `toml:"password"`
	From       string   `toml:"from"`
	Recipients []string `toml:"recipients" validate:"required_if=Enabled true"`
	StartTLS   bool     `toml:"starttls"`
}

// ProgressConfig controls live progress fan-out
type ProgressConfig struct {
	ListenAddr   string  `toml:"listen_addr"` // empty disables the websocket endpoint
	MaxPerSecond float64 `toml:"max_per_second" validate:"min=0"`
	Bar          bool    `toml:"bar"`
}

type ScheduleConfig struct {
	Cron string `toml:"cron"` // standard 5-field cron expression
	Mode string `toml:"mode" validate:"omitempty,oneof=day week"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:       "http://inside.sockettelecom.com/",
			LoginPath:     "system/login.php",
			CalendarPath:  "events/calendar.php",
			CustomerPath:  "menu.php?coid=1&tabid=7&parentid=9&customerid={id}",
			InstallMarker: "Residential Fiber Install",
		},
		Browser: BrowserConfig{
			Backend:        "chromedp",
			Headless:       true,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			PageTimeout:    "30s",
			StartupTimeout: "20s",
			PollInterval:   "250ms",
			SettleDelay:    "1s",
		},
		Collector: CollectorConfig{
			Workers:             4,
			TestMode:            false,
			TestLimit:           10,
			RecordAttempts:      2,
			RecordTimeout:       "5s",
			LookupAttempts:      3,
			LookupDelay:         "1s",
			LookupTimeout:       "5s",
			AssigneeTimeout:     "15s",
			DateTimeout:         "8s",
			WorkOrderKeywords:   []string{"Fiber", "Install"},
			ActiveStatus:        "In Process",
			TransientStatusCode: []int{429, 403, 503},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:     "./data/calbuddy",
				KeepRuns: 50,
			},
		},
		Output: OutputConfig{
			Dir:      "./Outputs",
			PDF:      false,
			SaveRuns: true,
		},
		Email: EmailConfig{
			SMTPPort: 587,
			StartTLS: true,
		},
		Progress: ProgressConfig{
			MaxPerSecond: 4,
		},
		Schedule: ScheduleConfig{
			Mode: "day",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied by the caller afterwards.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if baseURL := os.Getenv("CALBUDDY_BASE_URL"); baseURL != "" {
		config.Site.BaseURL = baseURL
	}

	// Credentials
	if username := os.Getenv("CALBUDDY_USERNAME"); username != "" {
		config.Credentials.Username = username
	}
	if password := os.Getenv("CALBUDDY_PASSWORD"); password != "" {
		config.Credentials.Password = password
	}

	// Browser
	if backend := os.Getenv("CALBUDDY_BROWSER_BACKEND"); backend != "" {
		config.Browser.Backend = backend
	}
	if headless := os.Getenv("CALBUDDY_BROWSER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}

	// Collector
	if workers := os.Getenv("CALBUDDY_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			config.Collector.Workers = w
		}
	}
	if testMode := os.Getenv("CALBUDDY_TEST_MODE"); testMode != "" {
		if b, err := strconv.ParseBool(testMode); err == nil {
			config.Collector.TestMode = b
		}
	}
	if testLimit := os.Getenv("CALBUDDY_TEST_LIMIT"); testLimit != "" {
		if l, err := strconv.Atoi(testLimit); err == nil {
			config.Collector.TestLimit = l
		}
	}

	// Storage
	if badgerPath := os.Getenv("CALBUDDY_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if outputDir := os.Getenv("CALBUDDY_OUTPUT_DIR"); outputDir != "" {
		config.Output.Dir = outputDir
	}

	// Email
	if host := os.Getenv("CALBUDDY_SMTP_HOST"); host != "" {
		config.Email.SMTPHost = host
	}
	if port := os.Getenv("CALBUDDY_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Email.SMTPPort = p
		}
	}
	if user := os.Getenv("CALBUDDY_EMAIL_USER"); user != "" {
		config.Email.Username = user
	}
	if pass := os.Getenv("CALBUDDY_EMAIL_PASS"); pass != "" {
		config.Email.Password = pass
	}
	if recipients := os.Getenv("CALBUDDY_EMAIL_RECIPIENTS"); recipients != "" {
		config.Email.Recipients = splitList(recipients)
	}

	// Logging
	if level := os.Getenv("CALBUDDY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CALBUDDY_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks struct constraints and duration fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"browser.page_timeout":       c.Browser.PageTimeout,
		"browser.startup_timeout":    c.Browser.StartupTimeout,
		"browser.poll_interval":      c.Browser.PollInterval,
		"browser.settle_delay":       c.Browser.SettleDelay,
		"collector.record_timeout":   c.Collector.RecordTimeout,
		"collector.lookup_delay":     c.Collector.LookupDelay,
		"collector.lookup_timeout":   c.Collector.LookupTimeout,
		"collector.assignee_timeout": c.Collector.AssigneeTimeout,
		"collector.date_timeout":     c.Collector.DateTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}

	return nil
}

// ParseDurationOr parses value, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// SiteURL joins a path onto the configured base URL
func (s SiteConfig) SiteURL(path string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// CustomerURL returns the record URL for a customer id
func (s SiteConfig) CustomerURL(id string) string {
	return s.SiteURL(strings.ReplaceAll(s.CustomerPath, "{id}", id))
}
