// Package config loads the harness configuration from CLI flags and environment
// variables, validates it, and derives the CI-dependent defaults (headless mode,
// retries, worker count, tracing).
//
// Timeout variables (TEST_TIMEOUT, ACTION_TIMEOUT, NAVIGATION_TIMEOUT,
// PROBE_TIMEOUT) are plain integers in milliseconds.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/logutil"
)

const (
	defaultBaseURL       = "https://127.0.0.1/"
	defaultArtifactsArea = "auto"
	defaultBrowsers      = "chromium,firefox"
)

// Config holds all harness configuration.
type Config struct {
	// Target
	BaseURL string

	// Runner
	CI          bool
	Headless    bool
	Retries     int // framework-level retries per unit (1 in CI, 0 locally)
	Workers     int // concurrent units; 0 means unbounded
	RecordVideo bool
	VideoDir    string
	Only        string // run only units whose title contains this substring

	// Browsers are the engines the suite runs under, once each, in order.
	Browsers []browser.Engine

	// TraceOnRetry records a trace of each unit's first retry (on in CI).
	TraceOnRetry bool
	TraceDir     string

	// Timeouts
	TestTimeout       time.Duration
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	ProbeTimeout      time.Duration

	// Failure handling
	ScreenshotDir   string
	FailureCooldown time.Duration

	// Navigation throttle; 0 disables it
	NavigationRPS float64

	IgnoreHTTPSErrors bool

	// Artifact archive (S3-compatible). Disabled when ArtifactBucket is empty.
	ArtifactBucket     string
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// Flags holds CLI flag values that override the environment.
type Flags struct {
	BaseURL string
	Headed  bool
	Only    string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags registers and parses --base-url, --headed and --only.
func ParseFlags() Flags {
	var f Flags
	flag.StringVar(&f.BaseURL, "base-url", "", "Target root URL (overrides BASE_URL env var)")
	flag.BoolVar(&f.Headed, "headed", false, "Show the browser window (ignored when CI is set)")
	flag.StringVar(&f.Only, "only", "", "Run only checks whose title contains this substring")
	flag.Parse()
	return f
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(flags Flags) (*Config, error) {
	cfg := &Config{}

	cfg.BaseURL = getEnvOrDefault("BASE_URL", defaultBaseURL)
	if flags.BaseURL != "" {
		cfg.BaseURL = strings.TrimSpace(flags.BaseURL)
	}
	cfg.Only = strings.TrimSpace(flags.Only)

	// Any non-empty CI value counts, matching how CI providers set it.
	cfg.CI = strings.TrimSpace(os.Getenv("CI")) != ""
	cfg.Headless = os.Getenv("HEADLESS") != "false" && !flags.Headed
	if cfg.CI {
		cfg.Headless = true
		cfg.Retries = 1
		cfg.Workers = 1
	}

	cfg.RecordVideo = os.Getenv("RECORD_VIDEO") == "true"
	cfg.VideoDir = getEnvOrDefault("VIDEO_DIR", "test-results/videos")

	var browserErrs []string
	cfg.Browsers, browserErrs = parseBrowsers(getEnvOrDefault("BROWSERS", defaultBrowsers))

	switch trace := strings.TrimSpace(os.Getenv("TRACE")); trace {
	case "":
		cfg.TraceOnRetry = cfg.CI
	case "on-first-retry":
		cfg.TraceOnRetry = true
	case "off":
		cfg.TraceOnRetry = false
	default:
		browserErrs = append(browserErrs, fmt.Sprintf("TRACE must be on-first-retry or off, got %q", trace))
	}
	cfg.TraceDir = getEnvOrDefault("TRACE_DIR", "test-results/traces")

	cfg.TestTimeout = parseMillisOrDefault("TEST_TIMEOUT", 120*time.Second)
	cfg.ActionTimeout = parseMillisOrDefault("ACTION_TIMEOUT", 5*time.Second)
	cfg.NavigationTimeout = parseMillisOrDefault("NAVIGATION_TIMEOUT", 10*time.Second)
	cfg.ProbeTimeout = parseMillisOrDefault("PROBE_TIMEOUT", 3*time.Second)

	cfg.ScreenshotDir = getEnvOrDefault("SCREENSHOT_DIR", "./screenshots")
	cfg.FailureCooldown = parseDurationOrDefault("FAILURE_COOLDOWN", 61*time.Second)
	cfg.NavigationRPS = parseFloat64OrDefault("NAVIGATION_RPS", 0)
	cfg.IgnoreHTTPSErrors = os.Getenv("IGNORE_HTTPS_ERRORS") != "false"

	cfg.ArtifactBucket = strings.TrimSpace(os.Getenv("ARTIFACT_BUCKET"))
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultArtifactsArea)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	if err := cfg.Validate(); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			validationErr.Errors = append(browserErrs, validationErr.Errors...)
			return nil, validationErr
		}
		return nil, err
	}
	if len(browserErrs) > 0 {
		return nil, &ValidationError{Errors: browserErrs}
	}
	return cfg, nil
}

// parseBrowsers splits a comma-separated engine list, dropping duplicates.
func parseBrowsers(list string) ([]browser.Engine, []string) {
	var (
		engines []browser.Engine
		errs    []string
		seen    = map[browser.Engine]bool{}
	)
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		engine, err := browser.ParseEngine(name)
		if err != nil {
			errs = append(errs, "BROWSERS: "+err.Error())
			continue
		}
		if !seen[engine] {
			seen[engine] = true
			engines = append(engines, engine)
		}
	}
	return engines, errs
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	parsed, err := url.Parse(c.BaseURL)
	switch {
	case c.BaseURL == "":
		errs = append(errs, "BASE_URL is required")
	case err != nil:
		errs = append(errs, fmt.Sprintf("BASE_URL is not a valid URL: %v", err))
	case parsed.Scheme != "http" && parsed.Scheme != "https":
		errs = append(errs, "BASE_URL must use http or https")
	case parsed.Host == "":
		errs = append(errs, "BASE_URL must include a host")
	}

	if c.TestTimeout <= 0 {
		errs = append(errs, "TEST_TIMEOUT must be positive")
	}
	if c.ActionTimeout <= 0 {
		errs = append(errs, "ACTION_TIMEOUT must be positive")
	}
	if c.NavigationTimeout <= 0 {
		errs = append(errs, "NAVIGATION_TIMEOUT must be positive")
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, "PROBE_TIMEOUT must be positive")
	}
	if c.FailureCooldown < 0 {
		errs = append(errs, "FAILURE_COOLDOWN must not be negative")
	}
	if c.NavigationRPS < 0 {
		errs = append(errs, "NAVIGATION_RPS must not be negative")
	}
	if c.ScreenshotDir == "" {
		errs = append(errs, "SCREENSHOT_DIR must not be empty")
	}
	if len(c.Browsers) == 0 {
		errs = append(errs, "BROWSERS must name at least one engine")
	}

	if c.ArtifactBucket != "" {
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when ARTIFACT_BUCKET is set")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when ARTIFACT_BUCKET is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ArchiveEnabled reports whether failure screenshots are also uploaded to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.ArtifactBucket != ""
}

// SummaryFields returns redacted settings for the startup log line.
func (c *Config) SummaryFields() string {
	return logutil.FormatSettingsForLog(map[string]string{
		"BASE_URL":              logutil.RedactURL(c.BaseURL),
		"CI":                    strconv.FormatBool(c.CI),
		"HEADLESS":              strconv.FormatBool(c.Headless),
		"RETRIES":               strconv.Itoa(c.Retries),
		"BROWSERS":              joinEngines(c.Browsers),
		"TRACE_ON_RETRY":        strconv.FormatBool(c.TraceOnRetry),
		"WORKERS":               strconv.Itoa(c.Workers),
		"ACTION_TIMEOUT":        c.ActionTimeout.String(),
		"NAVIGATION_TIMEOUT":    c.NavigationTimeout.String(),
		"TEST_TIMEOUT":          c.TestTimeout.String(),
		"SCREENSHOT_DIR":        c.ScreenshotDir,
		"FAILURE_COOLDOWN":      c.FailureCooldown.String(),
		"ARTIFACT_BUCKET":       c.ArtifactBucket,
		"AWS_SECRET_ACCESS_KEY": c.AWSSecretAccessKey,
	})
}

func joinEngines(engines []browser.Engine) string {
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = string(e)
	}
	return strings.Join(names, ",")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseMillisOrDefault(key string, defaultValue time.Duration) time.Duration {
	ms := parseIntOrDefault(key, -1)
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
