package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nholik/stack-updater/internal/catalog"
	"github.com/nholik/stack-updater/internal/logging"
)

const (
	envAPIKey          = "IBM_CLOUD_API_KEY"
	envConfigPath      = "STACK_UPDATER_CONFIG"
	envIAMURL          = "STACK_UPDATER_IAM_URL"
	envIAMClientID     = "STACK_UPDATER_IAM_CLIENT_ID"
	envIAMClientSecret = "STACK_UPDATER_IAM_CLIENT_SECRET"
	envCatalogURL      = "STACK_UPDATER_CATALOG_URL"
	envTimeout         = "STACK_UPDATER_TIMEOUT"
	envConcurrency     = "STACK_UPDATER_CONCURRENCY"
	envSlackWebhookURL = "STACK_UPDATER_SLACK_WEBHOOK_URL"
	envWebhookURL      = "STACK_UPDATER_WEBHOOK_URL"
	envMetricsFile     = "STACK_UPDATER_METRICS_FILE"
	envLogLevel        = "STACK_UPDATER_LOG_LEVEL"
)

const (
	DefaultIAMURL      = catalog.DefaultIAMURL
	DefaultCatalogURL  = catalog.DefaultCatalogURL
	DefaultTimeout     = 30 * time.Second
	DefaultRetryWindow = 60 * time.Second
	DefaultConcurrency = 1
	DefaultLogLevel    = "info"
)

// Flags carries command-line values. Zero values mean "not set" and fall
// through to the environment, the settings file and then the defaults.
type Flags struct {
	StackPath   string
	APIKey      string
	Debug       bool
	LogLevel    string
	DryRun      bool
	ConfigPath  string
	Timeout     time.Duration
	Concurrency int
	MetricsFile string
}

// Config is the resolved runtime configuration for one run.
type Config struct {
	StackPath       string
	APIKey          string
	Debug           bool
	LogLevel        string
	DryRun          bool
	IAMURL          string
	IAMClientID     string
	IAMClientSecret string
	CatalogURL      string
	Timeout         time.Duration
	RetryWindow     time.Duration
	Concurrency     int
	SlackWebhookURL string
	WebhookURL      string
	WebhookTemplate string
	MetricsFile     string
}

// ConfigError reports configuration that prevents a run from starting.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// Load resolves configuration from flags, environment variables, a local .env
// file and an optional YAML settings file, in that order of precedence.
// Existing environment variables take precedence over values in .env.
func Load(flags Flags) (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, &ConfigError{Err: fmt.Errorf("load .env: %w", err)}
	}

	cfg := Config{
		IAMURL:      DefaultIAMURL,
		CatalogURL:  DefaultCatalogURL,
		Timeout:     DefaultTimeout,
		RetryWindow: DefaultRetryWindow,
		Concurrency: DefaultConcurrency,
		LogLevel:    DefaultLogLevel,
	}

	settingsPath := flags.ConfigPath
	if settingsPath == "" {
		settingsPath, _ = lookupTrimmed(envConfigPath)
	}
	settings, err := LoadSettingsFile(settingsPath)
	if err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	settings.apply(&cfg)

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyFlags(&cfg, flags)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if value, ok := lookupTrimmed(envAPIKey); ok {
		cfg.APIKey = value
	}
	if value, ok := lookupTrimmed(envIAMURL); ok {
		cfg.IAMURL = value
	}
	if value, ok := lookupTrimmed(envIAMClientID); ok {
		cfg.IAMClientID = value
	}
	if value, ok := lookupTrimmed(envIAMClientSecret); ok {
		cfg.IAMClientSecret = value
	}
	if value, ok := lookupTrimmed(envCatalogURL); ok {
		cfg.CatalogURL = value
	}
	if value, ok := lookupTrimmed(envTimeout); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return configErrorf("invalid %s: %w", envTimeout, err)
		}
		cfg.Timeout = timeout
	}
	if value, ok := lookupTrimmed(envConcurrency); ok {
		concurrency, err := strconv.Atoi(value)
		if err != nil {
			return configErrorf("invalid %s: %w", envConcurrency, err)
		}
		cfg.Concurrency = concurrency
	}
	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}
	if value, ok := lookupTrimmed(envMetricsFile); ok {
		cfg.MetricsFile = value
	}
	if value, ok := lookupTrimmed(envLogLevel); ok && value != "" {
		cfg.LogLevel = value
	}
	return nil
}

func applyFlags(cfg *Config, flags Flags) {
	cfg.StackPath = strings.TrimSpace(flags.StackPath)
	cfg.Debug = flags.Debug
	cfg.DryRun = flags.DryRun
	if value := strings.TrimSpace(flags.APIKey); value != "" {
		cfg.APIKey = value
	}
	if flags.Timeout != 0 {
		cfg.Timeout = flags.Timeout
	}
	if flags.Concurrency != 0 {
		cfg.Concurrency = flags.Concurrency
	}
	if flags.MetricsFile != "" {
		cfg.MetricsFile = flags.MetricsFile
	}
	if value := strings.TrimSpace(flags.LogLevel); value != "" {
		cfg.LogLevel = value
	}
}

// Validate checks that cfg can drive a run.
func (c Config) Validate() error {
	if c.StackPath == "" {
		return configErrorf("stack file path is required")
	}
	info, err := os.Stat(c.StackPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return configErrorf("stack file not found: %s", c.StackPath)
		}
		return configErrorf("stat stack file: %w", err)
	}
	if info.IsDir() {
		return configErrorf("stack file %s is a directory", c.StackPath)
	}
	if c.APIKey == "" {
		return configErrorf("no api key provided: use --api-key or set %s", envAPIKey)
	}
	if err := validateURL(c.IAMURL, "iam url"); err != nil {
		return err
	}
	if err := validateURL(c.CatalogURL, "catalog url"); err != nil {
		return err
	}
	if c.SlackWebhookURL != "" {
		if err := validateURL(c.SlackWebhookURL, "slack webhook url"); err != nil {
			return err
		}
	}
	if c.WebhookURL != "" {
		if err := validateURL(c.WebhookURL, "webhook url"); err != nil {
			return err
		}
	}
	if (c.IAMClientID == "") != (c.IAMClientSecret == "") {
		return configErrorf("iam client id and secret must be set together")
	}
	if c.Timeout <= 0 {
		return configErrorf("timeout must be greater than zero")
	}
	if c.RetryWindow < 0 {
		return configErrorf("retry window cannot be negative")
	}
	if c.Concurrency < 1 {
		return configErrorf("concurrency must be at least 1")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return configErrorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return configErrorf("invalid %s: scheme must be http or https", name)
	}
	if parsed.Host == "" {
		return configErrorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
