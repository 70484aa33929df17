package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the YAML settings file:
//
//	iam_url: https://iam.cloud.ibm.com
//	catalog_url: https://cm.globalcatalog.cloud.ibm.com/api/v1-beta
//	timeout: 30s
//	retry_window: 1m
//	concurrency: 4
//	log_level: warn
//	slack_webhook_url: https://hooks.slack.com/services/...
type Settings struct {
	IAMURL          string         `yaml:"iam_url,omitempty"`
	IAMClientID     string         `yaml:"iam_client_id,omitempty"`
	IAMClientSecret string         `yaml:"iam_client_secret,omitempty"`
	CatalogURL      string         `yaml:"catalog_url,omitempty"`
	Timeout         time.Duration  `yaml:"timeout,omitempty"`
	RetryWindow     *time.Duration `yaml:"retry_window,omitempty"`
	Concurrency     int            `yaml:"concurrency,omitempty"`
	SlackWebhookURL string         `yaml:"slack_webhook_url,omitempty"`
	WebhookURL      string         `yaml:"webhook_url,omitempty"`
	WebhookTemplate string         `yaml:"webhook_template,omitempty"`
	MetricsFile     string         `yaml:"metrics_file,omitempty"`
	LogLevel        string         `yaml:"log_level,omitempty"`
}

// LoadSettingsFile parses a YAML settings file from the given path.
// Returns empty settings if path is empty.
func LoadSettingsFile(path string) (Settings, error) {
	if path == "" {
		return Settings{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	var s Settings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parse settings file: %w", err)
	}

	if err := s.validate(); err != nil {
		return Settings{}, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if s.RetryWindow != nil && *s.RetryWindow < 0 {
		return fmt.Errorf("retry_window cannot be negative")
	}
	if s.Concurrency < 0 {
		return fmt.Errorf("concurrency cannot be negative")
	}
	return nil
}

func (s Settings) apply(cfg *Config) {
	if s.IAMURL != "" {
		cfg.IAMURL = s.IAMURL
	}
	if s.IAMClientID != "" {
		cfg.IAMClientID = s.IAMClientID
	}
	if s.IAMClientSecret != "" {
		cfg.IAMClientSecret = s.IAMClientSecret
	}
	if s.CatalogURL != "" {
		cfg.CatalogURL = s.CatalogURL
	}
	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout
	}
	if s.RetryWindow != nil {
		cfg.RetryWindow = *s.RetryWindow
	}
	if s.Concurrency > 0 {
		cfg.Concurrency = s.Concurrency
	}
	if s.SlackWebhookURL != "" {
		cfg.SlackWebhookURL = s.SlackWebhookURL
	}
	if s.WebhookURL != "" {
		cfg.WebhookURL = s.WebhookURL
	}
	if s.WebhookTemplate != "" {
		cfg.WebhookTemplate = s.WebhookTemplate
	}
	if s.MetricsFile != "" {
		cfg.MetricsFile = s.MetricsFile
	}
	if s.LogLevel != "" {
		cfg.LogLevel = s.LogLevel
	}
}
