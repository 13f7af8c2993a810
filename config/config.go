// Package config loads application configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	MoodleRestURL  string  `yaml:"moodle_rest_url"`
	MoodleToken    string  `yaml:"moodle_ws_token"`
	MailProvider   string  `yaml:"mail_provider"` // smtp, gmail, brevo, or mock
	SMTPHost       string  `yaml:"smtp_host"`
	SMTPPort       string  `yaml:"smtp_port"`
	SMTPUsername   string  `yaml:"smtp_username"`
	SMTPPassword   string  `yaml:"smtp_password"`
	BrevoAPIKey    string  `yaml:"brevo_api_key"`
	FromAddress    string  `yaml:"from_address"`
	FromName       string  `yaml:"from_name"`
	Subject        string  `yaml:"subject"`
	DigestTime     string  `yaml:"digest_time"` // HH:MM for daemon mode, empty for run-once
	Timezone       string  `yaml:"timezone"`
	LogLevel       string  `yaml:"log_level"`
	ExcludeUserIDs []int64 `yaml:"exclude_user_ids"`
	WindowHours    int     `yaml:"window_hours"`
	MessageLimit   int     `yaml:"message_limit"`
}

// digestTimeRegex validates HH:MM format with proper ranges.
var digestTimeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Path returns the config file path from environment or default.
func Path() string {
	if path := os.Getenv("MOODLE_NOTIFIER_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

func applyDefaults(cfg *Config) {
	if cfg.MailProvider == "" {
		cfg.MailProvider = "mock"
	}
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = "587"
	}
	if cfg.FromName == "" {
		cfg.FromName = "Learning System"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.WindowHours == 0 {
		cfg.WindowHours = 24
	}
	if cfg.MessageLimit == 0 {
		cfg.MessageLimit = 10
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if token := os.Getenv("MOODLE_WS_TOKEN"); token != "" {
		cfg.MoodleToken = token
	}
	if password := os.Getenv("SMTP_PASSWORD"); password != "" {
		cfg.SMTPPassword = password
	}
	if key := os.Getenv("BREVO_API_KEY"); key != "" {
		cfg.BrevoAPIKey = key
	}
}

func validate(cfg *Config) error {
	if cfg.MoodleRestURL == "" {
		return fmt.Errorf("moodle_rest_url is required")
	}
	if cfg.MoodleToken == "" {
		return fmt.Errorf("moodle_ws_token is required")
	}

	switch cfg.MailProvider {
	case "smtp":
		if cfg.SMTPHost == "" {
			return fmt.Errorf("smtp_host is required for the smtp provider")
		}
		if cfg.FromAddress == "" {
			return fmt.Errorf("from_address is required for the smtp provider")
		}
	case "brevo":
		if cfg.BrevoAPIKey == "" {
			return fmt.Errorf("brevo_api_key is required for the brevo provider")
		}
		if cfg.FromAddress == "" {
			return fmt.Errorf("from_address is required for the brevo provider")
		}
	case "gmail", "mock":
		// No extra settings required.
	default:
		return fmt.Errorf("mail_provider must be one of smtp, gmail, brevo, mock; got %q", cfg.MailProvider)
	}

	if cfg.DigestTime != "" && !digestTimeRegex.MatchString(cfg.DigestTime) {
		return fmt.Errorf("digest_time must be in HH:MM format (00:00-23:59), got %q", cfg.DigestTime)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.WindowHours < 0 {
		return fmt.Errorf("window_hours must be positive, got %d", cfg.WindowHours)
	}

	return nil
}
