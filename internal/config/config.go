// Package config loads the davcal YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	configDir  = "davcal"
	configFile = "config.yaml"

	EnvServerURL = "DAVCAL_SERVER_URL"
	EnvUsername  = "DAVCAL_USERNAME"
	EnvLogLevel  = "DAVCAL_LOG_LEVEL"
)

// AttachmentPolicy restricts which local files may be uploaded.
type AttachmentPolicy struct {
	// AllowedExtensions are compared case-insensitively, with the leading dot.
	AllowedExtensions []string `yaml:"allowed_extensions" validate:"dive,startswith=."`
	// Root, when set, is the only directory tree files may come from.
	Root string `yaml:"root,omitempty"`
	// SensitivePatterns are filepath.Match patterns checked against the
	// resolved path and each of its elements.
	SensitivePatterns []string `yaml:"sensitive_patterns"`
	MaxBytes          int64    `yaml:"max_bytes" validate:"gte=0"`
}

// Config is the top-level configuration.
type Config struct {
	ServerURL string        `yaml:"server_url" validate:"required,url"`
	Username  string        `yaml:"username"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	LogLevel  string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// ParallelQueries bounds concurrent per-calendar REPORTs; 1 is sequential.
	ParallelQueries int `yaml:"parallel_queries" validate:"gte=1,lte=16"`
	// FreeBusyFallbackStatuses are the free-busy-query statuses that switch
	// to deriving busy time from an event listing.
	FreeBusyFallbackStatuses []int `yaml:"freebusy_fallback_statuses" validate:"dive,gte=400,lte=599"`

	Attachments    AttachmentPolicy `yaml:"attachments"`
	KeyringService string           `yaml:"keyring_service" validate:"required"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:                "https://caldav.icloud.com",
		Timeout:                  30 * time.Second,
		LogLevel:                 "warn",
		ParallelQueries:          1,
		FreeBusyFallbackStatuses: []int{400, 403},
		Attachments: AttachmentPolicy{
			AllowedExtensions: []string{
				".pdf", ".txt", ".md", ".png", ".jpg", ".jpeg", ".gif", ".heic",
				".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".csv", ".ics", ".zip",
			},
			SensitivePatterns: []string{".ssh", ".gnupg", ".aws", "*.pem", "*.key", "id_rsa*", "id_ed25519*", ".env", "*.keychain*"},
			MaxBytes:          20 << 20,
		},
		KeyringService: "davcal",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/davcal/config.yaml (or the OS equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, configDir, configFile), nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvServerURL); v != "" {
		c.ServerURL = v
	}
	if v := getenv(EnvUsername); v != "" {
		c.Username = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
