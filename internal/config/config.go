// Package config handles XDG configuration directory, file paths and settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// AppName is the application directory name.
	AppName = "offtask"

	// OAuthClientFile is the OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored OAuth token filename.
	TokenFile = "token.json"

	// SettingsFile is the optional settings file name (without extension).
	SettingsFile = "config"

	// StoreFile is the default local store filename.
	StoreFile = "tasks.db"

	// EnvPrefix prefixes environment overrides, e.g. OFFTASK_BACKEND.
	EnvPrefix = "OFFTASK"
)

// Backends.
const (
	BackendRecords     = "records"
	BackendGoogleTasks = "googletasks"
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// Offline skips the remote store entirely; every mutation is queued.
	Offline bool

	// Settings is filled by Load.
	Settings Settings
}

// Settings are read from config.yaml in Dir and OFFTASK_* environment variables.
type Settings struct {
	Backend     string        `mapstructure:"backend" validate:"oneof=records googletasks"`
	StorePath   string        `mapstructure:"store_path"`
	Namespace   string        `mapstructure:"namespace" validate:"min=1"`
	APITimeout  time.Duration `mapstructure:"api_timeout" validate:"nonzero_duration"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=0"`

	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" validate:"nonzero_duration"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" validate:"nonzero_duration"`

	Records RecordsSettings `mapstructure:"records" validate:"-"`
	Google  GoogleSettings  `mapstructure:"google" validate:"-"`
}

// RecordsSettings configure the records REST backend.
type RecordsSettings struct {
	BaseURL  string `mapstructure:"base_url" validate:"required,url"`
	AppID    string `mapstructure:"app_id" validate:"required"`
	APIToken string `mapstructure:"api_token" validate:"required"`
	Field    string `mapstructure:"field" validate:"required"`
}

// GoogleSettings configure the Google Tasks backend.
type GoogleSettings struct {
	ListID string `mapstructure:"list_id" validate:"required"`
}

// New creates a new Config with the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/offtask or $HOME/.config/offtask.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return &Config{Dir: dir}, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Load reads settings from config.yaml in Dir (optional) and the environment,
// applies defaults and validates the result.
func (c *Config) Load() error {
	v := viper.New()
	v.SetConfigName(SettingsFile)
	v.SetConfigType("yaml")
	v.AddConfigPath(c.Dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", BackendRecords)
	v.SetDefault("store_path", "")
	v.SetDefault("namespace", "offlineTaskDB")
	v.SetDefault("api_timeout", 10*time.Second)
	v.SetDefault("max_attempts", 25)
	v.SetDefault("probe_url", "")
	v.SetDefault("probe_interval", 5*time.Second)
	v.SetDefault("probe_timeout", 3*time.Second)
	v.SetDefault("records.base_url", "")
	v.SetDefault("records.app_id", "")
	v.SetDefault("records.api_token", "")
	v.SetDefault("records.field", "task_text")
	v.SetDefault("google.list_id", "@default")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read %s: %w", c.SettingsPath(), err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if s.StorePath == "" {
		s.StorePath = filepath.Join(c.Dir, StoreFile)
	}
	if s.ProbeURL == "" {
		s.ProbeURL = s.defaultProbeURL()
	}
	if err := s.Validate(); err != nil {
		return err
	}
	c.Settings = s
	return nil
}

// Validate checks the settings, including the section of the selected backend.
func (s *Settings) Validate() error {
	v := validator.New()
	_ = v.RegisterValidation("nonzero_duration", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(time.Duration)
		return ok && d > 0
	})
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	switch s.Backend {
	case BackendRecords:
		if err := v.Struct(&s.Records); err != nil {
			return fmt.Errorf("invalid records settings: %w", err)
		}
	case BackendGoogleTasks:
		if err := v.Struct(&s.Google); err != nil {
			return fmt.Errorf("invalid google settings: %w", err)
		}
	}
	return nil
}

func (s *Settings) defaultProbeURL() string {
	if s.Backend == BackendGoogleTasks {
		return "https://tasks.googleapis.com/"
	}
	return s.Records.BaseURL
}

// SettingsPath returns the path to the settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile+".yaml")
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}
