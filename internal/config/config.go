// Package config handles configuration loading for nportp.
// It supports YAML config files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/seenimoa/nportp/internal/output"
)

// Config represents the complete application configuration.
type Config struct {
	SEC     SECConfig     `mapstructure:"sec"     yaml:"sec"`
	Retry   RetryConfig   `mapstructure:"retry"   yaml:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
	Output  OutputConfig  `mapstructure:"output"  yaml:"output"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// SECConfig holds EDGAR endpoint settings.
type SECConfig struct {
	UserAgent         string  `mapstructure:"user_agent"          yaml:"user_agent"` // "Firstname Lastname you@example.com"
	SubmissionsURL    string  `mapstructure:"submissions_url"     yaml:"submissions_url"`
	ArchivesURL       string  `mapstructure:"archives_url"        yaml:"archives_url"`
	FeedURL           string  `mapstructure:"feed_url"            yaml:"feed_url"`
	FormType          string  `mapstructure:"form_type"           yaml:"form_type"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// RetryConfig holds the retry budgets for index and filing fetches.
type RetryConfig struct {
	IndexAttempts  int           `mapstructure:"index_attempts"  yaml:"index_attempts"`
	FilingAttempts int           `mapstructure:"filing_attempts" yaml:"filing_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"      yaml:"base_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"              yaml:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures" yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"         yaml:"open_timeout"`
}

// OutputConfig holds where and how holdings are written.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"    yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"` // "csv" or "xlsx"
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// MetricsConfig holds the Prometheus textfile destination.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"` // empty disables
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/nportp.yaml
//  2. ~/.nportp/nportp.yaml
//  3. /etc/nportp/nportp.yaml
//
// Environment variables override config file values.
// Format: NPORTP_<SECTION>_<KEY>, e.g., NPORTP_SEC_USER_AGENT
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("nportp")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".nportp"))
	v.AddConfigPath("/etc/nportp")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults + env vars.
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("NPORTP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("sec.user_agent", defaultUserAgent)
	v.SetDefault("sec.submissions_url", "https://data.sec.gov/submissions")
	v.SetDefault("sec.archives_url", "https://www.sec.gov/Archives/edgar/data")
	v.SetDefault("sec.feed_url", "https://www.sec.gov/cgi-bin/browse-edgar")
	v.SetDefault("sec.form_type", "NPORT-P")
	v.SetDefault("sec.requests_per_second", 5.0) // SEC allows 10/s; stay well under.

	v.SetDefault("retry.index_attempts", 3)
	v.SetDefault("retry.filing_attempts", 5)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.request_timeout", "30s")

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.consecutive_failures", 3)
	v.SetDefault("breaker.open_timeout", "60s")

	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.format", "csv")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.textfile", "")
}

// overrideFromEnv explicitly reads the contact identity from the environment,
// so it can stay out of checked-in config files.
func overrideFromEnv(cfg *Config) {
	if ua := os.Getenv(userAgentEnv); ua != "" {
		cfg.SEC.UserAgent = ua
	}
}

// Validate rejects settings the run cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SEC.UserAgent) == "" {
		return fmt.Errorf("config: sec.user_agent must identify you (name and email)")
	}
	if c.SEC.FormType == "" {
		return fmt.Errorf("config: sec.form_type is empty")
	}
	if c.Retry.IndexAttempts < 1 || c.Retry.FilingAttempts < 1 {
		return fmt.Errorf("config: retry attempts must be at least 1 (index=%d filing=%d)",
			c.Retry.IndexAttempts, c.Retry.FilingAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("config: retry.base_delay must not be negative")
	}
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
