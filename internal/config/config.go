// Package config loads serpdump settings from defaults, an optional YAML
// file, a .env file, SERPDUMP_* environment variables and command flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/serpdump/internal/dataset"
	"github.com/FranksOps/serpdump/internal/fingerprint"
	"github.com/FranksOps/serpdump/internal/storage/open"
)

const EnvPrefix = "SERPDUMP"

// ErrMissingAPIKey means no usable API key was configured.
var ErrMissingAPIKey = errors.New("config: Bright Data API key is not set (SERPDUMP_API_KEY or BRIGHTDATA_API_KEY)")

// placeholderKeys are values shipped in sample configs.
var placeholderKeys = map[string]bool{
	"":                   true,
	"YOUR_API_KEY_HERE":  true,
	"Bright_Data_API_KEY": true,
}

type Config struct {
	APIKey    string `mapstructure:"api_key"`
	DatasetID string `mapstructure:"dataset_id"`
	BaseURL   string `mapstructure:"base_url"`

	Poll    PollConfig    `mapstructure:"poll"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Output  OutputConfig  `mapstructure:"output"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`

	Concurrency int `mapstructure:"concurrency"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	MaxWait  time.Duration `mapstructure:"max_wait"`
	Jitter   float64       `mapstructure:"jitter"`
}

type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	TLSProfile   string        `mapstructure:"tls_profile"`
	ProxyFile    string        `mapstructure:"proxy_file"`
}

type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command flag names to config keys.
var flagKeys = map[string]string{
	"api-key":         "api_key",
	"dataset-id":      "dataset_id",
	"base-url":        "base_url",
	"poll-interval":   "poll.interval",
	"max-wait":        "poll.max_wait",
	"http-timeout":    "http.timeout",
	"tls-profile":     "http.tls_profile",
	"proxy-file":      "http.proxy_file",
	"output-dir":      "output.dir",
	"archive-backend": "archive.backend",
	"archive-dsn":     "archive.dsn",
	"metrics-port":    "metrics.port",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"concurrency":     "concurrency",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("dataset_id", dataset.DefaultDatasetID)
	v.SetDefault("base_url", dataset.DefaultBaseURL)
	v.SetDefault("poll.interval", 10*time.Second)
	v.SetDefault("poll.max_wait", 5*time.Minute)
	v.SetDefault("poll.jitter", 0.0)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_redirects", 5)
	v.SetDefault("http.tls_profile", string(fingerprint.ProfileGo))
	v.SetDefault("http.proxy_file", "")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.prefix", "google_bing_search_results")
	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.dsn", "")
	v.SetDefault("metrics.port", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("concurrency", 2)
}

// Load reads the configuration. configFile may be empty, in which case
// serpdump.yaml is looked up in the working directory and
// $HOME/.config/serpdump. flags may be nil. The result is not validated.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", "BRIGHTDATA_API_KEY"); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("serpdump")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/serpdump")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return &cfg, nil
}

// Validate checks the settings needed before any API call. A missing or
// placeholder API key yields ErrMissingAPIKey.
func (c *Config) Validate() error {
	if placeholderKeys[c.APIKey] {
		return ErrMissingAPIKey
	}
	if c.DatasetID == "" {
		return errors.New("config: dataset_id is empty")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("config: poll.interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxWait <= 0 {
		return fmt.Errorf("config: poll.max_wait must be positive, got %s", c.Poll.MaxWait)
	}
	if c.Poll.Jitter < 0 || c.Poll.Jitter > 1 {
		return fmt.Errorf("config: poll.jitter must be within [0, 1], got %v", c.Poll.Jitter)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := fingerprint.ParseProfile(c.HTTP.TLSProfile); err != nil {
		return fmt.Errorf("config: http.tls_profile: %w", err)
	}
	return c.ValidateArchive()
}

// ValidateArchive checks only the archive settings; the runs command needs
// nothing else.
func (c *Config) ValidateArchive() error {
	b := strings.ToLower(c.Archive.Backend)
	if b == "" || b == "none" {
		return nil
	}
	for _, known := range open.Backends {
		if b == known {
			if c.Archive.DSN == "" {
				return fmt.Errorf("config: archive.dsn is required for backend %q", b)
			}
			return nil
		}
	}
	return fmt.Errorf("config: unknown archive.backend %q (want one of %s)", c.Archive.Backend, strings.Join(open.Backends, ", "))
}
