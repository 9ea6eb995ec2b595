// Package config loads sitecrawl settings from an optional YAML file,
// SITECRAWL_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"sitecrawl/internal/crawler"
	"sitecrawl/internal/ioformats"
	"sitecrawl/pkg/logger"
)

const AppName = "sitecrawl"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
	Server  ServerConfig  `mapstructure:"server"`
}

// CrawlConfig holds the bounds used when a caller does not give its own.
type CrawlConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
	MaxPages       int `mapstructure:"max_pages"`
}

type FetchConfig struct {
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	HTMLOnly     bool          `mapstructure:"html_only"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type OutputConfig struct {
	Path     string `mapstructure:"path"`
	Format   string `mapstructure:"format"`
	Progress bool   `mapstructure:"progress"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxPagesLimit  int           `mapstructure:"max_pages_limit"`
}

// Load reads path if given, otherwise looks for config.yaml in ./configs,
// the working directory and the XDG config dir. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(XDGConfigDir())
	}

	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.max_concurrency", 5)
	v.SetDefault("crawl.max_pages", 50)

	v.SetDefault("fetch.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("fetch.timeout", crawler.DefaultTimeout)
	v.SetDefault("fetch.dial_timeout", crawler.DefaultDialTimeout)
	v.SetDefault("fetch.max_body_bytes", crawler.DefaultMaxBodyBytes)
	v.SetDefault("fetch.html_only", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)

	v.SetDefault("output.path", "report.csv")
	v.SetDefault("output.format", string(ioformats.FormatCSV))
	v.SetDefault("output.progress", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 2*time.Minute)
	v.SetDefault("server.max_pages_limit", 500)
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.CrawlerConfig(c.Crawl.MaxConcurrency, c.Crawl.MaxPages).Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive"))
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max_body_bytes must be positive"))
	}
	if _, err := ioformats.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, fmt.Errorf("output.format: %w", err))
	}
	if c.Server.MaxPagesLimit <= 0 {
		errs = append(errs, fmt.Errorf("server.max_pages_limit must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// CrawlerConfig builds the orchestrator bounds, falling back to the
// configured defaults for zero arguments.
func (c *Config) CrawlerConfig(maxConcurrency, maxPages int) crawler.Config {
	if maxConcurrency == 0 {
		maxConcurrency = c.Crawl.MaxConcurrency
	}
	if maxPages == 0 {
		maxPages = c.Crawl.MaxPages
	}
	return crawler.Config{MaxConcurrency: maxConcurrency, MaxPages: maxPages}
}

func (c *Config) ClientOptions() crawler.ClientOptions {
	return crawler.ClientOptions{
		UserAgent:    c.Fetch.UserAgent,
		Timeout:      c.Fetch.Timeout,
		DialTimeout:  c.Fetch.DialTimeout,
		MaxBodyBytes: c.Fetch.MaxBodyBytes,
		HTMLOnly:     c.Fetch.HTMLOnly,
	}
}

func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// XDGConfigDir is where a user-level config.yaml is looked up.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}
