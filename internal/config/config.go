// Package config loads and validates the formpilot configuration from a YAML
// file, environment variables (FORMPILOT_*), and CLI flags via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Captcha   CaptchaConfig   `mapstructure:"captcha" yaml:"captcha"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Processor ProcessorConfig `mapstructure:"processor" yaml:"processor"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser process.
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath       string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string `mapstructure:"args" yaml:"args"`
	UserAgent      string   `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth  int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	Stealth        bool     `mapstructure:"stealth" yaml:"stealth"`
}

// NetworkConfig tunes navigation and settle behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// CaptchaConfig configures the external solving service client.
type CaptchaConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SolveTimeout time.Duration `mapstructure:"solve_timeout" yaml:"solve_timeout"`
}

// PipelineConfig tunes the per-target submission pipeline.
type PipelineConfig struct {
	SubmitSettleWait time.Duration `mapstructure:"submit_settle_wait" yaml:"submit_settle_wait"`
	ContactHopLimit  int           `mapstructure:"contact_hop_limit" yaml:"contact_hop_limit"`
}

// ProcessorConfig tunes the per-campaign orchestrator.
type ProcessorConfig struct {
	PaceInterval time.Duration `mapstructure:"pace_interval" yaml:"pace_interval"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	Workers      int           `mapstructure:"workers" yaml:"workers"`
}

// DatabaseConfig holds the PostgreSQL connection string.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// QueueConfig holds the AMQP broker settings for the campaign job queue.
type QueueConfig struct {
	URL       string `mapstructure:"url" yaml:"url"`
	QueueName string `mapstructure:"queue_name" yaml:"queue_name"`
	Prefetch  int    `mapstructure:"prefetch" yaml:"prefetch"`
}

// SetDefaults registers the default value for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "45s")
	v.SetDefault("network.element_timeout", "10s")
	v.SetDefault("network.post_load_wait", "2s")

	// -- Captcha --
	v.SetDefault("captcha.enabled", true)
	v.SetDefault("captcha.base_url", "https://2captcha.com")
	v.SetDefault("captcha.poll_interval", "5s")
	v.SetDefault("captcha.solve_timeout", "2m")

	// -- Pipeline --
	v.SetDefault("pipeline.submit_settle_wait", "3s")
	v.SetDefault("pipeline.contact_hop_limit", 1)

	// -- Processor --
	v.SetDefault("processor.pace_interval", "30s")
	v.SetDefault("processor.max_retries", 3)
	v.SetDefault("processor.workers", 1)

	// -- Queue --
	v.SetDefault("queue.queue_name", "formpilot.campaigns")
	v.SetDefault("queue.prefetch", 1)
}

// NewDefaultConfig builds a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper unmarshals and validates a configuration from a viper
// instance that has already read its sources.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("captcha.api_key", "FORMPILOT_CAPTCHA_API_KEY")
	v.BindEnv("database.url", "FORMPILOT_DATABASE_URL")
	v.BindEnv("queue.url", "FORMPILOT_QUEUE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Processor.Workers <= 0 {
		return fmt.Errorf("processor.workers must be a positive integer")
	}
	if c.Processor.MaxRetries < 0 {
		return fmt.Errorf("processor.max_retries must not be negative")
	}
	if c.Captcha.Enabled {
		if c.Captcha.PollInterval <= 0 {
			return fmt.Errorf("captcha.poll_interval must be a positive duration")
		}
		if c.Captcha.SolveTimeout <= 0 {
			return fmt.Errorf("captcha.solve_timeout must be a positive duration")
		}
	}
	return nil
}
