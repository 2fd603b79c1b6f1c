package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.Stealth)
	assert.Equal(t, 45*time.Second, cfg.Network.NavigationTimeout)
	assert.Equal(t, "https://2captcha.com", cfg.Captcha.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Processor.PaceInterval)
	assert.Equal(t, 3, cfg.Processor.MaxRetries)
	assert.Equal(t, 1, cfg.Processor.Workers)
	assert.Equal(t, "formpilot.campaigns", cfg.Queue.QueueName)

	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
logger:
  level: debug
  format: json
browser:
  headless: false
processor:
  pace_interval: 10s
  workers: 2
`)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Processor.PaceInterval)
	assert.Equal(t, 2, cfg.Processor.Workers)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Processor.MaxRetries)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero navigation timeout", func(c *Config) { c.Network.NavigationTimeout = 0 }},
		{"zero workers", func(c *Config) { c.Processor.Workers = 0 }},
		{"negative retries", func(c *Config) { c.Processor.MaxRetries = -1 }},
		{"zero poll interval with captcha on", func(c *Config) { c.Captcha.PollInterval = 0 }},
		{"zero solve timeout with captcha on", func(c *Config) { c.Captcha.SolveTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateIgnoresCaptchaTimingsWhenDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Captcha.Enabled = false
	cfg.Captcha.PollInterval = 0
	cfg.Captcha.SolveTimeout = 0
	assert.NoError(t, cfg.Validate())
}
