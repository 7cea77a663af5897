// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete client configuration.
type Config struct {
	Backend      BackendConfig      `mapstructure:"backend"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Report       ReportConfig       `mapstructure:"report"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	ExchangeRate ExchangeRateConfig `mapstructure:"exchange_rate"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// BackendConfig holds the REST and push-stream endpoints of the storefront backend.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	WSURL   string        `mapstructure:"ws_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the REST client.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type DashboardConfig struct {
	ReconnectDelay        time.Duration `mapstructure:"reconnect_delay"`
	DefaultRangeDays      int           `mapstructure:"default_range_days"`
	TrendSMAPeriod        int           `mapstructure:"trend_sma_period"`
	DiscardStaleResponses bool          `mapstructure:"discard_stale_responses"`
}

type AuthConfig struct {
	TokenFile string `mapstructure:"token_file"`
	TokenEnv  string `mapstructure:"token_env"`
}

type ReportConfig struct {
	OutputDir  string `mapstructure:"output_dir"`
	DateLayout string `mapstructure:"date_layout"`
	TimeLayout string `mapstructure:"time_layout"`
	Timezone   string `mapstructure:"timezone"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type ExchangeRateConfig struct {
	URL      string  `mapstructure:"url"`
	Fallback float64 `mapstructure:"fallback"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoadConfig reads the YAML file at path (if it exists), applies STOREFRONT_* env
// overrides and defaults, and validates the result. An empty path or a missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.ws_url", "ws://localhost:8000/dashboard-ws/")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.breaker.enabled", true)
	v.SetDefault("backend.breaker.max_failures", 5)
	v.SetDefault("backend.breaker.open_timeout", "30s")

	v.SetDefault("dashboard.reconnect_delay", "5s")
	v.SetDefault("dashboard.default_range_days", 30)
	v.SetDefault("dashboard.trend_sma_period", 3)
	v.SetDefault("dashboard.discard_stale_responses", false)

	v.SetDefault("auth.token_file", defaultTokenFile())
	v.SetDefault("auth.token_env", "STOREFRONT_TOKEN")

	v.SetDefault("report.output_dir", ".")
	v.SetDefault("report.date_layout", "02/01/2006")
	v.SetDefault("report.time_layout", "15:04")
	v.SetDefault("report.timezone", "Local")

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")

	v.SetDefault("exchange_rate.url", "https://economia.awesomeapi.com.br/json/last/USD-BRL")
	v.SetDefault("exchange_rate.fallback", 5.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.listen_addr", "")
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "storefront", "token")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.WSURL == "" {
		return fmt.Errorf("backend.ws_url is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Backend.Breaker.Enabled && c.Backend.Breaker.MaxFailures == 0 {
		return fmt.Errorf("backend.breaker.max_failures must be at least 1 when the breaker is enabled")
	}

	if c.Dashboard.ReconnectDelay <= 0 {
		return fmt.Errorf("dashboard.reconnect_delay must be positive")
	}
	if c.Dashboard.DefaultRangeDays < 1 {
		return fmt.Errorf("dashboard.default_range_days must be at least 1")
	}
	if c.Dashboard.TrendSMAPeriod < 0 {
		return fmt.Errorf("dashboard.trend_sma_period must not be negative")
	}

	if c.Auth.TokenFile == "" && c.Auth.TokenEnv == "" {
		return fmt.Errorf("auth.token_file or auth.token_env must be set")
	}

	if _, err := c.Report.Location(); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}

	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.ExchangeRate.Fallback <= 0 {
		return fmt.Errorf("exchange_rate.fallback must be positive")
	}

	return nil
}

// Location resolves the configured report timezone.
func (r ReportConfig) Location() (*time.Location, error) {
	if r.Timezone == "" || r.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(r.Timezone)
}
