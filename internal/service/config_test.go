package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("Expected default base URL, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.WSURL != "ws://localhost:8000/dashboard-ws/" {
		t.Errorf("Expected default ws URL, got %s", cfg.Backend.WSURL)
	}
	if cfg.Dashboard.ReconnectDelay != 5*time.Second {
		t.Errorf("Expected reconnect delay 5s, got %v", cfg.Dashboard.ReconnectDelay)
	}
	if cfg.Dashboard.DefaultRangeDays != 30 {
		t.Errorf("Expected 30 day range, got %d", cfg.Dashboard.DefaultRangeDays)
	}
	if cfg.Dashboard.DiscardStaleResponses {
		t.Error("Stale response discarding must be off by default")
	}
	if cfg.ExchangeRate.Fallback != 5.0 {
		t.Errorf("Expected fallback rate 5.0, got %v", cfg.ExchangeRate.Fallback)
	}
	if cfg.Auth.TokenEnv != "STOREFRONT_TOKEN" {
		t.Errorf("Expected token env STOREFRONT_TOKEN, got %s", cfg.Auth.TokenEnv)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend:
  base_url: http://backend:9000
  timeout: 3s
dashboard:
  reconnect_delay: 2s
  discard_stale_responses: true
report:
  timezone: America/Sao_Paulo
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STOREFRONT_BACKEND_WS_URL", "ws://backend:9000/dashboard-ws/")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://backend:9000" {
		t.Errorf("Expected base URL from file, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.WSURL != "ws://backend:9000/dashboard-ws/" {
		t.Errorf("Expected ws URL from env, got %s", cfg.Backend.WSURL)
	}
	if cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("Expected timeout 3s, got %v", cfg.Backend.Timeout)
	}
	if cfg.Dashboard.ReconnectDelay != 2*time.Second {
		t.Errorf("Expected reconnect delay 2s, got %v", cfg.Dashboard.ReconnectDelay)
	}
	if !cfg.Dashboard.DiscardStaleResponses {
		t.Error("Expected discard_stale_responses from file")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		return *cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Backend.BaseURL = "" }},
		{"empty ws url", func(c *Config) { c.Backend.WSURL = "" }},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }},
		{"breaker without failures", func(c *Config) { c.Backend.Breaker.MaxFailures = 0 }},
		{"zero reconnect delay", func(c *Config) { c.Dashboard.ReconnectDelay = 0 }},
		{"zero range", func(c *Config) { c.Dashboard.DefaultRangeDays = 0 }},
		{"negative sma", func(c *Config) { c.Dashboard.TrendSMAPeriod = -1 }},
		{"no token source", func(c *Config) { c.Auth.TokenFile = ""; c.Auth.TokenEnv = "" }},
		{"bad timezone", func(c *Config) { c.Report.Timezone = "Mars/Olympus" }},
		{"telegram without token", func(c *Config) { c.Notify.Telegram.Enabled = true; c.Notify.Telegram.ChatID = "1" }},
		{"telegram without chat", func(c *Config) { c.Notify.Telegram.Enabled = true; c.Notify.Telegram.BotToken = "x" }},
		{"zero fallback rate", func(c *Config) { c.ExchangeRate.Fallback = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG").String() != "debug" {
		t.Error("Expected debug level")
	}
	if ParseLevel("warning").String() != "warn" {
		t.Error("Expected warn level")
	}
	if ParseLevel("nonsense").String() != "info" {
		t.Error("Expected info fallback")
	}
}
