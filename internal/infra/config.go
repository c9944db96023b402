package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Trading modes.
const (
	ModePaper = "PAPER"
	ModeLive  = "LIVE"
)

// Config holds all application settings. Secrets may be supplied in the
// yaml file but environment variables always override them.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode    string   `yaml:"mode"` // PAPER | LIVE
		Symbols []string `yaml:"symbols"`

		TotalCapital       decimal.Decimal `yaml:"total_capital"`
		DeployableFraction decimal.Decimal `yaml:"deployable_fraction"`
		ReserveFraction    decimal.Decimal `yaml:"reserve_fraction"`
		PerTradeFraction   decimal.Decimal `yaml:"per_trade_fraction"`

		DipThreshold    decimal.Decimal `yaml:"dip_threshold"`
		ProfitThreshold decimal.Decimal `yaml:"profit_threshold"`
		LossThreshold   decimal.Decimal `yaml:"loss_threshold"`

		// BrokeragePct is charged on each leg's notional; realized P&L
		// is net of both legs.
		BrokeragePct decimal.Decimal `yaml:"brokerage_pct"`

		TickIntervalMS   int `yaml:"tick_interval_ms"`
		GatewayTimeoutMS int `yaml:"gateway_timeout_ms"`
	} `yaml:"trading"`

	Gateway struct {
		Breeze struct {
			RestURL      string `yaml:"rest_url"`
			WSURL        string `yaml:"ws_url"`
			APIKey       string `yaml:"api_key"`
			APISecret    string `yaml:"api_secret"`
			SessionToken string `yaml:"session_token"`
		} `yaml:"breeze"`
	} `yaml:"gateway"`

	Notifier struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notifier"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides for secrets, fills defaults and validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	t := &c.Trading
	if t.Mode == "" {
		t.Mode = ModePaper
	}
	if t.DeployableFraction.IsZero() {
		t.DeployableFraction = decimal.NewFromFloat(0.70)
	}
	if t.ReserveFraction.IsZero() {
		t.ReserveFraction = decimal.NewFromInt(1).Sub(t.DeployableFraction)
	}
	if t.PerTradeFraction.IsZero() {
		t.PerTradeFraction = decimal.NewFromFloat(0.05)
	}
	if t.DipThreshold.IsZero() {
		t.DipThreshold = decimal.NewFromFloat(0.01)
	}
	if t.ProfitThreshold.IsZero() {
		t.ProfitThreshold = decimal.NewFromFloat(0.03)
	}
	if t.LossThreshold.IsZero() {
		t.LossThreshold = decimal.NewFromFloat(0.05)
	}
	if t.TickIntervalMS <= 0 {
		t.TickIntervalMS = 30_000
	}
	if t.GatewayTimeoutMS <= 0 {
		t.GatewayTimeoutMS = 5_000
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "localhost:9187"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity. Fail fast: a bad capital split
// must never reach the pool.
func (c *Config) Validate() error {
	t := &c.Trading

	if t.Mode != ModePaper && t.Mode != ModeLive {
		return fmt.Errorf("trading mode must be PAPER or LIVE, got %q", t.Mode)
	}
	if len(t.Symbols) == 0 {
		return fmt.Errorf("at least one tracked symbol is required")
	}
	if !t.TotalCapital.IsPositive() {
		return fmt.Errorf("total capital must be positive, got %s", t.TotalCapital)
	}
	one := decimal.NewFromInt(1)
	if !t.DeployableFraction.Add(t.ReserveFraction).Equal(one) {
		return fmt.Errorf("deployable (%s) and reserve (%s) fractions must sum to 1.0",
			t.DeployableFraction, t.ReserveFraction)
	}
	if !t.PerTradeFraction.IsPositive() || t.PerTradeFraction.GreaterThan(one) {
		return fmt.Errorf("per-trade fraction must be in (0,1], got %s", t.PerTradeFraction)
	}
	for _, th := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"dip_threshold", t.DipThreshold},
		{"profit_threshold", t.ProfitThreshold},
		{"loss_threshold", t.LossThreshold},
	} {
		if !th.v.IsPositive() || th.v.GreaterThanOrEqual(one) {
			return fmt.Errorf("%s must be in (0,1), got %s", th.name, th.v)
		}
	}
	if t.BrokeragePct.IsNegative() {
		return fmt.Errorf("brokerage_pct must not be negative, got %s", t.BrokeragePct)
	}
	if t.Mode == ModeLive {
		b := &c.Gateway.Breeze
		if b.RestURL == "" || b.APIKey == "" || b.APISecret == "" {
			return fmt.Errorf("LIVE mode requires breeze rest_url, api_key and api_secret")
		}
	}
	return nil
}

// TickInterval returns the monitoring cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Trading.TickIntervalMS) * time.Millisecond
}

// GatewayTimeout bounds every gateway call made from the tick loop.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Trading.GatewayTimeoutMS) * time.Millisecond
}

// ResolveConfigPath attempts to find the config.yaml.
// Priority: 1. TURTLE_CONFIG env, 2. Current Dir, 3. OS Config Dir
func ResolveConfigPath() string {
	if p := os.Getenv("TURTLE_CONFIG"); p != "" {
		return p
	}

	defaultPath := filepath.Join("configs", "config.yaml")
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}

	configRoot, err := os.UserConfigDir()
	if err == nil {
		osPath := filepath.Join(configRoot, "turteltrader", "config.yaml")
		if _, err := os.Stat(osPath); err == nil {
			return osPath
		}
	}

	// Return default and let LoadConfig surface the missing-file error.
	return defaultPath
}

// overrideWithEnv applies environment variables over file values.
// Secrets belong in the environment, not in the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.Gateway.Breeze.APISecret != "" || cfg.Gateway.Breeze.SessionToken != "" {
		fmt.Println("⚠️  SECURITY WARNING: API secrets found in config file.")
		fmt.Println("   Recommendation: Use environment variables instead:")
		fmt.Println("   - TURTLE_BREEZE_KEY, TURTLE_BREEZE_SECRET, TURTLE_SESSION_TOKEN")
	}

	if key := os.Getenv("TURTLE_BREEZE_KEY"); key != "" {
		cfg.Gateway.Breeze.APIKey = key
	}
	if secret := os.Getenv("TURTLE_BREEZE_SECRET"); secret != "" {
		cfg.Gateway.Breeze.APISecret = secret
	}
	if token := os.Getenv("TURTLE_SESSION_TOKEN"); token != "" {
		cfg.Gateway.Breeze.SessionToken = token
	}
	if url := os.Getenv("TURTLE_WEBHOOK_URL"); url != "" {
		cfg.Notifier.WebhookURL = url
	}
}
