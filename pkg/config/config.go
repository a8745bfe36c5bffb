package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"production"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Exchange struct {
		BaseURL       string        `yaml:"base_url" default:"https://www.deribit.com/api/v2" validate:"url"`
		Currency      string        `yaml:"currency" default:"BTC"`
		IndexName     string        `yaml:"index_name" default:"btc_usd"`
		Timeout       time.Duration `yaml:"timeout" default:"20s"`
		MaxAttempts   int           `yaml:"max_attempts" default:"3" validate:"min=1"`
		RetryBackoff  time.Duration `yaml:"retry_backoff" default:"250ms"`
		TickerWorkers int           `yaml:"ticker_workers" default:"5" validate:"min=1"`
		RatePerSec    float64       `yaml:"rate_per_sec" default:"10"`
		RateBurst     float64       `yaml:"rate_burst" default:"20"`
		InstrumentTTL time.Duration `yaml:"instrument_ttl" default:"10m"`
	} `yaml:"exchange"`
	Strategy struct {
		LookbackDays      int     `yaml:"lookback_days" default:"365" validate:"min=1"`
		DVOLWindowHours   int     `yaml:"dvol_window_hours" default:"24" validate:"min=1"`
		EntryPriceDrop1h  float64 `yaml:"entry_price_drop_1h" default:"-0.03"`
		MinDVOLPulse1h    float64 `yaml:"min_dvol_pulse_1h" default:"0.10"`
		EntryIVPThreshold float64 `yaml:"entry_ivp_threshold" default:"70"`
		EntryIVRThreshold float64 `yaml:"entry_ivr_threshold" default:"50"`
		BleedPriceDrop1h  float64 `yaml:"bleed_price_drop_1h" default:"-0.02"`
		BleedDVOLMax1h    float64 `yaml:"bleed_dvol_max_1h" default:"0"`
		DeltaMin          float64 `yaml:"delta_min" default:"0.15"`
		DeltaMax          float64 `yaml:"delta_max" default:"0.20"`
		DTEMinDays        int     `yaml:"dte_min_days" default:"14"`
		DTEMaxDays        int     `yaml:"dte_max_days" default:"30"`
		SkewTargetDelta   float64 `yaml:"skew_target_delta" default:"0.20"`
		TermNearDays      int     `yaml:"term_near_days" default:"7"`
		TermFarDays       int     `yaml:"term_far_days" default:"30"`
	} `yaml:"strategy"`
	Risk struct {
		AccountBalanceUSD float64 `yaml:"account_balance_usd" default:"22000" validate:"min=0"`
		MaxSingleBTC      float64 `yaml:"max_single_btc" default:"0.10" validate:"min=0"`
		MaxTotalBTC       float64 `yaml:"max_total_btc" default:"0.20" validate:"min=0"`
	} `yaml:"risk"`
	Alerts struct {
		TelegramToken  string  `yaml:"telegram_token"`
		TelegramChatID string  `yaml:"telegram_chat_id"`
		DiscordWebhook string  `yaml:"discord_webhook"`
		PushUserKey    string  `yaml:"push_user_key"`
		PushAPIToken   string  `yaml:"push_api_token"`
		PushRepeat     int     `yaml:"push_repeat" default:"1"`
		PushIntervalS  float64 `yaml:"push_interval_sec" default:"1.2"`
		PushTitle      string  `yaml:"push_title_prefix" default:"!!!"`
		PushDebug      bool    `yaml:"push_debug"`
	} `yaml:"alerts"`
	Proxy struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
		Type string `yaml:"type" default:"http"`
	} `yaml:"proxy"`
	Server struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port" default:"8080"`
	} `yaml:"server"`
}

// Default returns a config populated with defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	applyEnv(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file, fills defaults and
// applies environment overrides.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadOrDefault loads the file when it exists and falls back to defaults
// otherwise. A missing config file is not an error for this tool.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default()
	}
	return Load(path)
}

// applyEnv overrides with the environment keys the original deployment
// recognizes. Unset keys leave the corresponding channel unconfigured.
func applyEnv(c *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.Alerts.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setStr(&c.Alerts.TelegramChatID, "TELEGRAM_CHAT_ID")
	setStr(&c.Alerts.DiscordWebhook, "DISCORD_WEBHOOK_URL")
	setStr(&c.Alerts.PushUserKey, "PUSH_USER_KEY")
	setStr(&c.Alerts.PushAPIToken, "PUSH_API_TOKEN")
	setStr(&c.Alerts.PushTitle, "PUSH_TITLE_PREFIX")
	setStr(&c.Proxy.Host, "PROXY_HOST")
	setStr(&c.Proxy.Port, "PROXY_PORT")
	setStr(&c.Proxy.Type, "PROXY_TYPE")

	if v := os.Getenv("PUSH_REPEAT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Alerts.PushRepeat = n
		}
	}
	if v := os.Getenv("PUSH_INTERVAL_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Alerts.PushIntervalS = f
		}
	}
	if v := os.Getenv("PUSH_DEBUG"); v != "" {
		c.Alerts.PushDebug = true
	}
}

// ProxyURL builds the outbound proxy URL, or "" when no proxy is configured.
func (c *Config) ProxyURL() string {
	if c.Proxy.Host == "" || c.Proxy.Port == "" {
		return ""
	}
	scheme := "http"
	if c.Proxy.Type != "" && c.Proxy.Type != "http" {
		scheme = "socks5"
	}
	return fmt.Sprintf("%s://%s:%s", scheme, c.Proxy.Host, c.Proxy.Port)
}

// Validate checks structural validity plus the cross-field rules the
// validator tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Strategy.DeltaMin > c.Strategy.DeltaMax {
		return fmt.Errorf("strategy.delta_min %.2f exceeds delta_max %.2f", c.Strategy.DeltaMin, c.Strategy.DeltaMax)
	}
	if c.Strategy.DTEMinDays > c.Strategy.DTEMaxDays {
		return fmt.Errorf("strategy.dte_min_days %d exceeds dte_max_days %d", c.Strategy.DTEMinDays, c.Strategy.DTEMaxDays)
	}
	if c.Risk.MaxSingleBTC > c.Risk.MaxTotalBTC {
		return fmt.Errorf("risk.max_single_btc %.2f exceeds max_total_btc %.2f", c.Risk.MaxSingleBTC, c.Risk.MaxTotalBTC)
	}
	return nil
}
