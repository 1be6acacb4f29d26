package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrInvalid marks configuration faults. They are fatal to startup and are
// never retried.
var ErrInvalid = errors.New("invalid configuration")

// Preference holds the scheduling knobs read once at engine initialization.
type Preference struct {
	Timezone               string        `envconfig:"TIMEZONE" default:"Asia/Shanghai"`
	EnableConnectionTest   bool          `envconfig:"CONNECTION_TEST" default:"true"`
	ConnectionTestInterval time.Duration `envconfig:"CONNECTION_TEST_INTERVAL" default:"30s"`

	// Jitter window for the pre-fire delay of each attempt.
	LatencyMin time.Duration `envconfig:"LATENCY_MIN" default:"50ms"`
	LatencyMax time.Duration `envconfig:"LATENCY_MAX" default:"500ms"`
}

type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	ExchangeAPIURL   string `envconfig:"EXCHANGE_API_URL" default:"https://api-takumi.mihoyo.com/mall/v1/web/goods/exchange"`
	GameRecordAPIURL string `envconfig:"GAME_RECORD_API_URL" default:"https://api-takumi.mihoyo.com/binding/api/getUserGameRolesByCookie"`

	// Plans come from the JSON file unless a database URL is set,
	// in which case the store also records attempt outcomes.
	PlansFile   string `envconfig:"PLANS_FILE" default:"plans.json"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Embedded so the preference knobs bind flat (GOODSCHED_TIMEZONE, not
	// GOODSCHED_PREFERENCE_TIMEZONE).
	Preference
}

// FromEnv binds GOODSCHED_* variables over the defaults and validates the
// result. Any malformed value aborts startup.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("goodsched", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ExchangeAPIURL == "" {
		return fmt.Errorf("%w: exchange API URL is required", ErrInvalid)
	}
	return c.Preference.Validate()
}

func (p Preference) Validate() error {
	if p.Timezone == "" {
		return fmt.Errorf("%w: timezone is required", ErrInvalid)
	}
	if p.LatencyMin < 0 {
		return fmt.Errorf("%w: latency jitter minimum must not be negative", ErrInvalid)
	}
	if p.LatencyMax < p.LatencyMin {
		return fmt.Errorf("%w: latency jitter window is inverted", ErrInvalid)
	}
	if p.EnableConnectionTest && p.ConnectionTestInterval < time.Second {
		return fmt.Errorf("%w: connection test interval must be at least 1s", ErrInvalid)
	}
	return nil
}
