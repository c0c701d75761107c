package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logging struct {
		Level   string `yaml:"level" default:"info"`
		Format  string `yaml:"format" default:"console"`
		Output  string `yaml:"output" default:"stdout"`
		RingLen int    `yaml:"ring_len" default:"200"` // per-bot log buffer size
	} `yaml:"logging"`
	Engine struct {
		MaxBots          int           `yaml:"max_bots" default:"20" validate:"gte=1"`
		HistoryBars      int           `yaml:"history_bars" default:"300" validate:"gte=50"`
		PositionPollTick time.Duration `yaml:"position_poll_tick" default:"30s"`
		RestoreOnStart   bool          `yaml:"restore_on_start" default:"true"`
	} `yaml:"engine"`
	Breaker struct {
		MaxFailures int           `yaml:"max_failures" default:"5" validate:"gte=1"`
		Cooldown    time.Duration `yaml:"cooldown" default:"30s"`
	} `yaml:"breaker"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
		MinDelay    time.Duration `yaml:"min_delay" default:"250ms"`
		MaxDelay    time.Duration `yaml:"max_delay" default:"5s"`
	} `yaml:"retry"`
	Stream struct {
		MaxReconnects  int           `yaml:"max_reconnects" default:"8" validate:"gte=1"`
		ReconnectMin   time.Duration `yaml:"reconnect_min" default:"1s"`
		ReconnectMax   time.Duration `yaml:"reconnect_max" default:"1m"`
		EventBuffer    int           `yaml:"event_buffer" default:"64"`
		SeriesCapacity int           `yaml:"series_capacity" default:"500"`
	} `yaml:"stream"`
	MarketData struct {
		RESTURL      string        `yaml:"rest_url" default:"https://api.binance.com"`
		WebsocketURL string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443/ws"`
		Timeout      time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"market_data"`
	Gateway struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"gateway"`
	Oracle struct {
		BaseURL      string        `yaml:"base_url"`
		APIKey       string        `yaml:"api_key"`
		Timeout      time.Duration `yaml:"timeout" default:"15s"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"45s"`
		RateCapacity float64       `yaml:"rate_capacity" default:"5"`
		RatePerSec   float64       `yaml:"rate_per_sec" default:"0.5"`
		RecentBars   int           `yaml:"recent_bars" default:"30" validate:"gte=5"`
	} `yaml:"oracle"`
	Health struct {
		CheckInterval    time.Duration `yaml:"check_interval" default:"30s"`
		OfflineAfter     time.Duration `yaml:"offline_after" default:"5m"`
		ErrorThreshold   int           `yaml:"error_threshold" default:"5" validate:"gte=1"`
		WinRateFloor     float64       `yaml:"win_rate_floor" default:"35"`
		MinSampleSize    int           `yaml:"min_sample_size" default:"10" validate:"gte=1"`
		SlowExecution    time.Duration `yaml:"slow_execution" default:"10s"`
		StalePositionAge time.Duration `yaml:"stale_position_age" default:"24h"`
		AlertBuffer      int           `yaml:"alert_buffer" default:"128"`
	} `yaml:"health"`
	Emergency struct {
		DrawdownLimitPct  float64       `yaml:"drawdown_limit_pct" default:"15" validate:"gt=0,lte=100"`
		ErrorThreshold    int           `yaml:"error_threshold" default:"10" validate:"gte=1"`
		AnomalyMovePct    float64       `yaml:"anomaly_move_pct" default:"10" validate:"gt=0"`
		AutoResolveWindow time.Duration `yaml:"auto_resolve_window" default:"15m"`
		SweepInterval     time.Duration `yaml:"sweep_interval" default:"1m"`
	} `yaml:"emergency"`
	Persistence struct {
		Interval     time.Duration `yaml:"interval" default:"1m"`
		MaxSnapshots int           `yaml:"max_snapshots" default:"50" validate:"gte=1"`
		Retention    time.Duration `yaml:"retention" default:"168h"`
	} `yaml:"persistence"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"navigator"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled     bool     `yaml:"enabled"`
		Brokers     []string `yaml:"brokers"`
		TradeTopic  string   `yaml:"trade_topic" default:"navigator.trades"`
		AlertTopic  string   `yaml:"alert_topic" default:"navigator.alerts"`
		Compression string   `yaml:"compression" default:"gzip"`
		Acks        int      `yaml:"acks" default:"-1"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"navigator"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		Table        string        `yaml:"table" default:"navigator.trade_records"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		c.Oracle.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	return c, nil
}

// Default returns a config with all defaults applied, for tests and
// zero-config startup.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Stream.ReconnectMax < c.Stream.ReconnectMin {
		return fmt.Errorf("stream.reconnect_max must be >= stream.reconnect_min")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config fields: %w", err)
	}
	return nil
}
