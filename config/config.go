// Package config loads the service configuration: defaults, then a YAML
// file, then an optional .env file and DEPO_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/markethours"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// EnvPrefix prefixes every environment override, e.g. DEPO_STORAGE_SQLITE_PATH.
const EnvPrefix = "DEPO"

// Config holds all application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service" envconfig:"SERVICE"`
	Engine   EngineConfig   `yaml:"engine" envconfig:"ENGINE"`
	Pattern  PatternConfig  `yaml:"pattern" envconfig:"PATTERN"`
	Schedule ScheduleConfig `yaml:"schedule" envconfig:"SCHEDULE"`
	Storage  StorageConfig  `yaml:"storage" envconfig:"STORAGE"`
	Kafka    KafkaConfig    `yaml:"kafka" envconfig:"KAFKA"`
	Notify   NotifyConfig   `yaml:"notify" envconfig:"NOTIFY"`
	Gateway  GatewayConfig  `yaml:"gateway" envconfig:"GATEWAY"`

	// Assets seeds the asset catalogue at startup. YAML only.
	Assets []model.Asset `yaml:"assets" ignored:"true"`
}

type ServiceConfig struct {
	Name       string `yaml:"name" envconfig:"NAME"`
	LogLevel   string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	HTTPAddr   string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	Originator string `yaml:"originator" envconfig:"ORIGINATOR"`
}

type EngineConfig struct {
	BandWidth   decimal.Decimal `yaml:"band_width" envconfig:"BAND_WIDTH"`
	OutputScale int32           `yaml:"output_scale" envconfig:"OUTPUT_SCALE"`
	Concurrency int             `yaml:"concurrency" envconfig:"CONCURRENCY"`
	Mode        string          `yaml:"mode" envconfig:"MODE"` // full | incremental
	ScanHistory bool            `yaml:"scan_history" envconfig:"SCAN_HISTORY"`
}

type PatternConfig struct {
	RSIOversold   decimal.Decimal `yaml:"rsi_oversold" envconfig:"RSI_OVERSOLD"`
	RSIOverbought decimal.Decimal `yaml:"rsi_overbought" envconfig:"RSI_OVERBOUGHT"`
}

type ScheduleConfig struct {
	Cron       string `yaml:"cron" envconfig:"CRON"` // six fields, seconds first
	RunOnStart bool   `yaml:"run_on_start" envconfig:"RUN_ON_START"`
	// TradingDaysOnly skips scheduled runs on weekends and holidays.
	TradingDaysOnly bool               `yaml:"trading_days_only" envconfig:"TRADING_DAYS_ONLY"`
	Calendar        markethours.Config `yaml:"calendar" envconfig:"CALENDAR"`
}

type StorageConfig struct {
	SQLitePath  string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	// PriceSource selects the store prices are read from: sqlite | postgres.
	PriceSource string `yaml:"price_source" envconfig:"PRICE_SOURCE"`

	RedisAddr          string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword      string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB            int           `yaml:"redis_db" envconfig:"REDIS_DB"`
	RedisLatestTTL     time.Duration `yaml:"redis_latest_ttl" envconfig:"REDIS_LATEST_TTL"`
	RedisCheckpointTTL time.Duration `yaml:"redis_checkpoint_ttl" envconfig:"REDIS_CHECKPOINT_TTL"`
	RedisStreamMaxLen  int64         `yaml:"redis_stream_max_len" envconfig:"REDIS_STREAM_MAX_LEN"`
	RedisBufferSize    int           `yaml:"redis_buffer_size" envconfig:"REDIS_BUFFER_SIZE"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" envconfig:"BROKERS"`
	Topic        string        `yaml:"topic" envconfig:"TOPIC"`
	BatchTimeout time.Duration `yaml:"batch_timeout" envconfig:"BATCH_TIMEOUT"`
}

type NotifyConfig struct {
	TelegramToken  string        `yaml:"telegram_token" envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64         `yaml:"telegram_chat_id" envconfig:"TELEGRAM_CHAT_ID"`
	WebhookURL     string        `yaml:"webhook_url" envconfig:"WEBHOOK_URL"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	MinConfidence  int           `yaml:"min_confidence" envconfig:"MIN_CONFIDENCE"`
	RatePerSecond  float64       `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND"`
	LogAlerts      bool          `yaml:"log_alerts" envconfig:"LOG_ALERTS"`
}

type GatewayConfig struct {
	Enabled    bool `yaml:"enabled" envconfig:"ENABLED"`
	ReplaySize int  `yaml:"replay_size" envconfig:"REPLAY_SIZE"`
}

// Load starts from Default, then applies path (missing file is fine), .env
// (missing is fine) and DEPO_* overrides, and validates. A value set
// explicitly in any layer, zero included, is kept.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if cfg.Service.Originator == "" {
		cfg.Service.Originator = cfg.Service.Name
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for every key left unset.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "depo-indengine",
			LogLevel: "info",
			HTTPAddr: ":9095",
		},
		Engine: EngineConfig{
			BandWidth:   decimal.NewFromInt(2),
			OutputScale: 8,
			Concurrency: 4,
			Mode:        "incremental",
		},
		Pattern: PatternConfig{
			RSIOversold:   decimal.NewFromInt(30),
			RSIOverbought: decimal.NewFromInt(70),
		},
		Schedule: ScheduleConfig{
			// 18:30 New York time, after the close has settled.
			Cron:     "0 30 18 * * 1-5",
			Calendar: markethours.DefaultConfig(),
		},
		Storage: StorageConfig{
			SQLitePath:      "data/depo.db",
			PriceSource:     "sqlite",
			RedisBufferSize: 1000,
		},
		Kafka: KafkaConfig{
			Topic: "depo.pattern-events",
		},
		Notify: NotifyConfig{
			Timeout:       10 * time.Second,
			MinConfidence: 70,
			RatePerSecond: 1,
		},
		Gateway: GatewayConfig{
			ReplaySize: 512,
		},
	}
}

// Validate checks field ranges and cross-field constraints. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Service.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !c.Engine.BandWidth.IsPositive() {
		errs = append(errs, fmt.Errorf("engine.band_width must be positive, got %s", c.Engine.BandWidth))
	}
	if c.Engine.OutputScale < 0 || c.Engine.OutputScale > 16 {
		errs = append(errs, fmt.Errorf("engine.output_scale must be in [0, 16], got %d", c.Engine.OutputScale))
	}
	if c.Engine.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.concurrency must be >= 1, got %d", c.Engine.Concurrency))
	}
	if c.Engine.Mode != "full" && c.Engine.Mode != "incremental" {
		errs = append(errs, fmt.Errorf("engine.mode must be full or incremental, got %q", c.Engine.Mode))
	}

	lo, hi := c.Pattern.RSIOversold, c.Pattern.RSIOverbought
	if lo.IsNegative() || hi.GreaterThan(decimal.NewFromInt(100)) || !lo.LessThan(hi) {
		errs = append(errs, fmt.Errorf("pattern: need 0 <= rsi_oversold < rsi_overbought <= 100, got %s / %s", lo, hi))
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.cron %q: %w", c.Schedule.Cron, err))
	}
	if _, err := markethours.New(c.Schedule.Calendar); err != nil {
		errs = append(errs, fmt.Errorf("schedule.calendar: %w", err))
	}

	switch c.Storage.PriceSource {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required when price_source is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.price_source must be sqlite or postgres, got %q", c.Storage.PriceSource))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == 0) {
		errs = append(errs, errors.New("notify.telegram_token and notify.telegram_chat_id must be set together"))
	}
	if c.Notify.MinConfidence < 0 || c.Notify.MinConfidence > 100 {
		errs = append(errs, fmt.Errorf("notify.min_confidence must be in [0, 100], got %d", c.Notify.MinConfidence))
	}
	if c.Gateway.ReplaySize < 0 {
		errs = append(errs, fmt.Errorf("gateway.replay_size must be >= 0, got %d", c.Gateway.ReplaySize))
	}

	seen := make(map[string]bool, len(c.Assets))
	for i, a := range c.Assets {
		if a.Symbol == "" {
			errs = append(errs, fmt.Errorf("assets[%d]: symbol is required", i))
			continue
		}
		if seen[a.Symbol] {
			errs = append(errs, fmt.Errorf("assets[%d]: duplicate symbol %q", i, a.Symbol))
		}
		seen[a.Symbol] = true
	}
	return errors.Join(errs...)
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("service.log_level: %w", err)
	}
	return l, nil
}
