package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var (
	ServiceName    = "pair-engine"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	Port                    map[string]string         `mapstructure:"port"`
	Exchanges               map[string]ExchangeConfig `mapstructure:"exchanges"`
	Database                map[string]DatabaseConfig `mapstructure:"database"`
	Redis                   map[string]RedisConfig    `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig       `mapstructure:"nats_jetstream"`
	Order                   OrderConfig               `mapstructure:"order"`
	Tick                    TickConfig                `mapstructure:"tick"`
	Pairs                   []PairConfig              `mapstructure:"pairs"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

// OrderConfig controls the executor's submit retry loop.
type OrderConfig struct {
	Retry   int           `mapstructure:"retry"`
	RetryMs time.Duration `mapstructure:"retry_ms"`
}

func (c OrderConfig) RetryLimit() int {
	if c.Retry <= 0 {
		return 4
	}

	return c.Retry
}

func (c OrderConfig) RetryDelay() time.Duration {
	if c.RetryMs <= 0 {
		return 1500 * time.Millisecond
	}

	return c.RetryMs
}

// TickConfig holds the recurring timer cadences.
type TickConfig struct {
	Ordering time.Duration `mapstructure:"ordering"`
	Watchdog time.Duration `mapstructure:"watchdog"`
}

func (c TickConfig) OrderingInterval() time.Duration {
	if c.Ordering <= 0 {
		return 10800 * time.Millisecond
	}

	return c.Ordering
}

func (c TickConfig) WatchdogInterval() time.Duration {
	if c.Watchdog <= 0 {
		return 10 * time.Second
	}

	return c.Watchdog
}

type ExchangeConfig struct {
	Name      string `mapstructure:"name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	WSURL     string `mapstructure:"ws_url"`
}

type NatsJetstreamConfig struct {
	URL             string                   `mapstructure:"url"`
	MaxRetries      int                      `mapstructure:"max_retries"`
	ReconnectFactor float64                  `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration            `mapstructure:"min_jitter"`
	MaxJitter       time.Duration            `mapstructure:"max_jitter"`
	TimeoutHandler  map[string]time.Duration `mapstructure:"timeout_handler"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type RedisConfig struct {
	CacheDSN string `mapstructure:"cache_dsn"`
}

// PairConfig declares one managed instrument: its entry sizing and the
// watchdogs guarding its live positions.
type PairConfig struct {
	Exchange  string           `mapstructure:"exchange"`
	Symbol    string           `mapstructure:"symbol"`
	Capital   CapitalConfig    `mapstructure:"capital"`
	Watchdogs []WatchdogConfig `mapstructure:"watchdogs"`
}

// CapitalConfig maps onto the capital tagged union; the first populated field
// wins in asset, currency, balance order.
type CapitalConfig struct {
	Asset    decimal.Decimal `mapstructure:"asset"`
	Currency decimal.Decimal `mapstructure:"currency"`
	Balance  decimal.Decimal `mapstructure:"balance"`
}

type WatchdogConfig struct {
	Name          string          `mapstructure:"name"`
	Percent       decimal.Decimal `mapstructure:"percent"`
	Stop          decimal.Decimal `mapstructure:"stop"`
	StopPercent   decimal.Decimal `mapstructure:"stop_percent"`
	TargetPercent decimal.Decimal `mapstructure:"target_percent"`
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}
