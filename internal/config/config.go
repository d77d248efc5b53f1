// Package config loads service configuration from a yaml file with
// environment overrides. Every knob has a default so a zero-config run
// works.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Venues     VenuesConfig     `mapstructure:"venues"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

type DispatcherConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
	JournalDir  string        `mapstructure:"journal_dir"` // empty disables the journal
}

type VenueConfig struct {
	BasePrice       float64       `mapstructure:"base_price"`
	Bias            float64       `mapstructure:"bias"`
	Spread          float64       `mapstructure:"spread"`
	Fee             float64       `mapstructure:"fee"`
	Latency         time.Duration `mapstructure:"latency"`
	UnavailableRate float64       `mapstructure:"unavailable_rate"`
}

type VenuesConfig struct {
	Raydium VenueConfig `mapstructure:"raydium"`
	Meteora VenueConfig `mapstructure:"meteora"`
}

type ExecutionConfig struct {
	BuildDelay time.Duration `mapstructure:"build_delay"`
	MinDelay   time.Duration `mapstructure:"min_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	RevertRate float64       `mapstructure:"revert_rate"`
}

// Load reads the config file at path (optional) and applies SWAPFLOW_*
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("swapflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "swapflow.db")

	v.SetDefault("dispatcher.workers", 10)
	v.SetDefault("dispatcher.queue_size", 1024)
	v.SetDefault("dispatcher.max_attempts", 3)
	v.SetDefault("dispatcher.backoff_base", "500ms")
	v.SetDefault("dispatcher.backoff_max", "30s")
	v.SetDefault("dispatcher.journal_dir", "data/journal")

	// Venue A quotes a little tighter than venue B, mirroring the mock
	// router this service grew out of.
	v.SetDefault("venues.raydium.base_price", 1.0)
	v.SetDefault("venues.raydium.bias", 0.98)
	v.SetDefault("venues.raydium.spread", 0.04)
	v.SetDefault("venues.raydium.fee", 0.003)
	v.SetDefault("venues.raydium.latency", "200ms")
	v.SetDefault("venues.raydium.unavailable_rate", 0.0)

	v.SetDefault("venues.meteora.base_price", 1.0)
	v.SetDefault("venues.meteora.bias", 0.97)
	v.SetDefault("venues.meteora.spread", 0.05)
	v.SetDefault("venues.meteora.fee", 0.002)
	v.SetDefault("venues.meteora.latency", "200ms")
	v.SetDefault("venues.meteora.unavailable_rate", 0.0)

	v.SetDefault("execution.build_delay", "200ms")
	v.SetDefault("execution.min_delay", "2s")
	v.SetDefault("execution.max_delay", "3s")
	v.SetDefault("execution.revert_rate", 0.05)
}
