package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/engine"
)

// Config is read from an optional file and TTT_* environment variables.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	RedisURL       string        `mapstructure:"redis_url"`
	ScoreTTL       time.Duration `mapstructure:"score_ttl"`
	SearchOrder    string        `mapstructure:"search_order"`
	SearchParallel bool          `mapstructure:"search_parallel"`
	LogLevel       string        `mapstructure:"log_level"`
	LogDev         bool          `mapstructure:"log_dev"`
	SSEHeartbeat   time.Duration `mapstructure:"sse_heartbeat"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("redis_url", "")
	v.SetDefault("score_ttl", 30*24*time.Hour)
	v.SetDefault("search_order", engine.OrderShuffled.String())
	v.SetDefault("search_parallel", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dev", false)
	v.SetDefault("sse_heartbeat", 15*time.Second)
}

// Load reads cfgPath when non-empty, then applies environment overrides.
func Load(cfgPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.Order(); err != nil {
		return nil, err
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Order is the parsed search order.
func (c Config) Order() (engine.Order, error) {
	return engine.ParseOrder(c.SearchOrder)
}

// Level is the parsed log level.
func (c Config) Level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Searcher builds the engine configured for bot moves.
func (c Config) Searcher() (*engine.Searcher, error) {
	order, err := c.Order()
	if err != nil {
		return nil, err
	}
	return engine.New(engine.WithOrder(order), engine.WithParallel(c.SearchParallel)), nil
}

// NewLogger builds a production logger, or a development one with LogDev.
func (c Config) NewLogger() (*zap.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
