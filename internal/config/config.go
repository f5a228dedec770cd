// Package config binds the service configuration from flags, environment and an optional file.
package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	StoreFS    = "fs"
	StoreNvram = "nvram"

	DefaultDuration = time.Hour
	// MaxDuration bounds a single countdown.
	MaxDuration = 30 * 24 * time.Hour
)

type Config struct {
	Log       Log
	HTTP      HTTP
	Accessory Accessory
	Store     Store
	Countdown Countdown
}

type Log struct {
	Level int
}

type HTTP struct {
	Port int
	// RateLimit is the sustained number of control requests per second.
	RateLimit float64
	RateBurst int
}

type Accessory struct {
	Name string
}

type Store struct {
	Kind        string
	Path        string
	NvramPrefix string
}

type Countdown struct {
	Duration  time.Duration
	Frequency time.Duration
}

func init() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", int(logrus.InfoLevel))
	v.SetDefault("http.port", 30001)
	v.SetDefault("http.ratelimit", 5.0)
	v.SetDefault("http.rateburst", 10)
	v.SetDefault("accessory.name", "timer")
	v.SetDefault("store.kind", StoreFS)
	v.SetDefault("store.path", "./db")
	v.SetDefault("store.nvramprefix", "hkt_")
	v.SetDefault("countdown.duration", DefaultDuration)
	v.SetDefault("countdown.frequency", time.Second)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("log.level", "HKC_LOG_LEVEL")

	_ = v.BindEnv("http.port", "HKC_PORT")
	_ = v.BindEnv("http.ratelimit", "HKC_RATE_LIMIT")
	_ = v.BindEnv("http.rateburst", "HKC_RATE_BURST")

	_ = v.BindEnv("accessory.name", "HKC_ACCESSORY_NAME")

	_ = v.BindEnv("store.kind", "HKC_STORE")
	_ = v.BindEnv("store.path", "HKC_STORE_PATH")
	_ = v.BindEnv("store.nvramprefix", "HKC_NVRAM_PREFIX")

	_ = v.BindEnv("countdown.duration", "HKC_DURATION")
	_ = v.BindEnv("countdown.frequency", "HKC_FREQUENCY")
}

// Get reads the configuration bound on the global viper instance.
func Get() (Config, error) {
	return Load(viper.GetViper())
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.RateLimit <= 0 {
		return fmt.Errorf("http rate limit must be positive, got %v", c.HTTP.RateLimit)
	}
	if c.HTTP.RateBurst <= 0 {
		return fmt.Errorf("http rate burst must be positive, got %d", c.HTTP.RateBurst)
	}
	switch c.Store.Kind {
	case StoreFS:
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the %q store", StoreFS)
		}
	case StoreNvram:
		if c.Store.NvramPrefix == "" {
			return fmt.Errorf("nvram prefix is required for the %q store", StoreNvram)
		}
	default:
		return fmt.Errorf("unknown store %q, expected %q or %q", c.Store.Kind, StoreFS, StoreNvram)
	}
	return c.Countdown.Validate()
}

func (c Countdown) Validate() error {
	if c.Duration <= 0 || c.Duration > MaxDuration {
		return fmt.Errorf("countdown duration %s must be in (0, %s]", c.Duration, MaxDuration)
	}
	if c.Frequency <= 0 {
		return fmt.Errorf("countdown frequency must be positive, got %s", c.Frequency)
	}
	return nil
}
