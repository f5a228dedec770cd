package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	require.Equal(t, int(logrus.InfoLevel), cfg.Log.Level)
	require.Equal(t, 30001, cfg.HTTP.Port)
	require.Equal(t, "timer", cfg.Accessory.Name)
	require.Equal(t, StoreFS, cfg.Store.Kind)
	require.Equal(t, "./db", cfg.Store.Path)
	require.Equal(t, time.Hour, cfg.Countdown.Duration)
	require.Equal(t, time.Second, cfg.Countdown.Frequency)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("HKC_PORT", "8080")
	t.Setenv("HKC_STORE", "nvram")
	t.Setenv("HKC_DURATION", "25m")
	t.Setenv("HKC_FREQUENCY", "500ms")
	t.Setenv("HKC_LOG_LEVEL", "5")

	cfg, err := Load(newViper())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.HTTP.Port)
	require.Equal(t, StoreNvram, cfg.Store.Kind)
	require.Equal(t, 25*time.Minute, cfg.Countdown.Duration)
	require.Equal(t, 500*time.Millisecond, cfg.Countdown.Frequency)
	require.Equal(t, int(logrus.TraceLevel), cfg.Log.Level)
}

func TestLoadPanicLevelKept(t *testing.T) {
	t.Setenv("HKC_LOG_LEVEL", "0")

	cfg, err := Load(newViper())
	require.NoError(t, err)
	require.Equal(t, int(logrus.PanicLevel), cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accessory:
  name: kitchen
countdown:
  duration: 90s
  frequency: 250ms
`), 0o600))

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "kitchen", cfg.Accessory.Name)
	require.Equal(t, 90*time.Second, cfg.Countdown.Duration)
	require.Equal(t, 250*time.Millisecond, cfg.Countdown.Frequency)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			HTTP:      HTTP{Port: 30001, RateLimit: 1, RateBurst: 1},
			Store:     Store{Kind: StoreFS, Path: "./db"},
			Countdown: Countdown{Duration: time.Minute, Frequency: time.Second},
		}
	}

	cases := map[string]struct {
		mutate      func(c *Config)
		expectError string
	}{
		"valid": {
			mutate: func(c *Config) {},
		},
		"bad port": {
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: "http port 70000 out of range",
		},
		"zero rate limit": {
			mutate:      func(c *Config) { c.HTTP.RateLimit = 0 },
			expectError: "http rate limit must be positive",
		},
		"unknown store": {
			mutate:      func(c *Config) { c.Store.Kind = "s3" },
			expectError: `unknown store "s3"`,
		},
		"nvram without prefix": {
			mutate:      func(c *Config) { c.Store = Store{Kind: StoreNvram} },
			expectError: "nvram prefix is required",
		},
		"zero duration": {
			mutate:      func(c *Config) { c.Countdown.Duration = 0 },
			expectError: "countdown duration 0s must be in",
		},
		"duration over maximum": {
			mutate:      func(c *Config) { c.Countdown.Duration = MaxDuration + time.Second },
			expectError: "countdown duration",
		},
		"zero frequency": {
			mutate:      func(c *Config) { c.Countdown.Frequency = 0 },
			expectError: "countdown frequency must be positive",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.expectError == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.expectError)
		})
	}
}
