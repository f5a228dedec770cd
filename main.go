package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"hkcountdown/internal/config"
	"hkcountdown/internal/countdown"
	"hkcountdown/internal/metrics"
	"hkcountdown/internal/requirements"
)

// Set via -ldflags during a release.
var Version = "local"

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "hkcountdown",
		Short:             "HomeKit switch that turns on when a countdown ends",
		SilenceUsage:      true,
		PersistentPreRunE: preRun,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Get()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "Path to YAML config file")
	flags.Int("log-level", int(logrus.InfoLevel), "Log level (0-6)")
	flags.Int("port", 30001, "HTTP server port")
	flags.String("name", "timer", "HomeKit accessory name")
	flags.String("store", config.StoreFS, "Pairing store: fs or nvram")
	flags.String("store-path", "./db", "Directory of the fs pairing store")
	flags.Duration("duration", config.DefaultDuration, "Countdown duration")
	flags.Duration("frequency", countdown.DefaultFrequency, "Countdown tick period")

	bindFlag(flags, "log.level", "log-level")
	bindFlag(flags, "http.port", "port")
	bindFlag(flags, "accessory.name", "name")
	bindFlag(flags, "store.kind", "store")
	bindFlag(flags, "store.path", "store-path")
	bindFlag(flags, "countdown.duration", "duration")
	bindFlag(flags, "countdown.frequency", "frequency")

	return cmd
}

func bindFlag(flags *pflag.FlagSet, key, name string) {
	_ = viper.BindPFlag(key, flags.Lookup(name))
}

func preRun(_ *cobra.Command, _ []string) error {
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_PATH")
	}
	if cfgFile == "" {
		return nil
	}

	viper.SetConfigType("yaml")
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", cfgFile, err)
	}
	return nil
}

func newStore(cfg config.Store, log logrus.FieldLogger) hap.Store {
	if cfg.Kind == config.StoreNvram {
		return newNvramStore(cfg.NvramPrefix, execNvram{}, log)
	}
	return hap.NewFsStore(cfg.Path)
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logrus.New()
	logger.SetLevel(logrus.Level(cfg.Log.Level))
	log := logger.WithField("version", Version)

	a := accessory.NewSwitch(accessory.Info{
		Name: cfg.Accessory.Name,
	})
	a.Switch.On.OnValueRemoteUpdate(func(on bool) {
		log.WithField("on", on).Info("switch toggled remotely")
	})

	store := newStore(cfg.Store, log)
	server, err := hap.NewServer(store, a.A)
	if err != nil {
		return fmt.Errorf("creating HAP server: %w", err)
	}
	server.Addr = fmt.Sprintf(":%d", cfg.HTTP.Port)

	sess := newSession(log, countdown.NewRealScheduler(), func(elapsed countdown.Clock) {
		log.WithField("total_elapsed", elapsed.String()).Info("switching on via countdown")
		a.Switch.On.SetValue(true)
	})
	sess.onStart = func() {
		a.Switch.On.SetValue(false)
	}
	if err := sess.Configure(cfg.Countdown.Duration, cfg.Countdown.Frequency); err != nil {
		return err
	}
	defer sess.Close()

	if err := metrics.RegisterRemaining(func() float64 {
		return sess.Remaining().Seconds()
	}); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	agg := requirements.NewAggregator(storeRequirement(store), sess)
	limiter := rate.NewLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.RateBurst)
	registerRoutes(server.ServeMux(), sess, agg, limiter, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			log.Info("stopping hkcountdown")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()

	log.WithFields(logrus.Fields{
		"addr":     server.Addr,
		"store":    cfg.Store.Kind,
		"duration": cfg.Countdown.Duration,
	}).Info("starting hkcountdown")

	if err := server.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serving HAP: %w", err)
	}
	return nil
}
