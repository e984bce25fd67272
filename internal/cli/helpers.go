package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/w3bsuki/strike-ab/internal/config"
	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/events"
	"github.com/w3bsuki/strike-ab/internal/logging"
	"github.com/w3bsuki/strike-ab/internal/store"
)

// loadConfig resolves config file, environment and flags, in that order.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.driver != "" && o.driver != cfg.Store.Driver {
		cfg.Store.Driver = o.driver
		cfg.Store.DSN = ""
	}
	if o.dbPath != "" {
		cfg.Store.DSN = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runtime is what a command needs once config is resolved.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine
}

// open builds the engine. Events always go to the log at debug level; extra
// sinks are added alongside.
func (o *rootOptions) open(cmd *cobra.Command, sinks ...events.Sink) (*runtime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	s, err := store.OpenDriver(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sink := events.Multi(append([]events.Sink{events.NewLogSink(logger, slog.LevelDebug)}, sinks...)...)
	return &runtime{
		cfg:    cfg,
		logger: logger,
		engine: engine.New(s, engine.WithLogger(logger), engine.WithSink(sink)),
	}, nil
}

// withEngine opens the engine, executes the function, and handles cleanup.
func withEngine(cmd *cobra.Command, o *rootOptions, fn func(*engine.Engine) error) error {
	rt, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer rt.engine.Close()

	return fn(rt.engine)
}

func notFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("experiment '%s' not found", id)
	}
	return err
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
