package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/botgraph/internal/config"
	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	settings *config.Settings
	registry *registry.Registry
	ready    chan string
}

// NewApp is the constructor for the main application. It loads the
// settings, applies the CLI overrides in cfg, configures an isolated logger
// and registers the node modules (the core modules when none are given).
// Invalid settings and registration conflicts are startup errors and
// panic.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	settings, err := config.Load(cfg.ConfigPath, cfg.EnvFile)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	applyOverrides(settings, cfg)
	if err := settings.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	logger := newLogger(settings.Log, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules(settings)
	}
	reg.RegisterModules(modules...)
	ctxlog.FromContext(ctx).Debug("All node modules registered.", "modules", len(modules), "types", reg.Len())

	return &App{
		outW:     outW,
		logger:   logger,
		settings: settings,
		registry: reg,
		ready:    make(chan string, 1),
	}
}

func applyOverrides(s *config.Settings, cfg *Config) {
	if cfg.LogLevel != "" {
		s.Log.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		s.Log.Format = cfg.LogFormat
	}
	if cfg.Port >= 0 {
		s.Server.Port = cfg.Port
	}
	if cfg.GraphsPath != "" {
		s.Definitions.Source = config.SourceFile
		s.Definitions.Path = cfg.GraphsPath
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Settings returns the effective settings.
func (a *App) Settings() *config.Settings {
	return a.settings
}

// Ready delivers the gateway's listen address once Run has started it.
func (a *App) Ready() <-chan string {
	return a.ready
}
