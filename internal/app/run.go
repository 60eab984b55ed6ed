package app

import (
	"context"
	"fmt"

	"github.com/vk/botgraph/internal/config"
	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/database"
	"github.com/vk/botgraph/internal/debug"
	"github.com/vk/botgraph/internal/defsource"
	"github.com/vk/botgraph/internal/engine"
	"github.com/vk/botgraph/internal/gateway"
	"github.com/vk/botgraph/internal/manager"
	"github.com/vk/botgraph/internal/trace"
	"github.com/vk/botgraph/internal/tracestore"
	"github.com/vk/botgraph/internal/varstore"
)

// Run starts the interpreter and blocks until ctx is cancelled, then shuts
// the gateway down.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	s := a.settings
	a.logger.Debug("App.Run method started.")

	var db *database.Client
	if s.Definitions.Source == config.SourceSQL || s.Traces.Backend == config.TraceSQL {
		var err error
		if db, err = database.Open(ctx, s.Database); err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				a.logger.Error("Failed to close database.", "error", err)
			}
		}()
	}

	store, closeStore, err := openTraceStore(ctx, s, db)
	if err != nil {
		return err
	}
	defer closeStore()

	source, sink, err := openSource(ctx, s, db)
	if err != nil {
		return err
	}

	traces := trace.NewCollector(store, s.Traces.HistorySize)
	dbg := debug.NewManager()
	eng := engine.New(a.registry, traces, dbg, engine.Config{MaxDepth: s.Engine.MaxDepth})

	var opts []manager.Option
	if sink != nil {
		opts = append(opts, manager.WithIntentSink(sink))
	}
	bots := gateway.NewBots()
	telemetry := gateway.NewTelemetry()
	mgr := manager.New(eng, source, bots, varstore.New(), telemetry, opts...)

	for _, owner := range s.Owners {
		if _, err := mgr.Load(ctx, owner); err != nil {
			a.logger.Error("Failed to preload owner.", "owner", owner, "error", err)
		}
	}

	srv := gateway.New(gateway.Config{Port: s.Server.Port}, bots, mgr, gateway.NewDebugService(dbg, traces, mgr), telemetry)
	addr, err := srv.Start(ctx)
	if err != nil {
		return err
	}
	a.ready <- addr
	a.logger.Info("botgraph started.", "address", addr, "node_types", a.registry.Len(), "definitions", s.Definitions.Source, "traces", s.Traces.Backend)

	<-ctx.Done()
	a.logger.Debug("Shutdown requested.")
	if err := srv.Close(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("gateway shutdown failed: %w", err)
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

func openTraceStore(ctx context.Context, s *config.Settings, db *database.Client) (trace.Store, func(), error) {
	noop := func() {}
	switch s.Traces.Backend {
	case config.TraceSQL:
		st := tracestore.NewSQLStore(db)
		if err := st.Migrate(ctx); err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	case config.TraceRedis:
		st, err := tracestore.NewRedisStore(ctx, s.Traces.RedisURL, s.Traces.TTL())
		if err != nil {
			return nil, noop, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				ctxlog.FromContext(ctx).Error("Failed to close trace store.", "error", err)
			}
		}, nil
	}
	return nil, noop, nil
}

func openSource(ctx context.Context, s *config.Settings, db *database.Client) (defsource.Source, *defsource.SQLSource, error) {
	if s.Definitions.Source == config.SourceSQL {
		src := defsource.NewSQLSource(db)
		if err := src.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return src, src, nil
	}
	return defsource.NewFileSource(s.Definitions.Path), nil, nil
}
