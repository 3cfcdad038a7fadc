package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chorus/internal/bus"
	"github.com/nextlevelbuilder/chorus/internal/config"
	"github.com/nextlevelbuilder/chorus/internal/disposition"
	"github.com/nextlevelbuilder/chorus/internal/facts"
	factspg "github.com/nextlevelbuilder/chorus/internal/facts/pg"
	factssqlite "github.com/nextlevelbuilder/chorus/internal/facts/sqlite"
	"github.com/nextlevelbuilder/chorus/internal/gateway"
	"github.com/nextlevelbuilder/chorus/internal/orchestrator"
	"github.com/nextlevelbuilder/chorus/internal/state"
	"github.com/nextlevelbuilder/chorus/internal/store"
	"github.com/nextlevelbuilder/chorus/internal/store/memory"
	storeredis "github.com/nextlevelbuilder/chorus/internal/store/redis"
	"github.com/nextlevelbuilder/chorus/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry is opt-in; a failed exporter setup is fatal only because it
	// means the operator asked for traces and isn't getting any.
	if cfg.Telemetry.Enabled {
		shutdown, telErr := telemetry.Setup(ctx, cfg.Telemetry)
		if telErr != nil {
			slog.Error("telemetry setup failed", "error", telErr)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	st := openStore(ctx, cfg)
	defer st.Close()

	sources, cleanup := openSources(cfg)
	defer cleanup()

	states := state.NewService(st, cfg.Orchestrator.StateOptions())
	scorer := disposition.NewScorer(sources, cfg.Orchestrator.ScorerOptions())
	selector := disposition.NewSelector(cfg.Orchestrator.SelectorOptions())
	events := bus.NewMemoryBus()

	// No responder is wired at the CLI level: the generation pipeline hangs
	// off the responder.selected / typing.* events on the WebSocket side.
	orch := orchestrator.New(states, scorer, selector, sources, events, nil,
		cfg.Orchestrator.OrchestratorOptions())

	// Hot-reload tunables on config file changes. Backend selection
	// (store/facts) stays fixed until restart.
	stopWatch, watchErr := config.Watch(cfgPath, func(next *config.Config) {
		states.SetOptions(next.Orchestrator.StateOptions())
		scorer.SetOptions(next.Orchestrator.ScorerOptions())
		selector.SetOptions(next.Orchestrator.SelectorOptions())
		slog.Info("config reloaded", "path", cfgPath)
	})
	if watchErr != nil {
		slog.Warn("config watch disabled", "error", watchErr)
	} else {
		defer stopWatch()
	}

	srv := gateway.NewServer(cfg, events, orch)
	if err := srv.Start(ctx); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}

	// Let in-flight respond cycles finish their state transitions.
	orch.Wait()
	slog.Info("shutdown complete")
}

// openStore selects the expiring-store backend. Redis gets an in-process
// memory fallback so a broker outage degrades to per-instance state instead
// of taking orchestration down.
func openStore(ctx context.Context, cfg *config.Config) store.Store {
	if cfg.Store.Backend == "redis" && cfg.Store.RedisURL != "" {
		rs, err := storeredis.Open(ctx, cfg.Store.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, using memory store", "error", err)
			return memory.New()
		}
		slog.Info("state store: redis with memory failover")
		return store.NewFailover(rs, memory.New())
	}
	slog.Info("state store: memory")
	return memory.New()
}

// openSources selects the external-facts backend and returns it with a
// cleanup func for the underlying DB handle.
func openSources(cfg *config.Config) (facts.Sources, func()) {
	if cfg.Facts.Backend == "postgres" && cfg.Facts.PostgresDSN != "" {
		db, err := factspg.OpenDB(cfg.Facts.PostgresDSN)
		if err != nil {
			slog.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		slog.Info("facts backend: postgres")
		return factspg.NewSources(db), func() { db.Close() }
	}

	path := config.ExpandPath(cfg.Facts.SQLitePath)
	db, err := factssqlite.OpenDB(path)
	if err != nil {
		slog.Error("sqlite open failed", "path", path, "error", err)
		os.Exit(1)
	}
	slog.Info("facts backend: sqlite", "path", path)
	return factssqlite.NewSources(db), func() { db.Close() }
}
