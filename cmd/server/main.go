package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/nodealert/internal/api"
	"github.com/gyaneshwarpardhi/nodealert/internal/config"
	"github.com/gyaneshwarpardhi/nodealert/internal/engine"
	"github.com/gyaneshwarpardhi/nodealert/internal/fixture"
	"github.com/gyaneshwarpardhi/nodealert/internal/groups"
	"github.com/gyaneshwarpardhi/nodealert/internal/puppetdb"
	"github.com/gyaneshwarpardhi/nodealert/internal/schedule"
	"github.com/gyaneshwarpardhi/nodealert/internal/sink"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/rules.yaml", "Path to rules YAML config")
	fixturePath := flag.String("fixture", "", "Serve node data from a YAML fixture instead of PuppetDB")
	historySize := flag.Int("trigger-history", 1000, "Number of recent triggers kept for GET /v1/triggers")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	slog.Info("rules loaded", "rules", len(cfg.Rules), "groups", len(cfg.Groups))

	// ── Node data source ─────────────────────────────────────────────────────
	var nodes engine.NodeSource
	if *fixturePath != "" {
		src, err := fixture.Load(*fixturePath)
		if err != nil {
			slog.Error("failed to load fixture", "err", err)
			os.Exit(1)
		}
		nodes = src
		slog.Info("serving node data from fixture", "path", *fixturePath)
	} else {
		client, err := puppetdb.NewClient(cfg.PuppetDB)
		if err != nil {
			slog.Error("failed to create PuppetDB client", "err", err)
			os.Exit(1)
		}
		nodes = client
	}

	groupSource, err := groups.NewStatic(cfg.Groups)
	if err != nil {
		slog.Error("failed to compile groups", "err", err)
		os.Exit(1)
	}

	// ── Trigger sinks ────────────────────────────────────────────────────────
	history := sink.NewMemory(*historySize)
	reg := sink.NewRegistry()
	reg.Register(history)
	reg.Register(sink.NewLog(logger))

	// ── Engine ───────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(ctx, nodes, cfg.Engine,
		engine.WithSink(reg),
		engine.WithGroupSource(groupSource),
		engine.WithLogger(logger))

	// ── Scheduled passes ─────────────────────────────────────────────────────
	sched, err := schedule.New(ctx, cfg.Engine.Schedule, func(ctx context.Context) {
		if _, err := eng.RunPass(ctx, "scheduled", loader.Config().AlertRules()); err != nil {
			slog.Error("scheduled pass failed", "err", err)
		}
	}, logger)
	if err != nil {
		slog.Error("failed to schedule passes", "err", err)
		os.Exit(1)
	}
	sched.Start()

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := groupSource.Update(newCfg.Groups); err != nil {
			slog.Warn("group reload failed, keeping previous groups", "err", err)
		}
		if err := sched.Reschedule(newCfg.Engine.Schedule); err != nil {
			slog.Warn("schedule reload failed, keeping previous schedule", "err", err)
		}
		eng.InvalidateCache()
		slog.Info("rules hot-reloaded", "rules", len(newCfg.Rules))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	handler := api.New(eng, loader, reg)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Engine.PassTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr, "schedule", sched.Schedule())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // abort running passes
	sched.Stop()
	eng.Shutdown()
	slog.Info("goodbye")
}
