package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/claude/splitlog/internal/bus"
	"github.com/claude/splitlog/internal/config"
	"github.com/claude/splitlog/internal/mcp"
	"github.com/claude/splitlog/internal/remote"
	"github.com/claude/splitlog/internal/store"
	"github.com/claude/splitlog/internal/syncer"
	"github.com/claude/splitlog/internal/vitals"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP on stdio")
	syncNow := flag.Bool("sync-now", false, "run one sync pass and exit")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("splitlog", Version)
		return
	}

	// In MCP mode stdout belongs to the protocol; log to stderr.
	logOut := os.Stdout
	if *mcpMode {
		logOut = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("splitlog starting", "version", Version)

	// Load config
	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Open store
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("store opened", "path", cfg.Store.Path)

	ctx := context.Background()

	// Seed profile from the vitals export, if one is configured.
	if cfg.Vitals.File != "" {
		seedProfile(ctx, st, cfg.Vitals.File, log)
	}

	// Day rollover: starting the daemon is the "app came to the
	// foreground" moment.
	p, err := st.RolloverPosition(ctx, time.Now())
	if err != nil {
		log.Error("day rollover failed", "error", err)
		os.Exit(1)
	}
	log.Info("day position", "position", p.DayPosition)

	// Sync wiring, when a server is configured.
	var (
		coord  *syncer.Coordinator
		events *bus.Bus[syncer.Event]
	)
	if cfg.Sync.Enabled() {
		client := remote.NewHTTPClient(cfg.Sync.ServerURL, cfg.Sync.APIKey)
		obs := syncer.NewProbeObserver(cfg.Sync.ServerURL, cfg.Sync.ProbeInterval(), log)
		defer obs.Close()
		events = bus.New[syncer.Event](16)
		coord = syncer.New(st, client, obs, events, syncer.Config{
			Budget:   cfg.Sync.Timeout(),
			Interval: cfg.Sync.Interval(),
		}, log)
		log.Info("sync configured", "server", cfg.Sync.ServerURL)
	}

	if *syncNow {
		if coord == nil {
			log.Error("sync-now requires sync.server_url in config")
			os.Exit(1)
		}
		if err := coord.SyncNow(ctx); err != nil {
			log.Error("sync failed", "error", err)
			os.Exit(1)
		}
		if status, err := coord.Status(ctx); err == nil {
			log.Info("sync complete", "pending", status.Dirty, "last_sync", status.LastSync.Format(time.RFC3339))
		}
		return
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Log coordinator events; a headless node has no other surface
	// for them.
	if events != nil {
		ch, cancel := events.Subscribe()
		defer cancel()
		go logEvents(ch, log)
	}

	// Re-check the calendar while running; the position moves at most
	// once per day, every other tick is a no-op.
	go rolloverLoop(runCtx, st, coord, p.DayPosition, log)

	if coord != nil {
		go func() {
			if err := coord.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("coordinator stopped", "error", err)
			}
		}()
	}

	if *mcpMode {
		// A nil *Coordinator must stay a nil interface.
		var sync mcp.Syncer
		if coord != nil {
			sync = coord
		}
		srv := mcp.New(st, sync, Version, log)
		log.Info("serving MCP on stdio")
		if err := mcpserver.ServeStdio(srv); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("mcp server error", "error", err)
			os.Exit(1)
		}
		return
	}

	log.Info("splitlog running")
	<-runCtx.Done()
	log.Info("shutting down")
}

// seedProfile fills unset profile fields from the vitals export. A
// missing or unreadable export is a warning, never fatal: the node
// works without vitals.
func seedProfile(ctx context.Context, st *store.Store, path string, log *slog.Logger) {
	sample, err := vitals.NewFileProvider(path, log).Latest(ctx)
	if err != nil {
		log.Warn("vitals seed skipped", "error", err)
		return
	}
	p, err := st.Profile(ctx)
	if err != nil {
		log.Warn("vitals seed skipped", "error", err)
		return
	}
	if !vitals.SeedProfile(&p, sample) {
		return
	}
	if _, err := st.PutProfile(ctx, p); err != nil {
		log.Warn("saving seeded profile", "error", err)
		return
	}
	log.Info("profile seeded from vitals",
		"height_cm", p.HeightCm, "weight_kg", p.WeightKg, "age", p.Age)
}

func logEvents(ch <-chan syncer.Event, log *slog.Logger) {
	for ev := range ch {
		switch ev.Type {
		case syncer.SyncStarted:
			log.Info("sync started")
		case syncer.SyncSucceeded:
			log.Info("sync succeeded")
		case syncer.SyncFailed:
			log.Warn("sync failed", "error", ev.Err)
		case syncer.QualityChanged:
			log.Info("network quality changed", "quality", ev.Quality)
		}
	}
}

// rolloverLoop advances the day position as calendar days pass and
// kicks a sync pass whenever it moves.
func rolloverLoop(ctx context.Context, st *store.Store, coord *syncer.Coordinator, position int, log *slog.Logger) {
	tick := time.NewTicker(time.Hour)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			p, err := st.RolloverPosition(ctx, time.Now())
			if err != nil {
				log.Warn("day rollover failed", "error", err)
				continue
			}
			if p.DayPosition == position {
				continue
			}
			position = p.DayPosition
			log.Info("day position advanced", "position", position)
			if coord != nil {
				coord.Kick()
			}
		}
	}
}
