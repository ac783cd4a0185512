package main

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"campusmap/internal/calendar"
	"campusmap/internal/cluster"
	appLog "campusmap/internal/log"
	"campusmap/internal/model"
	"campusmap/internal/refresh"
	"campusmap/internal/shuttle"
	"campusmap/internal/store"
	"campusmap/internal/web"
)

var serveListen string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the API and refresh events on schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupLogging(cfg).Close()
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	appLog.Info("campusmap starting",
		"version", version,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"sources", len(cfg.Sources),
		"assistant", cfg.LLM.APIKey != "",
	)

	ctx, cancel := signalContext()
	defer cancel()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	mem := &store.Memory{}
	if snap, ok, err := db.LatestSnapshot(ctx); err != nil {
		appLog.Error("failed to load stored snapshot", err)
	} else if ok {
		mem.Swap(snap)
		appLog.Info("serving stored snapshot until first refresh", "snapshot", snap.ID.String(), "event_count", len(snap.Events))
	}

	opts := web.Options{
		Snapshots:   mem,
		Directory:   loadDirectory(cfg.Buildings),
		Routes:      loadRoutes(cfg.Shuttle.Output),
		Location:    calendar.ResolveLocation(cfg.Timezone),
		CORSOrigins: cfg.CORSOrigins,
	}
	if client := newAssistant(cfg); client != nil {
		opts.Assistant = client
	}

	refresher := newRefresher(cfg, mem, db)
	sched, err := refresh.NewScheduler(ctx, cfg.RefreshCron, refresher)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		if _, err := refresher.Run(ctx); err != nil {
			appLog.Error("initial refresh failed", err)
		}
	}()

	return web.StartServer(ctx, cfg.Listen, web.NewServer(opts))
}

func loadDirectory(path string) []model.Building {
	dir, err := cluster.LoadDirectory(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Warn("no building directory; only events with coordinates are mapped", "path", path)
		} else {
			appLog.Error("failed to load building directory", err, "path", path)
		}
		return nil
	}
	appLog.Info("building directory loaded", "path", path, "buildings", len(dir))
	return dir
}

func loadRoutes(path string) []model.ShuttleRoute {
	routes, err := shuttle.LoadRoutes(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Warn("no shuttle routes file; run `campusmap shuttles build`", "path", path)
		} else {
			appLog.Error("failed to load shuttle routes", err, "path", path)
		}
		return nil
	}
	return routes
}
