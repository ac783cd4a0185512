package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"campusmap/internal/assistant"
	"campusmap/internal/calendar"
	"campusmap/internal/capture"
	"campusmap/internal/config"
	"campusmap/internal/feed"
	appLog "campusmap/internal/log"
	"campusmap/internal/refresh"
	"campusmap/internal/store"
)

const version = "0.3.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "campusmap",
	Short:         "Campus events map and shuttle API",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./campusmap.yaml", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads .env (if present), the YAML config and environment
// overrides, in that order.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("failed to read .env", "err", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// setupLogging applies the log level and, when configured, the rotating
// log file. The returned closer is never nil.
func setupLogging(cfg *config.Config) io.Closer {
	appLog.SetLevel(appLog.ParseLevel(cfg.Log.Level))
	if cfg.Log.File == "" {
		return io.NopCloser(nil)
	}
	return appLog.UseFile(appLog.FileConfig{Path: cfg.Log.File})
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func sourcesFrom(cfg *config.Config) []feed.Source {
	out := make([]feed.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if s.URL == "" {
			continue
		}
		out = append(out, feed.Source{
			ID:     s.ID,
			Name:   s.Name,
			Kind:   feed.Kind(s.Kind),
			URL:    s.URL,
			Render: s.Render,
		})
	}
	return out
}

func openStore(ctx context.Context, cfg *config.Config) (*store.SQLite, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newRefresher(cfg *config.Config, mem *store.Memory, db *store.SQLite) *refresh.Refresher {
	fetcher := feed.NewFetcher(cfg.CacheDir())
	fetcher.Renderer = capture.Renderer{Timeout: 30 * time.Second}

	r := &refresh.Refresher{
		Fetcher:     fetcher,
		Sources:     sourcesFrom(cfg),
		Memory:      mem,
		Location:    calendar.ResolveLocation(cfg.Timezone),
		HorizonDays: cfg.HorizonDays,
	}
	if db != nil {
		r.DB = db
	}
	return r
}

// newAssistant returns nil when no API key is configured.
func newAssistant(cfg *config.Config) *assistant.Client {
	counter, err := assistant.NewTiktokenCounter(cfg.LLM.Model)
	if err != nil {
		appLog.Warn("token counter unavailable; event snapshot will not be trimmed", "model", cfg.LLM.Model, "err", err)
	}
	var c assistant.Counter
	if counter != nil {
		c = counter
	}

	client, err := assistant.New(assistant.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       cfg.LLM.Temperature,
		MaxContextTokens:  cfg.LLM.MaxContextTokens,
		OutputReserve:     cfg.LLM.OutputReserve,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Location:          calendar.ResolveLocation(cfg.Timezone),
	}, c)
	if err != nil {
		appLog.Info("event assistant disabled", "reason", err.Error())
		return nil
	}
	return client
}
