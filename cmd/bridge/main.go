package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"qwikswitch-bridge/config"
	"qwikswitch-bridge/internal/coordinator"
	"qwikswitch-bridge/internal/entity"
	"qwikswitch-bridge/internal/infra/qwikswitch"
	"qwikswitch-bridge/internal/queue"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	if cfg.QwikSwitch.Email == "" || cfg.QwikSwitch.MasterKey == "" {
		logger.Error("qwikswitch email and master_key are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	var client *qwikswitch.Client
	if cfg.QwikSwitch.BaseURL != "" {
		client = qwikswitch.NewClientWithURL(cfg.QwikSwitch.Email, cfg.QwikSwitch.MasterKey, cfg.QwikSwitch.BaseURL)
	} else {
		client = qwikswitch.NewClient(cfg.QwikSwitch.Email, cfg.QwikSwitch.MasterKey)
	}

	if err := client.GenerateAPIKeys(ctx); err != nil {
		logger.Error("generating api keys", "error", err)
		os.Exit(1)
	}

	q := queue.New(client, queue.Config{
		WindowCapacity: cfg.Queue.WindowCapacity,
		WindowDuration: parseDuration(cfg.Queue.WindowDuration, 60*time.Second, logger),
		MinSpacing:     parseDuration(cfg.Queue.MinSpacing, 2*time.Second, logger),
	}, logger)

	pollInterval := parseDuration(cfg.Poll.Interval, 5*time.Second, logger)
	coord := coordinator.New(q, pollInterval, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return q.Run(gctx)
	})

	// First refresh so entities start from authoritative state.
	if err := coord.Refresh(gctx); err != nil {
		logger.Error("initial refresh failed", "error", err)
		cancel()
		_ = g.Wait()
		deleteKeys(client, logger)
		os.Exit(1)
	}

	relays, dimmers := entity.FromStatuses(coord.Data(), q, logger)
	for _, r := range relays {
		coord.Subscribe(r)
	}
	for _, d := range dimmers {
		coord.Subscribe(d)
	}
	logger.Info("devices discovered", "relays", len(relays), "dimmers", len(dimmers))

	g.Go(func() error {
		return coord.Run(gctx)
	})

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bridge error", "error", err)
	}

	deleteKeys(client, logger)
}

// deleteKeys mirrors key generation at startup: every exit path revokes the
// keys so they do not persist beyond this process.
func deleteKeys(client *qwikswitch.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.DeleteAPIKeys(ctx); err != nil {
		logger.Warn("could not delete api keys", "error", err)
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func parseDuration(value string, fallback time.Duration, logger *slog.Logger) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration, using default", "value", value, "default", fallback)
		return fallback
	}
	return d
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
