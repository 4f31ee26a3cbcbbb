package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"paradexfeed/internal/config"
	"paradexfeed/internal/dispatch"
	"paradexfeed/internal/feed"
	"paradexfeed/internal/metrics"
	"paradexfeed/internal/registry"
	"paradexfeed/internal/sim"
	"paradexfeed/internal/sink"
	"paradexfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to config file")
	simulate := flag.Bool("simulate", false, "replay simulated events instead of connecting")
	flag.Parse()

	// Local overrides live in .env; missing file is fine.
	godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *simulate {
		cfg.Simulation.Enabled = true
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Feed.WSURL,
		"subscriptions", len(cfg.Subscriptions),
		"simulation", cfg.Simulation.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("monitor failed", "error", err)
		os.Exit(1)
	}

	logger.Info("monitor stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// stop ends the whole group; a finished simulation calls it too.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	m := metrics.New()

	// Event dispatcher with the configured queue policy.
	disp := dispatch.New(dispatch.Config{
		QueueSize: cfg.Dispatch.QueueSize,
		Overflow:  dispatch.OverflowPolicy(cfg.Dispatch.Overflow),
	}, logger, m)
	defer disp.Close()

	if err := disp.RegisterAll("console", consoleConsumer(logger)); err != nil {
		return fmt.Errorf("register console consumer: %w", err)
	}

	// Subscription set from config, in declaration order.
	reg := registry.New()
	pairs := cfg.Pairs()
	for _, pair := range pairs {
		reg.Add(pair.Kind, pair.Market)
	}

	// Optional TimescaleDB sink.
	if cfg.Sink.Enabled {
		pool, err := sink.Connect(runCtx, cfg.Sink.Database)
		if err != nil {
			return fmt.Errorf("connect sink database: %w", err)
		}
		defer pool.Close()

		snk := sink.New(sink.Config{
			BatchSize:     cfg.Sink.BatchSize,
			FlushInterval: cfg.Sink.FlushInterval,
		}, pool, logger)
		if err := snk.Start(runCtx, disp); err != nil {
			return fmt.Errorf("start sink: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			snk.Stop(stopCtx)
		}()
	}

	g, gctx := errgroup.WithContext(runCtx)

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, m.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	g.Go(func() error {
		logger.Info("metrics server listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if cfg.Simulation.Enabled {
		// Replay scripted events through the same dispatcher.
		g.Go(func() error {
			defer stop()

			src := sim.NewSource(sim.Config{
				Events:   cfg.Simulation.Events,
				Interval: cfg.Simulation.Interval,
				Seed:     cfg.Simulation.Seed,
			}, sim.RandomScript(pairs, scriptLen(cfg.Simulation.Events), cfg.Simulation.Seed), logger)

			err := src.Run(gctx, disp)
			logger.Info("simulation done", "emitted", src.Emitted())
			return err
		})
	} else {
		// Live feed connection.
		mgr := feed.NewManager(feed.ManagerConfig{
			URL:               cfg.Feed.WSURL,
			HandshakeTimeout:  cfg.Feed.HandshakeTimeout,
			WriteTimeout:      cfg.Feed.WriteTimeout,
			PingInterval:      cfg.Feed.PingInterval,
			IdleTimeout:       cfg.Feed.IdleTimeout,
			BufferSize:        cfg.Feed.BufferSize,
			ReconnectBaseWait: cfg.Reconnect.BaseWait,
			ReconnectMaxWait:  cfg.Reconnect.MaxWait,
			ReconnectJitter:   cfg.Reconnect.Jitter,
		}, reg, disp, logger, m)

		g.Go(func() error {
			if err := mgr.Start(gctx); err != nil {
				return fmt.Errorf("start feed manager: %w", err)
			}
			<-gctx.Done()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			return mgr.Stop(stopCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// scriptLen sizes the generated script: finite runs get exactly the
// requested events, infinite runs cycle a fixed-size script.
func scriptLen(events int) int {
	if events > 0 {
		return events
	}
	return 100
}
