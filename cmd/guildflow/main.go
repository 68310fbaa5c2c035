// Command guildflow runs the automation engine service: it connects to
// NATS, opens the JetStream state store, and processes guild events
// against the configured rules.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360/guildflow/config"
	"github.com/c360/guildflow/engine"
	"github.com/c360/guildflow/health"
	"github.com/c360/guildflow/ingress"
	"github.com/c360/guildflow/metric"
	"github.com/c360/guildflow/natsclient"
	"github.com/c360/guildflow/platform"
	"github.com/c360/guildflow/rulestore"
	"github.com/c360/guildflow/statestore"
	"github.com/c360/guildflow/statestore/natskv"
)

func main() {
	if err := run(); err != nil {
		slog.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	logger := slog.Default().With("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
	}

	clientOpts := []natsclient.ClientOption{natsclient.WithName(cfg.NATS.Name)}
	if cfg.NATS.Username != "" {
		clientOpts = append(clientOpts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		clientOpts = append(clientOpts, natsclient.WithToken(cfg.NATS.Token))
	}
	client, err := natsclient.NewClient(cfg.NATS.URL, clientOpts...)
	if err != nil {
		return fmt.Errorf("create nats client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("nats close failed", "error", err)
		}
	}()

	backend, err := natskv.New(ctx, client, cfg.Store.BucketPrefix)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	store := statestore.New(backend)
	rules := rulestore.New(store)

	// Outbound effects and lookups go to the platform connector service
	// over NATS request-reply.
	bridge := platform.NewBridge(client)

	eng := engine.New(rules, store, bridge, bridge,
		engine.WithMetricsRegistry(registry),
		engine.WithStopOnFirstFire(cfg.Engine.StopOnFirstFire),
	)

	ing := ingress.New(client, eng,
		ingress.WithSubjectBase(cfg.Ingress.SubjectBase),
		ingress.WithWorkers(cfg.Ingress.Workers),
		ingress.WithQueueSize(cfg.Ingress.QueueSize),
		ingress.WithMetricsRegistry(registry),
	)
	if err := ing.Start(ctx); err != nil {
		return fmt.Errorf("start ingress: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ing.Stop(stopCtx); err != nil {
			logger.Warn("ingress stop failed", "error", err)
		}
	}()

	monitor := health.NewMonitor(5 * time.Second)
	monitor.Register(health.CheckFunc{ComponentName: "nats", Fn: func(context.Context) health.Status {
		if !client.IsHealthy() {
			return health.Unhealthy("nats", "disconnected")
		}
		return health.OK("nats")
	}})
	monitor.Register(health.CheckFunc{ComponentName: "ingress", Fn: func(context.Context) health.Status {
		submitted, _, _, dropped := ing.Stats()
		if submitted > 0 && dropped*10 > submitted {
			return health.Degraded("ingress", "dropping over 10% of events")
		}
		return health.OK("ingress")
	}})

	var metricsServer *http.Server
	if registry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", registry.Handler())
		mux.Handle("/healthz", monitor.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", "address", cfg.Metrics.Address)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("guildflow started", "nats_url", cfg.NATS.URL, "subject_base", cfg.Ingress.SubjectBase)
	<-ctx.Done()
	logger.Info("shutting down")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	return nil
}
