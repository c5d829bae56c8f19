package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"thoth/internal/adapter"
	"thoth/internal/config"
	"thoth/internal/eventbus"
	"thoth/internal/logging"
	"thoth/internal/observability"
	"thoth/internal/orchestrator"
	"thoth/internal/providers/memstore"
	"thoth/internal/registry"
	"thoth/internal/safety"
)

const shutdownGrace = 10 * time.Second

// runtime wires the orchestration core together for the CLI commands.
type runtime struct {
	cfg     *config.Config
	store   *memstore.Store
	bus     *eventbus.Bus
	reg     *registry.Registry
	orch    *orchestrator.Orchestrator
	metrics *observability.MetricsCollector
	logger  logging.Logger
}

func newRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), "thoth")

	bus := eventbus.New(eventbus.Config{
		QueueSize:   cfg.EventBus.QueueSize,
		HistorySize: cfg.EventBus.HistorySize,
	}, logger)

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{
		Enabled:        cfg.Metrics.Enabled,
		PrometheusPort: cfg.Metrics.PrometheusPort,
	}, logger)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	store := memstore.New()
	reg := registry.New()
	storeAdapter, err := adapter.New("store", store, memstore.Capabilities())
	if err != nil {
		bus.Close()
		return nil, err
	}
	cached, err := adapter.NewCached(storeAdapter, adapter.CacheConfig{})
	if err != nil {
		bus.Close()
		return nil, err
	}
	if err := reg.Register(cached); err != nil {
		bus.Close()
		return nil, err
	}

	layer, err := safety.New(cfg.Safety, store,
		safety.WithBus(bus),
		safety.WithMetrics(metrics),
		safety.WithLogger(logger))
	if err != nil {
		bus.Close()
		return nil, err
	}

	orch := orchestrator.New(reg, bus, cfg,
		orchestrator.WithSafety(layer),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLogger(logger))

	return &runtime{
		cfg:     cfg,
		store:   store,
		bus:     bus,
		reg:     reg,
		orch:    orch,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// close tears the runtime down in dependency order.
func (r *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := r.orch.Shutdown(ctx); err != nil {
		r.logger.Warn("orchestrator shutdown: %v", err)
	}
	r.metrics.RecordEventsDropped(ctx, r.bus.Dropped())
	r.bus.Close()
	if err := r.metrics.Shutdown(ctx); err != nil {
		r.logger.Warn("metrics shutdown: %v", err)
	}
}
