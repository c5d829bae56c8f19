package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"thoth/internal/logging"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool
	PrometheusPort int
}

// MetricsCollector manages orchestrator metrics. A disabled collector is a
// valid no-op so call sites never need nil checks.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider

	taskExecutions metric.Int64Counter
	taskDuration   metric.Float64Histogram
	tasksInFlight  metric.Int64UpDownCounter
	eventsDropped  metric.Int64Counter
	rollbacks      metric.Int64Counter

	prometheusServer *http.Server
	logger           logging.Logger
}

// NewMetricsCollector creates a collector backed by a Prometheus exporter.
func NewMetricsCollector(config MetricsConfig, logger logging.Logger) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{logger: logging.OrNop(logger)}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("thoth")

	c := &MetricsCollector{provider: provider, logger: logging.OrNop(logger)}

	if c.taskExecutions, err = meter.Int64Counter(
		"thoth.tasks.executions.total",
		metric.WithDescription("Total number of task executions by terminal status"),
	); err != nil {
		return nil, err
	}
	if c.taskDuration, err = meter.Float64Histogram(
		"thoth.tasks.duration.seconds",
		metric.WithDescription("Task execution duration in seconds"),
	); err != nil {
		return nil, err
	}
	if c.tasksInFlight, err = meter.Int64UpDownCounter(
		"thoth.tasks.in_flight",
		metric.WithDescription("Tasks currently holding a concurrency slot"),
	); err != nil {
		return nil, err
	}
	if c.eventsDropped, err = meter.Int64Counter(
		"thoth.events.dropped.total",
		metric.WithDescription("Events evicted from the bus queue before dispatch"),
	); err != nil {
		return nil, err
	}
	if c.rollbacks, err = meter.Int64Counter(
		"thoth.safety.rollbacks.total",
		metric.WithDescription("Compensator executions triggered by side-effect detection"),
	); err != nil {
		return nil, err
	}

	if config.PrometheusPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promclient.Handler())
		c.prometheusServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", config.PrometheusPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := c.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				c.logger.Error("prometheus server: %v", err)
			}
		}()
	}

	return c, nil
}

// RecordTaskExecution counts one terminal outcome and its duration.
func (c *MetricsCollector) RecordTaskExecution(ctx context.Context, taskType, status string, took time.Duration) {
	if c == nil || c.taskExecutions == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	)
	c.taskExecutions.Add(ctx, 1, attrs)
	c.taskDuration.Record(ctx, took.Seconds(), attrs)
}

// TaskStarted marks a concurrency slot as occupied.
func (c *MetricsCollector) TaskStarted(ctx context.Context) {
	if c == nil || c.tasksInFlight == nil {
		return
	}
	c.tasksInFlight.Add(ctx, 1)
}

// TaskFinished releases the in-flight marker.
func (c *MetricsCollector) TaskFinished(ctx context.Context) {
	if c == nil || c.tasksInFlight == nil {
		return
	}
	c.tasksInFlight.Add(ctx, -1)
}

// RecordEventsDropped accounts bus queue evictions since the last call.
func (c *MetricsCollector) RecordEventsDropped(ctx context.Context, n int64) {
	if c == nil || c.eventsDropped == nil || n <= 0 {
		return
	}
	c.eventsDropped.Add(ctx, n)
}

// RecordRollback counts one compensator execution.
func (c *MetricsCollector) RecordRollback(ctx context.Context, taskType string) {
	if c == nil || c.rollbacks == nil {
		return
	}
	c.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", taskType)))
}

// Shutdown stops the scrape server and flushes the provider.
func (c *MetricsCollector) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.prometheusServer != nil {
		if err := c.prometheusServer.Shutdown(ctx); err != nil {
			c.logger.Warn("prometheus server shutdown: %v", err)
		}
	}
	if c.provider != nil {
		return c.provider.Shutdown(ctx)
	}
	return nil
}
