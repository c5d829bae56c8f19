package observability

import (
	"context"
	"testing"
	"time"

	"thoth/internal/logging"
)

func TestDisabledCollectorIsNoop(t *testing.T) {
	c, err := NewMetricsCollector(MetricsConfig{Enabled: false}, logging.Nop())
	if err != nil {
		t.Fatalf("disabled collector must construct: %v", err)
	}

	ctx := context.Background()
	c.RecordTaskExecution(ctx, "ocr", "completed", time.Second)
	c.TaskStarted(ctx)
	c.TaskFinished(ctx)
	c.RecordEventsDropped(ctx, 3)
	c.RecordRollback(ctx, "store_write")
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown of disabled collector: %v", err)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *MetricsCollector
	ctx := context.Background()
	c.RecordTaskExecution(ctx, "ocr", "failed", 0)
	c.TaskStarted(ctx)
	c.TaskFinished(ctx)
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("nil collector shutdown: %v", err)
	}
}

func TestEnabledCollectorRecords(t *testing.T) {
	// Port 0 skips the scrape server; the in-process provider still works.
	c, err := NewMetricsCollector(MetricsConfig{Enabled: true, PrometheusPort: 0}, logging.Nop())
	if err != nil {
		t.Fatalf("enabled collector: %v", err)
	}
	defer func() {
		if err := c.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}()

	ctx := context.Background()
	c.TaskStarted(ctx)
	c.RecordTaskExecution(ctx, "ocr", "completed", 125*time.Millisecond)
	c.TaskFinished(ctx)
	c.RecordEventsDropped(ctx, 1)
	c.RecordRollback(ctx, "store_write")
}
