package engine

import (
	"bytes"
	"context"
	"expvar"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func TestServiceEmitsMetricsAndAudit(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	svc := NewInMemoryService(WithAuditRecorder(audit), WithMetricsRecorder(metrics))

	leaf, _, err := svc.CreateLeafComponent(ctx, CreateLeafComponentInput{
		Name:     "Tea",
		SKU:      "TEA-1",
		UnitCost: decimal.RequireFromString("3.00"),
		OnHand:   10,
	})
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	if !audit.has("create_leaf_component", AuditStatusSuccess) {
		t.Fatalf("expected success audit entry, got %+v", audit.entries)
	}
	if !metrics.has("create_leaf_component", true) {
		t.Fatalf("expected success metric, got %+v", metrics.calls)
	}

	// Driving stock negative fails and must surface as error telemetry.
	if _, _, err := svc.AdjustLeafInventory(ctx, leaf.ID, -100); err == nil {
		t.Fatalf("expected adjustment to fail")
	}
	if !audit.has("adjust_leaf_inventory", AuditStatusError) {
		t.Fatalf("expected error audit entry, got %+v", audit.entries)
	}
	if !metrics.has("adjust_leaf_inventory", false) {
		t.Fatalf("expected error metric, got %+v", metrics.calls)
	}
}

func TestServiceLogsThroughSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	svc := NewInMemoryService(WithLogger(NewSlogLogger(slog.New(handler))))

	if _, _, err := svc.CreateLeafComponent(context.Background(), CreateLeafComponentInput{
		Name:     "Tea",
		SKU:      "TEA-1",
		UnitCost: decimal.RequireFromString("3.00"),
	}); err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	if !strings.Contains(buf.String(), "create_leaf_component") {
		t.Fatalf("expected operation in log output, got %q", buf.String())
	}

	if _, err := svc.DeleteAssembly(context.Background(), "missing"); err == nil {
		t.Fatalf("expected delete of unknown assembly to fail")
	}
	if !strings.Contains(buf.String(), "operation failed") {
		t.Fatalf("expected failure log line, got %q", buf.String())
	}
}

func TestExpvarMetricsRecorderExports(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	if recorder.Name() == "" {
		t.Fatalf("expected recorder to have export name")
	}
	recorder.Observe(context.Background(), "test_op", true, 10*time.Millisecond)
	recorder.Observe(context.Background(), "test_op", false, 5*time.Millisecond)

	snapshot := recorder.Snapshot()
	if snapshot.DurationsMS["test_op"] <= 0 {
		t.Fatalf("expected positive duration, snapshot=%+v", snapshot)
	}
	if snapshot.Results["test_op"]["success"] != 1 || snapshot.Results["test_op"]["error"] != 1 {
		t.Fatalf("unexpected results snapshot=%+v", snapshot)
	}

	if v := expvar.Get(recorder.Name()); v == nil {
		t.Fatalf("expected expvar export to be registered")
	} else if !strings.Contains(v.String(), "test_op") {
		t.Fatalf("expected expvar output to contain operation: %s", v.String())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, err := NewPrometheusMetricsRecorder(registry)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	recorder.Observe(context.Background(), "test_op", true, 10*time.Millisecond)
	recorder.Observe(context.Background(), "test_op", false, 5*time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sawCounter, sawHistogram bool
	for _, family := range families {
		switch family.GetName() {
		case "assembly_service_operations_total":
			sawCounter = true
			var total float64
			for _, metric := range family.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
			if total != 2 {
				t.Fatalf("operations counter total %v, want 2", total)
			}
		case "assembly_service_operation_duration_seconds":
			sawHistogram = true
		}
	}
	if !sawCounter || !sawHistogram {
		t.Fatalf("expected both collectors registered, counter=%v histogram=%v", sawCounter, sawHistogram)
	}

	// Registering the same collectors twice must surface the conflict.
	if _, err := NewPrometheusMetricsRecorder(registry); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
