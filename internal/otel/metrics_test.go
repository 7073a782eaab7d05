package otel

import (
	"context"
	"testing"
	"time"
)

func TestInitMetricsAndRecorders(t *testing.T) {
	ctx := context.Background()
	_, err := InitMeterProvider(ctx, "metrics-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordTransition(ctx, "PENDING", "ASSIGNED")
	RecordAssignment(ctx, "MANUAL")
	RecordRiskChange(ctx, "ROJO")
	RecordSweep(ctx, 120*time.Millisecond)
	RecordEstimate(ctx, "modelo", 7200)
	RecordNotification(ctx, "ALERTA")
	RecordSSEEvent(ctx)
}

func TestAddRemoveSSEConnection(t *testing.T) {
	AddSSEConnection()
	AddSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection() // should not go negative
}

func TestInitMetricsWithJobCount(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "jobcount-test")
	err := InitMetricsWithJobCount(ctx, func() (green, yellow, red int64) {
		return 3, 1, 0
	})
	if err != nil {
		t.Fatalf("InitMetricsWithJobCount: %v", err)
	}
}

func TestInitMetricsWithJobCountNilFunc(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "jobcount-nil-test")
	if err := InitMetricsWithJobCount(ctx, nil); err != nil {
		t.Fatalf("InitMetricsWithJobCount(nil): %v", err)
	}
}
