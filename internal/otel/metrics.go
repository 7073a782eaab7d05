package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce      sync.Once
	transitionsCounter   metric.Int64Counter
	assignmentsCounter   metric.Int64Counter
	riskChangesCounter   metric.Int64Counter
	sweepCyclesCounter   metric.Int64Counter
	sweepDuration        metric.Float64Histogram
	estimateSeconds      metric.Float64Histogram
	notificationsCounter metric.Int64Counter
	sseConnectionsGauge  metric.Int64ObservableGauge
	sseEventsCounter     metric.Int64Counter
	sseConnections       int64
	sseConnectionsMu     sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		transitionsCounter, err = m.Int64Counter("tallerd_job_transitions_total", metric.WithDescription("Total job state transitions"))
		if err != nil {
			return
		}
		assignmentsCounter, err = m.Int64Counter("tallerd_assignments_total", metric.WithDescription("Total worker assignments by origin"))
		if err != nil {
			return
		}
		riskChangesCounter, err = m.Int64Counter("tallerd_risk_changes_total", metric.WithDescription("Total semaphore color changes"))
		if err != nil {
			return
		}
		sweepCyclesCounter, err = m.Int64Counter("tallerd_sweep_cycles_total", metric.WithDescription("Total sweep cycles executed"))
		if err != nil {
			return
		}
		sweepDuration, err = m.Float64Histogram("tallerd_sweep_duration_seconds", metric.WithDescription("Sweep cycle duration in seconds"))
		if err != nil {
			return
		}
		estimateSeconds, err = m.Float64Histogram("tallerd_estimate_seconds", metric.WithDescription("Predicted job durations in seconds"))
		if err != nil {
			return
		}
		notificationsCounter, err = m.Int64Counter("tallerd_notifications_total", metric.WithDescription("Total client notifications emitted"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("tallerd_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("tallerd_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
		if err != nil {
			return
		}
	})
	return err
}

// RecordTransition records one job state transition.
func RecordTransition(ctx context.Context, from, to string) {
	if transitionsCounter == nil {
		return
	}
	transitionsCounter.Add(ctx, 1, metric.WithAttributes(AttrFrom.String(from), AttrTo.String(to)))
}

// RecordAssignment records one worker assignment by origin (MANUAL, SUGGESTED, AUTO_REASSIGN).
func RecordAssignment(ctx context.Context, origin string) {
	if assignmentsCounter == nil {
		return
	}
	assignmentsCounter.Add(ctx, 1, metric.WithAttributes(AttrOrigin.String(origin)))
}

// RecordRiskChange records a semaphore color change.
func RecordRiskChange(ctx context.Context, color string) {
	if riskChangesCounter == nil {
		return
	}
	riskChangesCounter.Add(ctx, 1, metric.WithAttributes(AttrColor.String(color)))
}

// RecordSweep records one completed sweep cycle and its duration.
func RecordSweep(ctx context.Context, duration time.Duration) {
	if sweepCyclesCounter != nil {
		sweepCyclesCounter.Add(ctx, 1)
	}
	if sweepDuration != nil {
		sweepDuration.Record(ctx, duration.Seconds())
	}
}

// RecordEstimate records a duration prediction and its source tier.
func RecordEstimate(ctx context.Context, source string, seconds int64) {
	if estimateSeconds == nil {
		return
	}
	estimateSeconds.Record(ctx, float64(seconds), metric.WithAttributes(AttrSource.String(source)))
}

// RecordNotification records one client notification by kind.
func RecordNotification(ctx context.Context, kind string) {
	if notificationsCounter == nil {
		return
	}
	notificationsCounter.Add(ctx, 1, metric.WithAttributes(AttrOrigin.String(kind)))
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// JobCountFunc returns per-color counts of open jobs, for the jobs gauge.
type JobCountFunc func() (green, yellow, red int64)

// InitMetricsWithJobCount creates instruments and optionally registers a callback
// for the jobs-by-color gauge. If jobCount is nil, the gauge is not reported.
func InitMetricsWithJobCount(ctx context.Context, jobCount JobCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if jobCount == nil {
		return nil
	}
	m := Meter()
	jobsGauge, err := m.Float64ObservableGauge("tallerd_jobs_total", metric.WithDescription("Open jobs by semaphore color"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		green, yellow, red := jobCount()
		o.ObserveFloat64(jobsGauge, float64(green), metric.WithAttributes(AttrColor.String("VERDE")))
		o.ObserveFloat64(jobsGauge, float64(yellow), metric.WithAttributes(AttrColor.String("AMARILLO")))
		o.ObserveFloat64(jobsGauge, float64(red), metric.WithAttributes(AttrColor.String("ROJO")))
		return nil
	}, jobsGauge)
	return err
}
