package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/estimate"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/otel"
)

// runSweeper re-evaluates every open job on a fixed cadence. Each cycle runs
// under a bounded deadline: a slow store loses the cycle, not the loop.
func runSweeper(ctx context.Context, app *App, interval, timeout time.Duration) {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			cycleCtx, cancel := context.WithTimeout(ctx, timeout)
			sum, err := app.Controller.SweepOnce(cycleCtx)
			cancel()
			otel.RecordSweep(ctx, time.Since(start))
			if err != nil {
				slog.Error("sweep cycle failed", "err", err)
				continue
			}
			slog.Info("sweep cycle", "scanned", sum.Scanned, "assigned", sum.Assigned,
				"reassigned", sum.Reassigned, "risk_moved", sum.RiskMoved,
				"alerts", sum.Alerts, "took", time.Since(start))
		}
	}
}

// startTrainingSchedule registers model training on the cron expression.
// Training is exclusive: a tick arriving while one runs is skipped, not
// queued.
func startTrainingSchedule(ctx context.Context, app *App, schedule string) (stop func(), err error) {
	if schedule == "" {
		return func() {}, nil
	}

	var mu sync.Mutex
	c := cron.New()
	_, err = c.AddFunc(schedule, func() {
		if !mu.TryLock() {
			slog.Warn("training already in flight, skipping tick")
			return
		}
		defer mu.Unlock()
		model, err := app.Trainer.Train(ctx)
		if errors.Is(err, estimate.ErrNotEnoughData) {
			slog.Info("training skipped", "reason", err)
			return
		}
		if err != nil {
			slog.Error("training failed", "err", err)
			return
		}
		slog.Info("model trained", "version", model.Version, "samples", model.Stats.Samples)
	})
	if err != nil {
		return nil, fmt.Errorf("train_cron_schedule: %w", err)
	}
	c.Start()
	return func() { c.Stop() }, nil
}
