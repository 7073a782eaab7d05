// Package daemon runs the engine as a long-lived process: the periodic risk
// and assignment sweep, scheduled model training, and an HTTP listener with
// Prometheus metrics and the live SSE event stream. One instance per home,
// enforced with a file lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/notify"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/otel"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

var errNotRunning = errors.New("tallerd is not running")

// stateDir is the daemon's private directory under a home: the sqlite store
// and the pid, lock, address, and log files all live in it.
type stateDir string

func stateIn(home string) stateDir { return stateDir(filepath.Join(home, "protected")) }

func (d stateDir) ensure() error    { return os.MkdirAll(string(d), 0o755) }
func (d stateDir) pidFile() string  { return filepath.Join(string(d), "daemon.pid") }
func (d stateDir) lockFile() string { return filepath.Join(string(d), "daemon.lock") }
func (d stateDir) addrFile() string { return filepath.Join(string(d), "daemon.addr") }
func (d stateDir) logFile() string  { return filepath.Join(string(d), "daemon.log") }

// startPprof exposes the net/http/pprof handlers on their own listener when
// an address is configured.
func startPprof(addr string) {
	if addr == "" {
		return
	}
	go func() {
		// DefaultServeMux has the pprof handlers via the blank import.
		if err := http.ListenAndServe(addr, nil); err != nil {
			slog.Info("pprof server stopped", "addr", addr, "err", err)
		}
	}()
}

// StartForeground runs the daemon in the calling process until ctx is
// cancelled.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	cfg := opts.Config
	state := stateIn(opts.Home)

	if err := state.ensure(); err != nil {
		return err
	}

	// Singleton lock, released on exit.
	lock, err := takeRunLock(state.lockFile())
	if err != nil {
		return err
	}
	defer lock.release()

	startPprof(opts.PprofAddr)

	st, err := OpenStore(ctx, opts.Home, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if opts.Seed {
		if err := st.SeedDemo(ctx); err != nil {
			slog.Warn("seed demo data", "err", err)
		}
	}

	// PID + addr files.
	pid := os.Getpid()
	if err := os.WriteFile(state.pidFile(), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	_ = os.WriteFile(state.addrFile(), []byte(cfg.MetricsAddr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(state.pidFile())
		_ = os.Remove(state.addrFile())
	}()

	if err := checkAddrAvailable(cfg.MetricsAddr); err != nil {
		return err
	}

	metricsHandler, err := otel.InitMeterProvider(ctx, "tallerd")
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if err := otel.InitMetricsWithJobCount(ctx, jobCountByColor(st)); err != nil {
		slog.Warn("init instruments", "err", err)
	}

	hub := notify.NewSSEHub()
	app := NewApp(st, cfg, hub, slog.Default())

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/events", hub.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	slog.Info("daemon starting", "addr", cfg.MetricsAddr, "home", opts.Home,
		"driver", cfg.DBDriver, "sweep_interval", cfg.SweepInterval)

	stopTraining, err := startTrainingSchedule(ctx, app, cfg.TrainCronSchedule)
	if err != nil {
		return err
	}
	defer stopTraining()

	errCh := make(chan error, 1)
	go func() {
		go runSweeper(ctx, app, cfg.SweepInterval, cfg.StoreTimeout)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) ||
			errors.Is(err, io.EOF) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// jobCountByColor feeds the semaphore gauge: open jobs per risk color.
func jobCountByColor(st storeLister) otel.JobCountFunc {
	return func() (green, yellow, red int64) {
		jobs, err := st.ListJobsByStatus(context.Background(),
			models.StatusPending, models.StatusAssigned, models.StatusInProgress, models.StatusQA)
		if err != nil {
			return 0, 0, 0
		}
		for _, j := range jobs {
			switch j.RiskColor {
			case models.RiskYellow:
				yellow++
			case models.RiskRed:
				red++
			default:
				green++
			}
		}
		return green, yellow, red
	}
}

type storeLister interface {
	ListJobsByStatus(ctx context.Context, statuses ...models.Status) ([]models.Job, error)
}

// StartBackground spawns the daemon as a detached child and waits briefly
// for its pid file.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	state := stateIn(opts.Home)
	if err := state.ensure(); err != nil {
		return 0, err
	}
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("tallerd already running (pid %d)", st.PID)
	}

	stderr, err := os.OpenFile(state.logFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for the child's lifetime.

	args := []string{"daemon", "--home", opts.Home}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	if opts.Seed {
		args = append(args, "--seed")
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Status may lag; fall back to the started pid.
	return cmd.Process.Pid, nil
}

// Stop signals the running daemon and waits for it to exit.
func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, errNotRunning
	}
	if err := stopProcess(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Kill()
	return true, nil
}

// Status reads the pid file and checks the process is alive.
func Status(ctx context.Context, home string) (StatusInfo, error) {
	state := stateIn(home)
	pb, err := os.ReadFile(state.pidFile())
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}

	if !pidAlive(pid) {
		_ = os.Remove(state.pidFile())
		return StatusInfo{Running: false}, nil
	}

	addr := ""
	if ab, err := os.ReadFile(state.addrFile()); err == nil {
		addr = strings.TrimSpace(string(ab))
	}
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkAddrAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use", addr)
	}
	_ = ln.Close()
	return nil
}
