package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/config"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/daemon"
)

func newStartCmd() *cobra.Command {
	var (
		foreground bool
		pprofAddr  string
		seed       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tallerd daemon (sweep loop + metrics + event stream)",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			opts := daemon.StartOptions{
				Home:      home,
				Config:    cfg,
				PprofAddr: pprofAddr,
				Seed:      seed,
			}

			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting tallerd in foreground on %s\n", cfg.MetricsAddr)
				return daemon.StartForeground(cmd.Context(), opts)
			}

			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tallerd started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Metrics: http://localhost%s/metrics  Events: http://localhost%s/events\n",
				cfg.MetricsAddr, cfg.MetricsAddr)
			return nil
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in the foreground instead of detaching")
	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().BoolVar(&seed, "seed", false, "Seed demo workers and jobs on an empty store")
	return cmd
}

func newDaemonCmd() *cobra.Command {
	var (
		pprofAddr string
		seed      bool
	)

	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Internal: run daemon process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return daemon.StartForeground(cmd.Context(), daemon.StartOptions{
				Home:      home,
				Config:    cfg,
				PprofAddr: pprofAddr,
				Seed:      seed,
			})
		},
	}

	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Enable pprof on address")
	cmd.Flags().BoolVar(&seed, "seed", false, "Seed demo data on an empty store")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running tallerd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			stopped, err := daemon.Stop(cmd.Context(), home)
			if err != nil {
				return err
			}
			if !stopped {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "tallerd is not running")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tallerd daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := daemon.Status(cmd.Context(), home)
			if err != nil {
				return err
			}
			if !st.Running {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "tallerd not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tallerd running (pid %d, addr %s)\n", st.PID, st.Addr)
			return nil
		},
	}
}
