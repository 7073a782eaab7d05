package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage shop workers",
	}
	cmd.AddCommand(newWorkerAddCmd())
	cmd.AddCommand(newWorkerListCmd())
	cmd.AddCommand(newWorkerActiveCmd("enable", true))
	cmd.AddCommand(newWorkerActiveCmd("disable", false))
	return cmd
}

func newWorkerAddCmd() *cobra.Command {
	var (
		name   string
		role   string
		skills []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			role = strings.ToLower(role)
			if !models.ValidRole(role) {
				return fmt.Errorf("--role must be one of: tornero, fresador, soldador, ayudante")
			}

			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			id, err := app.Store.CreateWorker(cmd.Context(), models.Worker{
				Name:   name,
				Role:   role,
				Skills: skills,
				Active: true,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created worker %d (%s, %s)\n", id, name, role)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Worker name")
	cmd.Flags().StringVar(&role, "role", "tornero", "Role: tornero, fresador, soldador, or ayudante")
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "Skill tags, e.g. torneado,roscado")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newWorkerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active workers with their load and track record",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()
			ctx := cmd.Context()

			workers, err := app.Store.ListActiveWorkers(ctx)
			if err != nil {
				return err
			}
			if len(workers) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No active workers")
				return nil
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "%-4s %-16s %-10s %-4s %-10s %-8s %s\n",
				"ID", "NAME", "ROLE", "WIP", "COMPLETED", "ON-TIME", "SKILLS")
			for _, worker := range workers {
				stats, err := app.Store.WorkerStats(ctx, worker.WorkerID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%-4d %-16s %-10s %-4d %-10d %-8s %s\n",
					worker.WorkerID, worker.Name, worker.Role, stats.WIP, stats.Completed,
					fmt.Sprintf("%.0f%%", stats.OnTimeRate*100), strings.Join(worker.Skills, ","))
			}
			return nil
		},
	}
	return cmd
}

func newWorkerActiveCmd(use string, active bool) *cobra.Command {
	var workerID int64

	short := "Mark a worker available for assignment"
	if !active {
		short = "Take a worker out of the assignment pool"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workerID <= 0 {
				return fmt.Errorf("--id must be a positive worker ID")
			}
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			if err := app.Store.SetWorkerActive(cmd.Context(), workerID, active); err != nil {
				return err
			}
			state := "enabled"
			if !active {
				state = "disabled"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Worker %d %s\n", workerID, state)
			return nil
		},
	}

	cmd.Flags().Int64Var(&workerID, "id", 0, "Worker ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
