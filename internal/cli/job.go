package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage shop jobs",
	}
	cmd.AddCommand(newJobCreateCmd())
	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobShowCmd())
	cmd.AddCommand(newJobAssignCmd())
	cmd.AddCommand(newJobTransitionCmd("start", "Start work on a job (opens the clock)", models.StatusInProgress))
	cmd.AddCommand(newJobTransitionCmd("pause", "Pause a running job (stops the clock, keeps the worker)", models.StatusAssigned))
	cmd.AddCommand(newJobTransitionCmd("qa", "Move a job to quality control", models.StatusQA))
	cmd.AddCommand(newJobTransitionCmd("deliver", "Deliver a job (final actuals, client pickup notice)", models.StatusDelivered))
	cmd.AddCommand(newJobTransitionCmd("requeue", "Send a job back to the pending queue", models.StatusPending))
	cmd.AddCommand(newJobDeleteCmd())
	return cmd
}

func newJobCreateCmd() *cobra.Command {
	var (
		desc     string
		priority string
		clientID int64
		price    float64
		due      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job from its Spanish work description",
		RunE: func(cmd *cobra.Command, args []string) error {
			if desc == "" {
				return fmt.Errorf("--desc is required")
			}
			prio := models.Priority(strings.ToUpper(priority))
			if !prio.Valid() {
				return fmt.Errorf("--priority must be HIGH, MEDIUM, or LOW")
			}

			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			job := models.Job{
				Description: desc,
				Priority:    prio,
				ClientID:    clientID,
				Price:       price,
			}
			if due != "" {
				d, err := parseDue(due)
				if err != nil {
					return err
				}
				job.DueDate = &d
			}
			id, err := app.Store.CreateJob(cmd.Context(), job)
			if err != nil {
				return err
			}
			created, err := app.Store.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created job %d (%s)\n", id, created.Code)
			return nil
		},
	}

	cmd.Flags().StringVar(&desc, "desc", "", "Work description, e.g. \"torneado de eje inox con roscado M10\"")
	cmd.Flags().StringVar(&priority, "priority", "MEDIUM", "Priority: HIGH, MEDIUM, or LOW")
	cmd.Flags().Int64Var(&clientID, "client", 0, "Client ID")
	cmd.Flags().Float64Var(&price, "price", 0, "Quoted price")
	cmd.Flags().StringVar(&due, "due", "", "Due date (2006-01-02 or RFC3339)")
	_ = cmd.MarkFlagRequired("desc")
	return cmd
}

func newJobListCmd() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			statuses := models.ActiveStatuses
			if statusFilter != "" {
				st := models.Status(strings.ToUpper(statusFilter))
				if !st.Valid() {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				statuses = []models.Status{st}
			}
			jobs, err := app.Store.ListJobsByStatus(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "%-4s %-14s %-11s %-8s %-9s %-6s %s\n",
				"ID", "CODE", "STATUS", "PRIO", "RISK", "WORKER", "DUE")
			for _, j := range jobs {
				workerCol := "-"
				if j.WorkerID != nil {
					workerCol = fmt.Sprintf("%d", *j.WorkerID)
				}
				dueCol := "-"
				if j.DueDate != nil {
					dueCol = j.DueDate.Local().Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(w, "%-4d %-14s %-11s %-8s %-9s %-6s %s\n",
					j.JobID, j.Code, j.Status, j.Priority, j.RiskColor, workerCol, dueCol)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only this status (default: all active)")
	return cmd
}

func newJobShowCmd() *cobra.Command {
	var jobID int64

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one job with its tracked time and assignment history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID <= 0 {
				return fmt.Errorf("--id must be a positive job ID")
			}
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()
			ctx := cmd.Context()

			job, err := app.Store.GetJob(ctx, jobID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Job %d  %s\n", job.JobID, job.Code)
			_, _ = fmt.Fprintf(w, "  %s\n", job.Description)
			_, _ = fmt.Fprintf(w, "  status=%s priority=%s risk=%s paid=%v\n",
				job.Status, job.Priority, job.RiskColor, job.Paid)
			if job.WorkerID != nil {
				if worker, err := app.Store.GetWorker(ctx, *job.WorkerID); err == nil {
					_, _ = fmt.Fprintf(w, "  worker=%s (%d)\n", worker.Name, worker.WorkerID)
				}
			}
			_, _ = fmt.Fprintf(w, "  estimated=%s", fmtDuration(job.EstimatedSec))
			if job.ActualSec != nil {
				_, _ = fmt.Fprintf(w, " actual=%s", fmtDuration(*job.ActualSec))
			}
			if job.DueDate != nil {
				_, _ = fmt.Fprintf(w, " due=%s", job.DueDate.Local().Format("2006-01-02 15:04"))
			}
			_, _ = fmt.Fprintln(w)

			entries, err := app.Store.ListEntriesForJob(ctx, jobID)
			if err != nil {
				return err
			}
			if len(entries) > 0 {
				_, _ = fmt.Fprintln(w, "Tracked time:")
				for _, e := range entries {
					if e.DurationSec != nil {
						_, _ = fmt.Fprintf(w, "  worker %d: %s (%s)\n",
							e.WorkerID, fmtDuration(*e.DurationSec), e.StartedAt.Local().Format("2006-01-02 15:04"))
					} else {
						_, _ = fmt.Fprintf(w, "  worker %d: running since %s\n",
							e.WorkerID, e.StartedAt.Local().Format("2006-01-02 15:04"))
					}
				}
			}

			events, err := app.Store.ListAssignmentEvents(ctx, jobID)
			if err != nil {
				return err
			}
			if len(events) > 0 {
				_, _ = fmt.Fprintln(w, "Assignment history:")
				for _, ev := range events {
					line := fmt.Sprintf("  %s worker %d [%s]",
						ev.CreatedAt.Local().Format("2006-01-02 15:04"), ev.WorkerID, ev.Origin)
					if ev.Rationale != "" {
						line += " " + ev.Rationale
					}
					_, _ = fmt.Fprintln(w, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&jobID, "id", 0, "Job ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newJobAssignCmd() *cobra.Command {
	var jobID, workerID int64

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a pending job to a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID <= 0 || workerID <= 0 {
				return fmt.Errorf("--id and --worker are required")
			}
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			job, err := app.Engine.Assign(cmd.Context(), jobID, workerID, models.OriginManual, "asignación manual")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Assigned job %d to worker %d (estimate %s)\n",
				jobID, workerID, fmtDuration(job.EstimatedSec))
			return nil
		},
	}

	cmd.Flags().Int64Var(&jobID, "id", 0, "Job ID")
	cmd.Flags().Int64Var(&workerID, "worker", 0, "Worker ID")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func newJobTransitionCmd(use, short string, to models.Status) *cobra.Command {
	var jobID int64

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID <= 0 {
				return fmt.Errorf("--id must be a positive job ID")
			}
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			job, err := app.Engine.Transition(cmd.Context(), jobID, to)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Job %d is now %s (risk %s)\n",
				jobID, job.Status, job.RiskColor)
			return nil
		},
	}

	cmd.Flags().Int64Var(&jobID, "id", 0, "Job ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newJobDeleteCmd() *cobra.Command {
	var jobID int64

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Soft-delete a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID <= 0 {
				return fmt.Errorf("--id must be a positive job ID")
			}
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			if err := app.Store.SoftDeleteJob(cmd.Context(), jobID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %d\n", jobID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&jobID, "id", 0, "Job ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func parseDue(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		// End of the calendar day locally.
		return t.Add(24*time.Hour - time.Second).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("due date %q: want 2006-01-02 or RFC3339", raw)
}

func fmtDuration(sec int64) string {
	if sec <= 0 {
		return "-"
	}
	d := time.Duration(sec) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
