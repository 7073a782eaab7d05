package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/config"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/daemon"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/estimate"
)

func newCandidatesCmd() *cobra.Command {
	var jobID int64

	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Rank workers for a job without assigning anyone",
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
			res, err := app.Ranker.Rank(ctx, job)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(res.Required) > 0 {
				_, _ = fmt.Fprintf(w, "Required skills: %s\n", strings.Join(res.Required, ", "))
			}
			if len(res.Candidates) == 0 {
				_, _ = fmt.Fprintln(w, "No worker meets the requirements")
			} else {
				_, _ = fmt.Fprintf(w, "%-4s %-16s %-6s %-9s %-17s %s\n",
					"ID", "NAME", "SCORE", "ESTIMATE", "ETA", "REASONS")
				for _, c := range res.Candidates {
					_, _ = fmt.Fprintf(w, "%-4d %-16s %-6.2f %-9s %-17s %s\n",
						c.Worker.WorkerID, c.Worker.Name, c.Score,
						fmtDuration(c.EstimateSec), c.ETA.Local().Format("2006-01-02 15:04"),
						strings.Join(c.Reasons, ", "))
				}
			}
			if len(res.Support) > 0 {
				names := make([]string, 0, len(res.Support))
				for _, s := range res.Support {
					names = append(names, s.Worker.Name)
				}
				_, _ = fmt.Fprintf(w, "Suggested support: %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&jobID, "id", 0, "Job ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newTrainCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the duration model from delivered-job history",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			trainer := app.Trainer
			if limit > 0 {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				cfg.TrainRecordLimit = limit
				trainer = daemon.NewApp(app.Store, cfg, nil, nil).Trainer
			}

			model, err := trainer.Train(cmd.Context())
			if errors.Is(err, estimate.ErrNotEnoughData) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Not enough history yet: %v\n", err)
				return nil
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Trained model %s on %d samples (MAE %.0fs)\n",
				model.Version, model.Stats.Samples, model.Stats.MAESec)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Train on at most the N most recent delivered jobs")
	return cmd
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one assignment and risk sweep over active jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			sum, err := app.Controller.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Scanned %d jobs: %d assigned, %d reassigned, %d risk changes, %d alerts\n",
				sum.Scanned, sum.Assigned, sum.Reassigned, sum.RiskMoved, sum.Alerts)
			for reason, n := range sum.Kept {
				_, _ = fmt.Fprintf(w, "  kept (%s): %d\n", reason, n)
			}
			return nil
		},
	}
	return cmd
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo workers and jobs into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			if err := app.Store.SeedDemo(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Seeded demo data")
			return nil
		},
	}
	return cmd
}
