// Package cli is the tallerd command tree: daemon lifecycle plus one-shot
// shop-floor operations against the same engine the daemon runs.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/config"
)

func NewRootCmd(version string) *cobra.Command {
	var homeOverride string

	cmd := &cobra.Command{
		Use:          "tallerd",
		Short:        "tallerd — assignment and delay-risk engine for the machine shop",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.ResolveHome(homeOverride)
			if err != nil {
				return err
			}
			cmd.SetContext(config.WithHome(cmd.Context(), home))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&homeOverride, "home", "", "Override tallerd home directory (default: ~/.tallerd, env: TALLERD_HOME)")

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())

	cmd.AddCommand(newJobCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newCandidatesCmd())
	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newSeedCmd())

	// Hidden internal subcommand used by `tallerd start` for background mode.
	cmd.AddCommand(newDaemonCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
