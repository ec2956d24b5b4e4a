package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/myovent/simbatch/batch/sweep"
)

// sweepCmd generates a parameter sweep and runs it
var sweepCmd = &cobra.Command{
	Use:   "sweep <sweep-file>",
	Short: "Generate model variants from a sweep file and run them",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		plan, err := sweep.LoadPlan(args[0])
		if err != nil {
			logrus.Fatalf("Unable to load sweep: %v", err)
		}
		m, err := plan.Build()
		if err != nil {
			logrus.Fatalf("Unable to generate sweep: %v", err)
		}
		logrus.Infof("Wrote %d jobs to %s", len(m.Jobs), m.File)
		if generateOnly {
			return
		}
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			logrus.Fatalf("Invalid defaults: %v", err)
		}
		exitOnBatchError(executeManifest(ctx, m, opts, cmd.OutOrStdout()))
	},
}
