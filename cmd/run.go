package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/myovent/simbatch/batch"
)

// runCmd dispatches the jobs of an existing batch manifest
var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Run every job of a batch manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		m, err := batch.LoadManifest(args[0])
		if err != nil {
			logrus.Fatalf("Unable to load manifest: %v", err)
		}
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			logrus.Fatalf("Invalid defaults: %v", err)
		}
		exitOnBatchError(executeManifest(ctx, m, opts, cmd.OutOrStdout()))
	},
}

// exitOnBatchError ends the process with status 1 when err is non-nil.
func exitOnBatchError(err error) {
	if err == nil {
		logrus.Info("Batch complete.")
		return
	}
	var bf *batchFailedError
	if errors.As(err, &bf) {
		logrus.Errorf("Batch finished with failures: %v", err)
		os.Exit(1)
	}
	logrus.Fatalf("Batch aborted: %v", err)
}
