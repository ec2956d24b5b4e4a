package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/myovent/simbatch/batch/characterize"
)

// characterizeCmd prepares and runs every characterization in a setup file
var characterizeCmd = &cobra.Command{
	Use:   "characterize <setup-file>",
	Short: "Prepare and run the characterizations described by a setup file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			logrus.Fatalf("Invalid defaults: %v", err)
		}
		exitOnBatchError(runCharacterization(ctx, args[0], generateOnly, opts, cmd.OutOrStdout()))
	},
}

// runCharacterization prepares the characterizations of a setup. With
// generateOnly every batch is written up front and nothing runs. Otherwise
// each batch is prepared and run before the next one is prepared, so
// characterizations may share a sim_folder. A batch with failed jobs does not
// stop the next one; the first such failure is returned at the end.
func runCharacterization(ctx context.Context, setupPath string, generateOnly bool, opts runOptions, w io.Writer) error {
	setup, err := characterize.LoadSetup(setupPath)
	if err != nil {
		return err
	}
	if generateOnly {
		manifests, err := setup.Prepare()
		if err != nil {
			return err
		}
		for _, m := range manifests {
			logrus.Infof("Wrote %d jobs to %s", len(m.Jobs), m.File)
		}
		return nil
	}
	batches, err := setup.Resolve()
	if err != nil {
		return err
	}
	var firstFailure error
	for i := 0; i < batches.Len(); i++ {
		m, err := batches.Prepare(i)
		if err != nil {
			return err
		}
		logrus.Infof("Running characterization batch %s", m.File)
		err = executeManifest(ctx, m, opts, w)
		var bf *batchFailedError
		switch {
		case err == nil:
		case errors.As(err, &bf):
			if firstFailure == nil {
				firstFailure = err
			}
		default:
			return err
		}
	}
	return firstFailure
}
