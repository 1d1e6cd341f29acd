package cli

import (
	"context"

	"github.com/mobile-next/siminspect/commands"
	"github.com/mobile-next/siminspect/tracker"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Follow the Simulator window and print every change",
	Long: `Tracks the Simulator window and prints a JSON snapshot each time its frame,
calibration or visibility changes. Runs until interrupted, or for --duration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if trackDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, trackDuration)
			defer cancel()
		}

		in, err := startInspector(ctx, runtimeOptions{})
		if err != nil {
			return err
		}

		snapshots := make(chan tracker.Snapshot, 16)
		if err := in.OnFrame(func(s tracker.Snapshot) {
			select {
			case snapshots <- s:
			default:
			}
		}); err != nil {
			return err
		}

		response := commands.TrackStartCommand()
		if response.Status == "error" {
			return finish(response)
		}
		printJson(response.Data)

		for {
			select {
			case s := <-snapshots:
				printJson(s)
			case <-ctx.Done():
				return finish(commands.TrackStopCommand())
			}
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the tracked window, calibration and overlay state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := startInspector(context.Background(), runtimeOptions{track: true})
		if err != nil {
			return err
		}
		// a missing window is reported in the status itself
		_, _ = waitForFrame(context.Background(), in, waitTimeout)
		return finish(commands.StatusCommand())
	},
}

func init() {
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(statusCmd)

	trackCmd.Flags().StringVar(&trackMode, "mode", "", modeFlagUsage)
	trackCmd.Flags().DurationVar(&trackDuration, "duration", 0, "stop after this long (default: until interrupted)")

	statusCmd.Flags().DurationVar(&waitTimeout, "wait", defaultWaitTimeout, "how long to wait for the Simulator window")
}
