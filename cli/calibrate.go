package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mobile-next/siminspect/commands"
	"github.com/mobile-next/siminspect/window"
	"github.com/spf13/cobra"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Capture or clear the device display rect",
	Long: `Calibration records where the device display sits inside the Simulator
window. It is saved to the config file and restored while the window keeps
the same size.`,
}

var calibrateSetCmd = &cobra.Command{
	Use:   "set X Y WIDTH HEIGHT",
	Short: "Calibrate from an explicit screen rect",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := make([]float64, len(args))
		for i, arg := range args {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("invalid value '%s': %v", arg, err)
			}
			values[i] = v
		}

		if _, err := startTrackedInspector(runtimeOptions{}); err != nil {
			return err
		}
		return finish(commands.CalibrateCommand(commands.CalibrateRequest{
			X:      values[0],
			Y:      values[1],
			Width:  values[2],
			Height: values[3],
		}))
	},
}

var calibrateProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Calibrate from the display area reported by accessibility",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := startTrackedInspector(runtimeOptions{})
		if err != nil {
			return err
		}

		snap := in.Status().Tracker
		content, err := window.NewSystemEvents().ProbeContentRect(context.Background(), snap.Window)
		if err != nil {
			return fmt.Errorf("failed to probe content rect: %w", err)
		}
		return finish(commands.CalibrateCommand(commands.CalibrateRequest{
			X:      content.X,
			Y:      content.Y,
			Width:  content.Width,
			Height: content.Height,
		}))
	},
}

var calibrateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the saved calibration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := startInspector(context.Background(), runtimeOptions{}); err != nil {
			return err
		}
		return finish(commands.CalibrationResetCommand())
	},
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.AddCommand(calibrateSetCmd)
	calibrateCmd.AddCommand(calibrateProbeCmd)
	calibrateCmd.AddCommand(calibrateResetCmd)

	calibrateCmd.PersistentFlags().DurationVar(&waitTimeout, "wait", defaultWaitTimeout, "how long to wait for the Simulator window")
}
