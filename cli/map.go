package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mobile-next/siminspect/commands"
	"github.com/mobile-next/siminspect/inspector"
	"github.com/spf13/cobra"
)

var mapCmd = &cobra.Command{
	Use:   "map X Y",
	Short: "Convert a screen point into device points",
	Long: `Converts a screen point (top-left origin, in points) into device logical
points using the current calibration, or an estimated content rect when the
window has not been calibrated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		point, err := parsePoint(args)
		if err != nil {
			return err
		}

		if _, err := startTrackedInspector(runtimeOptions{}); err != nil {
			return err
		}
		return finish(commands.MapPointCommand(point))
	},
}

// startTrackedInspector starts tracking and waits for the first frame.
func startTrackedInspector(opts runtimeOptions) (*inspector.Inspector, error) {
	opts.track = true
	in, err := startInspector(context.Background(), opts)
	if err != nil {
		return nil, err
	}
	if _, err := waitForFrame(context.Background(), in, waitTimeout); err != nil {
		return nil, err
	}
	return in, nil
}

func parsePoint(args []string) (commands.PointRequest, error) {
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return commands.PointRequest{}, fmt.Errorf("invalid x coordinate '%s': %v", args[0], err)
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return commands.PointRequest{}, fmt.Errorf("invalid y coordinate '%s': %v", args[1], err)
	}
	return commands.PointRequest{X: x, Y: y}, nil
}

func init() {
	rootCmd.AddCommand(mapCmd)

	mapCmd.Flags().DurationVar(&waitTimeout, "wait", defaultWaitTimeout, "how long to wait for the Simulator window")
}
