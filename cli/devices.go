package cli

import (
	"context"

	"github.com/mobile-next/siminspect/commands"
	"github.com/mobile-next/siminspect/devices"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List iOS simulators",
	Long:  `Lists the simulators known to simctl. Use --booted to show only running ones; their UDIDs are accepted by --device.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), simctlTimeout)
		defer cancel()
		return finish(commands.DevicesCommand(ctx, devices.NewSimctl(), commands.DevicesRequest{Booted: devicesBooted}))
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().BoolVar(&devicesBooted, "booted", false, "only list booted simulators")
}
