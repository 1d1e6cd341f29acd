package cli

import (
	"context"
	"fmt"

	"github.com/mobile-next/siminspect/commands"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Accessibility tree operations",
	Long:  `Fetch the accessibility tree from the companion and resolve screen points against it.`,
}

var treeDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the accessibility tree of a simulator",
	Long:  `Fetches the accessibility tree of the selected simulator from the companion and prints it as JSON or YAML.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if _, err := startInspector(ctx, runtimeOptions{companion: true}); err != nil {
			return err
		}

		response := commands.TreeCommand(ctx, commands.TreeRequest{Refresh: true})
		if response.Status == "error" {
			return finish(response)
		}

		out, err := commands.FormatTree(response.Data.(commands.TreeResponse), treeFormat)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var treeHitCmd = &cobra.Command{
	Use:   "hit X Y",
	Short: "Find the element under a screen point",
	Long: `Tracks the Simulator window, fetches the accessibility tree and prints the
deepest element whose frame contains the given screen point.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		point, err := parsePoint(args)
		if err != nil {
			return err
		}

		if _, err := startTrackedInspector(runtimeOptions{companion: true}); err != nil {
			return err
		}

		if response := commands.TreeRefreshCommand(context.Background()); response.Status == "error" {
			return finish(response)
		}
		return finish(commands.HitTestCommand(point))
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)

	treeCmd.AddCommand(treeDumpCmd)
	treeCmd.AddCommand(treeHitCmd)

	treeCmd.PersistentFlags().StringVar(&deviceId, "device", "", "ID of the simulator to inspect")
	treeDumpCmd.Flags().StringVar(&treeFormat, "format", "json", "output format: 'json' or 'yaml'")
	treeHitCmd.Flags().DurationVar(&waitTimeout, "wait", defaultWaitTimeout, "how long to wait for the Simulator window")
}
