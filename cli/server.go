package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mobile-next/siminspect/config"
	"github.com/mobile-next/siminspect/daemon"
	"github.com/mobile-next/siminspect/server"
	"github.com/mobile-next/siminspect/utils"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Server management commands",
	Long:  `Commands for managing the siminspect server that drives overlay renderers over WebSocket.`,
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the siminspect server",
	Long: `Starts tracking the Simulator window and serves JSON-RPC on /rpc and /ws.
WebSocket clients that call events.subscribe receive overlay and frame
notifications.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr := listenAddress(cmd)

		// GetBool cannot fail for defined flags
		enableCORS, _ := cmd.Flags().GetBool("cors")
		enableCORS = enableCORS || cfg.Server.CORS
		isDaemon, _ := cmd.Flags().GetBool("daemon")
		noCompanion, _ := cmd.Flags().GetBool("no-companion")

		addr, err := utils.NormalizeListenAddr(listenAddr)
		if err != nil {
			return err
		}
		if !utils.IsListenAddrAvailable(addr) {
			return fmt.Errorf("cannot listen on %s, is another server running?", addr)
		}

		if isDaemon && !daemon.IsChild() {
			_, err := daemon.Daemonize(filepath.Join(filepath.Dir(configPath), "server.log"))
			if err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}

			fmt.Printf("Server daemon spawned, attempting to listen on %s\n", addr)
			return nil
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		hub := server.NewHub()
		in, err := startInspector(ctx, runtimeOptions{surface: hub, companion: !noCompanion, track: true})
		if err != nil {
			return err
		}
		if err := in.OnFrame(hub.FrameChanged); err != nil {
			return err
		}

		return server.StartServer(ctx, addr, enableCORS, hub)
	},
}

var serverKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Stop the daemonized siminspect server",
	Long:  `Connects to the server and sends a shutdown command via JSON-RPC.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := daemon.KillServer(listenAddress(cmd))
		if err != nil {
			return err
		}

		fmt.Printf("Server shutdown command sent successfully\n")
		return nil
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether a siminspect server is answering",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := listenAddress(cmd)
		running := daemon.IsRunning(addr)
		printJson(map[string]interface{}{"address": addr, "running": running})
		if !running {
			return fmt.Errorf("server is not running on %s", addr)
		}
		return nil
	},
}

// listenAddress is the --listen flag, then the config, then the default.
func listenAddress(cmd *cobra.Command) string {
	// GetString cannot fail for defined flags
	addr, _ := cmd.Flags().GetString("listen")
	if addr == "" {
		addr = cfg.Server.Listen
	}
	if addr == "" {
		addr = config.DefaultListen
	}
	return addr
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// add server subcommands
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverKillCmd)
	serverCmd.AddCommand(serverStatusCmd)

	// server start flags
	serverStartCmd.Flags().String("listen", "", fmt.Sprintf("Address to listen on (default: %s)", config.DefaultListen))
	serverStartCmd.Flags().Bool("cors", false, "Enable CORS support")
	serverStartCmd.Flags().BoolP("daemon", "d", false, "Run server in daemon mode (background)")
	serverStartCmd.Flags().Bool("no-companion", false, "Serve tracking only, without an accessibility tree source")
	serverStartCmd.Flags().StringVar(&deviceId, "device", "", "ID of the simulator to inspect")
	serverStartCmd.Flags().StringVar(&trackMode, "mode", "", modeFlagUsage)

	// server kill and status flags
	serverKillCmd.Flags().String("listen", "", fmt.Sprintf("Address of server to kill (default: %s)", config.DefaultListen))
	serverStatusCmd.Flags().String("listen", "", fmt.Sprintf("Address of server to check (default: %s)", config.DefaultListen))
}
