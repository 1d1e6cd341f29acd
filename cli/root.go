package cli

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mobile-next/siminspect/config"
	"github.com/mobile-next/siminspect/utils"
	"github.com/spf13/cobra"
)

const version = "dev"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "siminspect",
	Short: "Track the iOS Simulator window and inspect its accessibility tree",
	Long: `siminspect follows the iOS Simulator window on screen, maps screen points
onto device points and hit-tests them against the device's accessibility tree.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

var (
	cfg   = config.Default()
	hooks = utils.NewShutdownHooks()
)

func initConfig() {
	utils.SetVerbose(verbose)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.siminspect/config.ini)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		configPath = path
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	utils.Verbose("loaded config from %s", configPath)
	return nil
}

// SetShutdownHooks installs the hooks that main runs on exit or signal.
func SetShutdownHooks(h *utils.ShutdownHooks) {
	hooks = h
}

// Execute runs the root command
func Execute() error {
	// enable microseconds in logs
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	return rootCmd.Execute()
}

// printJson is a helper function to print JSON responses
func printJson(data interface{}) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(jsonData))
}
