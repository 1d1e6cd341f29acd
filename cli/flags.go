package cli

import "time"

var (
	verbose    bool
	configPath string

	// all commands that inspect a device tree
	deviceId string

	// for commands that need a tracked window
	waitTimeout time.Duration
	trackMode   string

	// for devices command
	devicesBooted bool

	// for track command
	trackDuration time.Duration

	// for tree dump command
	treeFormat string

	// for screenshot command
	screenshotOutputPath  string
	screenshotFormat      string
	screenshotJpegQuality int
)
