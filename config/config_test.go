package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mobile-next/siminspect/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "Simulator", cfg.Tracking.Owner)
	assert.Equal(t, tracker.ModePoll, cfg.Tracking.Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.Tracking.PollInterval)
	assert.Equal(t, 300*time.Millisecond, cfg.Tracking.SettleDelay)
	assert.Equal(t, 28.0, cfg.Tracking.ChromeInset)
	assert.Equal(t, 12004, cfg.Companion.Port)
	assert.Equal(t, 10*time.Second, cfg.Companion.ReadyTimeout)
	assert.Nil(t, cfg.Calibration)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
[tracking]
owner = Simulator (Beta)
mode = events
poll_interval = 250ms
launch_grace = 2s
chrome_inset = 32
aspect_tolerance = 0.1
settle_delay = 500ms

[companion]
host = 127.0.0.1
port = 9000
command = /usr/local/bin/devicekit
args = --port 9000 --verbose
ready_timeout = 4s

[server]
listen = :8080
cors = true

[inspector]
cache_size = 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Tracking{
		Owner:           "Simulator (Beta)",
		Mode:            tracker.ModeEvents,
		PollInterval:    250 * time.Millisecond,
		LaunchGrace:     2 * time.Second,
		ChromeInset:     32,
		AspectTolerance: 0.1,
		SettleDelay:     500 * time.Millisecond,
	}, cfg.Tracking)
	assert.Equal(t, Companion{
		Host:         "127.0.0.1",
		Port:         9000,
		Command:      "/usr/local/bin/devicekit",
		Args:         []string{"--port", "9000", "--verbose"},
		ReadyTimeout: 4 * time.Second,
	}, cfg.Companion)
	assert.Equal(t, Server{Listen: ":8080", CORS: true}, cfg.Server)
	assert.Equal(t, 3, cfg.CacheSize)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	path := writeConfig(t, `
[tracking]
mode = telepathy
poll_interval = often

[inspector]
cache_size = -2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tracker.ModePoll, cfg.Tracking.Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.Tracking.PollInterval)
	assert.Equal(t, DefaultCacheSize, cfg.CacheSize)
}

func TestSaveCalibration_RoundTripKeepsOtherSections(t *testing.T) {
	path := writeConfig(t, "[companion]\nport = 9000\n")
	cal := tracker.Calibration{OffsetY: 28, ContentWidth: 400, ContentHeight: 772, FrameWidth: 400, FrameHeight: 800}

	require.NoError(t, SaveCalibration(path, &cal))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Calibration)
	assert.Equal(t, cal, *cfg.Calibration)
	assert.Equal(t, 9000, cfg.Companion.Port)

	require.NoError(t, SaveCalibration(path, nil))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Calibration)
}

func TestSaveCalibration_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.ini")
	cal := tracker.Calibration{ContentWidth: 390, ContentHeight: 844, FrameWidth: 390, FrameHeight: 872, OffsetY: 28}

	require.NoError(t, SaveCalibration(path, &cal))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
