// Package config loads siminspect settings from an ini file. A missing
// file or key falls back to the built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mobile-next/siminspect/companion"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/overlay"
	"github.com/mobile-next/siminspect/tracker"
	"gopkg.in/ini.v1"
)

const (
	dirName  = ".siminspect"
	fileName = "config.ini"

	DefaultListen       = "localhost:12100"
	DefaultReadyTimeout = 10 * time.Second
	DefaultCacheSize    = 8
)

type Tracking struct {
	Owner           string
	Mode            tracker.Mode
	PollInterval    time.Duration
	LaunchGrace     time.Duration
	ChromeInset     float64
	AspectTolerance float64
	SettleDelay     time.Duration
}

type Companion struct {
	Host    string
	Port    int
	Command string
	Args    []string
	// ReadyTimeout bounds every wait for the companion to come up.
	ReadyTimeout time.Duration
}

type Server struct {
	Listen string
	CORS   bool
}

type Config struct {
	Tracking  Tracking
	Companion Companion
	Server    Server
	// CacheSize is the number of per-device trees kept in memory.
	CacheSize int
	// Calibration is nil when none was saved.
	Calibration *tracker.Calibration
}

func Default() Config {
	return Config{
		Tracking: Tracking{
			Owner:           tracker.DefaultOwnerName,
			Mode:            tracker.ModePoll,
			PollInterval:    tracker.DefaultPollInterval,
			LaunchGrace:     tracker.DefaultLaunchGrace,
			ChromeInset:     geometry.DefaultChromeInset,
			AspectTolerance: geometry.DefaultAspectTolerance,
			SettleDelay:     overlay.DefaultSettleDelay,
		},
		Companion: Companion{
			Host:         companion.DefaultHost,
			Port:         companion.DefaultPort,
			ReadyTimeout: DefaultReadyTimeout,
		},
		Server:    Server{Listen: DefaultListen},
		CacheSize: DefaultCacheSize,
	}
}

// DefaultPath is ~/.siminspect/config.ini.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dirName, fileName), nil
}

func Load(path string) (Config, error) {
	cfg := Default()

	file, err := ini.LooseLoad(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sec := file.Section("tracking")
	cfg.Tracking.Owner = sec.Key("owner").MustString(cfg.Tracking.Owner)
	cfg.Tracking.Mode = tracker.Mode(sec.Key("mode").In(string(cfg.Tracking.Mode), []string{string(tracker.ModePoll), string(tracker.ModeEvents)}))
	cfg.Tracking.PollInterval = sec.Key("poll_interval").MustDuration(cfg.Tracking.PollInterval)
	cfg.Tracking.LaunchGrace = sec.Key("launch_grace").MustDuration(cfg.Tracking.LaunchGrace)
	cfg.Tracking.ChromeInset = sec.Key("chrome_inset").MustFloat64(cfg.Tracking.ChromeInset)
	cfg.Tracking.AspectTolerance = sec.Key("aspect_tolerance").MustFloat64(cfg.Tracking.AspectTolerance)
	cfg.Tracking.SettleDelay = sec.Key("settle_delay").MustDuration(cfg.Tracking.SettleDelay)

	sec = file.Section("companion")
	cfg.Companion.Host = sec.Key("host").MustString(cfg.Companion.Host)
	cfg.Companion.Port = sec.Key("port").MustInt(cfg.Companion.Port)
	cfg.Companion.Command = sec.Key("command").String()
	if args := strings.TrimSpace(sec.Key("args").String()); args != "" {
		cfg.Companion.Args = strings.Fields(args)
	}
	cfg.Companion.ReadyTimeout = sec.Key("ready_timeout").MustDuration(cfg.Companion.ReadyTimeout)

	sec = file.Section("server")
	cfg.Server.Listen = sec.Key("listen").MustString(cfg.Server.Listen)
	cfg.Server.CORS = sec.Key("cors").MustBool(false)

	cfg.CacheSize = file.Section("inspector").Key("cache_size").MustInt(cfg.CacheSize)
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	if file.HasSection("calibration") {
		var cal tracker.Calibration
		if err := file.Section("calibration").MapTo(&cal); err != nil {
			return cfg, fmt.Errorf("invalid [calibration] in %s: %w", path, err)
		}
		if !cal.IsZero() {
			cfg.Calibration = &cal
		}
	}

	return cfg, nil
}

// SaveCalibration rewrites the [calibration] section of path, leaving
// the rest of the file alone. A nil calibration removes the section.
func SaveCalibration(path string, cal *tracker.Calibration) error {
	file, err := ini.LooseLoad(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	file.DeleteSection("calibration")
	if cal != nil {
		if err := file.Section("calibration").ReflectFrom(cal); err != nil {
			return fmt.Errorf("failed to encode calibration: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
