package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mobile-next/siminspect/clock"
	"github.com/mobile-next/siminspect/commands"
	"github.com/mobile-next/siminspect/companion"
	"github.com/mobile-next/siminspect/devices"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/inspector"
	"github.com/mobile-next/siminspect/overlay"
	"github.com/mobile-next/siminspect/tracker"
	"github.com/mobile-next/siminspect/utils"
	"github.com/mobile-next/siminspect/window"
)

const (
	processPollInterval = 500 * time.Millisecond
	frameWaitInterval   = 20 * time.Millisecond
	defaultWaitTimeout  = 5 * time.Second
	simctlTimeout       = 15 * time.Second
)

const modeFlagUsage = "tracking mode: 'poll' or 'events' (default from config). " +
	"System Events cannot deliver move/resize notifications, so 'events' currently polls"

type runtimeOptions struct {
	surface overlay.Surface
	// companion connects the tree source, starting the configured
	// companion command when nothing answers.
	companion bool
	// track starts window tracking right away.
	track bool
}

// startInspector builds the inspector from the loaded config and makes
// it the target of every command. It is closed by the shutdown hooks.
func startInspector(ctx context.Context, opts runtimeOptions) (*inspector.Inspector, error) {
	mode, err := resolveMode()
	if err != nil {
		return nil, err
	}

	if opts.surface == nil {
		opts.surface = logSurface{}
	}

	events := window.NewSystemEvents()
	mode = effectiveMode(mode, events)
	deps := inspector.Deps{
		Source:    events,
		Lifecycle: window.NewProcessWatcher(clock.Real(), processPollInterval),
		Prober:    events,
		Screen:    events,
		Surface:   opts.surface,
	}

	if opts.companion {
		client, err := connectCompanion(ctx)
		if err != nil {
			return nil, err
		}
		deps.Trees = client
		deps.Lookup = client
	}

	in, err := inspector.New(deps, inspector.Options{
		Tracker: tracker.Options{
			OwnerName:       cfg.Tracking.Owner,
			Mode:            mode,
			PollInterval:    cfg.Tracking.PollInterval,
			LaunchGrace:     cfg.Tracking.LaunchGrace,
			ChromeInset:     cfg.Tracking.ChromeInset,
			AspectTolerance: cfg.Tracking.AspectTolerance,
		},
		SettleDelay: cfg.Tracking.SettleDelay,
		CacheSize:   cfg.CacheSize,
		ConfigPath:  configPath,
		Calibration: cfg.Calibration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create inspector: %w", err)
	}
	hooks.Register("inspector", in.Close)
	commands.SetInspector(in)

	if opts.companion || deviceId != "" {
		udid, err := selectDevice(ctx)
		if err != nil {
			return nil, err
		}
		if udid != "" {
			if err := in.SelectDevice(udid); err != nil {
				return nil, err
			}
		}
	}

	if opts.track {
		if err := in.StartTracking(); err != nil {
			return nil, fmt.Errorf("failed to start tracking: %w", err)
		}
	}
	return in, nil
}

// selectDevice resolves --device against simctl. Without --device the
// only booted simulator is used, if there is one.
func selectDevice(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, simctlTimeout)
	defer cancel()

	sim, err := commands.ResolveDevice(ctx, devices.NewSimctl(), deviceId)
	switch {
	case err == nil:
		utils.Verbose("using simulator %s (%s, %s)", sim.Name, sim.UDID, sim.Runtime)
		return sim.UDID, nil
	case deviceId == "":
		utils.Verbose("no device selected: %v", err)
		return "", nil
	case errors.Is(err, devices.ErrNotFound), errors.Is(err, devices.ErrAmbiguous):
		return "", err
	default:
		// simctl unavailable, pass the id through to the companion
		utils.Verbose("could not resolve device %s: %v", deviceId, err)
		return deviceId, nil
	}
}

// effectiveMode downgrades events mode when src cannot observe windows,
// so the caller is told instead of finding out from the logs.
func effectiveMode(mode tracker.Mode, src window.Source) tracker.Mode {
	if mode != tracker.ModeEvents {
		return mode
	}
	if _, ok := src.(window.Observer); ok {
		return mode
	}
	utils.Warn("events mode is not available for this window source, polling every %v instead", cfg.Tracking.PollInterval)
	return tracker.ModePoll
}

func resolveMode() (tracker.Mode, error) {
	if trackMode == "" {
		return cfg.Tracking.Mode, nil
	}
	switch m := tracker.Mode(trackMode); m {
	case tracker.ModePoll, tracker.ModeEvents:
		return m, nil
	default:
		return "", fmt.Errorf("invalid mode '%s'. Supported modes are '%s' and '%s'", trackMode, tracker.ModePoll, tracker.ModeEvents)
	}
}

func connectCompanion(ctx context.Context) (*companion.Client, error) {
	client := companion.NewClient(cfg.Companion.Host, cfg.Companion.Port)
	hooks.Register("companion client", func() error {
		client.Close()
		return nil
	})

	if err := client.HealthCheck(ctx); err == nil {
		return client, nil
	}

	if cfg.Companion.Command == "" {
		return nil, fmt.Errorf("companion is not reachable on %s:%d and no [companion] command is configured", cfg.Companion.Host, cfg.Companion.Port)
	}

	utils.Info("Starting companion: %s", cfg.Companion.Command)
	proc := companion.NewProcess(cfg.Companion.Command, cfg.Companion.Args, cfg.Companion.ReadyTimeout)
	if err := proc.Start(ctx, client); err != nil {
		return nil, err
	}
	hooks.Register("companion process", proc.Stop)
	return client, nil
}

// waitForFrame polls the committed status until a window frame is known.
func waitForFrame(ctx context.Context, in *inspector.Inspector, timeout time.Duration) (tracker.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(frameWaitInterval)
	defer ticker.Stop()

	for {
		snap := in.Status().Tracker
		switch {
		case snap.HasFrame:
			return snap, nil
		case snap.PermissionDenied:
			return snap, fmt.Errorf("accessibility permission denied, grant access in System Settings > Privacy & Security > Accessibility")
		}

		select {
		case <-ctx.Done():
			return snap, fmt.Errorf("no %s window found within %v", cfg.Tracking.Owner, timeout)
		case <-ticker.C:
		}
	}
}

// logSurface stands in for the overlay window in one-shot commands.
type logSurface struct{}

func (logSurface) SetFrame(frame geometry.Rect) { utils.Verbose("overlay frame %s", frame) }
func (logSurface) SetVisible(visible bool)      { utils.Verbose("overlay visible=%v", visible) }
func (logSurface) SetClickThrough(v bool)       { utils.Verbose("overlay click-through=%v", v) }
func (logSurface) ClearHighlight()              { utils.Verbose("overlay highlight cleared") }

func (logSurface) Highlight(rect geometry.Rect, label string) {
	utils.Verbose("overlay highlight %s %q", rect, label)
}

// finish prints a command response and turns an error status into a
// returned error.
func finish(response *commands.CommandResponse) error {
	printJson(response)
	if response.Status == "error" {
		return fmt.Errorf("%s", response.Error)
	}
	return nil
}
