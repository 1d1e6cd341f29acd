package window

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/utils"
)

const listWindowsScript = `function run(argv) {
	var procs = Application("System Events").processes.whose({name: argv[0]})();
	if (procs.length === 0) { return "[]"; }
	var out = [];
	procs[0].windows().forEach(function (w, i) {
		var pos = w.position(), size = w.size();
		out.push({index: i, title: w.name() || "", subrole: w.subrole() || "", x: pos[0], y: pos[1], width: size[0], height: size[1]});
	});
	return JSON.stringify(out);
}`

const probeContentScript = `function run(argv) {
	var procs = Application("System Events").processes.whose({name: argv[0]})();
	if (procs.length === 0) { return "null"; }
	var w = procs[0].windows[parseInt(argv[1], 10)];
	var g = w.groups[0];
	var pos = g.position(), size = g.size();
	return JSON.stringify({x: pos[0], y: pos[1], width: size[0], height: size[1]});
}`

const mainScreenScript = `ObjC.import("AppKit");
var f = $.NSScreen.screens.objectAtIndex(0).frame;
JSON.stringify({x: f.origin.x, y: f.origin.y, width: f.size.width, height: f.size.height});`

// CommandRunner executes an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// SystemEvents reads window geometry through the System Events
// accessibility scripting bridge. It needs the calling process to be
// granted accessibility access.
type SystemEvents struct {
	run     CommandRunner
	timeout time.Duration
}

func NewSystemEvents() *SystemEvents {
	return &SystemEvents{run: runCommand, timeout: 5 * time.Second}
}

// NewSystemEventsWithRunner is used by tests to replace osascript.
func NewSystemEventsWithRunner(run CommandRunner) *SystemEvents {
	return &SystemEvents{run: run, timeout: 5 * time.Second}
}

type scriptWindow struct {
	Index   int     `json:"index"`
	Title   string  `json:"title"`
	Subrole string  `json:"subrole"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

func (s *SystemEvents) ListWindows(ctx context.Context, owner string) ([]Window, error) {
	output, err := s.osascript(ctx, listWindowsScript, owner)
	if err != nil {
		return nil, err
	}

	var raw []scriptWindow
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse window list: %w", err)
	}

	windows := make([]Window, 0, len(raw))
	for _, w := range raw {
		layer := 0
		if w.Subrole != "" && w.Subrole != "AXStandardWindow" {
			layer = 1
		}
		windows = append(windows, Window{
			ID:        fmt.Sprintf("%s#%d", owner, w.Index),
			OwnerName: owner,
			Title:     w.Title,
			Frame:     geometry.NewRect(w.X, w.Y, w.Width, w.Height),
			Layer:     layer,
		})
	}
	return windows, nil
}

func (s *SystemEvents) ProbeContentRect(ctx context.Context, w Window) (geometry.Rect, error) {
	index := "0"
	if i := strings.LastIndex(w.ID, "#"); i >= 0 {
		index = w.ID[i+1:]
	}

	output, err := s.osascript(ctx, probeContentScript, w.OwnerName, index)
	if err != nil {
		return geometry.Rect{}, err
	}

	var rect *geometry.Rect
	if err := json.Unmarshal(output, &rect); err != nil {
		return geometry.Rect{}, fmt.Errorf("failed to parse content rect: %w", err)
	}
	if rect == nil || rect.IsEmpty() {
		return geometry.Rect{}, fmt.Errorf("no content area found in window %s", w.ID)
	}
	return *rect, nil
}

func (s *SystemEvents) MainScreen(ctx context.Context) (geometry.Rect, error) {
	output, err := s.osascript(ctx, mainScreenScript)
	if err != nil {
		return geometry.Rect{}, err
	}

	var rect geometry.Rect
	if err := json.Unmarshal(output, &rect); err != nil {
		return geometry.Rect{}, fmt.Errorf("failed to parse screen frame: %w", err)
	}
	return rect, nil
}

func (s *SystemEvents) osascript(ctx context.Context, script string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fullArgs := append([]string{"-l", "JavaScript", "-e", script}, args...)
	output, err := s.run(ctx, "osascript", fullArgs...)
	if err != nil {
		if isPermissionError(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("osascript failed: %w", err)
	}
	return []byte(strings.TrimSpace(string(output))), nil
}

// isPermissionError recognises the System Events errors returned when
// the process lacks accessibility access.
func isPermissionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "(-1719)") ||
		strings.Contains(msg, "(-25211)") ||
		strings.Contains(msg, "not allowed assistive access")
}

// runCommand returns stdout; on failure stderr is folded into the error.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	utils.Verbose("%s returned %d bytes", name, len(output))
	return output, nil
}
