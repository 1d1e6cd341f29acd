package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

const stateBooted = "Booted"

var (
	ErrNotFound  = errors.New("simulator not found")
	ErrAmbiguous = errors.New("simulator name is ambiguous")
)

// Simulator is one device from `xcrun simctl list devices`.
type Simulator struct {
	Name    string `json:"name"`
	UDID    string `json:"udid"`
	State   string `json:"state"`
	Runtime string `json:"runtime"`
}

func (s Simulator) Booted() bool { return s.State == stateBooted }

// Runner executes simctl with args and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// Simctl lists simulators through xcrun.
type Simctl struct {
	run Runner
}

func NewSimctl() *Simctl {
	return &Simctl{run: runSimctl}
}

// NewSimctlWithRunner is used by tests to replay simctl output.
func NewSimctlWithRunner(run Runner) *Simctl {
	return &Simctl{run: run}
}

func runSimctl(ctx context.Context, args ...string) ([]byte, error) {
	fullArgs := append([]string{"simctl"}, args...)
	output, err := exec.CommandContext(ctx, "xcrun", fullArgs...).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to execute xcrun simctl %s: %w", strings.Join(args, " "), err)
	}
	return output, nil
}

// List returns every available simulator, sorted by runtime and name.
func (s *Simctl) List(ctx context.Context) ([]Simulator, error) {
	output, err := s.run(ctx, "list", "devices", "--json")
	if err != nil {
		return nil, err
	}
	return parseSimulators(output)
}

// Booted returns the simulators that are currently running.
func (s *Simctl) Booted(ctx context.Context) ([]Simulator, error) {
	simulators, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return filterSimulatorsByState(simulators, stateBooted), nil
}

func parseSimulators(output []byte) ([]Simulator, error) {
	var response struct {
		Devices map[string][]struct {
			Name        string `json:"name"`
			UDID        string `json:"udid"`
			State       string `json:"state"`
			IsAvailable *bool  `json:"isAvailable"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, fmt.Errorf("failed to parse simulator list JSON: %w", err)
	}
	if response.Devices == nil {
		return nil, fmt.Errorf("unexpected format in simulator list: devices not found")
	}

	var simulators []Simulator
	for runtime, list := range response.Devices {
		for _, d := range list {
			if d.IsAvailable != nil && !*d.IsAvailable {
				continue
			}
			simulators = append(simulators, Simulator{
				Name:    d.Name,
				UDID:    d.UDID,
				State:   d.State,
				Runtime: runtimeName(runtime),
			})
		}
	}

	sort.Slice(simulators, func(i, j int) bool {
		if simulators[i].Runtime != simulators[j].Runtime {
			return simulators[i].Runtime < simulators[j].Runtime
		}
		return simulators[i].Name < simulators[j].Name
	})
	return simulators, nil
}

// runtimeName turns "com.apple.CoreSimulator.SimRuntime.iOS-18-6" into "iOS 18.6".
func runtimeName(identifier string) string {
	name := identifier[strings.LastIndex(identifier, ".")+1:]
	platform, version, ok := strings.Cut(name, "-")
	if !ok {
		return name
	}
	return platform + " " + strings.ReplaceAll(version, "-", ".")
}

func filterSimulatorsByState(simulators []Simulator, state string) []Simulator {
	var filtered []Simulator
	for _, s := range simulators {
		if s.State == state {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// Find matches a simulator by UDID, or by name when the name is unique.
func Find(simulators []Simulator, idOrName string) (Simulator, error) {
	var byName []Simulator
	for _, s := range simulators {
		if strings.EqualFold(s.UDID, idOrName) {
			return s, nil
		}
		if s.Name == idOrName {
			byName = append(byName, s)
		}
	}

	switch len(byName) {
	case 0:
		return Simulator{}, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
	case 1:
		return byName[0], nil
	}

	// prefer the running one when several runtimes share a name
	if booted := filterSimulatorsByState(byName, stateBooted); len(booted) == 1 {
		return booted[0], nil
	}
	return Simulator{}, fmt.Errorf("%w: %s, use the UDID", ErrAmbiguous, idOrName)
}

// AutoSelect picks the only booted simulator.
func AutoSelect(simulators []Simulator) (Simulator, error) {
	booted := filterSimulatorsByState(simulators, stateBooted)
	switch len(booted) {
	case 0:
		return Simulator{}, fmt.Errorf("no booted simulators found")
	case 1:
		return booted[0], nil
	default:
		return Simulator{}, fmt.Errorf("%d simulators are booted, select one with --device", len(booted))
	}
}
