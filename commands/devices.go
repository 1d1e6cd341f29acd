package commands

import (
	"context"

	"github.com/mobile-next/siminspect/devices"
)

// SimulatorLister lists the simulators installed on this host.
type SimulatorLister interface {
	List(ctx context.Context) ([]devices.Simulator, error)
}

// DevicesRequest filters the device list.
type DevicesRequest struct {
	Booted bool `json:"booted,omitempty"`
}

// DevicesCommand lists simulators, optionally only the running ones.
func DevicesCommand(ctx context.Context, lister SimulatorLister, req DevicesRequest) *CommandResponse {
	simulators, err := lister.List(ctx)
	if err != nil {
		return NewErrorResponse(err)
	}

	if req.Booted {
		var booted []devices.Simulator
		for _, s := range simulators {
			if s.Booted() {
				booted = append(booted, s)
			}
		}
		simulators = booted
	}

	if simulators == nil {
		simulators = []devices.Simulator{}
	}
	return NewSuccessResponse(map[string]interface{}{
		"devices": simulators,
	})
}

// ResolveDevice turns a UDID or simulator name into a simulator. An
// empty idOrName selects the only booted simulator.
func ResolveDevice(ctx context.Context, lister SimulatorLister, idOrName string) (devices.Simulator, error) {
	simulators, err := lister.List(ctx)
	if err != nil {
		return devices.Simulator{}, err
	}
	if idOrName == "" {
		return devices.AutoSelect(simulators)
	}
	return devices.Find(simulators, idOrName)
}
