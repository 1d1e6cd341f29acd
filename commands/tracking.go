package commands

import (
	"github.com/mobile-next/siminspect/inspector"
)

// StatusCommand returns the committed inspector status.
func StatusCommand() *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		return in.Status(), nil
	})
}

// TrackStartCommand starts following the Simulator window.
func TrackStartCommand() *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.StartTracking(); err != nil {
			return nil, err
		}
		return in.Status().Tracker, nil
	})
}

// TrackStopCommand stops tracking and releases the window.
func TrackStopCommand() *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.StopTracking(); err != nil {
			return nil, err
		}
		return okStatus, nil
	})
}
