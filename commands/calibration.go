package commands

import (
	"fmt"

	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/inspector"
)

// CalibrateRequest is the device display rect in screen points.
type CalibrateRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r CalibrateRequest) rect() geometry.Rect {
	return geometry.NewRect(r.X, r.Y, r.Width, r.Height)
}

// CalibrateCommand captures the given content rect against the current
// window frame.
func CalibrateCommand(req CalibrateRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		content := req.rect()
		if content.IsEmpty() {
			return nil, fmt.Errorf("content rect must have a positive size, got %s", content)
		}
		if err := in.Calibrate(content); err != nil {
			return nil, err
		}
		return in.Status().Tracker, nil
	})
}

// CalibrationResetCommand drops the calibration and the saved copy.
func CalibrationResetCommand() *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.ResetCalibration(); err != nil {
			return nil, err
		}
		return in.Status().Tracker, nil
	})
}
