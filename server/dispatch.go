package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mobile-next/siminspect/commands"
	"github.com/mobile-next/siminspect/devices"
)

const (
	// refreshTimeout bounds a tree refresh made through the server.
	refreshTimeout = 90 * time.Second
	devicesTimeout = 15 * time.Second
)

var simulators commands.SimulatorLister = devices.NewSimctl()

// HandlerFunc is the signature for JSON-RPC method handlers
type HandlerFunc func(params json.RawMessage) (interface{}, error)

// GetMethodRegistry returns a map of method names to handler functions
// This is used by both the HTTP server and embedded clients
func GetMethodRegistry() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"status":            handleStatus,
		"track_start":       handleTrackStart,
		"track_stop":        handleTrackStop,
		"calibrate":         handleCalibrate,
		"calibration_reset": handleCalibrationReset,
		"map_point":         handleMapPoint,
		"device_to_screen":  handleDeviceToScreen,
		"hit_test":          handleHitTest,
		"inspect_toggle":    handleInspectToggle,
		"pointer_move":      handlePointerMove,
		"pointer_click":     handlePointerClick,
		"selection_clear":   handleSelectionClear,
		"select_element":    handleSelectElement,
		"select_device":     handleSelectDevice,
		"tree_refresh":      handleTreeRefresh,
		"tree":              handleTree,
		"screenshot":        handleScreenshot,
		"devices":           handleDevices,
	}
}

// Execute dispatches a method call using the registry
// This is the main entry point for embedded clients
func Execute(method string, params json.RawMessage) (interface{}, error) {
	registry := GetMethodRegistry()

	handler, exists := registry[method]
	if !exists {
		return nil, fmt.Errorf("method not found: %s", method)
	}

	return handler(params)
}

// invalidParamsError marks a params decoding failure.
type invalidParamsError struct {
	err error
}

func (e *invalidParamsError) Error() string { return fmt.Sprintf("invalid parameters: %v", e.err) }
func (e *invalidParamsError) Unwrap() error { return e.err }

func errorCode(err error) int {
	var invalid *invalidParamsError
	if errors.As(err, &invalid) {
		return ErrCodeInvalidParams
	}
	return ErrCodeServerError
}

func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &invalidParamsError{err: err}
	}
	return nil
}

// result unwraps a command response into a JSON-RPC result.
func result(response *commands.CommandResponse) (interface{}, error) {
	if response.Status == "error" {
		return nil, fmt.Errorf("%s", response.Error)
	}
	if response.Data == nil {
		return okResponse, nil
	}
	return response.Data, nil
}

func handleStatus(params json.RawMessage) (interface{}, error) {
	return result(commands.StatusCommand())
}

func handleTrackStart(params json.RawMessage) (interface{}, error) {
	return result(commands.TrackStartCommand())
}

func handleTrackStop(params json.RawMessage) (interface{}, error) {
	return result(commands.TrackStopCommand())
}

func handleCalibrate(params json.RawMessage) (interface{}, error) {
	var req commands.CalibrateRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return result(commands.CalibrateCommand(req))
}

func handleCalibrationReset(params json.RawMessage) (interface{}, error) {
	return result(commands.CalibrationResetCommand())
}

func handleMapPoint(params json.RawMessage) (interface{}, error) {
	var req commands.PointRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return result(commands.MapPointCommand(req))
}

func handleDeviceToScreen(params json.RawMessage) (interface{}, error) {
	var req commands.DeviceRectRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return result(commands.DeviceToScreenCommand(req))
}

func handleHitTest(params json.RawMessage) (interface{}, error) {
	var req commands.PointRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return result(commands.HitTestCommand(req))
}

func handleInspectToggle(params json.RawMessage) (interface{}, error) {
	return result(commands.InspectToggleCommand())
}

func handlePointerMove(params json.RawMessage) (interface{}, error) {
	var req commands.PointRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return result(commands.PointerMoveCommand(req))
}

func handlePointerClick(params json.RawMessage) (interface{}, error) {
	var req commands.PointRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return result(commands.PointerClickCommand(req))
}

func handleSelectionClear(params json.RawMessage) (interface{}, error) {
	return result(commands.SelectionClearCommand())
}

func handleSelectElement(params json.RawMessage) (interface{}, error) {
	var req commands.SelectElementRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return result(commands.SelectElementCommand(req))
}

func handleSelectDevice(params json.RawMessage) (interface{}, error) {
	var req commands.SelectDeviceRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return result(commands.SelectDeviceCommand(req))
}

func handleTreeRefresh(params json.RawMessage) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	return result(commands.TreeRefreshCommand(ctx))
}

func handleTree(params json.RawMessage) (interface{}, error) {
	var req commands.TreeRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	return result(commands.TreeCommand(ctx, req))
}

func handleScreenshot(params json.RawMessage) (interface{}, error) {
	var req commands.ScreenshotRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	// always return base64 data for server
	req.OutputPath = "-"

	response := commands.ScreenshotCommand(req)
	if response.Status == "error" {
		return nil, fmt.Errorf("%s", response.Error)
	}

	shot := response.Data.(commands.ScreenshotResponse)
	return map[string]interface{}{
		"format": shot.Format,
		"data":   fmt.Sprintf("data:image/%s;base64,%s", shot.Format, shot.Data),
	}, nil
}

func handleDevices(params json.RawMessage) (interface{}, error) {
	var req commands.DevicesRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), devicesTimeout)
	defer cancel()
	return result(commands.DevicesCommand(ctx, simulators, req))
}
