package commands

import (
	"fmt"
	"sync"

	"github.com/mobile-next/siminspect/inspector"
)

// CommandResponse represents a standardized response format for all commands
type CommandResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) *CommandResponse {
	return &CommandResponse{
		Status: "ok",
		Data:   data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err error) *CommandResponse {
	return &CommandResponse{
		Status: "error",
		Error:  err.Error(),
	}
}

var okStatus = map[string]interface{}{"status": "ok"}

var (
	activeMu sync.RWMutex
	active   *inspector.Inspector
)

// SetInspector installs the inspector that commands operate on.
// It is called once at startup by the cli or the server.
func SetInspector(in *inspector.Inspector) {
	activeMu.Lock()
	defer activeMu.Unlock()
	active = in
}

// GetInspector returns the installed inspector, or an error before
// SetInspector has been called.
func GetInspector() (*inspector.Inspector, error) {
	activeMu.RLock()
	defer activeMu.RUnlock()
	if active == nil {
		return nil, fmt.Errorf("inspector is not running")
	}
	return active, nil
}

// withInspector runs fn against the active inspector and wraps any
// failure into an error response.
func withInspector(fn func(in *inspector.Inspector) (interface{}, error)) *CommandResponse {
	in, err := GetInspector()
	if err != nil {
		return NewErrorResponse(err)
	}

	data, err := fn(in)
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(data)
}
