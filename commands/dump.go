package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mobile-next/siminspect/elementtree"
	"github.com/mobile-next/siminspect/inspector"
	"gopkg.in/yaml.v3"
)

// SelectDeviceRequest names the device whose tree is inspected.
type SelectDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// SelectDeviceCommand switches devices. Calibration is reset.
func SelectDeviceCommand(req SelectDeviceRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.SelectDevice(req.DeviceID); err != nil {
			return nil, err
		}
		return in.Status(), nil
	})
}

// TreeRequest represents the parameters for reading the element tree
type TreeRequest struct {
	// Refresh fetches a new tree from the companion first.
	Refresh bool `json:"refresh,omitempty"`
}

// TreeResponse represents the response for a tree command
type TreeResponse struct {
	DeviceID string            `json:"deviceId" yaml:"deviceId"`
	Tree     *elementtree.Tree `json:"tree" yaml:"tree"`
}

// TreeCommand returns the current element tree.
func TreeCommand(ctx context.Context, req TreeRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if req.Refresh {
			if err := in.Refresh(ctx); err != nil {
				return nil, err
			}
		}

		status := in.Status()
		tree := status.ElementTree()
		if tree == nil {
			return nil, fmt.Errorf("no element tree loaded, refresh first")
		}
		return TreeResponse{DeviceID: status.DeviceID, Tree: tree}, nil
	})
}

// TreeRefreshCommand fetches a new tree and reports its summary.
func TreeRefreshCommand(ctx context.Context) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.Refresh(ctx); err != nil {
			return nil, err
		}
		return in.Status().Tree, nil
	})
}

// FormatTree renders a tree response as "json" or "yaml".
func FormatTree(resp TreeResponse, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return json.MarshalIndent(resp, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(resp)
	default:
		return nil, fmt.Errorf("invalid format '%s'. Supported formats are 'json' and 'yaml'", format)
	}
}
