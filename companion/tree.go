package companion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mobile-next/siminspect/elementtree"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/utils"
)

// FetchTree dumps the full accessibility hierarchy of the device.
func (c *Client) FetchTree(ctx context.Context, deviceID string) ([]*elementtree.Node, error) {
	startTime := time.Now()

	params := map[string]interface{}{
		"deviceId": deviceID,
		"format":   "json",
	}
	result, err := c.callWithTimeout(ctx, "device.dump.ui", params, dumpTimeout)
	if err != nil {
		return nil, err
	}

	roots, err := elementtree.Parse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dump response: %w", err)
	}

	utils.Verbose("FetchTree took %.2f seconds", time.Since(startTime).Seconds())
	return roots, nil
}

// FetchScreenshot returns PNG bytes.
func (c *Client) FetchScreenshot(ctx context.Context, deviceID string) ([]byte, error) {
	params := map[string]interface{}{
		"deviceId": deviceID,
		"format":   "png",
	}
	result, err := c.callWithTimeout(ctx, "device.screenshot", params, dumpTimeout)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return nil, fmt.Errorf("failed to parse screenshot response: %w", err)
	}

	// data may arrive as a data: URL
	b64 := response.Data
	if idx := strings.Index(b64, ","); idx != -1 {
		b64 = b64[idx+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return decoded, nil
}

// ElementAt asks the companion which element lies under a device point.
// It returns nil without error when nothing is there.
func (c *Client) ElementAt(ctx context.Context, deviceID string, p geometry.Point) (*elementtree.Node, error) {
	params := map[string]interface{}{
		"deviceId": deviceID,
		"x":        p.X,
		"y":        p.Y,
	}
	result, err := c.call(ctx, "device.element.at", params)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(result))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	nodes, err := elementtree.Parse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse element response: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}
