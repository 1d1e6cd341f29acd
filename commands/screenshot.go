package commands

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mobile-next/siminspect/inspector"
	"github.com/mobile-next/siminspect/utils"
)

// ScreenshotRequest represents the parameters for reading the screenshot
// taken alongside the last tree refresh
type ScreenshotRequest struct {
	Format     string `json:"format,omitempty"`     // "png" or "jpeg"
	Quality    int    `json:"quality,omitempty"`    // 1-100, only used for JPEG
	OutputPath string `json:"outputPath,omitempty"` // file path, "-" for inline data, or empty for default naming
}

// ScreenshotResponse represents the response for a screenshot command
type ScreenshotResponse struct {
	Format   string `json:"format"`
	Data     string `json:"data,omitempty"`     // base64 encoded image data
	FilePath string `json:"filePath,omitempty"` // path where file was saved
}

// ScreenshotCommand returns or saves the current screenshot.
func ScreenshotCommand(req ScreenshotRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		shot := in.Screenshot()
		if len(shot) == 0 {
			return nil, fmt.Errorf("no screenshot available, refresh first")
		}

		imageBytes, format, err := utils.EncodeScreenshot(shot, req.Format, req.Quality)
		if err != nil {
			return nil, err
		}

		response := ScreenshotResponse{Format: format}
		if req.OutputPath == "-" {
			response.Data = base64.StdEncoding.EncodeToString(imageBytes)
			return response, nil
		}

		finalPath, err := screenshotPath(req.OutputPath, in.Status().DeviceID, format)
		if err != nil {
			return nil, err
		}

		if err := os.WriteFile(finalPath, imageBytes, 0o600); err != nil {
			return nil, fmt.Errorf("error writing file: %v", err)
		}
		response.FilePath = finalPath
		return response, nil
	})
}

func screenshotPath(outputPath, deviceID, format string) (string, error) {
	if outputPath != "" {
		finalPath, err := filepath.Abs(outputPath)
		if err != nil {
			return "", fmt.Errorf("invalid output path: %v", err)
		}
		return finalPath, nil
	}

	if deviceID == "" {
		deviceID = "simulator"
	}
	extension := "png"
	if format == "jpeg" {
		extension = "jpg"
	}
	timestamp := time.Now().Format("20060102150405")
	fileName := fmt.Sprintf("screenshot-%s-%s.%s", strings.ReplaceAll(deviceID, ":", "_"), timestamp, extension)
	finalPath, err := filepath.Abs("./" + fileName)
	if err != nil {
		return "", fmt.Errorf("error creating default path: %v", err)
	}
	return finalPath, nil
}
