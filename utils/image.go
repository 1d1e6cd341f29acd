package utils

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"image/png"
	"strings"
)

const DefaultJpegQuality = 90

// EncodeScreenshot converts a PNG screenshot into format, which is
// "png" or "jpeg". PNG input is returned unchanged.
func EncodeScreenshot(pngBytes []byte, format string, quality int) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "", "png":
		return pngBytes, "png", nil
	case "jpeg", "jpg":
		if quality < 1 || quality > 100 {
			quality = DefaultJpegQuality
		}
		out, err := ConvertPngToJpeg(pngBytes, quality)
		if err != nil {
			return nil, "", fmt.Errorf("error converting to JPEG: %w", err)
		}
		return out, "jpeg", nil
	default:
		return nil, "", fmt.Errorf("invalid format '%s'. Supported formats are 'png' and 'jpeg'", format)
	}
}

func ConvertPngToJpeg(pngBytes []byte, quality int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, err
	}

	var jpegBytes bytes.Buffer
	if err := jpeg.Encode(&jpegBytes, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}

	return jpegBytes.Bytes(), nil
}
