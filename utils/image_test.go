package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPng(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestConvertPngToJpeg(t *testing.T) {
	jpegBytes, err := ConvertPngToJpeg(testPng(t, 32, 32), 90)
	require.NoError(t, err)

	out, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	require.NoError(t, err, "output is not valid JPEG")
	assert.Equal(t, 32, out.Bounds().Dx())
	assert.Equal(t, 32, out.Bounds().Dy())
}

func TestEncodeScreenshot(t *testing.T) {
	src := testPng(t, 8, 16)

	out, format, err := EncodeScreenshot(src, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, src, out)

	out, format, err = EncodeScreenshot(src, "JPEG", 0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	_, err = jpeg.Decode(bytes.NewReader(out))
	assert.NoError(t, err)

	_, _, err = EncodeScreenshot(src, "gif", 0)
	assert.Error(t, err)
}

func TestEncodeScreenshot_NotPng(t *testing.T) {
	_, _, err := EncodeScreenshot([]byte("not an image"), "jpeg", 80)
	assert.Error(t, err)
}
