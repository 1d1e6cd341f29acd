package geometry

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapper_UnitScale(t *testing.T) {
	m := NewMapper(NewRect(100, 50, 390, 844), Size{Width: 390, Height: 844})

	assert.Equal(t, 1.0, m.ScaleFactor())
	assert.Equal(t, NewRect(100, 50, 44, 44), m.DeviceToScreen(NewRect(0, 0, 44, 44)))
}

func TestMapper_HalfScale(t *testing.T) {
	m := NewMapper(NewRect(100, 50, 195, 422), Size{Width: 390, Height: 844})
	require.Equal(t, 0.5, m.ScaleFactor())

	p, ok := m.ScreenToDevice(Point{X: 197.5, Y: 261})
	require.True(t, ok)
	assert.InDelta(t, 195, p.X, 1e-9)
	assert.InDelta(t, 422, p.Y, 1e-9)

	// bottom-right corner of the content maps to the device bottom-right
	p, ok = m.ScreenToDevice(Point{X: 295, Y: 472})
	require.True(t, ok)
	assert.InDelta(t, 390, p.X, 1e-9)
	assert.InDelta(t, 844, p.Y, 1e-9)
}

func TestMapper_OutsideContentReturnsFalse(t *testing.T) {
	m := NewMapper(NewRect(100, 50, 195, 422), Size{Width: 390, Height: 844})

	for _, p := range []Point{{99, 100}, {296, 100}, {150, 49}, {150, 473}, {-1, -1}, {1000, 1000}} {
		_, ok := m.ScreenToDevice(p)
		assert.False(t, ok, "point %v", p)
	}
}

func TestMapper_ZeroDeviceWidthFallsBackToUnitScale(t *testing.T) {
	m := NewMapper(NewRect(10, 10, 200, 400), Size{})
	assert.Equal(t, 1.0, m.ScaleFactor())

	p, ok := m.ScreenToDevice(Point{X: 20, Y: 30})
	require.True(t, ok)
	assert.Equal(t, Point{X: 10, Y: 20}, p)
}

func TestMapper_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		device := Size{Width: 100 + rng.Float64()*1000, Height: 100 + rng.Float64()*2000}
		scale := 0.25 + rng.Float64()*3
		content := NewRect(rng.Float64()*2000-500, rng.Float64()*1500, device.Width*scale, device.Height*scale)
		m := NewMapper(content, device)

		dp := Point{X: rng.Float64() * device.Width, Y: rng.Float64() * device.Height}
		screen := m.DevicePointToScreen(dp)

		back, ok := m.ScreenToDevice(screen)
		require.True(t, ok, "iteration %d", i)
		assert.InDelta(t, dp.X, back.X, 1e-6)
		assert.InDelta(t, dp.Y, back.Y, 1e-6)
	}
}

func TestEstimateContentRect(t *testing.T) {
	device := Size{Width: 390, Height: 844}

	t.Run("inset matches device aspect", func(t *testing.T) {
		got := EstimateContentRect(NewRect(0, 0, 390, 872), device, DefaultChromeInset, DefaultAspectTolerance)
		assert.Equal(t, NewRect(0, 28, 390, 844), got)
	})

	t.Run("within tolerance uses inset directly", func(t *testing.T) {
		// 400x860 inset is under 1% wider than the device aspect
		got := EstimateContentRect(NewRect(0, 0, 400, 888), device, DefaultChromeInset, DefaultAspectTolerance)
		assert.Equal(t, NewRect(0, 28, 400, 860), got)
	})

	t.Run("wide window is letterboxed", func(t *testing.T) {
		got := EstimateContentRect(NewRect(0, 0, 400, 800), device, DefaultChromeInset, DefaultAspectTolerance)

		assert.InDelta(t, 772, got.Height, 1e-9)
		assert.InDelta(t, 390*772.0/844, got.Width, 1e-9)
		assert.InDelta(t, 28, got.Y, 1e-9)
		assert.InDelta(t, (400-got.Width)/2, got.X, 1e-9)
		assert.InDelta(t, device.AspectRatio(), got.Size().AspectRatio(), 1e-9)
	})

	t.Run("unknown device size uses inset", func(t *testing.T) {
		got := EstimateContentRect(NewRect(5, 5, 400, 800), Size{}, DefaultChromeInset, DefaultAspectTolerance)
		assert.Equal(t, NewRect(5, 33, 400, 772), got)
	})
}
