package geometry

import "math"

// Mapper converts between screen space and device logical space for one
// content rectangle and one device size. It is a value: build a new one
// whenever either input changes.
type Mapper struct {
	content Rect
	device  Size
}

func NewMapper(content Rect, device Size) Mapper {
	return Mapper{content: content, device: device}
}

func (m Mapper) ContentRect() Rect { return m.content }
func (m Mapper) DeviceSize() Size { return m.device }

// ScaleFactor is screen points per device point. A zero device width
// (empty or failed tree fetch) yields 1.
func (m Mapper) ScaleFactor() float64 {
	if m.device.Width == 0 {
		return 1
	}
	return m.content.Width / m.device.Width
}

// ScreenToDevice returns false when p lies outside the content rect.
func (m Mapper) ScreenToDevice(p Point) (Point, bool) {
	if !m.content.Contains(p) {
		return Point{}, false
	}
	scale := m.ScaleFactor()
	if scale == 0 {
		return Point{}, false
	}
	return p.Sub(m.content.Origin()).Scale(1 / scale), true
}

func (m Mapper) DevicePointToScreen(p Point) Point {
	return m.content.Origin().Add(p.Scale(m.ScaleFactor()))
}

// DeviceToScreen never fails; element frames may extend to or past the
// content edge.
func (m Mapper) DeviceToScreen(r Rect) Rect {
	scale := m.ScaleFactor()
	origin := m.DevicePointToScreen(r.Origin())
	return Rect{X: origin.X, Y: origin.Y, Width: r.Width * scale, Height: r.Height * scale}
}

const (
	// DefaultChromeInset approximates the Simulator title bar height.
	DefaultChromeInset = 28.0
	// DefaultAspectTolerance is the relative aspect ratio difference under
	// which the inset rect is used without letterboxing.
	DefaultAspectTolerance = 0.05
)

// EstimateContentRect guesses the content area of an uncalibrated
// window: the frame minus a title bar band, letterboxed to the device's
// aspect ratio when the two differ by more than tolerance.
func EstimateContentRect(frame Rect, device Size, chromeInset, tolerance float64) Rect {
	inset := frame.InsetTop(chromeInset)
	if device.IsZero() || inset.IsEmpty() {
		return inset
	}

	deviceAspect := device.AspectRatio()
	measured := inset.Size().AspectRatio()
	if math.Abs(measured-deviceAspect)/deviceAspect <= tolerance {
		return inset
	}

	scale := math.Min(inset.Width/device.Width, inset.Height/device.Height)
	w := device.Width * scale
	h := device.Height * scale
	return Rect{
		X:      inset.X + (inset.Width-w)/2,
		Y:      inset.Y + (inset.Height-h)/2,
		Width:  w,
		Height: h,
	}
}
