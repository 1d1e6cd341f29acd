package tracker

import "github.com/mobile-next/siminspect/geometry"

// Calibration is the content area of the tracked window expressed
// relative to the frame origin. FrameWidth and FrameHeight record the
// frame size at capture; the calibration only holds while that size
// is unchanged.
type Calibration struct {
	OffsetX       float64 `json:"offsetX" ini:"offset_x"`
	OffsetY       float64 `json:"offsetY" ini:"offset_y"`
	ContentWidth  float64 `json:"contentWidth" ini:"content_width"`
	ContentHeight float64 `json:"contentHeight" ini:"content_height"`
	FrameWidth    float64 `json:"frameWidth" ini:"frame_width"`
	FrameHeight   float64 `json:"frameHeight" ini:"frame_height"`
}

// CalibrationFor captures content as an offset from frame.
func CalibrationFor(frame, content geometry.Rect) Calibration {
	return Calibration{
		OffsetX:       content.X - frame.X,
		OffsetY:       content.Y - frame.Y,
		ContentWidth:  content.Width,
		ContentHeight: content.Height,
		FrameWidth:    frame.Width,
		FrameHeight:   frame.Height,
	}
}

func (c Calibration) ContentRect(frame geometry.Rect) geometry.Rect {
	return geometry.NewRect(frame.X+c.OffsetX, frame.Y+c.OffsetY, c.ContentWidth, c.ContentHeight)
}

func (c Calibration) ValidFor(frame geometry.Rect) bool {
	return c.FrameWidth == frame.Width && c.FrameHeight == frame.Height
}

// IsZero reports an unset record, e.g. an empty config section.
func (c Calibration) IsZero() bool {
	return c.ContentWidth == 0 || c.ContentHeight == 0
}
