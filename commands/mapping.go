package commands

import (
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/inspector"
)

// PointRequest is a point in screen coordinates.
type PointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (r PointRequest) point() geometry.Point {
	return geometry.Point{X: r.X, Y: r.Y}
}

type MapPointResponse struct {
	Inside bool            `json:"inside"`
	Device *geometry.Point `json:"device,omitempty"`
}

// MapPointCommand converts a screen point into device points.
func MapPointCommand(req PointRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		p, ok := in.MapPoint(req.point())
		if !ok {
			return MapPointResponse{}, nil
		}
		return MapPointResponse{Inside: true, Device: &p}, nil
	})
}

// DeviceRectRequest is a rect in device points.
type DeviceRectRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DeviceToScreenCommand converts a device rect into screen points.
func DeviceToScreenCommand(req DeviceRectRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		return in.DeviceToScreen(geometry.NewRect(req.X, req.Y, req.Width, req.Height))
	})
}

type HitTestResponse struct {
	Inside bool           `json:"inside"`
	Hit    *inspector.Hit `json:"hit,omitempty"`
}

// HitTestCommand finds the deepest element under a screen point.
func HitTestCommand(req PointRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		hit, ok := in.HitTest(req.point())
		if !ok {
			return HitTestResponse{}, nil
		}
		return HitTestResponse{Inside: true, Hit: &hit}, nil
	})
}
