// Package geometry holds the screen/device coordinate types and the
// transform between a tracked window's content area and the logical
// point space of the device rendered inside it.
//
// All rectangles use a top-left origin. The only place a bottom-left
// rectangle exists is the result of FlipY.
package geometry

import (
	"fmt"
	"math"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }
func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }
func (p Point) Scale(f float64) Point { return Point{X: p.X * f, Y: p.Y * f} }

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s Size) IsZero() bool { return s.Width == 0 || s.Height == 0 }

// AspectRatio is width/height, 0 for a degenerate size.
func (s Size) AspectRatio() float64 {
	if s.Height == 0 {
		return 0
	}
	return s.Width / s.Height
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func NewRect(x, y, width, height float64) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }
func (r Rect) Size() Size { return Size{Width: r.Width, Height: r.Height} }
func (r Rect) MaxX() float64 { return r.X + r.Width }
func (r Rect) MaxY() float64 { return r.Y + r.Height }

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains includes all four edges.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.MaxX() &&
		p.Y >= r.Y && p.Y <= r.MaxY()
}

// SameSize compares width and height exactly; window geometry reported by
// the OS is integral so no tolerance is needed.
func (r Rect) SameSize(o Rect) bool {
	return r.Width == o.Width && r.Height == o.Height
}

func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// InsetTop removes a band of the given height from the top edge, never
// producing a negative height.
func (r Rect) InsetTop(inset float64) Rect {
	h := math.Max(0, r.Height-inset)
	return Rect{X: r.X, Y: r.Y + (r.Height - h), Width: r.Width, Height: h}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g %gx%g)", r.X, r.Y, r.Width, r.Height)
}

// FlipY converts between a top-left origin rectangle (window lists,
// accessibility) and a bottom-left origin rectangle (overlay window
// positioning) on a screen of the given height. It is its own inverse.
func FlipY(r Rect, screenHeight float64) Rect {
	return Rect{X: r.X, Y: screenHeight - r.Y - r.Height, Width: r.Width, Height: r.Height}
}
