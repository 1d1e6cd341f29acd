// Package overlay drives the inspection overlay that sits on top of the
// tracked Simulator window: where it is, whether it takes clicks, and
// which element it highlights.
package overlay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mobile-next/siminspect/elementtree"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/loop"
	"github.com/mobile-next/siminspect/tracker"
	"github.com/mobile-next/siminspect/utils"
)

type Mode int

const (
	Idle Mode = iota
	Inspecting
	ShowingSelection
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Inspecting:
		return "inspecting"
	case ShowingSelection:
		return "showing-selection"
	}
	return "unknown"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Surface is the presentation side of the overlay.
type Surface interface {
	// SetFrame positions the overlay. r uses a bottom-left screen origin.
	SetFrame(r geometry.Rect)
	SetVisible(visible bool)
	SetClickThrough(clickThrough bool)
	// Highlight draws r, given relative to the overlay's top-left corner.
	Highlight(r geometry.Rect, label string)
	ClearHighlight()
}

// ElementLookup answers a point query remotely; used only while no tree
// is cached.
type ElementLookup interface {
	ElementAt(ctx context.Context, deviceID string, p geometry.Point) (*elementtree.Node, error)
}

const remoteLookupTimeout = 2 * time.Second

// State is the controller's committed view for readers on other
// goroutines.
type State struct {
	Mode      Mode              `json:"mode"`
	Visible   bool              `json:"visible"`
	Frame     geometry.Rect     `json:"frame"`
	Hovered   *elementtree.Node `json:"hovered,omitempty"`
	Selected  *elementtree.Node `json:"selected,omitempty"`
	Highlight *geometry.Rect    `json:"highlight,omitempty"`
}

// Controller must be used from the owner goroutine only, like the
// tracker it follows.
type Controller struct {
	owner   loop.Poster
	surface Surface
	lookup  ElementLookup

	screenHeight float64
	deviceID     string

	mode     Mode
	snap     tracker.Snapshot
	tree     *elementtree.Tree
	hovered  *elementtree.Node
	selected *elementtree.Node

	visible      bool
	clickThrough bool
	frame        geometry.Rect
	highlight    *geometry.Rect

	lastPointer geometry.Point
	remoteSeq   uint64

	state atomic.Pointer[State]
}

// NewController starts Idle with the overlay hidden. lookup may be nil.
func NewController(owner loop.Poster, surface Surface, lookup ElementLookup) *Controller {
	c := &Controller{owner: owner, surface: surface, lookup: lookup}
	c.surface.SetVisible(false)
	c.publish()
	return c
}

func (c *Controller) State() State { return *c.state.Load() }

func (c *Controller) Mode() Mode { return c.mode }

// SetScreenHeight is the height of the screen the overlay lives on,
// needed for the one top-left to bottom-left conversion.
func (c *Controller) SetScreenHeight(h float64) {
	c.screenHeight = h
	if c.snap.HasFrame {
		c.reposition()
		c.publish()
	}
}

func (c *Controller) SetDeviceID(id string) {
	c.deviceID = id
	c.remoteSeq++
}

// FrameChanged follows every tracker update. The overlay always moves
// with the window; a vanished window ends inspection.
func (c *Controller) FrameChanged(s tracker.Snapshot) {
	c.snap = s
	if !s.HasFrame {
		if c.mode != Idle {
			c.log("tracked window gone, leaving %s", c.mode)
			c.toIdle()
		}
		c.publish()
		return
	}

	c.reposition()
	switch c.mode {
	case Inspecting:
		c.hover(c.lastPointer)
	case ShowingSelection:
		c.drawNode(c.selected)
	}
	c.publish()
}

// TreeChanged installs a freshly fetched tree. The selection is carried
// over by id; the hover is recomputed against the new tree.
func (c *Controller) TreeChanged(t *elementtree.Tree) {
	c.tree = t
	c.remoteSeq++
	if c.selected != nil && t != nil {
		if n := t.Find(c.selected.ID); n != nil {
			c.selected = n
		}
	}
	switch c.mode {
	case Inspecting:
		c.hover(c.lastPointer)
	case ShowingSelection:
		c.drawNode(c.selected)
	}
	c.publish()
}

func (c *Controller) ToggleInspect() {
	if c.mode == Inspecting {
		c.toIdle()
	} else {
		c.toInspecting()
	}
	c.publish()
}

// PointerMoved takes a screen point with a top-left origin.
func (c *Controller) PointerMoved(p geometry.Point) {
	c.lastPointer = p
	if c.mode != Inspecting {
		return
	}
	c.hover(p)
	c.publish()
}

// PointerClicked commits the hovered element. A click over nothing ends
// inspection.
func (c *Controller) PointerClicked(p geometry.Point) {
	if c.mode != Inspecting {
		return
	}
	c.lastPointer = p
	c.hover(p)
	if c.hovered == nil {
		c.toIdle()
	} else {
		c.showSelection(c.hovered)
	}
	c.publish()
}

// Select shows n as the selection regardless of mode.
func (c *Controller) Select(n *elementtree.Node) {
	if n == nil {
		c.ClearSelection()
		return
	}
	c.showSelection(n)
	c.publish()
}

func (c *Controller) ClearSelection() {
	c.selected = nil
	if c.mode == ShowingSelection {
		c.toIdle()
	}
	c.publish()
}

func (c *Controller) toIdle() {
	c.mode = Idle
	c.hovered = nil
	c.remoteSeq++
	c.clearHighlight()
	c.setVisible(false)
}

func (c *Controller) toInspecting() {
	c.mode = Inspecting
	c.selected = nil
	c.clearHighlight()
	c.setClickThrough(false)
	c.setVisible(c.snap.HasFrame)
	c.reposition()
}

func (c *Controller) showSelection(n *elementtree.Node) {
	c.mode = ShowingSelection
	c.selected = n
	c.hovered = nil
	c.remoteSeq++
	c.setClickThrough(true)
	c.setVisible(c.snap.HasFrame)
	c.reposition()
	c.drawNode(n)
}

// hover resolves p against the cached tree, or queries the companion
// when there is none.
func (c *Controller) hover(p geometry.Point) {
	devicePoint, inside := c.snap.Mapper().ScreenToDevice(p)
	if !c.snap.HasFrame || !inside {
		c.hovered = nil
		c.remoteSeq++
		c.clearHighlight()
		return
	}

	if c.tree != nil {
		c.hovered = c.tree.HitTest(devicePoint)
		c.drawNode(c.hovered)
		return
	}

	// nothing from a previous tree stays on screen while the companion answers
	c.hovered = nil
	c.remoteSeq++
	c.clearHighlight()
	if c.lookup != nil {
		c.queryRemote(devicePoint)
	}
}

func (c *Controller) queryRemote(p geometry.Point) {
	c.remoteSeq++
	seq := c.remoteSeq
	deviceID := c.deviceID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteLookupTimeout)
		defer cancel()
		node, err := c.lookup.ElementAt(ctx, deviceID, p)
		c.owner.Post(func() {
			// a newer pointer move, tree or mode change supersedes this
			if seq != c.remoteSeq || c.mode != Inspecting || c.tree != nil {
				return
			}
			if err != nil {
				utils.Verbose("remote element lookup failed: %v", err)
				return
			}
			c.hovered = node
			c.drawNode(node)
			c.publish()
		})
	}()
}

// drawNode highlights n's frame mapped into overlay-local coordinates.
func (c *Controller) drawNode(n *elementtree.Node) {
	if n == nil || !c.snap.HasFrame {
		c.clearHighlight()
		return
	}
	screen := c.snap.Mapper().DeviceToScreen(n.Frame)
	local := screen.Offset(-c.snap.Frame.X, -c.snap.Frame.Y)
	c.highlight = &local
	c.surface.Highlight(local, n.DisplayLabel())
}

func (c *Controller) clearHighlight() {
	if c.highlight == nil {
		return
	}
	c.highlight = nil
	c.surface.ClearHighlight()
}

// reposition is the only place a bottom-left rectangle is produced.
func (c *Controller) reposition() {
	if !c.snap.HasFrame {
		return
	}
	frame := geometry.FlipY(c.snap.Frame, c.screenHeight)
	if frame != c.frame {
		c.frame = frame
		c.surface.SetFrame(frame)
	}
	if c.mode != Idle {
		c.setVisible(true)
	}
}

func (c *Controller) setVisible(v bool) {
	if v != c.visible {
		c.visible = v
		c.surface.SetVisible(v)
	}
}

func (c *Controller) setClickThrough(v bool) {
	if v != c.clickThrough {
		c.clickThrough = v
		c.surface.SetClickThrough(v)
	}
}

func (c *Controller) publish() {
	s := State{
		Mode:     c.mode,
		Visible:  c.visible,
		Frame:    c.frame,
		Hovered:  c.hovered,
		Selected: c.selected,
	}
	if c.highlight != nil {
		h := *c.highlight
		s.Highlight = &h
	}
	c.state.Store(&s)
}

func (c *Controller) log(format string, args ...interface{}) {
	utils.Verbose("overlay: "+format, args...)
}
