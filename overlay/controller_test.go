package overlay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mobile-next/siminspect/elementtree"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/loop"
	"github.com/mobile-next/siminspect/tracker"
	"github.com/mobile-next/siminspect/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSurface struct {
	mu           sync.Mutex
	calls        []string
	frame        geometry.Rect
	visible      bool
	clickThrough bool
	highlight    *geometry.Rect
	label        string
}

func (s *recordingSurface) record(format string, args ...interface{}) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *recordingSurface) SetFrame(r geometry.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = r
	s.record("frame %s", r)
}

func (s *recordingSurface) SetVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = v
	s.record("visible %t", v)
}

func (s *recordingSurface) SetClickThrough(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickThrough = v
	s.record("click-through %t", v)
}

func (s *recordingSurface) Highlight(r geometry.Rect, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlight = &r
	s.label = label
	s.record("highlight %s %s", r, label)
}

func (s *recordingSurface) ClearHighlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlight = nil
	s.label = ""
	s.record("clear")
}

func (s *recordingSurface) snapshot() recordingSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordingSurface{frame: s.frame, visible: s.visible, clickThrough: s.clickThrough, highlight: s.highlight, label: s.label}
}

func label(s string) *string { return &s }

// window at (100,50) with a 28pt title bar, content at half scale
func halfScaleSnapshot() tracker.Snapshot {
	cal := tracker.CalibrationFor(geometry.NewRect(100, 22, 195, 450), geometry.NewRect(100, 50, 195, 422))
	return tracker.Snapshot{
		Tracking:    true,
		HasFrame:    true,
		Frame:       geometry.NewRect(100, 22, 195, 450),
		Window:      window.Window{ID: "w1"},
		Calibration: &cal,
		ContentRect: geometry.NewRect(100, 50, 195, 422),
		DeviceSize:  geometry.Size{Width: 390, Height: 844},
	}
}

func sampleTree() *elementtree.Tree {
	child := &elementtree.Node{ID: "continue", Type: "Button", Label: label("Continue"), Frame: geometry.NewRect(20, 100, 100, 40)}
	root := &elementtree.Node{ID: "root", Type: "Application", Frame: geometry.NewRect(0, 0, 390, 844), Children: []*elementtree.Node{child}}
	return elementtree.NewTree([]*elementtree.Node{root}, time.Time{})
}

type controllerHarness struct {
	t       *testing.T
	loop    *loop.Loop
	surface *recordingSurface
	ctrl    *Controller
}

func newControllerHarness(t *testing.T, lookup ElementLookup) *controllerHarness {
	l := loop.New()
	t.Cleanup(l.Close)
	h := &controllerHarness{t: t, loop: l, surface: &recordingSurface{}}
	h.do(func() {
		h.ctrl = NewController(l, h.surface, lookup)
		h.ctrl.SetScreenHeight(1000)
	})
	return h
}

func (h *controllerHarness) do(fn func()) {
	require.NoError(h.t, h.loop.Do(fn))
}

func TestController_RepositionsInEveryMode(t *testing.T) {
	h := newControllerHarness(t, nil)

	h.do(func() { h.ctrl.FrameChanged(halfScaleSnapshot()) })

	// (100,22 195x450) on a 1000pt screen, flipped to bottom-left
	assert.Equal(t, geometry.NewRect(100, 528, 195, 450), h.surface.snapshot().frame)
	assert.False(t, h.surface.snapshot().visible)
	assert.Equal(t, Idle, h.ctrl.State().Mode)
}

func TestController_InspectHoverAndSelect(t *testing.T) {
	h := newControllerHarness(t, nil)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.ToggleInspect()
	})

	surf := h.surface.snapshot()
	assert.True(t, surf.visible)
	assert.False(t, surf.clickThrough)
	assert.Equal(t, Inspecting, h.ctrl.State().Mode)

	// device (50,120) is screen (125,110)
	h.do(func() { h.ctrl.PointerMoved(geometry.Point{X: 125, Y: 110}) })

	state := h.ctrl.State()
	require.NotNil(t, state.Hovered)
	assert.Equal(t, "continue", state.Hovered.ID)
	surf = h.surface.snapshot()
	require.NotNil(t, surf.highlight)
	// device (20,100 100x40) is screen (110,100 50x20), overlay-local (10,78)
	assert.Equal(t, geometry.NewRect(10, 78, 50, 20), *surf.highlight)
	assert.Equal(t, "Continue", surf.label)

	h.do(func() { h.ctrl.PointerClicked(geometry.Point{X: 125, Y: 110}) })

	state = h.ctrl.State()
	assert.Equal(t, ShowingSelection, state.Mode)
	require.NotNil(t, state.Selected)
	assert.Equal(t, "continue", state.Selected.ID)
	assert.True(t, h.surface.snapshot().clickThrough)
	assert.True(t, h.surface.snapshot().visible)
}

func TestController_PointerOutsideContentClearsHover(t *testing.T) {
	h := newControllerHarness(t, nil)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.ToggleInspect()
		h.ctrl.PointerMoved(geometry.Point{X: 125, Y: 110})
		// title bar
		h.ctrl.PointerMoved(geometry.Point{X: 125, Y: 30})
	})

	assert.Nil(t, h.ctrl.State().Hovered)
	assert.Nil(t, h.surface.snapshot().highlight)
}

func TestController_ClickOnNothingReturnsToIdle(t *testing.T) {
	h := newControllerHarness(t, nil)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.ToggleInspect()
		h.ctrl.PointerClicked(geometry.Point{X: 400, Y: 400})
	})

	assert.Equal(t, Idle, h.ctrl.State().Mode)
	assert.False(t, h.surface.snapshot().visible)
}

func TestController_SelectionFollowsFrame(t *testing.T) {
	h := newControllerHarness(t, nil)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.ToggleInspect()
		h.ctrl.PointerClicked(geometry.Point{X: 125, Y: 110})
	})

	moved := halfScaleSnapshot()
	moved.Frame = moved.Frame.Offset(200, 100)
	moved.ContentRect = moved.ContentRect.Offset(200, 100)
	h.do(func() { h.ctrl.FrameChanged(moved) })

	surf := h.surface.snapshot()
	assert.Equal(t, geometry.NewRect(300, 428, 195, 450), surf.frame)
	require.NotNil(t, surf.highlight)
	// local position is unchanged by a pure move
	assert.Equal(t, geometry.NewRect(10, 78, 50, 20), *surf.highlight)
	assert.Equal(t, ShowingSelection, h.ctrl.State().Mode)
}

func TestController_WindowGoneReturnsToIdle(t *testing.T) {
	h := newControllerHarness(t, nil)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.ToggleInspect()
		h.ctrl.FrameChanged(tracker.Snapshot{Tracking: true})
	})

	assert.Equal(t, Idle, h.ctrl.State().Mode)
	assert.False(t, h.surface.snapshot().visible)
}

func TestController_ToggleAndClear(t *testing.T) {
	h := newControllerHarness(t, nil)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
	})

	h.do(h.ctrl.ToggleInspect)
	assert.Equal(t, Inspecting, h.ctrl.State().Mode)
	h.do(h.ctrl.ToggleInspect)
	assert.Equal(t, Idle, h.ctrl.State().Mode)

	h.do(func() { h.ctrl.Select(sampleTree().Find("continue")) })
	assert.Equal(t, ShowingSelection, h.ctrl.State().Mode)
	h.do(h.ctrl.ClearSelection)
	assert.Equal(t, Idle, h.ctrl.State().Mode)
	assert.Nil(t, h.ctrl.State().Selected)
	assert.False(t, h.surface.snapshot().visible)
}

func TestController_TreeRefreshKeepsSelectionByID(t *testing.T) {
	h := newControllerHarness(t, nil)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.Select(h.ctrl.tree.Find("continue"))
	})

	moved := &elementtree.Node{ID: "continue", Type: "Button", Label: label("Continue"), Frame: geometry.NewRect(40, 200, 100, 40)}
	root := &elementtree.Node{ID: "root", Frame: geometry.NewRect(0, 0, 390, 844), Children: []*elementtree.Node{moved}}
	h.do(func() { h.ctrl.TreeChanged(elementtree.NewTree([]*elementtree.Node{root}, time.Time{})) })

	surf := h.surface.snapshot()
	require.NotNil(t, surf.highlight)
	assert.Equal(t, geometry.NewRect(20, 128, 50, 20), *surf.highlight)
}

type blockingLookup struct {
	mu      sync.Mutex
	release map[float64]chan struct{}
	calls   chan geometry.Point
}

func newBlockingLookup() *blockingLookup {
	return &blockingLookup{release: map[float64]chan struct{}{}, calls: make(chan geometry.Point, 10)}
}

func (b *blockingLookup) gate(x float64) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.release[x]
	if !ok {
		ch = make(chan struct{})
		b.release[x] = ch
	}
	return ch
}

func (b *blockingLookup) ElementAt(ctx context.Context, deviceID string, p geometry.Point) (*elementtree.Node, error) {
	b.calls <- p
	select {
	case <-b.gate(p.X):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &elementtree.Node{ID: fmt.Sprintf("remote-%g", p.X), Frame: geometry.NewRect(p.X, p.Y, 10, 10)}, nil
}

func TestController_RemoteLookupWithoutTree(t *testing.T) {
	lookup := newBlockingLookup()
	h := newControllerHarness(t, lookup)
	h.do(func() {
		h.ctrl.SetDeviceID("SIM-1")
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.ToggleInspect()
	})

	// device x=50 then x=100
	h.do(func() { h.ctrl.PointerMoved(geometry.Point{X: 125, Y: 110}) })
	<-lookup.calls
	h.do(func() { h.ctrl.PointerMoved(geometry.Point{X: 150, Y: 110}) })
	<-lookup.calls

	close(lookup.gate(100))
	require.Eventually(t, func() bool {
		hovered := h.ctrl.State().Hovered
		return hovered != nil && hovered.ID == "remote-100"
	}, 2*time.Second, time.Millisecond)

	// the superseded answer arrives late and is ignored
	close(lookup.gate(50))
	time.Sleep(20 * time.Millisecond)
	h.do(func() {})
	assert.Equal(t, "remote-100", h.ctrl.State().Hovered.ID)
}

func TestController_LocalTreeWinsOverRemote(t *testing.T) {
	lookup := newBlockingLookup()
	h := newControllerHarness(t, lookup)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.ToggleInspect()
		h.ctrl.PointerMoved(geometry.Point{X: 125, Y: 110})
	})

	assert.Equal(t, "continue", h.ctrl.State().Hovered.ID)
	assert.Len(t, lookup.calls, 0)
}

func TestController_TreeGoneClearsHover(t *testing.T) {
	h := newControllerHarness(t, nil)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.ToggleInspect()
		h.ctrl.PointerMoved(geometry.Point{X: 125, Y: 110})
	})
	require.Equal(t, "continue", h.ctrl.State().Hovered.ID)
	require.NotNil(t, h.surface.snapshot().highlight)

	h.do(func() { h.ctrl.TreeChanged(nil) })

	state := h.ctrl.State()
	assert.Equal(t, Inspecting, state.Mode)
	assert.Nil(t, state.Hovered)
	assert.Nil(t, state.Highlight)
	assert.Nil(t, h.surface.snapshot().highlight)
}

func TestController_TreeGoneClearsHoverWhileRemoteLookupRuns(t *testing.T) {
	lookup := newBlockingLookup()
	h := newControllerHarness(t, lookup)
	h.do(func() {
		h.ctrl.FrameChanged(halfScaleSnapshot())
		h.ctrl.TreeChanged(sampleTree())
		h.ctrl.ToggleInspect()
		h.ctrl.PointerMoved(geometry.Point{X: 125, Y: 110})
	})
	require.NotNil(t, h.surface.snapshot().highlight)

	h.do(func() { h.ctrl.TreeChanged(nil) })
	<-lookup.calls

	assert.Nil(t, h.ctrl.State().Hovered)
	assert.Nil(t, h.surface.snapshot().highlight)

	close(lookup.gate(50))
	require.Eventually(t, func() bool {
		hovered := h.ctrl.State().Hovered
		return hovered != nil && hovered.ID == "remote-50"
	}, 2*time.Second, time.Millisecond)
}
