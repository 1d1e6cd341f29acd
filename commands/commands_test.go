package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mobile-next/siminspect/clock"
	"github.com/mobile-next/siminspect/devices"
	"github.com/mobile-next/siminspect/elementtree"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/inspector"
	"github.com/mobile-next/siminspect/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type oneWindow struct{}

func (oneWindow) ListWindows(ctx context.Context, owner string) ([]window.Window, error) {
	return []window.Window{{
		ID:        "Simulator#1",
		OwnerName: owner,
		Title:     "iPhone 16 - iOS 18.2",
		Frame:     geometry.NewRect(100, 22, 390, 872),
	}}, nil
}

type noSurface struct{}

func (noSurface) SetFrame(geometry.Rect)          {}
func (noSurface) SetVisible(bool)                 {}
func (noSurface) SetClickThrough(bool)            {}
func (noSurface) Highlight(geometry.Rect, string) {}
func (noSurface) ClearHighlight()                 {}

type staticTrees struct{}

func (staticTrees) FetchTree(ctx context.Context, deviceID string) ([]*elementtree.Node, error) {
	label := "Continue"
	return []*elementtree.Node{{
		ID:    "root",
		Type:  "Application",
		Frame: geometry.NewRect(0, 0, 390, 844),
		Children: []*elementtree.Node{
			{ID: "continue", Type: "Button", Label: &label, Frame: geometry.NewRect(20, 100, 100, 40)},
		},
	}}, nil
}

func (staticTrees) FetchScreenshot(ctx context.Context, deviceID string) ([]byte, error) {
	return []byte("png-bytes"), nil
}

func setupInspector(t *testing.T) *inspector.Inspector {
	opts := inspector.Options{ScreenHeight: 1117}
	opts.Tracker.Clock = clock.Fake(time.Unix(1700000000, 0))

	in, err := inspector.New(inspector.Deps{
		Source:  oneWindow{},
		Trees:   staticTrees{},
		Surface: noSurface{},
		DeviceSize: func(string) (geometry.Size, error) {
			return geometry.Size{Width: 390, Height: 844}, nil
		},
	}, opts)
	require.NoError(t, err)

	SetInspector(in)
	t.Cleanup(func() {
		SetInspector(nil)
		_ = in.Close()
	})
	return in
}

func startAndCalibrate(t *testing.T, in *inspector.Inspector) {
	resp := TrackStartCommand()
	require.Equal(t, "ok", resp.Status, resp.Error)
	require.Eventually(t, func() bool { return in.Status().Tracker.HasFrame }, 2*time.Second, time.Millisecond)

	resp = CalibrateCommand(CalibrateRequest{X: 100, Y: 50, Width: 390, Height: 844})
	require.Equal(t, "ok", resp.Status, resp.Error)
}

func TestCommands_NoInspector(t *testing.T) {
	SetInspector(nil)
	resp := StatusCommand()
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "not running")
}

func TestMapPointCommand(t *testing.T) {
	in := setupInspector(t)
	startAndCalibrate(t, in)

	resp := MapPointCommand(PointRequest{X: 150, Y: 170})
	require.Equal(t, "ok", resp.Status)
	mapped := resp.Data.(MapPointResponse)
	assert.True(t, mapped.Inside)
	assert.Equal(t, geometry.Point{X: 50, Y: 120}, *mapped.Device)

	resp = MapPointCommand(PointRequest{X: 10, Y: 10})
	require.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Data.(MapPointResponse).Inside)
}

func TestCalibrateCommand_RejectsEmptyRect(t *testing.T) {
	in := setupInspector(t)
	require.NoError(t, in.StartTracking())

	resp := CalibrateCommand(CalibrateRequest{X: 1, Y: 1})
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "positive size")
}

func TestCalibrationResetCommand(t *testing.T) {
	in := setupInspector(t)
	startAndCalibrate(t, in)
	require.True(t, in.Status().Tracker.IsCalibrated())

	resp := CalibrationResetCommand()
	require.Equal(t, "ok", resp.Status)
	assert.False(t, in.Status().Tracker.IsCalibrated())
}

func TestHitTestCommand(t *testing.T) {
	in := setupInspector(t)
	startAndCalibrate(t, in)
	require.Equal(t, "ok", TreeRefreshCommand(context.Background()).Status)

	resp := HitTestCommand(PointRequest{X: 150, Y: 170})
	require.Equal(t, "ok", resp.Status)
	hit := resp.Data.(HitTestResponse)
	require.True(t, hit.Inside)
	assert.Equal(t, "continue", hit.Hit.Node.ID)
}

func TestTreeCommand(t *testing.T) {
	setupInspector(t)

	resp := TreeCommand(context.Background(), TreeRequest{})
	assert.Equal(t, "error", resp.Status)

	resp = TreeCommand(context.Background(), TreeRequest{Refresh: true})
	require.Equal(t, "ok", resp.Status, resp.Error)
	tree := resp.Data.(TreeResponse)
	assert.Equal(t, 2, tree.Tree.Count())

	out, err := FormatTree(tree, "yaml")
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "tree")
	assert.True(t, strings.Contains(string(out), "id: continue"))

	out, err = FormatTree(tree, "json")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id": "continue"`)

	_, err = FormatTree(tree, "xml")
	assert.Error(t, err)
}

func TestOverlayCommands(t *testing.T) {
	in := setupInspector(t)
	startAndCalibrate(t, in)
	require.Equal(t, "ok", TreeRefreshCommand(context.Background()).Status)

	require.Equal(t, "ok", InspectToggleCommand().Status)
	assert.Equal(t, "inspecting", in.Status().Overlay.Mode.String())

	require.Equal(t, "ok", PointerClickCommand(PointRequest{X: 150, Y: 170}).Status)
	require.NotNil(t, in.Status().Overlay.Selected)

	require.Equal(t, "ok", SelectionClearCommand().Status)
	assert.Nil(t, in.Status().Overlay.Selected)

	assert.Equal(t, "error", SelectElementCommand(SelectElementRequest{}).Status)
	require.Equal(t, "ok", SelectElementCommand(SelectElementRequest{ID: "continue"}).Status)
	assert.Equal(t, "continue", in.Status().Overlay.Selected.ID)
}

func TestScreenshotCommand(t *testing.T) {
	setupInspector(t)

	assert.Equal(t, "error", ScreenshotCommand(ScreenshotRequest{OutputPath: "-"}).Status)
	require.Equal(t, "ok", TreeRefreshCommand(context.Background()).Status)

	resp := ScreenshotCommand(ScreenshotRequest{OutputPath: "-"})
	require.Equal(t, "ok", resp.Status, resp.Error)
	assert.Equal(t, "cG5nLWJ5dGVz", resp.Data.(ScreenshotResponse).Data)

	path := filepath.Join(t.TempDir(), "shot.png")
	resp = ScreenshotCommand(ScreenshotRequest{OutputPath: path})
	require.Equal(t, "ok", resp.Status, resp.Error)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestSelectDeviceCommand(t *testing.T) {
	in := setupInspector(t)

	resp := SelectDeviceCommand(SelectDeviceRequest{DeviceID: "SIM-1"})
	require.Equal(t, "ok", resp.Status)
	assert.Equal(t, "SIM-1", in.Status().DeviceID)
}

type fakeSimulators struct {
	list []devices.Simulator
	err  error
}

func (f fakeSimulators) List(ctx context.Context) ([]devices.Simulator, error) {
	return f.list, f.err
}

var twoSimulators = fakeSimulators{list: []devices.Simulator{
	{Name: "iPhone 16", UDID: "AAAA", State: "Booted", Runtime: "iOS 18.6"},
	{Name: "iPad Pro", UDID: "BBBB", State: "Shutdown", Runtime: "iOS 18.6"},
}}

func TestDevicesCommand(t *testing.T) {
	response := DevicesCommand(context.Background(), twoSimulators, DevicesRequest{})
	require.Equal(t, "ok", response.Status)
	assert.Len(t, response.Data.(map[string]interface{})["devices"], 2)

	response = DevicesCommand(context.Background(), twoSimulators, DevicesRequest{Booted: true})
	require.Equal(t, "ok", response.Status)
	booted := response.Data.(map[string]interface{})["devices"].([]devices.Simulator)
	require.Len(t, booted, 1)
	assert.Equal(t, "AAAA", booted[0].UDID)

	response = DevicesCommand(context.Background(), fakeSimulators{}, DevicesRequest{Booted: true})
	require.Equal(t, "ok", response.Status)
	assert.Empty(t, response.Data.(map[string]interface{})["devices"])

	response = DevicesCommand(context.Background(), fakeSimulators{err: errors.New("xcrun not found")}, DevicesRequest{})
	assert.Equal(t, "error", response.Status)
}

func TestResolveDevice(t *testing.T) {
	s, err := ResolveDevice(context.Background(), twoSimulators, "")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", s.UDID)

	s, err = ResolveDevice(context.Background(), twoSimulators, "iPad Pro")
	require.NoError(t, err)
	assert.Equal(t, "BBBB", s.UDID)

	_, err = ResolveDevice(context.Background(), twoSimulators, "iPhone 99")
	assert.Error(t, err)
}
