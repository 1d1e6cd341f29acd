package server

import (
	"context"
	"testing"
	"time"

	"github.com/mobile-next/siminspect/clock"
	"github.com/mobile-next/siminspect/commands"
	"github.com/mobile-next/siminspect/elementtree"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/inspector"
	"github.com/mobile-next/siminspect/window"
	"github.com/stretchr/testify/require"
)

type simulatorWindow struct{}

func (simulatorWindow) ListWindows(ctx context.Context, owner string) ([]window.Window, error) {
	return []window.Window{{
		ID:        "Simulator#1",
		OwnerName: owner,
		Title:     "iPhone 16 - iOS 18.2",
		Frame:     geometry.NewRect(100, 22, 390, 872),
	}}, nil
}

type buttonTree struct{}

func (buttonTree) FetchTree(ctx context.Context, deviceID string) ([]*elementtree.Node, error) {
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

func (buttonTree) FetchScreenshot(ctx context.Context, deviceID string) ([]byte, error) {
	return []byte("png"), nil
}

// setupInspector installs an inspector drawing onto hub for the
// duration of the test.
func setupInspector(t testing.TB, hub *Hub) *inspector.Inspector {
	opts := inspector.Options{ScreenHeight: 1117}
	opts.Tracker.Clock = clock.Fake(time.Unix(1700000000, 0))

	if hub == nil {
		hub = NewHub()
	}

	in, err := inspector.New(inspector.Deps{
		Source:  simulatorWindow{},
		Trees:   buttonTree{},
		Surface: hub,
		DeviceSize: func(string) (geometry.Size, error) {
			return geometry.Size{Width: 390, Height: 844}, nil
		},
	}, opts)
	require.NoError(t, err)

	commands.SetInspector(in)
	t.Cleanup(func() {
		commands.SetInspector(nil)
		_ = in.Close()
	})
	return in
}
