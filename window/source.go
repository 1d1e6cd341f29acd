// Package window observes the externally owned Simulator window: it
// enumerates windows of a named owner process, optionally subscribes to
// native move/resize/focus notifications and reports the owner
// application's launch and termination.
//
// Frames are reported in the window-list convention: top-left origin.
package window

import (
	"context"
	"errors"

	"github.com/mobile-next/siminspect/geometry"
)

// ErrPermissionDenied means the OS refused to reveal another process's
// window geometry (accessibility access not granted).
var ErrPermissionDenied = errors.New("accessibility permission denied")

type Window struct {
	ID        string        `json:"id"`
	OwnerName string        `json:"ownerName"`
	Title     string        `json:"title"`
	Frame     geometry.Rect `json:"frame"`
	// Layer 0 is a standard document window; panels and sheets are higher.
	Layer int `json:"layer"`
}

// Source enumerates the windows belonging to an owner process. An owner
// that is not running yields an empty list, not an error.
type Source interface {
	ListWindows(ctx context.Context, owner string) ([]Window, error)
}

// FindWindow returns the frontmost standard window of owner.
func FindWindow(ctx context.Context, src Source, owner string) (Window, bool, error) {
	windows, err := src.ListWindows(ctx, owner)
	if err != nil {
		return Window{}, false, err
	}
	for _, w := range windows {
		if w.Layer == 0 && !w.Frame.IsEmpty() {
			return w, true, nil
		}
	}
	return Window{}, false, nil
}

type NotificationKind int

const (
	Moved NotificationKind = iota
	Resized
	// FocusChanged carries the application's newly focused window.
	FocusChanged
)

func (k NotificationKind) String() string {
	switch k {
	case Moved:
		return "moved"
	case Resized:
		return "resized"
	case FocusChanged:
		return "focus-changed"
	}
	return "unknown"
}

// Notification is delivered on the observer's own goroutine; receivers
// must hand it to their owner rather than act on it directly.
type Notification struct {
	Kind   NotificationKind
	Window Window
}

type Subscription interface {
	Close()
}

// Observer is implemented by sources that can push native window
// notifications instead of being polled.
type Observer interface {
	ObserveWindow(w Window, fn func(Notification)) (Subscription, error)
	ObserveApplication(owner string, fn func(Notification)) (Subscription, error)
}

type LifecycleKind int

const (
	Launched LifecycleKind = iota
	Terminated
)

func (k LifecycleKind) String() string {
	if k == Launched {
		return "launched"
	}
	return "terminated"
}

type LifecycleEvent struct {
	Kind  LifecycleKind
	Owner string
	PID   int
}

type LifecycleWatcher interface {
	WatchLifecycle(owner string, fn func(LifecycleEvent)) (Subscription, error)
}

// ContentProber locates the device display inside a tracked window.
type ContentProber interface {
	ProbeContentRect(ctx context.Context, w Window) (geometry.Rect, error)
}

// ScreenMeasurer reports the primary screen frame, needed to flip
// window-list rectangles into overlay positioning coordinates.
type ScreenMeasurer interface {
	MainScreen(ctx context.Context) (geometry.Rect, error)
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Close() { f() }

// SameAs reports whether two reads refer to the same window. Titles are
// compared too because Simulator reuses window slots across devices.
func (w Window) SameAs(o Window) bool {
	return w.ID == o.ID && w.Title == o.Title
}
