// Package inspector owns all tracking state. The tracker, overlay
// controller, recalibrator, current tree and device selection are only
// touched on the inspector's loop; public methods marshal onto it and
// readers get committed snapshots.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mobile-next/siminspect/clock"
	"github.com/mobile-next/siminspect/config"
	"github.com/mobile-next/siminspect/elementtree"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/loop"
	"github.com/mobile-next/siminspect/overlay"
	"github.com/mobile-next/siminspect/tracker"
	"github.com/mobile-next/siminspect/utils"
	"github.com/mobile-next/siminspect/window"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TreeSource fetches device state from the companion.
type TreeSource interface {
	FetchTree(ctx context.Context, deviceID string) ([]*elementtree.Node, error)
	FetchScreenshot(ctx context.Context, deviceID string) ([]byte, error)
}

// DeviceSizeLookup resolves a Simulator device name to its logical size.
type DeviceSizeLookup func(deviceName string) (geometry.Size, error)

type Deps struct {
	Source    window.Source
	Lifecycle window.LifecycleWatcher
	Prober    window.ContentProber
	Screen    window.ScreenMeasurer
	Trees     TreeSource
	Lookup    overlay.ElementLookup
	Surface   overlay.Surface
	// DeviceSize defaults to window.LookupDeviceSize.
	DeviceSize DeviceSizeLookup
}

type Options struct {
	Tracker     tracker.Options
	SettleDelay time.Duration
	CacheSize   int
	// ConfigPath receives calibrations as they are captured. Empty
	// disables persistence.
	ConfigPath string
	// Calibration is restored onto the first frame of matching size.
	Calibration *tracker.Calibration
	// ScreenHeight is used when Deps.Screen is nil or fails.
	ScreenHeight float64
}

type TreeInfo struct {
	Nodes      int           `json:"nodes"`
	DeviceSize geometry.Size `json:"deviceSize"`
	FetchedAt  time.Time     `json:"fetchedAt"`
}

// Status is the committed, whole-value view of the inspector.
type Status struct {
	Tracker    tracker.Snapshot `json:"tracker"`
	Overlay    overlay.State    `json:"overlay"`
	DeviceID   string           `json:"deviceId"`
	Tree       *TreeInfo        `json:"tree,omitempty"`
	Screenshot int              `json:"screenshotBytes"`
	Loading    bool             `json:"loading"`
	LastError  string           `json:"lastError,omitempty"`
	Attempts   int              `json:"recalibrations"`

	// committed together with Tracker so a tree is never paired with
	// another commit's mapper
	tree *elementtree.Tree
}

// ElementTree is the tree current at this commit, or nil.
func (s Status) ElementTree() *elementtree.Tree { return s.tree }

// Hit is a resolved screen point.
type Hit struct {
	Device geometry.Point    `json:"device"`
	Node   *elementtree.Node `json:"node,omitempty"`
}

var ErrNoFrame = errors.New("no tracked window")

type Inspector struct {
	loop  *loop.Loop
	deps  Deps
	opts  Options
	clock clock.Clock

	tracker *tracker.Tracker
	ctrl    *overlay.Controller
	recal   *overlay.Recalibrator
	cache   *lru.Cache[string, *elementtree.Tree]

	deviceID     string
	tree         *elementtree.Tree
	screenshot   []byte
	loading      bool
	refreshSeq   uint64
	lastErr      error
	savedCal     *tracker.Calibration
	profileTitle string
	frameFns     []func(tracker.Snapshot)

	status    atomic.Pointer[Status]
	shotValue atomic.Pointer[[]byte]

	persistMu   sync.Mutex
	persistWG   sync.WaitGroup
	nextPersist atomic.Pointer[persistRequest]
}

type persistRequest struct {
	cal *tracker.Calibration
}

func New(deps Deps, opts Options) (*Inspector, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("inspector needs a window source")
	}
	if deps.Surface == nil {
		return nil, fmt.Errorf("inspector needs an overlay surface")
	}
	if deps.DeviceSize == nil {
		deps.DeviceSize = window.LookupDeviceSize
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = config.DefaultCacheSize
	}
	if opts.Tracker.Clock == nil {
		opts.Tracker.Clock = clock.Real()
	}

	cache, err := lru.New[string, *elementtree.Tree](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree cache: %w", err)
	}

	in := &Inspector{
		loop:     loop.New(),
		deps:     deps,
		opts:     opts,
		clock:    opts.Tracker.Clock,
		cache:    cache,
		savedCal: opts.Calibration,
	}

	err = in.loop.Do(func() {
		in.tracker = tracker.New(in.loop, deps.Source, deps.Lifecycle, opts.Tracker)
		in.ctrl = overlay.NewController(in.loop, deps.Surface, deps.Lookup)
		in.ctrl.SetScreenHeight(opts.ScreenHeight)
		in.recal = overlay.NewRecalibrator(in.loop, in.clock, deps.Prober, opts.SettleDelay, func(content geometry.Rect) {
			if in.tracker.SetCalibration(content) {
				utils.Verbose("content rect detected at %s", content)
			}
		})
		in.tracker.Subscribe(in.frameChanged)
		if opts.Calibration != nil {
			in.tracker.RestoreCalibration(*opts.Calibration)
		}
		in.publish()
	})
	if err != nil {
		in.loop.Close()
		return nil, err
	}
	return in, nil
}

// Close stops tracking and the owner loop, then waits for pending
// calibration saves. Nothing fires afterwards.
func (in *Inspector) Close() error {
	err := in.loop.Do(func() {
		in.tracker.StopTracking()
		in.recal.Stop()
		in.refreshSeq++
	})
	in.loop.Close()
	in.persistWG.Wait()
	if errors.Is(err, loop.ErrClosed) {
		return nil
	}
	return err
}

func (in *Inspector) Status() Status { return *in.status.Load() }

// Tree is the committed tree, nil before the first successful refresh.
func (in *Inspector) Tree() *elementtree.Tree { return in.Status().tree }

func (in *Inspector) Screenshot() []byte {
	if p := in.shotValue.Load(); p != nil {
		return *p
	}
	return nil
}

// OnFrame registers fn for every tracker change; fn runs on the owner
// loop and must not block.
func (in *Inspector) OnFrame(fn func(tracker.Snapshot)) error {
	return in.loop.Do(func() { in.frameFns = append(in.frameFns, fn) })
}

func (in *Inspector) StartTracking() error {
	if err := in.loop.Do(in.tracker.StartTracking); err != nil {
		return err
	}
	in.measureScreen()
	return nil
}

func (in *Inspector) StopTracking() error {
	return in.loop.Do(func() {
		in.tracker.StopTracking()
		in.recal.Stop()
	})
}

// Calibrate stores content as the calibration for the current frame.
func (in *Inspector) Calibrate(content geometry.Rect) error {
	var ok bool
	if err := in.loop.Do(func() { ok = in.tracker.SetCalibration(content) }); err != nil {
		return err
	}
	if !ok {
		return ErrNoFrame
	}
	return nil
}

// ResetCalibration clears the calibration and forgets the saved one.
func (in *Inspector) ResetCalibration() error {
	err := in.loop.Do(func() {
		in.tracker.ResetCalibration()
		if in.savedCal != nil {
			in.savedCal = nil
			in.persist(nil)
		}
	})
	return err
}

// SelectDevice switches the device whose tree is inspected. Calibration
// is reset and the device's cached tree, if any, becomes current.
func (in *Inspector) SelectDevice(deviceID string) error {
	return in.loop.Do(func() {
		if deviceID == in.deviceID {
			return
		}
		in.deviceID = deviceID
		in.refreshSeq++
		in.loading = false
		in.lastErr = nil
		in.screenshot = nil
		in.shotValue.Store(nil)

		tree, _ := in.cache.Get(deviceID)
		in.ctrl.SetDeviceID(deviceID)
		in.ctrl.ClearSelection()
		in.installTree(tree)
		in.tracker.ResetCalibration()
		utils.WithFields(logrus.Fields{"device": deviceID, "cached": tree != nil}).Info("device selected")
		in.publish()
	})
}

// Refresh fetches the tree and a screenshot concurrently off the owner
// loop. On failure the previous tree stays current and the error is
// recorded in Status.LastError as well as returned. A refresh that is
// superseded by a newer one or a device switch is discarded.
func (in *Inspector) Refresh(ctx context.Context) error {
	if in.deps.Trees == nil {
		return fmt.Errorf("no element tree source configured")
	}

	var (
		seq      uint64
		deviceID string
	)
	if err := in.loop.Do(func() {
		in.refreshSeq++
		seq = in.refreshSeq
		deviceID = in.deviceID
		in.loading = true
		in.publish()
	}); err != nil {
		return err
	}

	log := utils.WithFields(logrus.Fields{"refresh": uuid.NewString(), "device": deviceID})
	log.Debug("refresh started")

	var (
		roots []*elementtree.Node
		shot  []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roots, err = in.deps.Trees.FetchTree(gctx, deviceID)
		if err != nil {
			return fmt.Errorf("failed to fetch element tree: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		shot, err = in.deps.Trees.FetchScreenshot(gctx, deviceID)
		if err != nil {
			return fmt.Errorf("failed to take screenshot: %w", err)
		}
		return nil
	})
	fetchErr := g.Wait()

	var superseded bool
	err := in.loop.Do(func() {
		if seq != in.refreshSeq {
			superseded = true
			return
		}
		in.loading = false
		if fetchErr != nil {
			in.lastErr = fetchErr
			in.publish()
			return
		}
		in.lastErr = nil
		tree := elementtree.NewTree(roots, in.clock.Now())
		in.cache.Add(deviceID, tree)
		in.installTree(tree)
		in.screenshot = shot
		in.shotValue.Store(&shot)
		in.publish()
	})
	if err != nil {
		return err
	}

	switch {
	case superseded:
		log.Debug("refresh superseded")
	case fetchErr != nil:
		log.WithError(fetchErr).Warn("refresh failed")
		return fetchErr
	default:
		log.WithField("nodes", in.Tree().Count()).Debug("refresh finished")
	}
	return nil
}

// MapPoint converts a screen point to device space using the committed
// snapshot. ok is false outside the content rect.
func (in *Inspector) MapPoint(p geometry.Point) (geometry.Point, bool) {
	snap := in.Status().Tracker
	if !snap.HasFrame {
		return geometry.Point{}, false
	}
	return snap.Mapper().ScreenToDevice(p)
}

// DeviceToScreen converts a device rect to screen space.
func (in *Inspector) DeviceToScreen(r geometry.Rect) (geometry.Rect, error) {
	snap := in.Status().Tracker
	if !snap.HasFrame {
		return geometry.Rect{}, ErrNoFrame
	}
	return snap.Mapper().DeviceToScreen(r), nil
}

// HitTest resolves a screen point against the tree and mapper of the
// same commit.
func (in *Inspector) HitTest(p geometry.Point) (Hit, bool) {
	status := in.Status()
	if !status.Tracker.HasFrame {
		return Hit{}, false
	}
	device, ok := status.Tracker.Mapper().ScreenToDevice(p)
	if !ok {
		return Hit{}, false
	}
	return Hit{Device: device, Node: status.tree.HitTest(device)}, true
}

func (in *Inspector) ToggleInspect() error {
	return in.do(in.ctrl.ToggleInspect)
}

func (in *Inspector) PointerMoved(p geometry.Point) error {
	return in.do(func() { in.ctrl.PointerMoved(p) })
}

func (in *Inspector) PointerClicked(p geometry.Point) error {
	return in.do(func() { in.ctrl.PointerClicked(p) })
}

func (in *Inspector) ClearSelection() error {
	return in.do(in.ctrl.ClearSelection)
}

// SelectElement shows the node with id from the current tree.
func (in *Inspector) SelectElement(id string) error {
	var found bool
	err := in.do(func() {
		if n := in.tree.Find(id); n != nil {
			found = true
			in.ctrl.Select(n)
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("element %q not found", id)
	}
	return nil
}

// do runs fn on the loop and publishes afterwards.
func (in *Inspector) do(fn func()) error {
	return in.loop.Do(func() {
		fn()
		in.publish()
	})
}

// frameChanged fans a tracker update out to the controller, the
// recalibrator and frame listeners, in that order.
func (in *Inspector) frameChanged(s tracker.Snapshot) {
	in.ctrl.FrameChanged(s)
	in.recal.FrameChanged(s)

	if s.Calibration != nil && (in.savedCal == nil || *in.savedCal != *s.Calibration) {
		c := *s.Calibration
		in.savedCal = &c
		in.persist(&c)
	}
	if s.HasFrame && s.DeviceSize.IsZero() && s.Window.Title != in.profileTitle {
		in.profileTitle = s.Window.Title
		in.lookupDeviceSize(s.Window.Title)
	}

	for _, fn := range in.frameFns {
		fn(s)
	}
	in.publish()
}

func (in *Inspector) installTree(tree *elementtree.Tree) {
	in.tree = tree
	in.ctrl.TreeChanged(tree)

	var size geometry.Size
	if tree != nil {
		size = tree.DeviceSize
	}
	in.tracker.SetDeviceSize(size)
	if size.IsZero() {
		// fall back to the device profile on the next frame
		in.profileTitle = ""
		if snap := in.tracker.Snapshot(); snap.HasFrame {
			in.profileTitle = snap.Window.Title
			in.lookupDeviceSize(snap.Window.Title)
		}
	}
}

// lookupDeviceSize reads the Simulator device profile off the loop.
func (in *Inspector) lookupDeviceSize(title string) {
	name := window.DeviceNameFromTitle(title)
	if name == "" {
		return
	}
	go func() {
		size, err := in.deps.DeviceSize(name)
		if err != nil {
			utils.Verbose("device size fallback for %q: %v", name, err)
			return
		}
		in.loop.Post(func() {
			snap := in.tracker.Snapshot()
			if snap.DeviceSize.IsZero() && snap.Window.Title == title {
				in.tracker.SetDeviceSize(size)
			}
		})
	}()
}

func (in *Inspector) measureScreen() {
	if in.deps.Screen == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		screen, err := in.deps.Screen.MainScreen(ctx)
		if err != nil || screen.IsEmpty() {
			utils.Verbose("main screen size unavailable: %v", err)
			return
		}
		in.loop.Post(func() {
			in.ctrl.SetScreenHeight(screen.Height)
			in.publish()
		})
	}()
}

// persist writes the calibration to the config file off the loop. Only
// the latest request is written when saves pile up.
func (in *Inspector) persist(c *tracker.Calibration) {
	if in.opts.ConfigPath == "" {
		return
	}
	in.nextPersist.Store(&persistRequest{cal: c})
	in.persistWG.Add(1)
	go func() {
		defer in.persistWG.Done()
		in.persistMu.Lock()
		defer in.persistMu.Unlock()
		req := in.nextPersist.Swap(nil)
		if req == nil {
			return
		}
		if err := config.SaveCalibration(in.opts.ConfigPath, req.cal); err != nil {
			utils.Warn("failed to save calibration: %v", err)
		}
	}()
}

func (in *Inspector) publish() {
	s := Status{
		Tracker:    in.tracker.Snapshot(),
		Overlay:    in.ctrl.State(),
		DeviceID:   in.deviceID,
		Screenshot: len(in.screenshot),
		Loading:    in.loading,
		Attempts:   in.recal.Attempts(),
		tree:       in.tree,
	}
	if in.tree != nil {
		s.Tree = &TreeInfo{Nodes: in.tree.Count(), DeviceSize: in.tree.DeviceSize, FetchedAt: in.tree.FetchedAt}
	}
	if in.lastErr != nil {
		s.LastError = in.lastErr.Error()
	}
	in.status.Store(&s)
}
