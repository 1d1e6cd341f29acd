// Package tracker follows the Simulator window on screen and holds the
// calibration that locates the device display inside it.
//
// A Tracker is owned by a single goroutine (see package loop). Every
// method except Snapshot must be called from that goroutine; signal
// sources such as the poll goroutine, window observers and the
// lifecycle watcher post their results to it instead of touching state.
package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mobile-next/siminspect/clock"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/loop"
	"github.com/mobile-next/siminspect/utils"
	"github.com/mobile-next/siminspect/window"
	"github.com/sirupsen/logrus"
)

type Mode string

const (
	ModePoll   Mode = "poll"
	ModeEvents Mode = "events"
)

const (
	DefaultOwnerName    = "Simulator"
	DefaultPollInterval = 100 * time.Millisecond
	DefaultLaunchGrace  = time.Second
)

type Options struct {
	OwnerName       string
	Mode            Mode
	PollInterval    time.Duration
	LaunchGrace     time.Duration
	ChromeInset     float64
	AspectTolerance float64
	Clock           clock.Clock
}

func (o Options) withDefaults() Options {
	if o.OwnerName == "" {
		o.OwnerName = DefaultOwnerName
	}
	if o.Mode == "" {
		o.Mode = ModePoll
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.LaunchGrace <= 0 {
		o.LaunchGrace = DefaultLaunchGrace
	}
	if o.ChromeInset <= 0 {
		o.ChromeInset = geometry.DefaultChromeInset
	}
	if o.AspectTolerance <= 0 {
		o.AspectTolerance = geometry.DefaultAspectTolerance
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}

// Snapshot is a committed, read-only view of the tracker. A new value
// replaces the old one on every change.
type Snapshot struct {
	Tracking bool          `json:"tracking"`
	HasFrame bool          `json:"hasFrame"`
	Frame    geometry.Rect `json:"frame"`
	Window   window.Window `json:"window"`

	Calibration *Calibration  `json:"calibration,omitempty"`
	ContentRect geometry.Rect `json:"contentRect"`
	// Estimated is set when ContentRect comes from the chrome inset
	// heuristic rather than a calibration.
	Estimated  bool          `json:"estimated"`
	DeviceSize geometry.Size `json:"deviceSize"`

	PermissionDenied bool `json:"permissionDenied"`
}

func (s Snapshot) IsCalibrated() bool { return s.Calibration != nil }

func (s Snapshot) Mapper() geometry.Mapper {
	return geometry.NewMapper(s.ContentRect, s.DeviceSize)
}

func (s Snapshot) equal(o Snapshot) bool {
	if (s.Calibration == nil) != (o.Calibration == nil) {
		return false
	}
	if s.Calibration != nil && *s.Calibration != *o.Calibration {
		return false
	}
	return s.Tracking == o.Tracking &&
		s.HasFrame == o.HasFrame &&
		s.Frame == o.Frame &&
		s.Window == o.Window &&
		s.ContentRect == o.ContentRect &&
		s.Estimated == o.Estimated &&
		s.DeviceSize == o.DeviceSize &&
		s.PermissionDenied == o.PermissionDenied
}

// attachment is the Attached(window) state of the event discipline; a
// nil *attachment is Unattached.
type attachment struct {
	window window.Window
	sub    window.Subscription
}

type poller struct {
	cancel context.CancelFunc
	ticker *clock.Ticker
	// kick asks for a read ahead of the next tick
	kick chan struct{}
}

func (p *poller) stop() {
	p.ticker.Stop()
	p.cancel()
}

type readResult struct {
	window window.Window
	found  bool
	err    error
	// seq orders event-mode reads against notifications; zero for polls
	seq uint64
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

type Tracker struct {
	opts      Options
	owner     loop.Poster
	source    window.Source
	observer  window.Observer
	lifecycle window.LifecycleWatcher

	tracking   bool
	generation uint64

	// event-mode ordering: readSeq is the last read or notification
	// issued, appliedSeq the newest one applied.
	readSeq    uint64
	appliedSeq uint64

	hasFrame         bool
	frame            geometry.Rect
	win              window.Window
	calibration      *Calibration
	pendingRestore   *Calibration
	deviceSize       geometry.Size
	permissionDenied bool

	poll         *poller
	attached     *attachment
	appSub       window.Subscription
	lifecycleSub window.Subscription
	graceTimer   *clock.Timer

	subscribers []subscriber
	nextSubID   int
	last        Snapshot

	snapshot atomic.Pointer[Snapshot]
}

// New builds an idle tracker. Event notifications are used when mode is
// ModeEvents and source also implements window.Observer; otherwise the
// source is polled. lifecycle may be nil.
func New(owner loop.Poster, source window.Source, lifecycle window.LifecycleWatcher, opts Options) *Tracker {
	t := &Tracker{
		opts:      opts.withDefaults(),
		owner:     owner,
		source:    source,
		lifecycle: lifecycle,
	}
	if obs, ok := source.(window.Observer); ok {
		t.observer = obs
	}
	t.publish()
	return t
}

// Snapshot is safe to call from any goroutine.
func (t *Tracker) Snapshot() Snapshot {
	return *t.snapshot.Load()
}

// Mode reports the discipline actually in use.
func (t *Tracker) Mode() Mode {
	if t.opts.Mode == ModeEvents && t.observer != nil {
		return ModeEvents
	}
	return ModePoll
}

func (t *Tracker) IsCalibrated() bool { return t.calibration != nil }

// Subscribe registers fn for every committed change. Subscribers run on
// the owner goroutine in registration order.
func (t *Tracker) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	id := t.nextSubID
	t.nextSubID++
	t.subscribers = append(t.subscribers, subscriber{id: id, fn: fn})
	return func() {
		for i, sub := range t.subscribers {
			if sub.id == id {
				t.subscribers = append(t.subscribers[:i:i], t.subscribers[i+1:]...)
				return
			}
		}
	}
}

// StartTracking begins following the owner's window. Calling it while
// already tracking re-acquires the window without duplicating any
// subscription.
func (t *Tracker) StartTracking() {
	if t.tracking {
		t.acquire(t.generation)
		return
	}

	t.tracking = true
	t.generation++
	gen := t.generation
	t.log().WithField("mode", t.Mode()).Info("tracking started")

	if t.lifecycle != nil {
		sub, err := t.lifecycle.WatchLifecycle(t.opts.OwnerName, func(ev window.LifecycleEvent) {
			t.owner.Post(func() { t.handleLifecycle(gen, ev) })
		})
		if err != nil {
			utils.Warn("lifecycle watch for %s failed: %v", t.opts.OwnerName, err)
		} else {
			t.lifecycleSub = sub
		}
	}

	if t.Mode() == ModePoll {
		t.startPolling(gen)
	} else {
		t.acquire(gen)
	}
	t.commit()
}

// StopTracking releases every subscription and timer and clears the
// frame. Signals already in flight are dropped when they reach the
// owner. The current calibration is kept aside and reapplied if the
// next tracked frame has the same size.
func (t *Tracker) StopTracking() {
	if !t.tracking {
		return
	}
	t.tracking = false
	t.generation++

	if t.poll != nil {
		t.poll.stop()
		t.poll = nil
	}
	if t.graceTimer != nil {
		t.graceTimer.Stop()
		t.graceTimer = nil
	}
	t.detach()
	if t.appSub != nil {
		t.appSub.Close()
		t.appSub = nil
	}
	if t.lifecycleSub != nil {
		t.lifecycleSub.Close()
		t.lifecycleSub = nil
	}

	t.clearFrame()
	t.permissionDenied = false
	t.log().Info("tracking stopped")
	t.commit()
}

// SetCalibration stores content relative to the current frame. Without
// a frame there is nothing to calibrate against and it returns false.
func (t *Tracker) SetCalibration(content geometry.Rect) bool {
	if !t.hasFrame {
		return false
	}
	c := CalibrationFor(t.frame, content)
	t.calibration = &c
	t.pendingRestore = nil
	t.log().WithField("content", content.String()).Debug("calibration set")
	t.commit()
	return true
}

func (t *Tracker) ResetCalibration() {
	t.pendingRestore = nil
	if t.calibration == nil {
		return
	}
	t.calibration = nil
	t.log().Debug("calibration reset")
	t.commit()
}

// RestoreCalibration reapplies a previously captured calibration, e.g.
// one loaded from disk. It takes effect only if the frame it applies to
// has the captured size; otherwise it is discarded.
func (t *Tracker) RestoreCalibration(c Calibration) {
	if c.IsZero() {
		return
	}
	if !t.hasFrame {
		t.pendingRestore = &c
		return
	}
	if c.ValidFor(t.frame) {
		t.calibration = &c
		t.commit()
	}
}

// SetDeviceSize updates the device logical size used by the content
// estimate and the mapper.
func (t *Tracker) SetDeviceSize(size geometry.Size) {
	t.deviceSize = size
	t.commit()
}

func (t *Tracker) startPolling(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := t.opts.Clock.NewTicker(t.opts.PollInterval)
	kick := make(chan struct{}, 1)
	t.poll = &poller{cancel: cancel, ticker: ticker, kick: kick}

	// one reader, so results reach the owner in the order they were read
	go func() {
		t.readAndPost(ctx, gen)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-kick:
			}
			t.readAndPost(ctx, gen)
		}
	}()
}

// readAndPost performs the blocking window read off the owner goroutine.
func (t *Tracker) readAndPost(ctx context.Context, gen uint64) {
	w, found, err := window.FindWindow(ctx, t.source, t.opts.OwnerName)
	if ctx.Err() != nil {
		return
	}
	res := readResult{window: w, found: found, err: err}
	t.owner.Post(func() {
		if !t.current(gen) {
			return
		}
		t.applyRead(res)
	})
}

// acquire looks the window up once. In poll mode it kicks the poller
// for an early read; in event mode the result (re)attaches the window
// observer unless something newer was applied meanwhile.
func (t *Tracker) acquire(gen uint64) {
	if t.poll != nil {
		select {
		case t.poll.kick <- struct{}{}:
		default:
		}
		return
	}

	t.readSeq++
	seq := t.readSeq
	go func() {
		w, found, err := window.FindWindow(context.Background(), t.source, t.opts.OwnerName)
		res := readResult{window: w, found: found, err: err, seq: seq}
		t.owner.Post(func() {
			if !t.current(gen) {
				return
			}
			if res.seq <= t.appliedSeq {
				t.log().WithField("seq", res.seq).Debug("stale window read dropped")
				return
			}
			t.appliedSeq = res.seq
			if res.err == nil && res.found && t.observer != nil {
				t.attach(gen, res.window)
			}
			t.applyRead(res)
		})
	}()
}

func (t *Tracker) current(gen uint64) bool {
	return t.tracking && gen == t.generation
}

func (t *Tracker) applyRead(res readResult) {
	switch {
	case errors.Is(res.err, window.ErrPermissionDenied):
		if !t.permissionDenied {
			utils.Warn("window geometry unavailable: %v", res.err)
		}
		t.permissionDenied = true
		t.clearFrame()
	case res.err != nil:
		// transient, keep the last frame until the next read
		utils.Verbose("window read failed: %v", res.err)
		return
	case !res.found:
		t.permissionDenied = false
		if t.hasFrame {
			t.log().Info("tracked window disappeared")
		}
		t.detach()
		t.clearFrame()
	default:
		t.permissionDenied = false
		t.updateFrame(res.window)
	}
	t.commit()
}

// updateFrame applies one raw frame reading: a size change or a
// different window invalidates the calibration.
func (t *Tracker) updateFrame(w window.Window) {
	if t.hasFrame && t.calibration != nil {
		if !t.frame.SameSize(w.Frame) || !t.win.SameAs(w) {
			t.log().WithField("frame", w.Frame.String()).Debug("frame resized, calibration cleared")
			t.calibration = nil
		}
	}
	if !t.hasFrame && t.pendingRestore != nil {
		if t.pendingRestore.ValidFor(w.Frame) {
			restored := *t.pendingRestore
			t.calibration = &restored
		}
		t.pendingRestore = nil
	}

	t.hasFrame = true
	t.frame = w.Frame
	t.win = w
}

// clearFrame drops the frame. A calibration is set aside and comes back
// if the window reappears with the same size.
func (t *Tracker) clearFrame() {
	if t.calibration != nil {
		t.pendingRestore = t.calibration
	}
	t.hasFrame = false
	t.frame = geometry.Rect{}
	t.win = window.Window{}
	t.calibration = nil
}

// attach moves the event discipline to Attached(w). The old window's
// subscription is closed before the new one is opened.
func (t *Tracker) attach(gen uint64, w window.Window) {
	if t.attached != nil && t.attached.window.ID == w.ID {
		t.attached.window = w
		return
	}
	t.detach()

	if t.appSub == nil {
		sub, err := t.observer.ObserveApplication(t.opts.OwnerName, t.forward(gen))
		if err != nil {
			utils.Warn("observe application %s failed: %v", t.opts.OwnerName, err)
		} else {
			t.appSub = sub
		}
	}

	sub, err := t.observer.ObserveWindow(w, t.forward(gen))
	if err != nil {
		utils.Warn("observe window %s failed: %v", w.ID, err)
		return
	}
	t.attached = &attachment{window: w, sub: sub}
	t.log().WithField("window", w.ID).Debug("attached")
}

func (t *Tracker) detach() {
	if t.attached == nil {
		return
	}
	t.attached.sub.Close()
	t.log().WithField("window", t.attached.window.ID).Debug("detached")
	t.attached = nil
}

func (t *Tracker) forward(gen uint64) func(window.Notification) {
	return func(n window.Notification) {
		t.owner.Post(func() { t.handleNotification(gen, n) })
	}
}

func (t *Tracker) handleNotification(gen uint64, n window.Notification) {
	if !t.current(gen) {
		return
	}

	switch n.Kind {
	case window.FocusChanged:
		if n.Window.Frame.IsEmpty() {
			return
		}
		t.attach(gen, n.Window)
	case window.Moved, window.Resized:
		// late notification from a window we already left
		if t.attached == nil || t.attached.window.ID != n.Window.ID {
			return
		}
	}
	t.readSeq++
	t.appliedSeq = t.readSeq
	t.applyRead(readResult{window: n.Window, found: true})
}

func (t *Tracker) handleLifecycle(gen uint64, ev window.LifecycleEvent) {
	if !t.current(gen) {
		return
	}

	switch ev.Kind {
	case window.Launched:
		t.log().WithField("pid", ev.PID).Info("target launched")
		if t.graceTimer != nil {
			t.graceTimer.Stop()
		}
		t.graceTimer = t.opts.Clock.AfterFunc(t.opts.LaunchGrace, func() {
			t.owner.Post(func() {
				if t.current(gen) {
					t.graceTimer = nil
					t.acquire(gen)
				}
			})
		})
	case window.Terminated:
		t.log().WithField("pid", ev.PID).Info("target terminated")
		if t.graceTimer != nil {
			t.graceTimer.Stop()
			t.graceTimer = nil
		}
		t.detach()
		if t.appSub != nil {
			t.appSub.Close()
			t.appSub = nil
		}
		t.clearFrame()
		t.pendingRestore = nil
		t.commit()
	}
}

func (t *Tracker) build() Snapshot {
	s := Snapshot{
		Tracking:         t.tracking,
		HasFrame:         t.hasFrame,
		Frame:            t.frame,
		Window:           t.win,
		DeviceSize:       t.deviceSize,
		PermissionDenied: t.permissionDenied,
	}
	if !t.hasFrame {
		return s
	}
	if t.calibration != nil {
		c := *t.calibration
		s.Calibration = &c
		s.ContentRect = c.ContentRect(t.frame)
	} else {
		s.ContentRect = geometry.EstimateContentRect(t.frame, t.deviceSize, t.opts.ChromeInset, t.opts.AspectTolerance)
		s.Estimated = true
	}
	return s
}

func (t *Tracker) publish() Snapshot {
	s := t.build()
	t.snapshot.Store(&s)
	return s
}

// commit publishes the current state and notifies subscribers when it
// differs from the last notification.
func (t *Tracker) commit() {
	s := t.publish()
	if s.equal(t.last) {
		return
	}
	t.last = s
	for _, sub := range t.subscribers {
		sub.fn(s)
	}
}

func (t *Tracker) log() *logrus.Entry {
	return utils.WithFields(logrus.Fields{"owner": t.opts.OwnerName})
}
