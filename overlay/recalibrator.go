package overlay

import (
	"context"
	"time"

	"github.com/mobile-next/siminspect/clock"
	"github.com/mobile-next/siminspect/geometry"
	"github.com/mobile-next/siminspect/loop"
	"github.com/mobile-next/siminspect/tracker"
	"github.com/mobile-next/siminspect/utils"
	"github.com/mobile-next/siminspect/window"
)

const (
	DefaultSettleDelay = 300 * time.Millisecond
	probeTimeout       = 5 * time.Second
)

type probeRequest struct {
	seq    uint64
	window window.Window
}

// Recalibrator re-detects the content rect after the window changes
// while uncalibrated. Each change restarts a settle delay; a change
// during a probe cancels it, and at most one probe runs at a time.
// Like Controller it belongs to the owner goroutine.
type Recalibrator struct {
	owner  loop.Poster
	clock  clock.Clock
	prober window.ContentProber
	settle time.Duration
	apply  func(content geometry.Rect)

	seq       uint64
	lastFrame geometry.Rect
	timer     *clock.Timer
	cancel    context.CancelFunc // non-nil while a probe is in flight
	queued    *probeRequest
	attempts  int
}

// NewRecalibrator calls apply on the owner goroutine with a probed
// content rect that is still current.
func NewRecalibrator(owner loop.Poster, c clock.Clock, prober window.ContentProber, settle time.Duration, apply func(geometry.Rect)) *Recalibrator {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Recalibrator{owner: owner, clock: c, prober: prober, settle: settle, apply: apply}
}

func (r *Recalibrator) FrameChanged(s tracker.Snapshot) {
	if !s.HasFrame || s.IsCalibrated() {
		r.Stop()
		return
	}
	if r.pending() && s.Frame == r.lastFrame {
		return
	}

	r.supersede()
	r.lastFrame = s.Frame
	seq := r.seq
	w := s.Window
	r.timer = r.clock.AfterFunc(r.settle, func() {
		r.owner.Post(func() { r.fire(probeRequest{seq: seq, window: w}) })
	})
}

// Stop drops any pending or running attempt.
func (r *Recalibrator) Stop() {
	r.supersede()
	r.lastFrame = geometry.Rect{}
}

// Attempts counts probes started, for status reporting.
func (r *Recalibrator) Attempts() int { return r.attempts }

func (r *Recalibrator) pending() bool {
	return r.timer != nil || r.cancel != nil
}

func (r *Recalibrator) supersede() {
	r.seq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.queued = nil
}

func (r *Recalibrator) fire(req probeRequest) {
	if req.seq != r.seq {
		return
	}
	r.timer = nil
	if r.cancel != nil {
		// the superseded probe is still unwinding
		r.queued = &req
		return
	}
	r.start(req)
}

func (r *Recalibrator) start(req probeRequest) {
	if r.prober == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	r.cancel = cancel
	r.attempts++

	go func() {
		rect, err := r.prober.ProbeContentRect(ctx, req.window)
		r.owner.Post(func() { r.finish(req, rect, err) })
	}()
}

func (r *Recalibrator) finish(req probeRequest, rect geometry.Rect, err error) {
	r.cancel()
	r.cancel = nil

	switch {
	case req.seq != r.seq:
	case err != nil:
		utils.Verbose("content probe failed: %v", err)
	case rect.IsEmpty():
		utils.Verbose("content probe found no device display")
	default:
		r.lastFrame = geometry.Rect{}
		r.apply(rect)
	}

	if next := r.queued; next != nil {
		r.queued = nil
		if next.seq == r.seq {
			r.start(*next)
		}
	}
}
