// Package loop serializes all mutations of tracking state onto a single
// goroutine. Signal sources (pollers, window observers, lifecycle
// watchers, pointer events) Post closures; Post never blocks the caller
// and closures run strictly in the order they were posted.
package loop

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("loop closed")

// Poster is what signal sources need from the owner.
type Poster interface {
	Post(fn func()) bool
}

type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New starts the owner goroutine.
func New() *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post enqueues fn. It returns false once the loop is closed; fn is
// then never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it. It must not be called from
// the loop goroutine itself.
func (l *Loop) Do(fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		// the loop may have finished fn right before stopping
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close stops the loop after the closure currently running, if any.
// Queued closures are discarded. Close waits for the goroutine to exit
// and is safe to call more than once.
func (l *Loop) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.quit)
	})
	<-l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}

		for {
			select {
			case <-l.quit:
				return
			default:
			}

			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()
		}
	}
}
