package window

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/siminspect/clock"
	"github.com/mobile-next/siminspect/utils"
)

// ProcessLookup reports the pid of a running process named owner.
type ProcessLookup func(ctx context.Context, owner string) (pid int, running bool, err error)

// ProcessWatcher turns process presence into Launched/Terminated events.
// The state at subscription time is the baseline and is not reported.
type ProcessWatcher struct {
	clock    clock.Clock
	interval time.Duration
	lookup   ProcessLookup
}

func NewProcessWatcher(c clock.Clock, interval time.Duration) *ProcessWatcher {
	return &ProcessWatcher{clock: c, interval: interval, lookup: pgrep}
}

func NewProcessWatcherWithLookup(c clock.Clock, interval time.Duration, lookup ProcessLookup) *ProcessWatcher {
	return &ProcessWatcher{clock: c, interval: interval, lookup: lookup}
}

func (p *ProcessWatcher) WatchLifecycle(owner string, fn func(LifecycleEvent)) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())

	pid, running, err := p.lookup(ctx, owner)
	if err != nil {
		cancel()
		return nil, err
	}

	ticker := p.clock.NewTicker(p.interval)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			nextPID, nextRunning, err := p.lookup(ctx, owner)
			if err != nil {
				utils.Verbose("process lookup for %s failed: %v", owner, err)
				continue
			}
			if ctx.Err() != nil {
				return
			}

			switch {
			case nextRunning && (!running || nextPID != pid):
				fn(LifecycleEvent{Kind: Launched, Owner: owner, PID: nextPID})
			case !nextRunning && running:
				fn(LifecycleEvent{Kind: Terminated, Owner: owner, PID: pid})
			}
			pid, running = nextPID, nextRunning
		}
	}()

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			ticker.Stop()
			cancel()
			wg.Wait()
		})
	}), nil
}

func pgrep(ctx context.Context, owner string) (int, bool, error) {
	output, err := exec.CommandContext(ctx, "pgrep", "-x", owner).Output()
	if err != nil {
		var exitErr *exec.ExitError
		// pgrep exits 1 when nothing matched
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return 0, false, nil
		}
		return 0, false, err
	}

	fields := strings.Fields(string(output))
	if len(fields) == 0 {
		return 0, false, nil
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false, err
	}
	return pid, true, nil
}
