package utils

import (
	"errors"
	"fmt"
	"sync"
)

// ShutdownHooks collects teardown functions for the tracker, overlay
// server and companion process. They run once, newest first, so a
// component registered after its dependencies is torn down before them.
type ShutdownHooks struct {
	mu    sync.Mutex
	hooks []shutdownHook
	done  bool
}

type shutdownHook struct {
	name string
	fn   func() error
}

func NewShutdownHooks() *ShutdownHooks {
	return &ShutdownHooks{}
}

// Register adds a teardown function. Registering after Run has
// completed runs fn immediately so late resources are not leaked.
func (s *ShutdownHooks) Register(name string, fn func() error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		if err := fn(); err != nil {
			Warn("late shutdown hook %s failed: %v", name, err)
		}
		return
	}
	s.hooks = append(s.hooks, shutdownHook{name: name, fn: fn})
	s.mu.Unlock()
	Verbose("registered shutdown hook: %s", name)
}

// Run executes every hook in reverse registration order. All hooks run
// even when some fail; the failures are joined into the returned error.
func (s *ShutdownHooks) Run() error {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.done = true
	s.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		Verbose("running shutdown hook: %s", hook.name)
		if err := hook.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
		}
	}

	return errors.Join(errs...)
}

func (s *ShutdownHooks) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hooks)
}
