package companion

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/mobile-next/siminspect/utils"
)

// ReadyChecker is the part of Client a Process needs.
type ReadyChecker interface {
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Process supervises a locally started companion.
type Process struct {
	Command      string
	Args         []string
	ReadyTimeout time.Duration
	StopTimeout  time.Duration

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func NewProcess(command string, args []string, readyTimeout time.Duration) *Process {
	return &Process{
		Command:      command,
		Args:         args,
		ReadyTimeout: readyTimeout,
		StopTimeout:  3 * time.Second,
	}
}

// Start launches the command and waits until ready answers. If the
// companion does not become ready within ReadyTimeout it is stopped and
// the error is returned.
func (p *Process) Start(ctx context.Context, ready ReadyChecker) error {
	p.mu.Lock()
	if p.cmd != nil {
		p.mu.Unlock()
		return nil
	}

	cmd := exec.Command(p.Command, p.Args...)
	utils.ConfigureDetachedProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to start companion %s: %w", p.Command, err)
	}

	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		utils.Verbose("companion %s exited: %v", p.Command, err)
		close(done)
	}()
	p.cmd = cmd
	p.done = done
	p.mu.Unlock()

	utils.Verbose("started companion %s (pid %d)", p.Command, cmd.Process.Pid)

	if ready == nil {
		return nil
	}
	if err := ready.WaitForReady(ctx, p.ReadyTimeout); err != nil {
		_ = p.Stop()
		return err
	}
	return nil
}

// Running reports whether the started command is still alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop terminates the process group and waits for exit, killing it if
// it outlives StopTimeout. Stop on a never started process is a no-op.
func (p *Process) Stop() error {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.cmd, p.done = nil, nil
	p.mu.Unlock()

	if cmd == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if err := utils.TerminateProcessGroup(cmd); err != nil {
		utils.Verbose("failed to terminate companion: %v", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(p.StopTimeout):
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill companion: %w", err)
		}
		<-done
		return nil
	}
}
