package executor

import (
	"io"
	"os/exec"
	"sync"
)

// SpawnedChild is the handle to a started agent process. What happens to the
// process after dispatch is the caller's concern.
type SpawnedChild struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser // nil unless the backend keeps stdin open
	Stdout io.Reader
	Stderr io.Reader

	// done is closed by backends that run a goroutine alongside the process
	// (e.g. an approval bridge) once that goroutine has drained stdout.
	done     chan struct{}
	waitOnce sync.Once
	waitErr  error
}

// PID returns the process ID, or 0 when the process never started.
func (c *SpawnedChild) PID() int {
	if c == nil || c.Cmd == nil || c.Cmd.Process == nil {
		return 0
	}
	return c.Cmd.Process.Pid
}

// Track registers a helper goroutine; Wait blocks until done is closed.
func (c *SpawnedChild) Track(done chan struct{}) {
	c.done = done
}

// Wait waits for helper goroutines and then for the process to exit.
// Safe to call more than once.
func (c *SpawnedChild) Wait() error {
	c.waitOnce.Do(func() {
		if c.done != nil {
			<-c.done
		}
		c.waitErr = c.Cmd.Wait()
	})
	return c.waitErr
}

// Kill terminates the process.
func (c *SpawnedChild) Kill() error {
	if c.Cmd == nil || c.Cmd.Process == nil {
		return nil
	}
	return c.Cmd.Process.Kill()
}
