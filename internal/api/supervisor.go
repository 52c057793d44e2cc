package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/agentgw/internal/events"
	"github.com/mattjoyce/agentgw/internal/executor"
)

const (
	// maxStderrBytes caps the stderr tail recorded for a failed process.
	maxStderrBytes = 64 * 1024

	// maxLineBytes bounds one line of agent stdout.
	maxLineBytes = 4 << 20

	// terminationGracePeriod is the time we wait after SIGTERM before SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

type supervised struct {
	child *executor.SpawnedChild
	done  chan struct{}
}

// supervise drains the child's output, waits for it and records the exit.
// Each stdout line is published as a process.output event.
func (s *Server) supervise(id uuid.UUID, payload events.Dispatch, child *executor.SpawnedChild) {
	sv := &supervised{child: child, done: make(chan struct{})}
	s.active.Store(id, sv)
	s.running.Add(1)

	logger := s.logger.With("process_id", id.String(), "pid", payload.PID)

	go func() {
		defer s.running.Done()
		defer close(sv.done)
		defer s.active.Delete(id)

		stderr := &tailBuffer{max: maxStderrBytes}
		var wg sync.WaitGroup
		if child.Stderr != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = io.Copy(stderr, child.Stderr)
			}()
		}

		lines := s.pumpOutput(id, child.Stdout)
		wg.Wait()
		waitErr := child.Wait()

		ctx := context.Background()
		if waitErr == nil {
			code := 0
			payload.ExitCode = &code
			if err := s.store.MarkCompleted(ctx, id, 0); err != nil {
				logger.Error("failed to record completion", "error", err)
			}
			logger.Info("agent exited", "lines", lines)
		} else {
			cause := waitErr
			if tail := stderr.String(); tail != "" {
				cause = fmt.Errorf("%w: %s", waitErr, tail)
			}
			payload.ExitCode = exitCode(waitErr)
			payload.Error = cause.Error()
			if err := s.store.MarkFailed(ctx, id, payload.ExitCode, cause); err != nil {
				logger.Error("failed to record failure", "error", err)
			}
			logger.Warn("agent failed", "error", waitErr, "lines", lines)
		}
		s.events.Publish(events.ProcessExited, payload)
	}()
}

func (s *Server) pumpOutput(id uuid.UUID, stdout io.Reader) int {
	if stdout == nil {
		return 0
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		var raw json.RawMessage
		if json.Valid(line) {
			raw = append(json.RawMessage(nil), line...)
		} else {
			raw, _ = json.Marshal(string(line))
		}
		s.events.Publish(events.ProcessOutput, events.Output{ProcessID: id.String(), Line: raw})
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("agent output truncated", "process_id", id.String(), "error", err)
		_, _ = io.Copy(io.Discard, stdout)
	}
	return n
}

// terminate sends SIGTERM to a supervised process and SIGKILL after the
// grace period. It reports whether the process was being supervised.
func (s *Server) terminate(id uuid.UUID) bool {
	v, ok := s.active.Load(id)
	if !ok {
		return false
	}
	sv := v.(*supervised)
	if p := sv.child.Cmd.Process; p != nil {
		if err := p.Signal(syscall.SIGTERM); err != nil {
			s.logger.Warn("failed to send SIGTERM", "process_id", id.String(), "error", err)
		}
	}

	go func() {
		grace := time.NewTimer(terminationGracePeriod)
		defer grace.Stop()
		select {
		case <-sv.done:
		case <-grace.C:
			s.logger.Warn("agent did not exit after SIGTERM, sending SIGKILL", "process_id", id.String())
			_ = sv.child.Kill()
		}
	}()
	return true
}

func exitCode(err error) *int {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return nil
	}
	code := ee.ExitCode()
	return &code
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int

	mu  sync.Mutex
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
