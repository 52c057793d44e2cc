package dispatch

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/events"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/executor"
	"github.com/mattjoyce/agentgw/internal/log"
	"github.com/mattjoyce/agentgw/internal/profile"
)

// State is a step of one dispatch.
type State string

const (
	StateRequested State = "requested"
	StateResolving State = "resolving"
	StateResolved  State = "resolved"
	StateInjecting State = "injecting"
	StateSpawning  State = "spawning"
	StateSpawned   State = "spawned"
	StateFailed    State = "failed"
)

// Resolver yields a fresh executor for a profile. *profile.Registry
// implements it.
type Resolver interface {
	Resolve(id profile.ID) (executor.Executor, error)
}

// Dispatcher resolves, injects and spawns.
type Dispatcher struct {
	profiles Resolver
	hub      *events.Hub
	observe  func(profile.ID, State)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEvents publishes dispatch lifecycle events to hub.
func WithEvents(hub *events.Hub) Option {
	return func(d *Dispatcher) { d.hub = hub }
}

// WithObserver calls fn on every state transition. fn must be safe for
// concurrent use.
func WithObserver(fn func(profile.ID, State)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// New creates a Dispatcher over profiles.
func New(profiles Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{profiles: profiles}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts the agent process for req in workDir.
//
// svc is shared with the executor by reference. ectx is exported into the
// child's environment under execctx.EnvVar. A profile that does not resolve
// yields *UnknownExecutorTypeError before anything is injected; a spawn
// failure is returned unchanged.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	req Request,
	svc approvals.Service,
	ectx execctx.Context,
	workDir string,
) (*executor.SpawnedChild, error) {
	id := req.ExecutorProfileID
	kind := req.BaseExecutor()
	logger := log.WithAttempt(ectx.AttemptID.String()).With(
		"component", "dispatch",
		"profile", id.String(),
		"executor", string(kind),
	)
	payload := events.Dispatch{
		ProfileID: id.String(),
		Executor:  string(kind),
		AttemptID: ectx.AttemptID.String(),
		ProcessID: ectx.ExecutionProcessID.String(),
	}

	d.transition(logger, id, StateRequested)
	d.transition(logger, id, StateResolving)

	agent, err := d.profiles.Resolve(id)
	if err != nil {
		uerr := &UnknownExecutorTypeError{ProfileID: id.String(), Cause: err}
		d.fail(logger, id, payload, uerr)
		return nil, uerr
	}
	d.transition(logger, id, StateResolved)
	d.publish(events.DispatchResolved, payload)

	d.transition(logger, id, StateInjecting)
	agent.UseApprovals(svc)
	agent.UseExecutionContext(ectx)

	d.transition(logger, id, StateSpawning)
	child, err := agent.Spawn(ctx, workDir, req.Prompt)
	if err != nil {
		d.fail(logger, id, payload, err)
		return nil, err
	}

	payload.PID = child.PID()
	d.transition(logger, id, StateSpawned)
	logger.Info("agent spawned", "pid", payload.PID, "dir", workDir)
	d.publish(events.DispatchSpawned, payload)
	return child, nil
}

func (d *Dispatcher) transition(logger *slog.Logger, id profile.ID, s State) {
	logger.Debug("dispatch state", "state", string(s))
	if d.observe != nil {
		d.observe(id, s)
	}
}

func (d *Dispatcher) fail(logger *slog.Logger, id profile.ID, payload events.Dispatch, err error) {
	d.transition(logger, id, StateFailed)
	logger.Warn("dispatch failed", "error", err)
	payload.Error = err.Error()
	d.publish(events.DispatchFailed, payload)
}

func (d *Dispatcher) publish(eventType string, payload events.Dispatch) {
	if d.hub != nil {
		d.hub.Publish(eventType, payload)
	}
}
