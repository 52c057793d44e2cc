package approvals

import (
	"context"
	"log/slog"
	"sync"
)

// Decider is a pure policy function.
type Decider func(ctx context.Context, req Request) (Status, error)

// AllowTools returns a Decider approving only the named tools.
func AllowTools(names ...string) Decider {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return func(_ context.Context, req Request) (Status, error) {
		if _, ok := allowed[req.ToolName]; ok {
			return Approve(), nil
		}
		return Deny("tool " + req.ToolName + " is not allowed"), nil
	}
}

// Stats is a point-in-time copy of a Tracker's counters.
type Stats struct {
	Requests int
	Approved int
	Denied   int
	TimedOut int
	Errors   int
	ByTool   map[string]int
}

// Tracker wraps a Decider and accounts for every decision made through it.
// One Tracker is typically shared by many concurrent executors.
type Tracker struct {
	decide     Decider
	permissive bool
	logger     *slog.Logger

	mu    sync.Mutex
	stats Stats
}

var _ Service = (*Tracker)(nil)

// NewTracker creates a Tracker. A nil decide approves everything.
func NewTracker(decide Decider, logger *slog.Logger) *Tracker {
	permissive := decide == nil
	if permissive {
		decide = func(context.Context, Request) (Status, error) { return Approve(), nil }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		decide:     decide,
		permissive: permissive,
		logger:     logger,
		stats:      Stats{ByTool: make(map[string]int)},
	}
}

// ApprovesAll reports whether the Tracker was built without a Decider.
func (t *Tracker) ApprovesAll() bool {
	return t.permissive
}

// RequestToolApproval consults the Decider and records the outcome.
func (t *Tracker) RequestToolApproval(ctx context.Context, req Request) (Status, error) {
	status, err := t.decide(ctx, req)

	t.mu.Lock()
	t.stats.Requests++
	t.stats.ByTool[req.ToolName]++
	switch {
	case err != nil:
		t.stats.Errors++
	case status.Kind == KindApproved:
		t.stats.Approved++
	case status.Kind == KindDenied:
		t.stats.Denied++
	case status.Kind == KindTimedOut:
		t.stats.TimedOut++
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("approval decision failed", "tool", req.ToolName, "tool_call_id", req.ToolCallID, "error", err)
		return Status{}, err
	}
	t.logger.Debug("approval decided", "tool", req.ToolName, "tool_call_id", req.ToolCallID, "status", status.String())
	return status, nil
}

// Stats returns a copy of the counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.stats
	out.ByTool = make(map[string]int, len(t.stats.ByTool))
	for k, v := range t.stats.ByTool {
		out.ByTool[k] = v
	}
	return out
}
