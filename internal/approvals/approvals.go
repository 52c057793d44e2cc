// Package approvals defines the capability a running executor consults before
// performing side-effecting tool calls.
//
// A Service is owned by the caller of the dispatcher and shared by reference
// across every in-flight executor. Implementations must be safe for
// concurrent use.
package approvals

import (
	"context"
	"encoding/json"
	"fmt"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks github.com/mattjoyce/agentgw/internal/approvals Service

// Kind is the outcome of an approval request.
type Kind string

const (
	KindApproved Kind = "approved"
	KindDenied   Kind = "denied"
	KindTimedOut Kind = "timed_out"
	KindPending  Kind = "pending"
)

// Status is the decision returned for a tool call.
type Status struct {
	Kind   Kind   `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Approved reports whether the tool call may proceed.
func (s Status) Approved() bool {
	return s.Kind == KindApproved
}

func (s Status) String() string {
	if s.Reason == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Reason)
}

// Approve returns an approved status.
func Approve() Status { return Status{Kind: KindApproved} }

// Deny returns a denied status with reason.
func Deny(reason string) Status { return Status{Kind: KindDenied, Reason: reason} }

// Request describes a single tool call awaiting a decision.
type Request struct {
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolCallID string          `json:"tool_call_id"`
}

// Service decides whether a tool call may proceed.
type Service interface {
	RequestToolApproval(ctx context.Context, req Request) (Status, error)
}

// Unconditional is implemented by services that may approve every request
// without looking at it.
type Unconditional interface {
	ApprovesAll() bool
}

// Gates reports whether svc can refuse a tool call. Backends that cannot
// forward approval requests to svc must confine a gated run themselves.
func Gates(svc Service) bool {
	if svc == nil {
		return false
	}
	if u, ok := svc.(Unconditional); ok {
		return !u.ApprovesAll()
	}
	return true
}

// AutoApprove approves every request. It is the capability used when the
// caller does not gate tool calls.
type AutoApprove struct{}

var _ Service = AutoApprove{}

// ApprovesAll is always true.
func (AutoApprove) ApprovesAll() bool { return true }

// RequestToolApproval always approves.
func (AutoApprove) RequestToolApproval(ctx context.Context, _ Request) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	return Approve(), nil
}
