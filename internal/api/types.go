package api

import (
	"time"

	"github.com/mattjoyce/agentgw/internal/actions"
	"github.com/mattjoyce/agentgw/internal/dispatch"
	"github.com/mattjoyce/agentgw/internal/execctx"
)

// Error codes carried in ErrorResponse.Code.
const (
	codeBadRequest          = "bad_request"
	codeUnauthorized        = "unauthorized"
	codeNotFound            = "not_found"
	codeUnknownExecutorType = "unknown_executor_type"
	codeSpawnFailed         = "spawn_failed"
	codeInternal            = "internal"
)

// dispatchEnvelope carries the non-request fields of POST /dispatch. The
// request itself is decoded separately through dispatch.Request so the
// legacy field alias applies.
type dispatchEnvelope struct {
	Context    *execctx.Context `json:"context,omitempty"`
	WorkingDir string           `json:"working_dir,omitempty"`
}

// DispatchResponse is returned when an agent process was spawned.
type DispatchResponse struct {
	ActionID  string `json:"action_id"`
	ProcessID string `json:"process_id"`
	AttemptID string `json:"attempt_id"`
	ProfileID string `json:"profile_id"`
	Executor  string `json:"executor"`
	PID       int    `json:"pid"`
}

// ActionResponse is returned by GET /actions/{id}.
type ActionResponse struct {
	ID        string             `json:"id"`
	Request   dispatch.Request   `json:"request"`
	CreatedAt time.Time          `json:"created_at"`
	Processes []*actions.Process `json:"processes"`
}

// ProfileInfo describes one executor profile.
type ProfileInfo struct {
	ID       string `json:"id"`
	Executor string `json:"executor"`
	Variant  string `json:"variant"`
}

// ProfilesResponse is returned by GET /profiles.
type ProfilesResponse struct {
	Profiles []ProfileInfo `json:"profiles"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProfileID string `json:"profile_id,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	ProfilesLoaded  int    `json:"profiles_loaded"`
	ProfilesError   string `json:"profiles_error,omitempty"`
	ActiveProcesses int    `json:"active_processes"`
}
