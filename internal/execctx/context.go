// Package execctx carries the identity of a dispatch (project, task, attempt,
// execution process) across the process boundary into a spawned agent.
//
// The payload is exported as a single JSON document under EnvVar. Nested
// tools started by the agent read it back with FromEnv to correlate their
// invocation with the originating task attempt.
package execctx

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// EnvVar is the environment variable holding the serialized Context.
// The name and the JSON schema are a cross-version wire contract.
const EnvVar = "VK_MCP_CONTEXT_JSON"

// ErrNotSet is returned when EnvVar is absent or empty.
var ErrNotSet = errors.New("execution context not set")

// ErrInvalidUTF8 is returned by Encode for a text field that JSON cannot
// carry unchanged.
var ErrInvalidUTF8 = errors.New("execution context field is not valid UTF-8")

// Context is an immutable snapshot of the identifiers valid at dispatch time.
type Context struct {
	ProjectID           uuid.UUID `json:"project_id"`
	TaskID              uuid.UUID `json:"task_id"`
	TaskTitle           string    `json:"task_title"`
	AttemptID           uuid.UUID `json:"attempt_id"`
	AttemptBranch       string    `json:"attempt_branch"`
	AttemptTargetBranch string    `json:"attempt_target_branch"`
	ExecutionProcessID  uuid.UUID `json:"execution_process_id"`
	Executor            string    `json:"executor"`
}

// Encode serializes c into the env payload. Text fields must be valid UTF-8
// so that Decode returns them byte for byte.
func (c Context) Encode() (string, error) {
	for _, f := range []struct{ name, value string }{
		{"task_title", c.TaskTitle},
		{"attempt_branch", c.AttemptBranch},
		{"attempt_target_branch", c.AttemptTargetBranch},
		{"executor", c.Executor},
	} {
		if !utf8.ValidString(f.value) {
			return "", fmt.Errorf("encode execution context: %s: %w", f.name, ErrInvalidUTF8)
		}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode execution context: %w", err)
	}
	return string(data), nil
}

// Decode parses an env payload produced by Encode.
func Decode(payload string) (Context, error) {
	var c Context
	if strings.TrimSpace(payload) == "" {
		return c, ErrNotSet
	}
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Context{}, fmt.Errorf("decode execution context: %w", err)
	}
	return c, nil
}

// AppendEnv returns env with EnvVar set to c's payload. Any existing
// EnvVar entry is dropped so the child sees exactly one value.
func (c Context) AppendEnv(env []string) ([]string, error) {
	payload, err := c.Encode()
	if err != nil {
		return nil, err
	}

	prefix := EnvVar + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, prefix+payload), nil
}

// Lookup reads the context through getenv.
func Lookup(getenv func(string) string) (Context, error) {
	return Decode(getenv(EnvVar))
}

// FromEnv reads the context from the current process environment.
func FromEnv() (Context, error) {
	return Lookup(os.Getenv)
}
