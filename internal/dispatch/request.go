package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattjoyce/agentgw/internal/profile"
)

// LegacyProfileField is the field name older stored requests used for the
// executor profile.
const LegacyProfileField = "profile_variant_label"

// Request is the intent of one dispatch: a prompt for the agent and the
// profile to run it with.
type Request struct {
	Prompt            string     `json:"prompt"`
	ExecutorProfileID profile.ID `json:"executor_profile_id"`
}

// BaseExecutor returns the executor kind implied by the profile.
func (r Request) BaseExecutor() profile.BaseAgent {
	return r.ExecutorProfileID.Executor
}

// UnmarshalJSON reads executor_profile_id, falling back to the legacy
// profile_variant_label field when the current one is absent or null. Field
// names match exactly; differently cased keys are ignored.
func (r *Request) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var prompt string
	if raw := fields["prompt"]; !isAbsent(raw) {
		if err := json.Unmarshal(raw, &prompt); err != nil {
			return fmt.Errorf("dispatch request: prompt: %w", err)
		}
	}

	field := fields["executor_profile_id"]
	if isAbsent(field) {
		field = fields[LegacyProfileField]
	}
	if isAbsent(field) {
		return errors.New("dispatch request: missing executor_profile_id")
	}

	var id profile.ID
	if err := json.Unmarshal(field, &id); err != nil {
		return fmt.Errorf("dispatch request: executor_profile_id: %w", err)
	}

	*r = Request{Prompt: prompt, ExecutorProfileID: id}
	return nil
}

func isAbsent(field json.RawMessage) bool {
	return len(field) == 0 || bytes.Equal(bytes.TrimSpace(field), []byte("null"))
}
