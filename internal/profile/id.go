package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// BaseAgent is the executor kind tag.
type BaseAgent string

const (
	AgentClaude   BaseAgent = "claude"
	AgentCodex    BaseAgent = "codex"
	AgentOpencode BaseAgent = "opencode"
)

// DefaultVariant is the variant used when none is given.
const DefaultVariant = "default"

// ID identifies an executor profile: an executor kind plus a variant.
// It is comparable and safe to use as a map key.
type ID struct {
	Executor BaseAgent
	Variant  string
}

// NewID builds an ID, normalizing an empty variant to DefaultVariant.
func NewID(executor BaseAgent, variant string) ID {
	variant = strings.TrimSpace(variant)
	if variant == "" {
		variant = DefaultVariant
	}
	return ID{Executor: BaseAgent(strings.TrimSpace(string(executor))), Variant: variant}
}

// ParseID parses "executor" or "executor/variant".
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	executor, variant, _ := strings.Cut(s, "/")
	if strings.TrimSpace(executor) == "" {
		return ID{}, fmt.Errorf("invalid profile id %q: executor is empty", s)
	}
	if strings.Contains(variant, "/") {
		return ID{}, fmt.Errorf("invalid profile id %q: too many separators", s)
	}
	return NewID(BaseAgent(executor), variant), nil
}

// Canonical returns id as NewID would build it. IDs written as struct
// literals with an empty variant compare equal to their default form only
// after canonicalization.
func (id ID) Canonical() ID {
	return NewID(id.Executor, id.Variant)
}

// String returns the canonical "executor/variant" form.
func (id ID) String() string {
	variant := id.Variant
	if variant == "" {
		variant = DefaultVariant
	}
	return string(id.Executor) + "/" + variant
}

type idJSON struct {
	Executor BaseAgent `json:"executor"`
	Variant  *string   `json:"variant"`
}

// legacyIDJSON is the pre-rename object shape, keyed by "profile".
type legacyIDJSON struct {
	Executor BaseAgent `json:"executor"`
	Profile  BaseAgent `json:"profile"`
	Variant  *string   `json:"variant"`
}

// MarshalJSON always writes the object form.
func (id ID) MarshalJSON() ([]byte, error) {
	variant := id.Variant
	if variant == "" {
		variant = DefaultVariant
	}
	return json.Marshal(idJSON{Executor: id.Executor, Variant: &variant})
}

// UnmarshalJSON accepts the object form (with "executor" or the legacy
// "profile" key, variant optional or null) or the "executor/variant" string.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}

	var raw legacyIDJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid profile id: %w", err)
	}
	executor := raw.Executor
	if executor == "" {
		executor = raw.Profile
	}
	if strings.TrimSpace(string(executor)) == "" {
		return fmt.Errorf("invalid profile id: executor is required")
	}
	variant := ""
	if raw.Variant != nil {
		variant = *raw.Variant
	}
	*id = NewID(executor, variant)
	return nil
}
