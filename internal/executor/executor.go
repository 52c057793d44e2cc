// Package executor defines the contract every coding agent backend implements
// and the shared machinery for starting an agent subprocess.
//
// Backends live in sub-packages (claude, codex, opencode). The dispatcher
// only sees the Executor interface: it injects capabilities and then calls
// Spawn exactly once.
package executor

import (
	"context"
	"errors"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/execctx"
)

//go:generate mockgen -destination=mocks/mock_executor.go -package=mocks github.com/mattjoyce/agentgw/internal/executor Executor

var (
	// ErrBinaryNotFound indicates the agent CLI is not installed or not on PATH.
	ErrBinaryNotFound = errors.New("executor: agent binary not found")

	// ErrInvalidWorkDir indicates the working directory is missing or not a directory.
	ErrInvalidWorkDir = errors.New("executor: invalid working directory")

	// ErrInvalidPrompt indicates a prompt the CLI cannot receive (empty or NUL bytes).
	ErrInvalidPrompt = errors.New("executor: invalid prompt")
)

// Executor is a resolved, per-dispatch agent configuration.
//
// UseApprovals and UseExecutionContext must be called before Spawn.
// Implementations hold the approval service by reference and never copy its
// internal state.
type Executor interface {
	UseApprovals(svc approvals.Service)
	UseExecutionContext(ctx execctx.Context)
	Spawn(ctx context.Context, workDir, prompt string) (*SpawnedChild, error)
}

// CommonConfig holds the settings every backend accepts. Backends embed it
// inline in their profile variant body.
type CommonConfig struct {
	Binary    string            `yaml:"binary,omitempty" json:"binary,omitempty"`
	Model     string            `yaml:"model,omitempty" json:"model,omitempty"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	ExtraArgs []string          `yaml:"extra_args,omitempty" json:"extra_args,omitempty"`
}

// Clone returns a deep copy so a resolved executor never aliases snapshot maps.
func (c CommonConfig) Clone() CommonConfig {
	out := c
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	if c.ExtraArgs != nil {
		out.ExtraArgs = append([]string(nil), c.ExtraArgs...)
	}
	return out
}

// BinaryOr returns the configured binary or def.
func (c CommonConfig) BinaryOr(def string) string {
	if c.Binary != "" {
		return c.Binary
	}
	return def
}
