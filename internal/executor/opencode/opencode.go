// Package opencode is the OpenCode CLI backend ("opencode run --format json").
package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/executor"
	"github.com/mattjoyce/agentgw/internal/log"
)

const defaultBinary = "opencode"

// permissionEnv carries OpenCode's permission policy.
const permissionEnv = "OPENCODE_PERMISSION"

// Variant values accepted by --variant.
const (
	VariantMinimal = "minimal"
	VariantLow     = "low"
	VariantHigh    = "high"
	VariantMax     = "max"
)

// Config is the opencode profile variant body.
type Config struct {
	executor.CommonConfig `yaml:",inline"`

	Variant string `yaml:"variant,omitempty" json:"variant,omitempty"`
	Agent   string `yaml:"agent,omitempty" json:"agent,omitempty"`
}

// Validate checks the variant body.
func (c Config) Validate() error {
	switch c.Variant {
	case "", VariantMinimal, VariantLow, VariantHigh, VariantMax:
		return nil
	default:
		return fmt.Errorf("opencode: invalid variant %q", c.Variant)
	}
}

// NewExecutor returns a fresh executor holding a private copy of c.
func (c Config) NewExecutor() executor.Executor {
	cfg := c
	cfg.CommonConfig = c.CommonConfig.Clone()
	return &Executor{cfg: cfg, logger: log.WithComponent("executor.opencode")}
}

// Executor spawns one opencode run.
type Executor struct {
	cfg       Config
	approvals approvals.Service
	execCtx   *execctx.Context
	logger    *slog.Logger
}

var _ executor.Executor = (*Executor)(nil)

func (e *Executor) UseApprovals(svc approvals.Service) {
	e.approvals = svc
}

func (e *Executor) UseExecutionContext(ctx execctx.Context) {
	e.execCtx = &ctx
}

func (e *Executor) Args(prompt string) []string {
	args := []string{"run", "--format", "json"}
	if e.cfg.Model != "" {
		args = append(args, "--model", e.cfg.Model)
	}
	if e.cfg.Variant != "" {
		args = append(args, "--variant", e.cfg.Variant)
	}
	if e.cfg.Agent != "" {
		args = append(args, "--agent", e.cfg.Agent)
	}
	args = append(args, e.cfg.ExtraArgs...)
	return append(args, prompt)
}

// env returns the profile env plus an OpenCode permission policy, unless the
// profile set its own. A run gated by an approval service that can refuse
// tool calls denies edits, shell and fetches, since opencode run cannot
// forward permission requests. Any other run is unattended and allows them.
func (e *Executor) env() (map[string]string, error) {
	env := make(map[string]string, len(e.cfg.Env)+1)
	for k, v := range e.cfg.Env {
		env[k] = v
	}
	if _, ok := env[permissionEnv]; ok {
		return env, nil
	}
	action := "allow"
	if approvals.Gates(e.approvals) {
		action = "deny"
	}
	policy, err := json.Marshal(map[string]string{"edit": action, "bash": action, "webfetch": action})
	if err != nil {
		return nil, err
	}
	env[permissionEnv] = string(policy)
	return env, nil
}

func (e *Executor) Spawn(ctx context.Context, workDir, prompt string) (*executor.SpawnedChild, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := executor.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	env, err := e.env()
	if err != nil {
		return nil, fmt.Errorf("opencode: build env: %w", err)
	}

	child, err := executor.Command{
		Binary:  e.cfg.BinaryOr(defaultBinary),
		Args:    e.Args(prompt),
		Dir:     workDir,
		Env:     env,
		ExecCtx: e.execCtx,
	}.Start()
	if err != nil {
		return nil, err
	}
	e.logger.Debug("opencode spawned", "pid", child.PID(), "dir", workDir)
	return child, nil
}
