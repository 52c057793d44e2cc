// Package claude is the Claude Code CLI backend.
//
// Without an approval service the prompt is passed as the last positional
// argument. With one attached, the CLI runs in stream-json input mode with
// --permission-prompt-tool stdio and every can_use_tool control request is
// answered through the service (see bridge.go).
package claude

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/executor"
	"github.com/mattjoyce/agentgw/internal/log"
)

const defaultBinary = "claude"

// PermissionMode values accepted by --permission-mode.
const (
	PermissionDefault     = "default"
	PermissionAcceptEdits = "acceptEdits"
	PermissionBypass      = "bypassPermissions"
	PermissionPlan        = "plan"
)

// Config is the claude profile variant body.
type Config struct {
	executor.CommonConfig `yaml:",inline"`

	PermissionMode string `yaml:"permission_mode,omitempty" json:"permission_mode,omitempty"`
	AppendPrompt   string `yaml:"append_prompt,omitempty" json:"append_prompt,omitempty"`
	SystemPrompt   string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// Validate checks the variant body.
func (c Config) Validate() error {
	switch c.PermissionMode {
	case "", PermissionDefault, PermissionAcceptEdits, PermissionBypass, PermissionPlan:
		return nil
	default:
		return fmt.Errorf("claude: invalid permission_mode %q", c.PermissionMode)
	}
}

// NewExecutor returns a fresh executor holding a private copy of c.
func (c Config) NewExecutor() executor.Executor {
	cfg := c
	cfg.CommonConfig = c.CommonConfig.Clone()
	return &Executor{cfg: cfg, logger: log.WithComponent("executor.claude")}
}

// Executor spawns one Claude Code session.
type Executor struct {
	cfg       Config
	approvals approvals.Service
	execCtx   *execctx.Context
	logger    *slog.Logger
}

var _ executor.Executor = (*Executor)(nil)

// UseApprovals attaches the shared approval service.
func (e *Executor) UseApprovals(svc approvals.Service) {
	e.approvals = svc
}

// UseExecutionContext attaches the dispatch identity exported to the child.
func (e *Executor) UseExecutionContext(ctx execctx.Context) {
	e.execCtx = &ctx
}

// bridged reports whether tool calls are routed through the approval service.
// Plan and bypass modes never ask for permission.
func (e *Executor) bridged() bool {
	if e.approvals == nil {
		return false
	}
	return e.cfg.PermissionMode != PermissionPlan && e.cfg.PermissionMode != PermissionBypass
}

// Args builds the CLI arguments. The prompt is appended only in
// non-bridged mode.
func (e *Executor) Args(prompt string) []string {
	args := []string{"-p", "--verbose", "--output-format", "stream-json"}
	if e.cfg.Model != "" {
		args = append(args, "--model", e.cfg.Model)
	}
	if e.cfg.PermissionMode != "" && e.cfg.PermissionMode != PermissionDefault {
		args = append(args, "--permission-mode", e.cfg.PermissionMode)
	}
	if e.cfg.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", e.cfg.SystemPrompt)
	}
	if e.bridged() {
		args = append(args, "--input-format", "stream-json", "--permission-prompt-tool", "stdio")
	}
	args = append(args, e.cfg.ExtraArgs...)
	if !e.bridged() {
		args = append(args, prompt)
	}
	return args
}

func (e *Executor) fullPrompt(prompt string) string {
	if e.cfg.AppendPrompt == "" {
		return prompt
	}
	return prompt + e.cfg.AppendPrompt
}

// Spawn starts the CLI in workDir.
func (e *Executor) Spawn(ctx context.Context, workDir, prompt string) (*executor.SpawnedChild, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := executor.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	prompt = e.fullPrompt(prompt)

	cmd := executor.Command{
		Binary:    e.cfg.BinaryOr(defaultBinary),
		Args:      e.Args(prompt),
		Dir:       workDir,
		Env:       e.cfg.Env,
		ExecCtx:   e.execCtx,
		WantStdin: e.bridged(),
	}

	child, err := cmd.Start()
	if err != nil {
		return nil, err
	}
	e.logger.Debug("claude spawned", "pid", child.PID(), "bridged", e.bridged(), "dir", workDir)

	if !e.bridged() {
		return child, nil
	}

	if err := writeUserMessage(child.Stdin, prompt); err != nil {
		_ = child.Kill()
		_ = child.Wait()
		return nil, fmt.Errorf("claude: send prompt: %w", err)
	}
	startBridge(context.WithoutCancel(ctx), child, e.approvals, e.logger)
	return child, nil
}
