// Package codex is the OpenAI Codex CLI backend. Codex runs non-interactively
// via "codex exec --json" and the sandbox policy bounds side effects.
package codex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/executor"
	"github.com/mattjoyce/agentgw/internal/log"
)

const defaultBinary = "codex"

// Sandbox values accepted by --sandbox.
const (
	SandboxReadOnly       = "read-only"
	SandboxWorkspaceWrite = "workspace-write"
	SandboxFullAccess     = "danger-full-access"
)

// Config is the codex profile variant body.
type Config struct {
	executor.CommonConfig `yaml:",inline"`

	Sandbox      string `yaml:"sandbox,omitempty" json:"sandbox,omitempty"`
	SkipGitCheck bool   `yaml:"skip_git_check,omitempty" json:"skip_git_check,omitempty"`
	Profile      string `yaml:"profile,omitempty" json:"profile,omitempty"`
}

// Validate checks the variant body.
func (c Config) Validate() error {
	switch c.Sandbox {
	case "", SandboxReadOnly, SandboxWorkspaceWrite, SandboxFullAccess:
		return nil
	default:
		return fmt.Errorf("codex: invalid sandbox %q", c.Sandbox)
	}
}

// NewExecutor returns a fresh executor holding a private copy of c.
func (c Config) NewExecutor() executor.Executor {
	cfg := c
	cfg.CommonConfig = c.CommonConfig.Clone()
	return &Executor{cfg: cfg, logger: log.WithComponent("executor.codex")}
}

// Executor spawns one codex exec run.
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

// sandbox returns the effective sandbox. Exec mode cannot ask for approval,
// so a service that can refuse tool calls confines the run to read-only
// whatever the profile says. Any attached service also makes read-only the
// default when the profile sets no sandbox.
func (e *Executor) sandbox() string {
	switch {
	case approvals.Gates(e.approvals):
		return SandboxReadOnly
	case e.cfg.Sandbox != "":
		return e.cfg.Sandbox
	case e.approvals != nil:
		return SandboxReadOnly
	default:
		return ""
	}
}

// Args builds "exec --json [flags] <prompt>".
func (e *Executor) Args(prompt string) []string {
	args := []string{"exec", "--json"}
	if e.cfg.Model != "" {
		args = append(args, "--model", e.cfg.Model)
	}
	if sb := e.sandbox(); sb != "" {
		args = append(args, "--sandbox", sb)
	}
	if e.cfg.Profile != "" {
		args = append(args, "--profile", e.cfg.Profile)
	}
	if e.cfg.SkipGitCheck {
		args = append(args, "--skip-git-repo-check")
	}
	args = append(args, e.cfg.ExtraArgs...)
	return append(args, prompt)
}

func (e *Executor) Spawn(ctx context.Context, workDir, prompt string) (*executor.SpawnedChild, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := executor.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	if approvals.Gates(e.approvals) && e.cfg.Sandbox != "" && e.cfg.Sandbox != SandboxReadOnly {
		e.logger.Info("approval policy confines codex to read-only sandbox", "profile_sandbox", e.cfg.Sandbox)
	}

	child, err := executor.Command{
		Binary:  e.cfg.BinaryOr(defaultBinary),
		Args:    e.Args(prompt),
		Dir:     workDir,
		Env:     e.cfg.Env,
		ExecCtx: e.execCtx,
	}.Start()
	if err != nil {
		return nil, err
	}
	e.logger.Debug("codex spawned", "pid", child.PID(), "sandbox", e.sandbox(), "dir", workDir)
	return child, nil
}
