package codex

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/executor"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		approvals approvals.Service
		want      []string
	}{
		{
			name: "defaults",
			want: []string{"exec", "--json", "fix bug"},
		},
		{
			name: "all flags",
			cfg: Config{
				CommonConfig: executor.CommonConfig{Model: "gpt-5-codex", ExtraArgs: []string{"--oss"}},
				Sandbox:      SandboxWorkspaceWrite,
				Profile:      "work",
				SkipGitCheck: true,
			},
			want: []string{
				"exec", "--json", "--model", "gpt-5-codex", "--sandbox", "workspace-write",
				"--profile", "work", "--skip-git-repo-check", "--oss", "fix bug",
			},
		},
		{
			name:      "gated run defaults to read-only sandbox",
			approvals: approvals.AutoApprove{},
			want:      []string{"exec", "--json", "--sandbox", "read-only", "fix bug"},
		},
		{
			name:      "permissive service keeps profile sandbox",
			cfg:       Config{Sandbox: SandboxWorkspaceWrite},
			approvals: approvals.NewTracker(nil, nil),
			want:      []string{"exec", "--json", "--sandbox", "workspace-write", "fix bug"},
		},
		{
			name:      "allow list overrides writable profile sandbox",
			cfg:       Config{Sandbox: SandboxWorkspaceWrite},
			approvals: approvals.NewTracker(approvals.AllowTools("Read"), nil),
			want:      []string{"exec", "--json", "--sandbox", "read-only", "fix bug"},
		},
		{
			name:      "allow list overrides full access",
			cfg:       Config{Sandbox: SandboxFullAccess},
			approvals: approvals.NewTracker(approvals.AllowTools("Read"), nil),
			want:      []string{"exec", "--json", "--sandbox", "read-only", "fix bug"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.cfg.NewExecutor().(*Executor)
			if tt.approvals != nil {
				e.UseApprovals(tt.approvals)
			}
			assert.Equal(t, tt.want, e.Args("fix bug"))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{Sandbox: SandboxReadOnly}.Validate())
	assert.Error(t, Config{Sandbox: "everything"}.Validate())
}

func TestSpawnExportsContext(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "codex")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"$1 $2\"\nprintf '%s' \"$VK_MCP_CONTEXT_JSON\"\n"), 0o755))

	e := Config{CommonConfig: executor.CommonConfig{Binary: bin}}.NewExecutor()
	ec := execctx.Context{AttemptID: uuid.New(), AttemptBranch: "b1", Executor: "codex"}
	e.UseExecutionContext(ec)

	child, err := e.Spawn(context.Background(), dir, "fix bug")
	require.NoError(t, err)
	out, err := io.ReadAll(child.Stdout)
	require.NoError(t, err)
	require.NoError(t, child.Wait())

	first, rest, ok := strings.Cut(string(out), "\n")
	require.True(t, ok)
	assert.Equal(t, "exec --json", first)

	got, err := execctx.Decode(rest)
	require.NoError(t, err)
	assert.Equal(t, ec, got)
}

func TestSpawnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Config{}.NewExecutor().Spawn(ctx, t.TempDir(), "fix bug")
	assert.ErrorIs(t, err, context.Canceled)
}
