package executor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentgw/internal/execctx"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/bin", "HOME=/root", "MODEL=old"}

	got := mergeEnv(base, map[string]string{"MODEL": "new", "B": "2", "A": "1"})
	assert.Equal(t, []string{"PATH=/bin", "HOME=/root", "A=1", "B=2", "MODEL=new"}, got)

	same := mergeEnv(base, nil)
	assert.Equal(t, base, same)
	same[0] = "PATH=/changed"
	assert.Equal(t, "PATH=/bin", base[0])
}

func TestEnvironExportsExecutionContextLast(t *testing.T) {
	ec := execctx.Context{ProjectID: uuid.New(), Executor: "claude"}
	cmd := Command{
		Env:     map[string]string{execctx.EnvVar: "shadowed"},
		ExecCtx: &ec,
	}

	env, err := cmd.Environ([]string{"PATH=/bin"})
	require.NoError(t, err)

	var payloads []string
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, execctx.EnvVar+"="); ok {
			payloads = append(payloads, v)
		}
	}
	require.Len(t, payloads, 1)
	got, err := execctx.Decode(payloads[0])
	require.NoError(t, err)
	assert.Equal(t, ec, got)
}

func TestStartBinaryNotFound(t *testing.T) {
	_, err := Command{Binary: "definitely-not-an-agent-binary", Dir: t.TempDir()}.Start()
	assert.True(t, errors.Is(err, ErrBinaryNotFound), "got %v", err)
}

func TestStartInvalidWorkDir(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "agent", "exit 0\n")

	_, err := Command{Binary: bin, Dir: filepath.Join(dir, "missing")}.Start()
	assert.ErrorIs(t, err, ErrInvalidWorkDir)

	_, err = Command{Binary: bin, Dir: bin}.Start()
	assert.ErrorIs(t, err, ErrInvalidWorkDir)
}

func TestStartRunsInWorkDirWithEnv(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "agent", `pwd; echo "$1"; echo "$AGENT_FLAVOR"`+"\n")

	child, err := Command{
		Binary: bin,
		Args:   []string{"hello"},
		Dir:    dir,
		Env:    map[string]string{"AGENT_FLAVOR": "spicy"},
	}.Start()
	require.NoError(t, err)
	assert.NotZero(t, child.PID())
	assert.Nil(t, child.Stdin)

	out, err := io.ReadAll(child.Stdout)
	require.NoError(t, err)
	require.NoError(t, child.Wait())
	require.NoError(t, child.Wait(), "Wait is idempotent")

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	gotDir, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, resolved, gotDir)
	assert.Equal(t, "hello", lines[1])
	assert.Equal(t, "spicy", lines[2])
}

func TestValidatePrompt(t *testing.T) {
	assert.NoError(t, ValidatePrompt("fix bug"))
	assert.ErrorIs(t, ValidatePrompt("   "), ErrInvalidPrompt)
	assert.ErrorIs(t, ValidatePrompt("a\x00b"), ErrInvalidPrompt)
}

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("/proc/self/fd not available")
	}
	return len(entries)
}

func TestOpenPipesClosesOnFailure(t *testing.T) {
	before := openFDs(t)

	cmd := exec.Command("true")
	cmd.Stdin = strings.NewReader("")
	_, _, _, err := openPipes(cmd, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdin pipe")

	assert.Equal(t, before, openFDs(t))
}

func TestStartRejectsInvalidUTF8Context(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "agent", "exit 0\n")
	ec := execctx.Context{AttemptID: uuid.New(), TaskTitle: "fix \xff bug"}

	_, err := Command{Binary: bin, Dir: dir, ExecCtx: &ec}.Start()
	assert.ErrorIs(t, err, execctx.ErrInvalidUTF8)
}
