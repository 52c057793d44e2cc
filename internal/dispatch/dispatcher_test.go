package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/events"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/executor"
	"github.com/mattjoyce/agentgw/internal/executor/claude"
	"github.com/mattjoyce/agentgw/internal/executor/codex"
	"github.com/mattjoyce/agentgw/internal/executor/mocks"
	"github.com/mattjoyce/agentgw/internal/log"
	"github.com/mattjoyce/agentgw/internal/profile"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

type resolverFunc func(profile.ID) (executor.Executor, error)

func (f resolverFunc) Resolve(id profile.ID) (executor.Executor, error) { return f(id) }

func sampleContext() execctx.Context {
	return execctx.Context{
		ProjectID:           uuid.New(),
		TaskID:              uuid.New(),
		AttemptID:           uuid.New(),
		ExecutionProcessID:  uuid.New(),
		TaskTitle:           "x",
		AttemptBranch:       "b1",
		AttemptTargetBranch: "main",
		Executor:            "claude",
	}
}

func claudeReq(variant string) Request {
	return Request{Prompt: "fix bug", ExecutorProfileID: profile.NewID(profile.AgentClaude, variant)}
}

// writeFakeAgent writes a script that prints the exported execution context
// and then its last argument.
func writeFakeAgent(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	script := `#!/bin/sh
last=""
for a in "$@"; do last="$a"; done
printf '%s\n%s\n' "$VK_MCP_CONTEXT_JSON" "$last"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func readChild(t *testing.T, child *executor.SpawnedChild) []string {
	t.Helper()
	out, err := io.ReadAll(child.Stdout)
	require.NoError(t, err)
	require.NoError(t, child.Wait())
	return strings.Split(strings.TrimRight(string(out), "\n"), "\n")
}

func TestDispatchInjectsBeforeSpawn(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := mocks.NewMockExecutor(ctrl)

	svc := approvals.NewTracker(nil, nil)
	ectx := sampleContext()
	want := &executor.SpawnedChild{}

	gomock.InOrder(
		agent.EXPECT().UseApprovals(gomock.Any()).Do(func(got approvals.Service) {
			assert.Same(t, svc, got, "approval service must be shared, not copied")
		}),
		agent.EXPECT().UseExecutionContext(ectx),
		agent.EXPECT().Spawn(gomock.Any(), "/work", "fix bug").Return(want, nil),
	)

	d := New(resolverFunc(func(id profile.ID) (executor.Executor, error) {
		assert.Equal(t, "claude/default", id.String())
		return agent, nil
	}))

	child, err := d.Dispatch(context.Background(), claudeReq(""), svc, ectx, "/work")
	require.NoError(t, err)
	assert.Same(t, want, child)
}

func TestDispatchUnknownProfileAgainstEmptyRegistry(t *testing.T) {
	d := New(profile.NewStatic(profile.NewSnapshot(nil)))

	child, err := d.Dispatch(context.Background(), claudeReq("default"), approvals.AutoApprove{}, sampleContext(), t.TempDir())
	assert.Nil(t, child)
	require.Error(t, err)

	var uerr *UnknownExecutorTypeError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "claude/default", uerr.ProfileID)
	assert.ErrorIs(t, err, ErrUnknownExecutorType)
	assert.ErrorIs(t, err, profile.ErrNotFound)
	assert.Equal(t, "unknown executor type: claude/default", err.Error())
}

func TestDispatchUnknownProfileNeverTouchesExecutor(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := mocks.NewMockExecutor(ctrl) // no expectations: any call fails the test

	d := New(resolverFunc(func(id profile.ID) (executor.Executor, error) {
		if id.Variant == "known" {
			return agent, nil
		}
		return nil, fmt.Errorf("%w: %s", profile.ErrNotFound, id)
	}))

	_, err := d.Dispatch(context.Background(), claudeReq("missing"), nil, sampleContext(), "/work")
	assert.ErrorIs(t, err, ErrUnknownExecutorType)
}

func TestDispatchRegistryBuildFailure(t *testing.T) {
	boom := errors.New("profiles.yaml: bad yaml")
	d := New(profile.NewRegistry(func() (*profile.Snapshot, error) { return nil, boom }))

	_, err := d.Dispatch(context.Background(), claudeReq(""), nil, sampleContext(), t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownExecutorType)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, profile.ErrNotFound)
	assert.Contains(t, err.Error(), "bad yaml")
}

type backendError struct{ msg string }

func (e *backendError) Error() string { return e.msg }

func TestDispatchPassesBackendErrorThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := mocks.NewMockExecutor(ctrl)
	spawnErr := &backendError{msg: "rate limited"}

	agent.EXPECT().UseApprovals(gomock.Any())
	agent.EXPECT().UseExecutionContext(gomock.Any())
	agent.EXPECT().Spawn(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, spawnErr)

	d := New(resolverFunc(func(profile.ID) (executor.Executor, error) { return agent, nil }))

	child, err := d.Dispatch(context.Background(), claudeReq(""), nil, sampleContext(), "/work")
	assert.Nil(t, child)
	assert.Same(t, spawnErr, err)
	assert.NotErrorIs(t, err, ErrUnknownExecutorType)
}

func TestDispatchBackendSentinelsSurvive(t *testing.T) {
	snap := profile.NewSnapshot(map[profile.ID]profile.AgentConfig{
		profile.NewID(profile.AgentClaude, ""): claude.Config{
			CommonConfig: executor.CommonConfig{Binary: "agentgw-no-such-binary"},
		},
	})
	d := New(profile.NewStatic(snap))

	_, err := d.Dispatch(context.Background(), claudeReq(""), nil, sampleContext(), t.TempDir())
	assert.ErrorIs(t, err, executor.ErrBinaryNotFound)
	assert.NotErrorIs(t, err, ErrUnknownExecutorType)
}

func TestDispatchStateTransitions(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := mocks.NewMockExecutor(ctrl)
	agent.EXPECT().UseApprovals(gomock.Any())
	agent.EXPECT().UseExecutionContext(gomock.Any())
	agent.EXPECT().Spawn(gomock.Any(), gomock.Any(), gomock.Any()).Return(&executor.SpawnedChild{}, nil)

	var mu sync.Mutex
	seen := map[string][]State{}
	observe := func(id profile.ID, s State) {
		mu.Lock()
		defer mu.Unlock()
		seen[id.Variant] = append(seen[id.Variant], s)
	}

	d := New(resolverFunc(func(id profile.ID) (executor.Executor, error) {
		if id.Variant == "missing" {
			return nil, profile.ErrNotFound
		}
		return agent, nil
	}), WithObserver(observe))

	_, err := d.Dispatch(context.Background(), claudeReq("ok"), nil, sampleContext(), "/work")
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), claudeReq("missing"), nil, sampleContext(), "/work")
	require.Error(t, err)

	assert.Equal(t, []State{
		StateRequested, StateResolving, StateResolved, StateInjecting, StateSpawning, StateSpawned,
	}, seen["ok"])
	assert.Equal(t, []State{StateRequested, StateResolving, StateFailed}, seen["missing"])
}

func TestDispatchPublishesEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := mocks.NewMockExecutor(ctrl)
	agent.EXPECT().UseApprovals(gomock.Any())
	agent.EXPECT().UseExecutionContext(gomock.Any())
	agent.EXPECT().Spawn(gomock.Any(), gomock.Any(), gomock.Any()).Return(&executor.SpawnedChild{}, nil)

	hub := events.NewHub(16)
	d := New(resolverFunc(func(id profile.ID) (executor.Executor, error) {
		if id.Variant == "missing" {
			return nil, profile.ErrNotFound
		}
		return agent, nil
	}), WithEvents(hub))

	ectx := sampleContext()
	_, err := d.Dispatch(context.Background(), claudeReq(""), nil, ectx, "/work")
	require.NoError(t, err)
	_, _ = d.Dispatch(context.Background(), claudeReq("missing"), nil, ectx, "/work")

	history := hub.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, events.DispatchResolved, history[0].Type)
	assert.Equal(t, events.DispatchSpawned, history[1].Type)
	assert.Equal(t, events.DispatchFailed, history[2].Type)

	var failed events.Dispatch
	require.NoError(t, json.Unmarshal(history[2].Data, &failed))
	assert.Equal(t, "claude/missing", failed.ProfileID)
	assert.Equal(t, ectx.AttemptID.String(), failed.AttemptID)
	assert.Contains(t, failed.Error, "unknown executor type")
}

func TestDispatchClaudeExample(t *testing.T) {
	bin := writeFakeAgent(t, "claude")
	snap := profile.NewSnapshot(map[profile.ID]profile.AgentConfig{
		profile.NewID(profile.AgentClaude, "default"): claude.Config{
			CommonConfig:   executor.CommonConfig{Binary: bin},
			PermissionMode: claude.PermissionPlan,
		},
	})
	d := New(profile.NewStatic(snap))

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"fix bug","executor_profile_id":"claude/default"}`), &req))

	ectx := sampleContext()
	child, err := d.Dispatch(context.Background(), req, approvals.AutoApprove{}, ectx, t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, child.PID())

	lines := readChild(t, child)
	require.Len(t, lines, 2)

	got, err := execctx.Decode(lines[0])
	require.NoError(t, err)
	assert.Equal(t, ectx, got)
	assert.Equal(t, "fix bug", lines[1])
}

func TestConcurrentMixedDispatches(t *testing.T) {
	bin := writeFakeAgent(t, "codex")
	snap := profile.NewSnapshot(map[profile.ID]profile.AgentConfig{
		profile.NewID(profile.AgentCodex, "default"): codex.Config{
			CommonConfig: executor.CommonConfig{Binary: bin},
			SkipGitCheck: true,
		},
	})
	d := New(profile.NewStatic(snap))
	workDir := t.TempDir()

	const n = 50
	type result struct {
		ectx    execctx.Context
		known   bool
		lines   []string
		err     error
		waitErr error
	}
	results := make([]result, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := result{ectx: sampleContext(), known: i%2 == 0}
			r.ectx.TaskTitle = fmt.Sprintf("task-%d", i)

			variant := "default"
			if !r.known {
				variant = fmt.Sprintf("missing-%d", i)
			}
			req := Request{Prompt: fmt.Sprintf("prompt-%d", i), ExecutorProfileID: profile.NewID(profile.AgentCodex, variant)}

			child, err := d.Dispatch(context.Background(), req, approvals.NewTracker(nil, nil), r.ectx, workDir)
			r.err = err
			if err == nil {
				out, _ := io.ReadAll(child.Stdout)
				r.waitErr = child.Wait()
				r.lines = strings.Split(strings.TrimRight(string(out), "\n"), "\n")
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if !r.known {
			var uerr *UnknownExecutorTypeError
			require.ErrorAs(t, r.err, &uerr, "dispatch %d", i)
			assert.Equal(t, fmt.Sprintf("codex/missing-%d", i), uerr.ProfileID)
			continue
		}
		require.NoError(t, r.err, "dispatch %d", i)
		require.NoError(t, r.waitErr, "dispatch %d", i)
		require.Len(t, r.lines, 2, "dispatch %d", i)

		got, err := execctx.Decode(r.lines[0])
		require.NoError(t, err)
		assert.Equal(t, r.ectx, got, "dispatch %d saw another dispatch's context", i)
		assert.Equal(t, fmt.Sprintf("prompt-%d", i), r.lines[1])
	}
}

func TestBuiltInProfilesConfinedByRestrictivePolicy(t *testing.T) {
	binDir := t.TempDir()
	script := "#!/bin/sh\nprintf '%s\\n%s\\n' \"$*\" \"$OPENCODE_PERMISSION\"\n"
	for _, name := range []string{"codex", "opencode"} {
		require.NoError(t, os.WriteFile(filepath.Join(binDir, name), []byte(script), 0o755))
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	d := New(profile.NewRegistry(profile.FileLoader(profile.LoadOptions{})))
	tracker := approvals.NewTracker(approvals.AllowTools("Read"), nil)

	child, err := d.Dispatch(context.Background(),
		Request{Prompt: "fix bug", ExecutorProfileID: profile.NewID(profile.AgentCodex, "default")},
		tracker, sampleContext(), t.TempDir())
	require.NoError(t, err)
	lines := readChild(t, child)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "--sandbox read-only")
	assert.NotContains(t, lines[0], "workspace-write")

	child, err = d.Dispatch(context.Background(),
		Request{Prompt: "fix bug", ExecutorProfileID: profile.NewID(profile.AgentOpencode, "default")},
		tracker, sampleContext(), t.TempDir())
	require.NoError(t, err)
	lines = readChild(t, child)
	require.Len(t, lines, 2)

	var policy map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &policy))
	assert.Equal(t, map[string]string{"edit": "deny", "bash": "deny", "webfetch": "deny"}, policy)
}
