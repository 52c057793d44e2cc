package actions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentgw/internal/dispatch"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/profile"
	"github.com/mattjoyce/agentgw/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "agentgw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestActionRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	req := dispatch.Request{Prompt: "fix bug", ExecutorProfileID: profile.NewID(profile.AgentClaude, "plan")}

	created, err := s.CreateAction(ctx, req)
	require.NoError(t, err)

	got, err := s.GetAction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, req, got.Request)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, 0)
}

func TestLegacyStoredRequestReadsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	legacy, err := s.ImportAction(ctx, []byte(`{"prompt":"fix bug","profile_variant_label":{"profile":"claude","variant":null}}`))
	require.NoError(t, err)
	current, err := s.CreateAction(ctx, dispatch.Request{Prompt: "fix bug", ExecutorProfileID: profile.NewID(profile.AgentClaude, "")})
	require.NoError(t, err)

	a, err := s.GetAction(ctx, legacy.ID)
	require.NoError(t, err)
	b, err := s.GetAction(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Request, a.Request)

	_, err = s.ImportAction(ctx, []byte(`{"prompt":"no profile"}`))
	assert.Error(t, err)
}

func TestGetActionNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.GetAction(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	action, err := s.CreateAction(ctx, dispatch.Request{Prompt: "p", ExecutorProfileID: profile.NewID(profile.AgentCodex, "")})
	require.NoError(t, err)

	ectx := execctx.Context{
		ProjectID:          uuid.New(),
		TaskID:             uuid.New(),
		AttemptID:          uuid.New(),
		ExecutionProcessID: uuid.New(),
		TaskTitle:          "t",
		Executor:           "codex",
	}
	p := &Process{ID: ectx.ExecutionProcessID, ActionID: action.ID, Context: &ectx, WorkingDir: "/work"}
	require.NoError(t, s.StartProcess(ctx, p))

	got, err := s.GetProcess(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, got.Status)
	require.NotNil(t, got.Context)
	assert.Equal(t, ectx, *got.Context)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.MarkRunning(ctx, p.ID, 4242))
	require.NoError(t, s.MarkCompleted(ctx, p.ID, 0))

	got, err = s.GetProcess(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 4242, got.PID)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 0, *got.ExitCode)
	assert.NotNil(t, got.CompletedAt)
}

func TestProcessFailureAndListing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	action, err := s.CreateAction(ctx, dispatch.Request{Prompt: "p", ExecutorProfileID: profile.NewID(profile.AgentClaude, "")})
	require.NoError(t, err)

	first := &Process{ActionID: action.ID, WorkingDir: "/a"}
	second := &Process{ActionID: action.ID, WorkingDir: "/b"}
	require.NoError(t, s.StartProcess(ctx, first))
	require.NoError(t, s.StartProcess(ctx, second))
	assert.NotEqual(t, uuid.Nil, first.ID)

	code := 2
	require.NoError(t, s.MarkFailed(ctx, first.ID, &code, errors.New("exit status 2")))
	require.NoError(t, s.MarkFailed(ctx, second.ID, nil, errors.New("binary not found")))

	list, err := s.ListProcesses(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, p := range list {
		assert.Equal(t, StatusFailed, p.Status)
		assert.Nil(t, p.Context)
	}

	byID := map[uuid.UUID]*Process{list[0].ID: list[0], list[1].ID: list[1]}
	require.NotNil(t, byID[first.ID].ExitCode)
	assert.Equal(t, 2, *byID[first.ID].ExitCode)
	assert.Nil(t, byID[second.ID].ExitCode)
	assert.Equal(t, "binary not found", byID[second.ID].LastError)
}

func TestUpdateUnknownProcess(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, s.MarkRunning(context.Background(), uuid.New(), 1), ErrNotFound)
}

func TestStartProcessRequiresAction(t *testing.T) {
	s := newStore(t)
	err := s.StartProcess(context.Background(), &Process{ActionID: uuid.New(), WorkingDir: "/x"})
	assert.Error(t, err, "foreign key on action_id")
}
