// Package actions persists dispatch requests and the processes spawned for
// them.
package actions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/agentgw/internal/dispatch"
	"github.com/mattjoyce/agentgw/internal/execctx"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ProcessStatus is the lifecycle state of a recorded process.
type ProcessStatus string

const (
	StatusStarting  ProcessStatus = "starting"
	StatusRunning   ProcessStatus = "running"
	StatusCompleted ProcessStatus = "completed"
	StatusFailed    ProcessStatus = "failed"
)

// Action is a stored dispatch request.
type Action struct {
	ID        uuid.UUID        `json:"id"`
	Request   dispatch.Request `json:"request"`
	CreatedAt time.Time        `json:"created_at"`
}

// Process is one execution of an Action.
type Process struct {
	ID          uuid.UUID        `json:"id"`
	ActionID    uuid.UUID        `json:"action_id"`
	Context     *execctx.Context `json:"context,omitempty"`
	WorkingDir  string           `json:"working_dir"`
	Status      ProcessStatus    `json:"status"`
	PID         int              `json:"pid,omitempty"`
	ExitCode    *int             `json:"exit_code,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Store reads and writes actions and processes.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateAction stores req under a new ID.
func (s *Store) CreateAction(ctx context.Context, req dispatch.Request) (*Action, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	a := &Action{ID: uuid.New(), Request: req, CreatedAt: s.now()}
	if err := s.insertAction(ctx, a.ID, req, raw, a.CreatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

// ImportAction stores a request exactly as serialized elsewhere, legacy
// field names included. The JSON must decode as a dispatch request.
func (s *Store) ImportAction(ctx context.Context, raw json.RawMessage) (*Action, error) {
	var req dispatch.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	a := &Action{ID: uuid.New(), Request: req, CreatedAt: s.now()}
	if err := s.insertAction(ctx, a.ID, req, raw, a.CreatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) insertAction(ctx context.Context, id uuid.UUID, req dispatch.Request, raw []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO executor_actions(id, executor, profile, request, created_at)
VALUES(?, ?, ?, ?, ?);
`, id.String(), string(req.BaseExecutor()), req.ExecutorProfileID.String(), string(raw), at.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// GetAction loads an action and decodes its stored request.
func (s *Store) GetAction(ctx context.Context, id uuid.UUID) (*Action, error) {
	var raw, created string
	err := s.db.QueryRowContext(ctx,
		"SELECT request, created_at FROM executor_actions WHERE id = ?;", id.String(),
	).Scan(&raw, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read action: %w", err)
	}

	a := &Action{ID: id}
	if err := json.Unmarshal([]byte(raw), &a.Request); err != nil {
		return nil, fmt.Errorf("decode stored request for action %s: %w", id, err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return a, nil
}

// StartProcess records a process about to be spawned. p.ID should be the
// execution context's process ID so the child can be correlated back.
func (s *Store) StartProcess(ctx context.Context, p *Process) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = StatusStarting
	p.StartedAt = s.now()

	var ctxJSON sql.NullString
	var attempt sql.NullString
	if p.Context != nil {
		payload, err := p.Context.Encode()
		if err != nil {
			return err
		}
		ctxJSON = sql.NullString{String: payload, Valid: true}
		attempt = sql.NullString{String: p.Context.AttemptID.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO execution_processes(id, action_id, attempt_id, context, working_dir, status, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, p.ID.String(), p.ActionID.String(), attempt, ctxJSON, p.WorkingDir, string(p.Status), p.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

// MarkRunning records the PID of a spawned process.
func (s *Store) MarkRunning(ctx context.Context, id uuid.UUID, pid int) error {
	return s.update(ctx, id, `UPDATE execution_processes SET status = ?, pid = ? WHERE id = ?;`,
		string(StatusRunning), pid, id.String())
}

// MarkFailed records a process that never started or ended in error.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, exitCode *int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.update(ctx, id,
		`UPDATE execution_processes SET status = ?, exit_code = ?, last_error = ?, completed_at = ? WHERE id = ?;`,
		string(StatusFailed), nullInt(exitCode), msg, s.now().Format(time.RFC3339Nano), id.String())
}

// MarkCompleted records a clean exit.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, exitCode int) error {
	return s.update(ctx, id,
		`UPDATE execution_processes SET status = ?, exit_code = ?, completed_at = ? WHERE id = ?;`,
		string(StatusCompleted), exitCode, s.now().Format(time.RFC3339Nano), id.String())
}

func (s *Store) update(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("process %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetProcess loads one process.
func (s *Store) GetProcess(ctx context.Context, id uuid.UUID) (*Process, error) {
	row := s.db.QueryRowContext(ctx, processSelect+" WHERE id = ?;", id.String())
	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("process %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListProcesses returns the processes of an action, oldest first.
func (s *Store) ListProcesses(ctx context.Context, actionID uuid.UUID) ([]*Process, error) {
	rows, err := s.db.QueryContext(ctx, processSelect+" WHERE action_id = ? ORDER BY started_at ASC;", actionID.String())
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const processSelect = `SELECT id, action_id, context, working_dir, status, pid, exit_code, last_error, started_at, completed_at FROM execution_processes`

type scanner interface {
	Scan(dest ...any) error
}

func scanProcess(row scanner) (*Process, error) {
	var (
		id, actionID, workDir, status, started string
		ctxJSON, lastErr, completed            sql.NullString
		pid, exitCode                          sql.NullInt64
	)
	if err := row.Scan(&id, &actionID, &ctxJSON, &workDir, &status, &pid, &exitCode, &lastErr, &started, &completed); err != nil {
		return nil, err
	}

	p := &Process{
		WorkingDir: workDir,
		Status:     ProcessStatus(status),
		PID:        int(pid.Int64),
		LastError:  lastErr.String,
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse process id: %w", err)
	}
	if p.ActionID, err = uuid.Parse(actionID); err != nil {
		return nil, fmt.Errorf("parse action id: %w", err)
	}
	if ctxJSON.Valid {
		c, err := execctx.Decode(ctxJSON.String)
		if err != nil {
			return nil, fmt.Errorf("decode stored context: %w", err)
		}
		p.Context = &c
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		p.ExitCode = &code
	}
	if p.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if completed.Valid {
		t, err := time.Parse(time.RFC3339Nano, completed.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		p.CompletedAt = &t
	}
	return p, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
