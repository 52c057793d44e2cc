package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mattjoyce/agentgw/internal/actions"
	"github.com/mattjoyce/agentgw/internal/dispatch"
	"github.com/mattjoyce/agentgw/internal/events"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/profile"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if snap, err := s.profiles.Snapshot(); err != nil {
		resp.Status = "degraded"
		resp.ProfilesError = err.Error()
	} else {
		resp.ProfilesLoaded = snap.Len()
	}
	s.active.Range(func(any, any) bool {
		resp.ActiveProcesses++
		return true
	})
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	snap, err := s.profiles.Snapshot()
	if err != nil {
		s.logger.Error("profile registry unavailable", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, codeInternal, "profile registry unavailable: "+err.Error())
		return
	}
	resp := ProfilesResponse{Profiles: make([]ProfileInfo, 0, snap.Len())}
	for _, id := range snap.IDs() {
		resp.Profiles = append(resp.Profiles, ProfileInfo{
			ID:       id.String(),
			Executor: string(id.Executor),
			Variant:  id.Variant,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleDispatch handles POST /dispatch. The body is a dispatch request
// (executor_profile_id or the legacy profile_variant_label) plus an
// optional execution context and working_dir.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "failed to read request body")
		return
	}

	var req dispatch.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	var env dispatchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	s.dispatch(w, r, req, env)
}

// handleProfileDispatch handles POST /profiles/{executor}/{variant}/dispatch.
func (s *Server) handleProfileDispatch(w http.ResponseWriter, r *http.Request) {
	id := profile.NewID(profile.BaseAgent(chi.URLParam(r, "executor")), chi.URLParam(r, "variant"))

	var in struct {
		Prompt string `json:"prompt"`
		dispatchEnvelope
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return
	}
	s.dispatch(w, r, dispatch.Request{Prompt: in.Prompt, ExecutorProfileID: id}, in.dispatchEnvelope)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req dispatch.Request, env dispatchEnvelope) {
	ctx := r.Context()
	ectx := newExecutionContext(req, env.Context)
	workDir := env.WorkingDir
	if workDir == "" {
		workDir = s.config.WorkspaceDir
	}

	action, err := s.store.CreateAction(ctx, req)
	if err != nil {
		s.logger.Error("failed to record action", "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to record action")
		return
	}
	proc := &actions.Process{ID: ectx.ExecutionProcessID, ActionID: action.ID, Context: &ectx, WorkingDir: workDir}
	if err := s.store.StartProcess(ctx, proc); err != nil {
		s.logger.Error("failed to record process", "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to record process")
		return
	}

	child, err := s.dispatcher.Dispatch(ctx, req, s.approvals, ectx, workDir)
	if err != nil {
		if merr := s.store.MarkFailed(ctx, proc.ID, nil, err); merr != nil {
			s.logger.Error("failed to record dispatch failure", "process_id", proc.ID, "error", merr)
		}
		var unknown *dispatch.UnknownExecutorTypeError
		if errors.As(err, &unknown) {
			respondJSON(w, http.StatusNotFound, ErrorResponse{
				Error:     err.Error(),
				Code:      codeUnknownExecutorType,
				ProfileID: unknown.ProfileID,
			})
			return
		}
		s.writeError(w, http.StatusBadGateway, codeSpawnFailed, err.Error())
		return
	}

	if err := s.store.MarkRunning(ctx, proc.ID, child.PID()); err != nil {
		s.logger.Error("failed to record running process", "process_id", proc.ID, "error", err)
	}
	s.supervise(proc.ID, events.Dispatch{
		ProfileID: req.ExecutorProfileID.String(),
		Executor:  string(req.BaseExecutor()),
		AttemptID: ectx.AttemptID.String(),
		ProcessID: proc.ID.String(),
		ActionID:  action.ID.String(),
		PID:       child.PID(),
	}, child)

	respondJSON(w, http.StatusCreated, DispatchResponse{
		ActionID:  action.ID.String(),
		ProcessID: proc.ID.String(),
		AttemptID: ectx.AttemptID.String(),
		ProfileID: req.ExecutorProfileID.String(),
		Executor:  string(req.BaseExecutor()),
		PID:       child.PID(),
	})
}

// newExecutionContext completes a caller supplied context. Missing
// identifiers are generated; the executor label defaults to the request's
// executor kind.
func newExecutionContext(req dispatch.Request, in *execctx.Context) execctx.Context {
	var c execctx.Context
	if in != nil {
		c = *in
	}
	for _, id := range []*uuid.UUID{&c.ProjectID, &c.TaskID, &c.AttemptID, &c.ExecutionProcessID} {
		if *id == uuid.Nil {
			*id = uuid.New()
		}
	}
	if c.Executor == "" {
		c.Executor = string(req.BaseExecutor())
	}
	return c
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r, "actionID")
	if !ok {
		return
	}
	action, err := s.store.GetAction(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	procs, err := s.store.ListProcesses(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if procs == nil {
		procs = []*actions.Process{}
	}
	respondJSON(w, http.StatusOK, ActionResponse{
		ID:        action.ID.String(),
		Request:   action.Request,
		CreatedAt: action.CreatedAt,
		Processes: procs,
	})
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r, "processID")
	if !ok {
		return
	}
	p, err := s.store.GetProcess(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleKillProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r, "processID")
	if !ok {
		return
	}
	if !s.terminate(id) {
		s.writeError(w, http.StatusNotFound, codeNotFound, "process is not running")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, actions.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, codeNotFound, err.Error())
		return
	}
	s.logger.Error("store error", "error", err)
	s.writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
