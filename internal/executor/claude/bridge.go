package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/executor"
)

// maxLineBytes bounds a single stream-json line from the CLI.
const maxLineBytes = 4 * 1024 * 1024

type streamLine struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Request   *controlRequest `json:"request,omitempty"`
}

type controlRequest struct {
	Subtype   string          `json:"subtype"`
	ToolName  string          `json:"tool_name"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
}

type controlResponse struct {
	Type     string              `json:"type"`
	Response controlResponseBody `json:"response"`
}

type controlResponseBody struct {
	Subtype   string         `json:"subtype"`
	RequestID string         `json:"request_id"`
	Response  map[string]any `json:"response,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// writeUserMessage sends the initial prompt as a stream-json user message.
func writeUserMessage(w io.Writer, prompt string) error {
	msg := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": prompt,
		},
	}
	return writeLine(w, msg)
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// startBridge takes over child.Stdout. Control requests are answered through
// svc; every other line is forwarded to the reader installed as the new
// child.Stdout. Stdin is closed once the CLI reports its result.
func startBridge(ctx context.Context, child *executor.SpawnedChild, svc approvals.Service, logger *slog.Logger) {
	src := child.Stdout
	pr, pw := io.Pipe()
	child.Stdout = pr

	done := make(chan struct{})
	child.Track(done)

	b := &bridge{stdin: child.Stdin, svc: svc, logger: logger}

	go func() {
		defer close(done)
		err := b.run(ctx, src, pw)
		b.closeStdin()
		_ = pw.CloseWithError(err)
	}()
}

type bridge struct {
	svc    approvals.Service
	logger *slog.Logger

	mu        sync.Mutex
	stdin     io.WriteCloser
	stdinDone bool
}

func (b *bridge) run(ctx context.Context, src io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()

		var msg streamLine
		if err := json.Unmarshal(line, &msg); err == nil {
			switch {
			case msg.Type == "control_request" && msg.Request != nil:
				b.answer(ctx, msg)
				continue
			case msg.Type == "result":
				b.closeStdin()
			}
		}

		if _, err := out.Write(append(append([]byte(nil), line...), '\n')); err != nil {
			// Reader went away; keep draining so the CLI is not blocked.
			out = io.Discard
		}
	}
	return scanner.Err()
}

func (b *bridge) answer(ctx context.Context, msg streamLine) {
	resp := controlResponse{
		Type: "control_response",
		Response: controlResponseBody{
			Subtype:   "success",
			RequestID: msg.RequestID,
		},
	}

	switch msg.Request.Subtype {
	case "can_use_tool":
		status, err := b.svc.RequestToolApproval(ctx, approvals.Request{
			ToolName:   msg.Request.ToolName,
			ToolInput:  msg.Request.Input,
			ToolCallID: msg.Request.ToolUseID,
		})
		switch {
		case err != nil:
			resp.Response.Response = map[string]any{
				"behavior": "deny",
				"message":  fmt.Sprintf("approval failed: %v", err),
			}
		case status.Approved():
			allow := map[string]any{"behavior": "allow"}
			if len(msg.Request.Input) > 0 {
				allow["updatedInput"] = msg.Request.Input
			}
			resp.Response.Response = allow
		default:
			resp.Response.Response = map[string]any{
				"behavior": "deny",
				"message":  status.String(),
			}
		}
		b.logger.Debug("tool approval answered", "tool", msg.Request.ToolName, "request_id", msg.RequestID, "behavior", resp.Response.Response["behavior"])
	default:
		resp.Response.Subtype = "error"
		resp.Response.Error = "unsupported control request: " + msg.Request.Subtype
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stdinDone {
		return
	}
	if err := writeLine(b.stdin, resp); err != nil {
		b.logger.Warn("failed to write control response", "request_id", msg.RequestID, "error", err)
	}
}

func (b *bridge) closeStdin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stdinDone {
		return
	}
	b.stdinDone = true
	_ = b.stdin.Close()
}
