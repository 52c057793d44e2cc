package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/dispatch"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/log"
	"github.com/mattjoyce/agentgw/internal/profile"
)

// --- dispatch ---

func runDispatchNoun(args []string) int {
	if len(args) < 1 {
		printDispatchNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printDispatchNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "run":
		if hasHelpFlag(args[1:]) {
			printDispatchRunHelp()
			return 0
		}
		return runDispatch(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown dispatch action: %s\n", args[0])
		return 1
	}
}

func printDispatchNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: agentgw dispatch <action>")
	fmt.Fprintln(w, "Actions: run")
}

func printDispatchRunHelp() {
	fmt.Println("Usage: agentgw dispatch run [flags] <prompt>")
	fmt.Println("Spawn an agent in the foreground. Agent stdout is streamed to stdout")
	fmt.Println("and agentgw exits with the agent's exit code.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --profile ID        Executor profile (default: claude/default)")
	fmt.Println("  --dir PATH          Working directory (default: workspace_dir)")
	fmt.Println("  --task-title TEXT   Task title exported in the execution context")
	fmt.Println("  --branch NAME       Attempt branch exported in the execution context")
	fmt.Println("  --target-branch B   Target branch exported in the execution context")
	fmt.Println("  --no-approvals      Spawn without an approval service")
	fmt.Println("  --config PATH       Configuration file or directory")
}

func runDispatch(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	profileFlag := fs.String("profile", "claude/default", "Executor profile id")
	dir := fs.String("dir", "", "Working directory")
	taskTitle := fs.String("task-title", "", "Task title")
	branch := fs.String("branch", "", "Attempt branch")
	targetBranch := fs.String("target-branch", "", "Attempt target branch")
	noApprovals := fs.Bool("no-approvals", false, "Spawn without an approval service")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "Usage: agentgw dispatch run [flags] <prompt>")
		return 1
	}
	id, err := profile.ParseID(*profileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid profile: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, "text")

	workDir := *dir
	if workDir == "" {
		workDir = cfg.WorkspaceDir
	}

	var svc approvals.Service
	if !*noApprovals {
		tracker, err := newApprovalService(cfg, log.WithComponent("approvals"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid approval policy: %v\n", err)
			return 1
		}
		svc = tracker
	}

	ectx := execctx.Context{
		ProjectID:           uuid.New(),
		TaskID:              uuid.New(),
		TaskTitle:           *taskTitle,
		AttemptID:           uuid.New(),
		AttemptBranch:       *branch,
		AttemptTargetBranch: *targetBranch,
		ExecutionProcessID:  uuid.New(),
		Executor:            string(id.Executor),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := newRegistry(cfg)
	req := dispatch.Request{Prompt: prompt, ExecutorProfileID: id}
	child, err := dispatch.New(registry).Dispatch(ctx, req, svc, ectx, workDir)
	if err != nil {
		var unknown *dispatch.UnknownExecutorTypeError
		if errors.As(err, &unknown) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if snap, serr := registry.Snapshot(); serr == nil {
				fmt.Fprintf(os.Stderr, "Available profiles: %s\n", joinIDs(snap.IDs()))
			}
			return 2
		}
		fmt.Fprintf(os.Stderr, "Spawn failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "dispatched %s pid=%d attempt=%s\n", id, child.PID(), ectx.AttemptID)

	go func() {
		<-ctx.Done()
		_ = child.Kill()
	}()

	var wg sync.WaitGroup
	if child.Stderr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = io.Copy(os.Stderr, child.Stderr)
		}()
	}
	if child.Stdout != nil {
		_, _ = io.Copy(os.Stdout, child.Stdout)
	}
	wg.Wait()

	if err := child.Wait(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && ee.ExitCode() > 0 {
			return ee.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Agent failed: %v\n", err)
		return 1
	}
	return 0
}

func joinIDs(ids []profile.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

// --- profile ---

func runProfileNoun(args []string) int {
	if len(args) < 1 {
		printProfileNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printProfileNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		return runProfileList(args[1:])
	case "show":
		return runProfileShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown profile action: %s\n", args[0])
		return 1
	}
}

func printProfileNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: agentgw profile <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: list [--json], show <executor/variant> [--json]")
}

func loadSnapshot(configPath string) (*profile.Snapshot, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return newRegistry(cfg).Snapshot()
}

func runProfileList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	snap, err := loadSnapshot(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(snap.IDs(), "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Println(renderProfileTable(snap))
	return 0
}

func renderProfileTable(snap *profile.Snapshot) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD"))).
		Headers("PROFILE", "EXECUTOR", "VARIANT", "MODEL").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, id := range snap.IDs() {
		cfg, _ := snap.Lookup(id)
		t.Row(id.String(), string(id.Executor), id.Variant, profileModel(cfg))
	}
	return t.String()
}

// profileModel reads the model field every variant body carries through
// its embedded common config.
func profileModel(cfg profile.AgentConfig) string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ""
	}
	var body struct {
		Model string `yaml:"model"`
	}
	if err := yaml.Unmarshal(data, &body); err != nil || body.Model == "" {
		return "-"
	}
	return body.Model
}

func runProfileShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: agentgw profile show <executor/variant> [--json]")
		return 1
	}
	id, err := profile.ParseID(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid profile: %v\n", err)
		return 1
	}

	snap, err := loadSnapshot(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg, ok := snap.Lookup(id)
	if !ok {
		fmt.Fprintf(os.Stderr, "Profile %s not found. Available: %s\n", id, joinIDs(snap.IDs()))
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(map[string]any{"id": id, "config": cfg}, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	data, _ := yaml.Marshal(cfg)
	fmt.Printf("# %s\n%s", id, data)
	return 0
}

// --- context ---

func runContextNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: agentgw context show [--json]")
		fmt.Printf("Decode the execution context a dispatched agent receives in %s.\n", execctx.EnvVar)
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "show":
		return runContextShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown context action: %s\n", args[0])
		return 1
	}
}

func runContextShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	c, err := execctx.FromEnv()
	if errors.Is(err, execctx.ErrNotSet) {
		fmt.Fprintf(os.Stderr, "%s is not set; not running under agentgw\n", execctx.EnvVar)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(c, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("project_id:            %s\n", c.ProjectID)
	fmt.Printf("task_id:               %s\n", c.TaskID)
	fmt.Printf("task_title:            %s\n", c.TaskTitle)
	fmt.Printf("attempt_id:            %s\n", c.AttemptID)
	fmt.Printf("attempt_branch:        %s\n", c.AttemptBranch)
	fmt.Printf("attempt_target_branch: %s\n", c.AttemptTargetBranch)
	fmt.Printf("execution_process_id:  %s\n", c.ExecutionProcessID)
	fmt.Printf("executor:              %s\n", c.Executor)
	return 0
}
