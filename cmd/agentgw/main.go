package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/agentgw/internal/actions"
	"github.com/mattjoyce/agentgw/internal/api"
	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/config"
	"github.com/mattjoyce/agentgw/internal/dispatch"
	"github.com/mattjoyce/agentgw/internal/events"
	"github.com/mattjoyce/agentgw/internal/lock"
	"github.com/mattjoyce/agentgw/internal/log"
	"github.com/mattjoyce/agentgw/internal/profile"
	"github.com/mattjoyce/agentgw/internal/storage"
	"github.com/mattjoyce/agentgw/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configEnvVar names the config path used when --config is not given.
const configEnvVar = "AGENTGW_CONFIG"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "system":
		return runSystemNoun(args)
	case "dispatch":
		return runDispatchNoun(args)
	case "profile":
		return runProfileNoun(args)
	case "context":
		return runContextNoun(args)
	case "config":
		return runConfigNoun(args)

	case "start":
		return runStart(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: agentgw version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("agentgw %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`agentgw - coding agent dispatch gateway

Usage:
  agentgw <noun> <action> [flags]

System Commands:
  system start        Start the HTTP gateway in the foreground
  system watch        Live TUI of dispatched agents

Dispatch Commands:
  dispatch run        Spawn an agent for a prompt and stream its output

Profile Commands:
  profile list        Show resolved executor profiles
  profile show <id>   Show one profile's configuration

Context Commands:
  context show        Decode the execution context from VK_MCP_CONTEXT_JSON

Config Commands:
  config check        Validate syntax, policy, and integrity
  config lock         Write .checksums for the config and profiles files
  config show         Show the resolved configuration
  config get <path>   Read a single configuration value
  config hash-key     Print a bcrypt api_key_hash for a bearer token

General:
  version             Show version information
  help                Show this help message

Use 'agentgw <noun> help' for action flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// loadConfig loads path, falling back to $AGENTGW_CONFIG and then to the
// built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(configEnvVar)
	}
	return config.LoadOrDefaults(path)
}

func newRegistry(cfg *config.Config) *profile.Registry {
	return profile.NewRegistry(profile.FileLoader(profile.LoadOptions{
		Path:   cfg.ProfilesFile,
		Verify: config.VerifyIntegrity,
	}))
}

// newApprovalService builds the approval capability named by the config's
// approval policy.
func newApprovalService(cfg *config.Config, logger *slog.Logger) (*approvals.Tracker, error) {
	switch cfg.Approvals.Policy {
	case config.ApprovalPolicyAllowTools:
		return approvals.NewTracker(approvals.AllowTools(cfg.Approvals.AllowTools...), logger), nil
	case config.ApprovalPolicyExpression:
		decide, err := approvals.Expression(cfg.Approvals.Expression)
		if err != nil {
			return nil, err
		}
		return approvals.NewTracker(decide, logger), nil
	default:
		return approvals.NewTracker(nil, logger), nil
	}
}

// --- system ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: agentgw system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printSystemStartHelp() {
	fmt.Println("Usage: agentgw system start [--config PATH] [--listen ADDR]")
	fmt.Println("Start the HTTP gateway in the foreground. --listen enables the API")
	fmt.Println("even when the config leaves it disabled.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: agentgw system watch [--api-url URL] [--api-key KEY]")
	fmt.Println()
	fmt.Println("Live view of gateway health, dispatched agents, and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Gateway API URL (default: http://127.0.0.1:8080)")
	fmt.Println("  --api-key KEY    API bearer token (or AGENTGW_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Select process")
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	listen := fs.String("listen", "", "Override api.listen and enable the API")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.API.Enabled = true
		cfg.API.Listen = *listen
	}
	if !cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "API is disabled: set api.enabled in the config or pass --listen")
		return 1
	}

	log.SetupWriter(os.Stdout, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("agentgw starting", "version", version, "config", cfg.SourceFiles)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	registry := newRegistry(cfg)
	snap, err := registry.Snapshot()
	if err != nil {
		logger.Error("failed to load executor profiles", "profiles_file", cfg.ProfilesFile, "error", err)
		return 1
	}
	logger.Info("executor profiles loaded", "count", snap.Len())
	for _, id := range snap.IDs() {
		log.WithProfile(id.String()).Debug("executor profile available")
	}

	hub := events.NewHub(256)
	tracker, err := newApprovalService(cfg, log.WithComponent("approvals"))
	if err != nil {
		logger.Error("invalid approval policy", "error", err)
		return 1
	}
	srv := api.New(
		api.Config{
			Listen:       cfg.API.Listen,
			APIKey:       cfg.API.Auth.APIKey,
			APIKeyHash:   cfg.API.Auth.APIKeyHash,
			WorkspaceDir: cfg.WorkspaceDir,
		},
		dispatch.New(registry, dispatch.WithEvents(hub)),
		registry,
		actions.NewStore(db),
		tracker,
		hub,
		log.WithComponent("api"),
	)

	logger.Info("agentgw running (press Ctrl+C to stop)", "listen", cfg.API.Listen)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api failed", "error", err)
		return 1
	}

	stats := tracker.Stats()
	logger.Info("agentgw stopped",
		"approval_requests", stats.Requests,
		"approved", stats.Approved,
		"denied", stats.Denied,
	)
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8080", "Gateway API URL")
	apiKey := fs.String("api-key", os.Getenv("AGENTGW_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(strings.TrimRight(*apiURL, "/"), *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
