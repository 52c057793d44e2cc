package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/agentgw/internal/api"
	"github.com/mattjoyce/agentgw/internal/config"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	case "get":
		return runConfigGet(actionArgs)
	case "hash-key":
		return runConfigHashKey(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: agentgw config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show, get, hash-key")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: agentgw config check [--config PATH] [--json]")
	fmt.Println("Validate configuration syntax, policy, integrity, and executor profiles.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: agentgw config lock --config PATH [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize the current configuration by regenerating .checksums for every")
	fmt.Println("config source file and the profiles file.")
}

type checkResult struct {
	Valid       bool     `json:"valid"`
	SourceFiles []string `json:"source_files,omitempty"`
	Profiles    int      `json:"profiles"`
	Errors      []string `json:"errors,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	var result checkResult
	cfg, err := loadConfig(*configPath)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.SourceFiles = cfg.SourceFiles
		snap, err := newRegistry(cfg).Snapshot()
		if err != nil {
			result.Errors = append(result.Errors, "profiles: "+err.Error())
		} else {
			result.Profiles = snap.Len()
		}
	}
	result.Valid = len(result.Errors) == 0

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else if result.Valid {
		fmt.Printf("Configuration valid (%d profiles)\n", result.Profiles)
	} else {
		fmt.Println("Configuration invalid:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&verbose, "verbose", false, "Show per-file hashes")
	fs.BoolVar(&verbose, "v", false, "Show per-file hashes (shorthand)")
	fs.BoolVar(&dryRun, "dry-run", false, "Preview without writing .checksums")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if configPath == "" {
		configPath = os.Getenv(configEnvVar)
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: agentgw config lock --config PATH [-v] [--dry-run]")
		return 1
	}

	cfg, err := config.LoadUnverified(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	paths := append([]string(nil), cfg.SourceFiles...)
	if cfg.ProfilesFile != "" {
		if _, err := os.Stat(cfg.ProfilesFile); err == nil {
			paths = append(paths, cfg.ProfilesFile)
		}
	}

	reports, err := config.LockFiles(paths, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}

	for _, r := range reports {
		verb := "Wrote"
		if dryRun {
			verb = "Would write"
		}
		fmt.Printf("%s %s (%d files)\n", verb, r.ChecksumPath, len(r.Files))
		if verbose {
			for _, f := range r.Files {
				if !f.Exists {
					fmt.Printf("  %s  (missing)\n", f.Filename)
					continue
				}
				fmt.Printf("  %s  %s\n", f.Filename, f.Hash)
			}
		}
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	var result any = cfg
	if fs.NArg() > 0 {
		res, err := cfg.GetPath(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		result = res
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(result)
		fmt.Print(string(data))
	}
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: agentgw config get <path> [--json]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("%v\n", val)
	}
	return 0
}

// runConfigHashKey reads a bearer token from the argument or the first line
// of stdin and prints its bcrypt hash.
func runConfigHashKey(args []string) int {
	var key string
	switch len(args) {
	case 0:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "Usage: agentgw config hash-key [KEY]  (or pipe the key on stdin)")
			return 1
		}
		key = strings.TrimSpace(line)
	case 1:
		key = args[0]
	default:
		fmt.Fprintln(os.Stderr, "Usage: agentgw config hash-key [KEY]")
		return 1
	}

	hash, err := api.HashAPIKey(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}
