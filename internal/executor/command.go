package executor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/mattjoyce/agentgw/internal/execctx"
)

// Command describes one agent subprocess invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string

	// Env is layered over the parent environment; ExecCtx is exported last so
	// a profile can never shadow it.
	Env     map[string]string
	ExecCtx *execctx.Context

	// WantStdin opens a stdin pipe instead of closing stdin.
	WantStdin bool
}

// Environ resolves the full child environment from base.
func (c Command) Environ(base []string) ([]string, error) {
	env := mergeEnv(base, c.Env)
	if c.ExecCtx == nil {
		return env, nil
	}
	return c.ExecCtx.AppendEnv(env)
}

// Start resolves the binary, validates the working directory and starts the
// subprocess. No process exists when Start returns an error.
func (c Command) Start() (*SpawnedChild, error) {
	binary, err := exec.LookPath(c.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, c.Binary, err)
	}

	info, err := os.Stat(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidWorkDir, c.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidWorkDir, c.Dir)
	}

	env, err := c.Environ(os.Environ())
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = env

	stdout, stderr, stdin, err := openPipes(cmd, c.WantStdin)
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	return &SpawnedChild{
		Cmd:    cmd,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}, nil
}

// openPipes attaches stdout, stderr and optionally stdin to cmd. On error
// every pipe opened so far is closed, since an unstarted cmd never closes
// them.
func openPipes(cmd *exec.Cmd, wantStdin bool) (stdout, stderr io.ReadCloser, stdin io.WriteCloser, err error) {
	var opened []io.Closer
	defer func() {
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
		}
	}()

	stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	opened = append(opened, stdout)

	stderr, err = cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	opened = append(opened, stderr)

	if wantStdin {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create stdin pipe: %w", err)
		}
	}
	return stdout, stderr, stdin, nil
}

// mergeEnv overlays overrides onto base. Keys in overrides replace matching
// entries in base; new keys are appended in sorted order.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		out := make([]string, len(base))
		copy(out, base)
		return out
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// ValidatePrompt rejects prompts a CLI argument cannot carry.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPrompt)
	}
	if strings.ContainsRune(prompt, '\x00') {
		return fmt.Errorf("%w: contains NUL byte", ErrInvalidPrompt)
	}
	return nil
}
