// Package profile maps executor profile identifiers to executor
// configurations.
//
// Profiles come from built-in defaults merged with an optional user profiles
// file. The merged result is an immutable Snapshot, built at most once per
// Registry and read without locking afterwards.
package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/agentgw/internal/executor"
	"github.com/mattjoyce/agentgw/internal/executor/claude"
	"github.com/mattjoyce/agentgw/internal/executor/codex"
	"github.com/mattjoyce/agentgw/internal/executor/opencode"
)

//go:embed default_profiles.yaml
var defaultProfiles []byte

// AgentConfig is one profile variant body. Each executor kind supplies its
// own implementation.
type AgentConfig interface {
	Validate() error
	NewExecutor() executor.Executor
}

// decoders selects the variant body type by executor kind.
var decoders = map[BaseAgent]func(*yaml.Node) (AgentConfig, error){
	AgentClaude:   decodeVariant[claude.Config],
	AgentCodex:    decodeVariant[codex.Config],
	AgentOpencode: decodeVariant[opencode.Config],
}

func decodeVariant[T AgentConfig](n *yaml.Node) (AgentConfig, error) {
	var cfg T
	if err := n.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KnownAgents returns the supported executor kinds, sorted.
func KnownAgents() []BaseAgent {
	out := make([]BaseAgent, 0, len(decoders))
	for k := range decoders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// File is the on-disk profiles document.
type File struct {
	Executors map[BaseAgent]map[string]yaml.Node `yaml:"executors"`
}

// ParseFile decodes a profiles document without validating variant bodies.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles YAML: %w", err)
	}
	return &f, nil
}

// Merge overlays src onto f. Variants in src replace variants of the same name.
func (f *File) Merge(src *File) {
	if src == nil {
		return
	}
	if f.Executors == nil {
		f.Executors = make(map[BaseAgent]map[string]yaml.Node)
	}
	for kind, variants := range src.Executors {
		if f.Executors[kind] == nil {
			f.Executors[kind] = make(map[string]yaml.Node, len(variants))
		}
		for name, node := range variants {
			f.Executors[kind][name] = node
		}
	}
}

// Build validates every variant and produces an immutable Snapshot.
func (f *File) Build() (*Snapshot, error) {
	configs := make(map[ID]AgentConfig)
	for kind, variants := range f.Executors {
		decode, ok := decoders[kind]
		if !ok {
			return nil, fmt.Errorf("unknown executor kind %q (known: %v)", kind, KnownAgents())
		}
		for name, node := range variants {
			if strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("executor %q: variant name is empty", kind)
			}
			if strings.Contains(name, "/") {
				return nil, fmt.Errorf("executor %q: variant name %q must not contain '/'", kind, name)
			}
			cfg, err := decode(&node)
			if err != nil {
				return nil, fmt.Errorf("profile %s/%s: %w", kind, name, err)
			}
			configs[NewID(kind, name)] = cfg
		}
	}
	return NewSnapshot(configs), nil
}

// Defaults returns the built-in profiles document.
func Defaults() (*File, error) {
	return ParseFile(defaultProfiles)
}

// LoadOptions controls FileLoader.
type LoadOptions struct {
	// Path is the user profiles file. Empty or missing means defaults only.
	Path string

	// Verify, when set, is called on Path before it is read.
	Verify func(path string) error
}

// FileLoader returns a Loader that merges the built-in defaults with the
// user profiles file.
func FileLoader(opts LoadOptions) Loader {
	return func() (*Snapshot, error) {
		f, err := Defaults()
		if err != nil {
			return nil, fmt.Errorf("built-in profiles: %w", err)
		}

		if opts.Path != "" {
			user, err := readUserFile(opts)
			if err != nil {
				return nil, err
			}
			f.Merge(user)
		}
		return f.Build()
	}
}

func readUserFile(opts LoadOptions) (*File, error) {
	data, err := os.ReadFile(opts.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	if opts.Verify != nil {
		if err := opts.Verify(opts.Path); err != nil {
			return nil, err
		}
	}
	user, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Path, err)
	}
	return user, nil
}

// LoadFile builds a Snapshot from defaults plus path, bypassing any Registry.
func LoadFile(path string) (*Snapshot, error) {
	return FileLoader(LoadOptions{Path: path})()
}
