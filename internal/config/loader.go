package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a file or a directory holding config.yaml.
// Included files are merged in order, relative paths are resolved against
// the directory of the root file, and every source file is verified against
// its directory's .checksums manifest when one exists.
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// LoadUnverified is Load without the checksum verification. It is what
// config lock uses to re-authorize changed files.
func LoadUnverified(configPath string) (*Config, error) {
	return load(configPath, false)
}

func load(configPath string, verify bool) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourceFiles = []string{absPath}

	visited := map[string]bool{absPath: true}
	if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
		return nil, err
	}

	if verify {
		for _, path := range cfg.SourceFiles {
			if err := VerifyIntegrity(path); err != nil {
				return nil, err
			}
		}
	}

	applyConfigDefaults(cfg)
	resolvePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefaults loads configPath, or returns Defaults when configPath is
// empty.
func LoadOrDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		cfg := Defaults()
		return cfg, validate(cfg)
	}
	return Load(configPath)
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// loadIncludes merges included files into cfg depth-first. visited guards
// against cycles.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		includePath = interpolateEnv(includePath)
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(baseDir, includePath)
		}
		absPath, err := filepath.Abs(includePath)
		if err != nil {
			return fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
		}
		if visited[absPath] {
			return fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}
		if _, err := os.Stat(absPath); err != nil {
			return fmt.Errorf("include[%d]: file not found: %s\n"+
				"Referenced from: %s", i, absPath, baseDir)
		}
		visited[absPath] = true

		included, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, absPath, err)
		}
		mergeConfig(cfg, included)
		cfg.SourceFiles = append(cfg.SourceFiles, absPath)

		if err := loadIncludes(cfg, included.Include, filepath.Dir(absPath), visited); err != nil {
			return err
		}
	}
	return nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// mergeConfig overlays the non-zero fields of src onto dst.
func mergeConfig(dst, src *Config) {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	if src.Service.LogLevel != "" {
		dst.Service.LogLevel = src.Service.LogLevel
	}
	if src.Service.LogFormat != "" {
		dst.Service.LogFormat = src.Service.LogFormat
	}
	if src.State.Path != "" {
		dst.State.Path = src.State.Path
	}
	if src.API.Enabled {
		dst.API.Enabled = true
	}
	if src.API.Listen != "" {
		dst.API.Listen = src.API.Listen
	}
	if src.API.Auth.APIKey != "" {
		dst.API.Auth.APIKey = src.API.Auth.APIKey
	}
	if src.API.Auth.APIKeyHash != "" {
		dst.API.Auth.APIKeyHash = src.API.Auth.APIKeyHash
	}
	if src.Approvals.Policy != "" {
		dst.Approvals.Policy = src.Approvals.Policy
	}
	if len(src.Approvals.AllowTools) > 0 {
		dst.Approvals.AllowTools = append(dst.Approvals.AllowTools, src.Approvals.AllowTools...)
	}
	if src.Approvals.Expression != "" {
		dst.Approvals.Expression = src.Approvals.Expression
	}
	if src.ProfilesFile != "" {
		dst.ProfilesFile = src.ProfilesFile
	}
	if src.WorkspaceDir != "" {
		dst.WorkspaceDir = src.WorkspaceDir
	}
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()
	sources := cfg.SourceFiles
	include := cfg.Include
	mergeConfig(defaults, cfg)
	*cfg = *defaults
	cfg.SourceFiles = sources
	cfg.Include = include
}

// resolvePaths makes relative file settings relative to baseDir.
func resolvePaths(cfg *Config, baseDir string) {
	for _, p := range []*string{&cfg.State.Path, &cfg.ProfilesFile, &cfg.WorkspaceDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	var errs []error

	switch strings.ToLower(cfg.Service.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("service.log_level: invalid level %q", cfg.Service.LogLevel))
	}
	switch cfg.Service.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("service.log_format: must be json or text, got %q", cfg.Service.LogFormat))
	}

	if cfg.State.Path == "" {
		errs = append(errs, errors.New("state.path: required"))
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			errs = append(errs, fmt.Errorf("api.listen: %w", err))
		}
		if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
			errs = append(errs, fmt.Errorf("api.auth.api_key: unresolved environment reference %s", cfg.API.Auth.APIKey))
		}
	}

	switch cfg.Approvals.Policy {
	case ApprovalPolicyAuto:
	case ApprovalPolicyAllowTools:
		if len(cfg.Approvals.AllowTools) == 0 {
			errs = append(errs, errors.New("approvals.allow_tools: required when policy is allow_tools"))
		}
	case ApprovalPolicyExpression:
		if strings.TrimSpace(cfg.Approvals.Expression) == "" {
			errs = append(errs, errors.New("approvals.expression: required when policy is expression"))
		}
	default:
		errs = append(errs, fmt.Errorf("approvals.policy: unknown policy %q", cfg.Approvals.Policy))
	}

	return errors.Join(errs...)
}
