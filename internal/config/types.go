package config

// Config represents the complete agentgw configuration.
type Config struct {
	Include []string `yaml:"include,omitempty"`

	Service   ServiceConfig   `yaml:"service"`
	State     StateConfig     `yaml:"state"`
	API       APIConfig       `yaml:"api,omitempty"`
	Approvals ApprovalsConfig `yaml:"approvals,omitempty"`

	// ProfilesFile holds user executor profiles merged over the built-ins.
	ProfilesFile string `yaml:"profiles_file"`

	// WorkspaceDir is the default working directory for dispatched agents.
	WorkspaceDir string `yaml:"workspace_dir"`

	// SourceFiles lists every file the config was assembled from, root first.
	SourceFiles []string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the bearer token. Authentication is disabled when both
	// APIKey and APIKeyHash are empty.
	APIKey string `yaml:"api_key"`

	// APIKeyHash is a bcrypt hash of the bearer token, accepted in place
	// of a plaintext api_key.
	APIKeyHash string `yaml:"api_key_hash,omitempty"`
}

// Approval policies for dispatches submitted through the gateway.
const (
	ApprovalPolicyAuto       = "auto"
	ApprovalPolicyAllowTools = "allow_tools"
	ApprovalPolicyExpression = "expression"
)

// ApprovalsConfig selects the approval service attached to dispatches.
type ApprovalsConfig struct {
	Policy     string   `yaml:"policy"`
	AllowTools []string `yaml:"allow_tools,omitempty"`

	// Expression is evaluated per tool call when Policy is expression,
	// e.g. tool_name == 'Read' || input_command == 'ls'.
	Expression string `yaml:"expression,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "agentgw",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/agentgw.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Approvals: ApprovalsConfig{
			Policy: ApprovalPolicyAuto,
		},
		ProfilesFile: "./profiles.yaml",
		WorkspaceDir: ".",
	}
}
