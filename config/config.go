// Package config loads engine configuration from YAML files and environment
// variables using viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/martinemde/conductor/logging"
)

// MCPServer describes one external MCP server the engine may delegate
// tool calls to.
type MCPServer struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// Config is the full engine configuration.
type Config struct {
	// Model selection for new sessions.
	Model    string `mapstructure:"model"`
	Provider string `mapstructure:"provider"`

	// Working directory for new sessions. Defaults to the process cwd.
	Cwd string `mapstructure:"cwd"`

	// Policies applied to new turn contexts.
	ApprovalPolicy string `mapstructure:"approval_policy"` // auto, manual, never
	SandboxPolicy  string `mapstructure:"sandbox_policy"`  // read-only, workspace-write, danger-full-access

	// Base instructions prepended to every turn's conversation.
	SystemPrompt string `mapstructure:"system_prompt"`

	// Turn limits.
	MaxToolRoundsPerTurn    int `mapstructure:"max_tool_rounds_per_turn"`
	DefaultCommandTimeoutMs int `mapstructure:"default_command_timeout_ms"`
	MaxCommandTimeoutMs     int `mapstructure:"max_command_timeout_ms"`

	// Tool output truncation overrides, keyed by tool name.
	ToolOutputLimits map[string]int `mapstructure:"tool_output_limits"`

	// External MCP servers, keyed by server name.
	MCPServers map[string]MCPServer `mapstructure:"mcp_servers"`

	Logging logging.Config `mapstructure:"logging"`
}

// Load reads configuration from the given file path (optional) plus
// CONDUCTOR_* environment variables, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CONDUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.Cwd = cwd
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "openai")
	v.SetDefault("approval_policy", "auto")
	v.SetDefault("sandbox_policy", "workspace-write")
	v.SetDefault("max_tool_rounds_per_turn", 200)
	v.SetDefault("default_command_timeout_ms", 10000)
	v.SetDefault("max_command_timeout_ms", 600000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output_path", "stderr")
}
