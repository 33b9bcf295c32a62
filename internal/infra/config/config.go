// Package config loads and validates the YAML application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	LLM          LLMConfig          `yaml:"llm"`
	Tools        ToolsConfig        `yaml:"tools"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	DecisionLog  DecisionLogConfig  `yaml:"decision_log"`
}

// OrchestratorConfig holds the engine-level knobs.
type OrchestratorConfig struct {
	// Profile selects an execution profile: "standard", "fast", "quality".
	Profile string `yaml:"profile"`
	// SemanticRouting enables the model-backed routing stage.
	SemanticRouting bool `yaml:"semantic_routing"`
	// SemanticTimeout bounds the semantic routing call (duration string).
	SemanticTimeout time.Duration `yaml:"semantic_timeout"`
	// MaxTurns overrides the agent-loop turn limit; 0 keeps the profile default.
	MaxTurns int `yaml:"max_turns"`
	// ContextBudget is the global context budget in token-equivalent characters.
	ContextBudget int `yaml:"context_budget"`
	// CatalogOverlay optionally extends the built-in agent/topic catalog.
	CatalogOverlay string `yaml:"catalog_overlay"`

	Discussion DiscussionConfig `yaml:"discussion"`
}

// DiscussionConfig holds multi-expert discussion defaults.
type DiscussionConfig struct {
	MaxRounds   int  `yaml:"max_rounds"`
	MaxExperts  int  `yaml:"max_experts"`
	CrossReview bool `yaml:"cross_review"`
	FactCheck   bool `yaml:"fact_check"`
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	Provider string `yaml:"provider"` // currently "bedrock"
	Region   string `yaml:"region"`
	Model    string `yaml:"model"` // default model id

	// RatePerSecond and Burst configure the client-side token bucket.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// ToolsConfig holds built-in tool and MCP bridge settings.
type ToolsConfig struct {
	SearchURL     string      `yaml:"search_url"` // SearxNG-compatible endpoint
	FetchMaxBytes int         `yaml:"fetch_max_bytes"`
	MCPServers    []MCPServer `yaml:"mcp_servers"`

	// Tiers maps a caller tier to the tool names it may invoke.
	// The wildcard "*" grants every tool.
	Tiers map[string][]string `yaml:"tiers"`
}

// MCPServer describes one external MCP tool server.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// DecisionLogConfig holds the routing-decision sink settings.
type DecisionLogConfig struct {
	Path string `yaml:"path"` // SQLite file path; empty disables the sink
}

// Load reads, env-expands, parses, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable
// for tests and embedding callers that skip the YAML file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Orchestrator.Profile == "" {
		c.Orchestrator.Profile = "standard"
	}
	if c.Orchestrator.SemanticTimeout <= 0 {
		c.Orchestrator.SemanticTimeout = 3 * time.Second
	}
	if c.Orchestrator.ContextBudget <= 0 {
		c.Orchestrator.ContextBudget = 12000
	}
	if c.Orchestrator.Discussion.MaxRounds <= 0 {
		c.Orchestrator.Discussion.MaxRounds = 2
	}
	if c.Orchestrator.Discussion.MaxExperts <= 0 {
		c.Orchestrator.Discussion.MaxExperts = 4
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "bedrock"
	}
	if c.LLM.Region == "" {
		c.LLM.Region = "us-east-1"
	}
	if c.LLM.RatePerSecond <= 0 {
		c.LLM.RatePerSecond = 5
	}
	if c.LLM.Burst <= 0 {
		c.LLM.Burst = 10
	}

	if c.Tools.FetchMaxBytes <= 0 {
		c.Tools.FetchMaxBytes = 512 * 1024
	}
	if c.Tools.Tiers == nil {
		c.Tools.Tiers = map[string][]string{
			"free":    {"web_search"},
			"plus":    {"web_search", "web_fetch"},
			"premium": {"*"},
		}
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}

	if c.Tracer.Exporter == "" {
		c.Tracer.Exporter = "noop"
	}
}

func (c *Config) validate() error {
	switch c.Orchestrator.Profile {
	case "standard", "fast", "quality":
	default:
		return fmt.Errorf("config: unknown profile %q", c.Orchestrator.Profile)
	}
	if c.LLM.Provider != "bedrock" {
		return fmt.Errorf("config: unsupported llm provider %q", c.LLM.Provider)
	}
	for _, srv := range c.Tools.MCPServers {
		if srv.Name == "" {
			return fmt.Errorf("config: mcp server missing name")
		}
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("config: mcp server %q missing command", srv.Name)
			}
		case "http":
			if srv.URL == "" {
				return fmt.Errorf("config: mcp server %q missing url", srv.Name)
			}
		default:
			return fmt.Errorf("config: mcp server %q has unsupported transport %q", srv.Name, srv.Transport)
		}
	}
	return nil
}
