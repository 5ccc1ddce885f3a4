package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Providers    []ProviderConfig   `json:"providers"`
	Gateway      GatewayConfig      `json:"gateway"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Sandbox      SandboxConfig      `json:"sandbox"`
	Store        StoreConfig        `json:"store"`
	Agents       []AgentConfig      `json:"agents"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type GatewayConfig struct {
	Retries    int     `json:"retries"`
	RetryDelay Seconds `json:"retry_delay_seconds"`
}

type OrchestratorConfig struct {
	PoolSize    int     `json:"pool_size"`
	MaxParallel int     `json:"max_parallel"`
	TaskTimeout Seconds `json:"task_timeout_seconds"`
}

type SandboxConfig struct {
	WorkDir        string  `json:"work_dir"`
	CommandTimeout Seconds `json:"command_timeout_seconds"`
	MaxOutputChars int     `json:"max_output_chars"`
	MaxSteps       int     `json:"max_steps"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

type AgentConfig struct {
	Name          string `json:"name"`
	AgentType     string `json:"agent_type"`
	SystemPrompt  string `json:"system_prompt"`
	Tools         bool   `json:"tools"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// Seconds unmarshals a JSON number of seconds into a duration.
type Seconds time.Duration

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return err
	}
	*s = Seconds(time.Duration(secs * float64(time.Second)))
	return nil
}

// Duration returns the value as a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Orchestrator.PoolSize == 0 {
		c.Orchestrator.PoolSize = 10
	}
	if c.Sandbox.WorkDir == "" {
		c.Sandbox.WorkDir = "."
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/astro.db"
	}
	if len(c.Agents) == 0 {
		c.Agents = []AgentConfig{
			{Name: "Worker", AgentType: "general", Tools: true},
		}
	}
}
