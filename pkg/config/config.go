// Package config loads, merges, and validates runtime configuration.
//
// Configuration is layered: built-in defaults, then an optional dana.yaml
// merged on top, then environment variable overrides. Validation happens
// once at startup; a bad configuration refuses to boot.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Events  EventsConfig  `yaml:"events"`
	Session SessionConfig `yaml:"session"`
}

// LLMConfig configures the chat-completion endpoint.
type LLMConfig struct {
	APIKey                string `yaml:"api_key"`
	BaseURL               string `yaml:"base_url"`
	Model                 string `yaml:"model"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	MaxRetries            int    `yaml:"max_retries"`
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// AgentConfig configures the loop strategies.
type AgentConfig struct {
	// Mode is the strategy tag driving new sessions unless the start
	// request overrides it.
	Mode AgentMode `yaml:"mode"`

	// MaxIterations is the hard per-session LLM call cap. All phases of
	// all strategies consume the same counter.
	MaxIterations int `yaml:"max_iterations"`

	// MaxIterationsPerTask bounds the hybrid strategy's inner loop.
	MaxIterationsPerTask int `yaml:"max_iterations_per_task"`
}

// SandboxConfig configures subprocess code execution.
type SandboxConfig struct {
	CodeTimeoutSeconds int    `yaml:"code_timeout_seconds"`
	PythonBin          string `yaml:"python_bin"`
}

// CodeTimeout returns the per-execution wall clock as a duration.
func (c *SandboxConfig) CodeTimeout() time.Duration {
	return time.Duration(c.CodeTimeoutSeconds) * time.Second
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// StorageConfig configures dataset uploads and session working directories.
type StorageConfig struct {
	UploadDir        string `yaml:"upload_dir"`
	MaxFileSizeBytes int64  `yaml:"max_file_size_bytes"`
}

// EventsConfig configures the per-subscriber event queue.
type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// SessionConfig configures session retention.
type SessionConfig struct {
	RetentionSeconds int `yaml:"retention_seconds"`
}

// Retention returns the terminal-session TTL as a duration.
func (c *SessionConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if !c.Agent.Mode.IsValid() {
		return NewValidationError("agent", "mode",
			fmt.Errorf("unknown mode %q: must be one of tool_driven, task_driven, hybrid, autonomous, staged", c.Agent.Mode))
	}
	if c.Agent.MaxIterations < 1 {
		return NewValidationError("agent", "max_iterations", fmt.Errorf("must be at least 1, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.MaxIterationsPerTask < 1 {
		return NewValidationError("agent", "max_iterations_per_task", fmt.Errorf("must be at least 1, got %d", c.Agent.MaxIterationsPerTask))
	}
	if c.LLM.Model == "" {
		return NewValidationError("llm", "model", fmt.Errorf("must not be empty"))
	}
	if c.LLM.BaseURL == "" {
		return NewValidationError("llm", "base_url", fmt.Errorf("must not be empty"))
	}
	if c.LLM.RequestTimeoutSeconds < 1 {
		return NewValidationError("llm", "request_timeout_seconds", fmt.Errorf("must be at least 1, got %d", c.LLM.RequestTimeoutSeconds))
	}
	if c.LLM.MaxRetries < 0 {
		return NewValidationError("llm", "max_retries", fmt.Errorf("must not be negative, got %d", c.LLM.MaxRetries))
	}
	if c.Sandbox.CodeTimeoutSeconds < 1 {
		return NewValidationError("sandbox", "code_timeout_seconds", fmt.Errorf("must be at least 1, got %d", c.Sandbox.CodeTimeoutSeconds))
	}
	if c.Sandbox.PythonBin == "" {
		return NewValidationError("sandbox", "python_bin", fmt.Errorf("must not be empty"))
	}
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return NewValidationError("server", "http_port", fmt.Errorf("must be 1-65535, got %d", c.Server.HTTPPort))
	}
	if c.Storage.UploadDir == "" {
		return NewValidationError("storage", "upload_dir", fmt.Errorf("must not be empty"))
	}
	if c.Storage.MaxFileSizeBytes < 1 {
		return NewValidationError("storage", "max_file_size_bytes", fmt.Errorf("must be at least 1, got %d", c.Storage.MaxFileSizeBytes))
	}
	if c.Events.BufferSize < 1 {
		return NewValidationError("events", "buffer_size", fmt.Errorf("must be at least 1, got %d", c.Events.BufferSize))
	}
	if c.Session.RetentionSeconds < 0 {
		return NewValidationError("session", "retention_seconds", fmt.Errorf("must not be negative, got %d", c.Session.RetentionSeconds))
	}
	return nil
}
