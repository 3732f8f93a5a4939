package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional YAML file loaded from the config directory.
const ConfigFileName = "dana.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Load dana.yaml from configDir if present (env vars expanded first)
//  3. Merge file values over defaults
//  4. Apply environment variable overrides
//  5. Validate the result
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		log.Warn("No LLM API key configured; this only works against keyless OpenAI-compatible endpoints",
			"base_url", cfg.LLM.BaseURL)
	}

	log.Info("Configuration initialized successfully",
		"mode", cfg.Agent.Mode,
		"model", cfg.LLM.Model,
		"max_iterations", cfg.Agent.MaxIterations,
		"upload_dir", cfg.Storage.UploadDir)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	// 1. Built-in defaults
	cfg := DefaultConfig()

	// 2. Optional dana.yaml
	fileCfg, found, err := loadYAMLFile(filepath.Join(configDir, ConfigFileName))
	if err != nil {
		return nil, NewLoadError(ConfigFileName, err)
	}

	// 3. Merge file values over defaults (non-zero values override)
	if found {
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", ConfigFileName, err)
		}
	}

	// 4. Environment overrides beat both defaults and file
	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadYAMLFile parses one YAML config file. A missing file is not an
// error; the boolean reports whether anything was loaded.
func loadYAMLFile(path string) (*Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No config file found, using defaults", "path", path)
			return nil, false, nil
		}
		return nil, false, err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, true, nil
}

// applyEnvOverrides applies the documented environment variables on top of
// whatever the defaults and dana.yaml produced.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")

	if v, ok := os.LookupEnv("AGENT_MODE"); ok && v != "" {
		cfg.Agent.Mode = AgentMode(v)
	}
	setInt(&cfg.Agent.MaxIterations, "MAX_ITERATIONS")
	setInt(&cfg.Agent.MaxIterationsPerTask, "MAX_ITERATIONS_PER_TASK")

	setInt(&cfg.Sandbox.CodeTimeoutSeconds, "CODE_TIMEOUT_SECONDS")
	setString(&cfg.Sandbox.PythonBin, "PYTHON_BIN")

	setInt(&cfg.Server.HTTPPort, "HTTP_PORT")

	setString(&cfg.Storage.UploadDir, "UPLOAD_DIR")
	setInt64(&cfg.Storage.MaxFileSizeBytes, "MAX_FILE_SIZE_BYTES")

	setInt(&cfg.Events.BufferSize, "EVENT_BUFFER_SIZE")
	setInt(&cfg.Session.RetentionSeconds, "SESSION_RETENTION_SECONDS")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment override", "key", key, "value", v)
		return
	}
	*dst = n
}

func setInt64(dst *int64, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("Ignoring non-integer environment override", "key", key, "value", v)
		return
	}
	*dst = n
}
