package config

// DefaultConfig returns the built-in defaults. A missing dana.yaml and an
// empty environment yield exactly this configuration (minus the API key,
// which has no default).
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:               "https://api.openai.com/v1",
			Model:                 "gpt-4o",
			RequestTimeoutSeconds: 120,
			MaxRetries:            3,
		},
		Agent: AgentConfig{
			Mode:                 AgentModeToolDriven,
			MaxIterations:        25,
			MaxIterationsPerTask: 5,
		},
		Sandbox: SandboxConfig{
			CodeTimeoutSeconds: 30,
			PythonBin:          "python3",
		},
		Server: ServerConfig{
			HTTPPort: 8080,
		},
		Storage: StorageConfig{
			UploadDir:        "./uploads",
			MaxFileSizeBytes: 50 * 1024 * 1024,
		},
		Events: EventsConfig{
			BufferSize: 1024,
		},
		Session: SessionConfig{
			RetentionSeconds: 3600,
		},
	}
}
