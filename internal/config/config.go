// Package config loads the service configuration from a YAML file, applies
// defaults and environment overrides, and validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns the host:port the server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig configures the OpenAI-compatible chat-completions client.
// APIKeyEnv names the environment variable holding the key.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// EmbeddingConfig configures the OpenAI-compatible embeddings client. The
// embedder is optional: when the client cannot be constructed the service
// runs with unranked retrieval instead of failing.
type EmbeddingConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// PipelineConfig holds the per-stage deadlines and streaming knobs.
type PipelineConfig struct {
	ParseTimeoutSecs    int `yaml:"parse_timeout_secs"`
	AnalyzeTimeoutSecs  int `yaml:"analyze_timeout_secs"`
	RetrieveTimeoutSecs int `yaml:"retrieve_timeout_secs"`
	FilterTimeoutSecs   int `yaml:"filter_timeout_secs"`
	GenerateTimeoutSecs int `yaml:"generate_timeout_secs"`
	HeartbeatSecs       int `yaml:"heartbeat_secs"`
	RequestTimeoutSecs  int `yaml:"request_timeout_secs"`
	StreamChunkRunes    int `yaml:"stream_chunk_runes"`
}

// RetrievalConfig holds the chunking and ranking parameters.
type RetrievalConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

// LoggingConfig selects the log destination and level. An empty File means
// stdout.
type LoggingConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// defaultPath is tried by LoadDefault before falling back to pure defaults.
const defaultPath = "paperqa.yaml"

// Load reads the config at path. The file must exist; an explicitly
// configured path that is missing is a startup error, not a silent default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads ./paperqa.yaml when present, otherwise returns the
// built-in defaults so the service can run on environment variables alone.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(defaultPath); err == nil {
		return Load(defaultPath)
	}
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}

	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}

	if cfg.Pipeline.ParseTimeoutSecs == 0 {
		cfg.Pipeline.ParseTimeoutSecs = 240
	}
	if cfg.Pipeline.AnalyzeTimeoutSecs == 0 {
		cfg.Pipeline.AnalyzeTimeoutSecs = 60
	}
	if cfg.Pipeline.RetrieveTimeoutSecs == 0 {
		cfg.Pipeline.RetrieveTimeoutSecs = 90
	}
	if cfg.Pipeline.FilterTimeoutSecs == 0 {
		cfg.Pipeline.FilterTimeoutSecs = 120
	}
	if cfg.Pipeline.GenerateTimeoutSecs == 0 {
		cfg.Pipeline.GenerateTimeoutSecs = 300
	}
	if cfg.Pipeline.HeartbeatSecs == 0 {
		cfg.Pipeline.HeartbeatSecs = 20
	}
	if cfg.Pipeline.RequestTimeoutSecs == 0 {
		cfg.Pipeline.RequestTimeoutSecs = 900
	}
	if cfg.Pipeline.StreamChunkRunes == 0 {
		cfg.Pipeline.StreamChunkRunes = 1
	}

	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 1000
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 200
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides keeps the original deployment contract: HOST_PORT
// overrides the configured listen port.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Retrieval.ChunkOverlap < 0 {
		return fmt.Errorf("config: chunk_overlap must be >= 0, got %d", c.Retrieval.ChunkOverlap)
	}
	if c.Retrieval.ChunkSize <= c.Retrieval.ChunkOverlap {
		return fmt.Errorf("config: chunk_size (%d) must exceed chunk_overlap (%d)",
			c.Retrieval.ChunkSize, c.Retrieval.ChunkOverlap)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("config: top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Pipeline.StreamChunkRunes < 1 {
		return fmt.Errorf("config: stream_chunk_runes must be >= 1, got %d", c.Pipeline.StreamChunkRunes)
	}
	for name, secs := range map[string]int{
		"parse_timeout_secs":    c.Pipeline.ParseTimeoutSecs,
		"analyze_timeout_secs":  c.Pipeline.AnalyzeTimeoutSecs,
		"retrieve_timeout_secs": c.Pipeline.RetrieveTimeoutSecs,
		"filter_timeout_secs":   c.Pipeline.FilterTimeoutSecs,
		"generate_timeout_secs": c.Pipeline.GenerateTimeoutSecs,
		"heartbeat_secs":        c.Pipeline.HeartbeatSecs,
		"request_timeout_secs":  c.Pipeline.RequestTimeoutSecs,
	} {
		if secs < 1 {
			return fmt.Errorf("config: %s must be >= 1, got %d", name, secs)
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	return nil
}
