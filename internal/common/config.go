package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Extractor   ExtractorConfig `toml:"extractor"`
	LLM         LLMConfig       `toml:"llm"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Storage     StorageConfig   `toml:"storage"`
	Retention   RetentionConfig `toml:"retention"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// ExtractorConfig controls the browser-based page fetch and content extraction
type ExtractorConfig struct {
	UserAgent          string        `toml:"user_agent"`
	Headless           bool          `toml:"headless"`
	NoSandbox          bool          `toml:"no_sandbox"`
	JavaScriptWaitTime time.Duration `toml:"javascript_wait_time"` // Time to wait for JS rendering
	RequestTimeout     time.Duration `toml:"request_timeout"`      // Max time for a single page fetch
}

// LLMConfig selects the default provider when a model string carries no prefix
type LLMConfig struct {
	DefaultProvider string        `toml:"default_provider" validate:"oneof=gemini claude"`
	Timeout         time.Duration `toml:"timeout"` // Per-call timeout for generate/embed requests
}

type GeminiConfig struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	EmbedModel     string `toml:"embed_model"`
	EmbedDimension int    `toml:"embed_dimension" validate:"gt=0"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens" validate:"gt=0"`
	Temperature float32 `toml:"temperature"`
}

// PipelineConfig holds defaults for the URL-to-knowledge-base pipeline.
// Chunk size and overlap are counted in characters (runes).
type PipelineConfig struct {
	ChunkSize                   int     `toml:"chunk_size" validate:"gt=0"`
	ChunkOverlap                int     `toml:"chunk_overlap" validate:"gte=0"`
	SummarizationChunkThreshold int     `toml:"summarization_chunk_threshold" validate:"gte=0"`
	RepairMaxRPM                int     `toml:"repair_max_rpm"`
	SummarizeMaxRPM             int     `toml:"summarize_max_rpm"`
	RepairConcurrency           int     `toml:"repair_concurrency" validate:"gt=0"`
	EmbedConcurrency            int     `toml:"embed_concurrency" validate:"gt=0"`
	SimilarityThreshold         float64 `toml:"similarity_threshold" validate:"gt=0,lte=1"`
	MaxEmbedFailureFraction     float64 `toml:"max_embed_failure_fraction" validate:"gte=0,lte=1"`
	SafeContextSize             int     `toml:"safe_context_size" validate:"gt=0"`
	StrictRepair                bool    `toml:"strict_repair"` // Fail the task when repair was requested and every chunk failed
	DebugMode                   bool    `toml:"debug_mode"`
	DebugDir                    string  `toml:"debug_dir"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration for the artifact store
type BadgerConfig struct {
	Path string `toml:"path"`
}

// RetentionConfig controls pruning of terminal tasks from the in-memory registry
type RetentionConfig struct {
	Schedule string        `toml:"schedule"` // Cron spec, e.g. "@every 10m"
	MaxAge   time.Duration `toml:"max_age"`  // Terminal tasks older than this are pruned
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Extractor: ExtractorConfig{
			UserAgent:          "Colligo/1.0",
			Headless:           true,
			NoSandbox:          false,
			JavaScriptWaitTime: 3 * time.Second,
			RequestTimeout:     60 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			Timeout:         120 * time.Second,
		},
		Gemini: GeminiConfig{
			Model:          "gemini-2.0-flash",
			EmbedModel:     "gemini-embedding-001",
			EmbedDimension: 768,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Pipeline: PipelineConfig{
			ChunkSize:                   300,
			ChunkOverlap:                50,
			SummarizationChunkThreshold: 10,
			RepairMaxRPM:                60,
			SummarizeMaxRPM:             20,
			RepairConcurrency:           4,
			EmbedConcurrency:            4,
			SimilarityThreshold:         0.82,
			MaxEmbedFailureFraction:     0.5,
			SafeContextSize:             20000,
			StrictRepair:                false,
			DebugMode:                   false,
			DebugDir:                    "./debug",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/colligo",
			},
		},
		Retention: RetentionConfig{
			Schedule: "@every 10m",
			MaxAge:   24 * time.Hour,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later config files override earlier ones. Missing files are an error; an empty
// path list returns defaults with env overrides applied.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// API keys are the common case so they never have to live in a config file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("COLLIGO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("COLLIGO_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("COLLIGO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("invalid configuration: chunk_overlap (%d) must be less than chunk_size (%d)",
			c.Pipeline.ChunkOverlap, c.Pipeline.ChunkSize)
	}
	return nil
}
