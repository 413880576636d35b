package model

import "time"

// Config is the static engine configuration. Everything request-scoped
// (criteria, facts, verdicts) lives outside of it.
type Config struct {
	Oracle      OracleConfig      `yaml:"oracle" mapstructure:"oracle"`
	Structurer  StructurerConfig  `yaml:"structurer" mapstructure:"structurer"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// OracleConfig configures the reasoning oracle transport
type OracleConfig struct {
	// Provider name: "gemini", "openai", "anthropic", "ollama"
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey is resolved from the environment, never written to config files
	APIKey string `yaml:"-" mapstructure:"-"`

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout for a single oracle call, seconds
	Timeout int `yaml:"timeout" mapstructure:"timeout"`

	// MaxTokens for response generation
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature for generation; kept low for adjudication
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`

	// MaxRetries is the bounded retry count for transport failures
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// RetryBaseDelay is the initial backoff delay; doubles per attempt
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
}

// StructurerConfig configures criteria extraction
type StructurerConfig struct {
	// MinStatementTokens drops shorter statements as noise
	MinStatementTokens int `yaml:"min_statement_tokens" mapstructure:"min_statement_tokens"`

	// AssumeInclusion enables the optional full-document fallback: when no
	// section headers are found, sentence units of the whole document are
	// treated as inclusion criteria. Off by default.
	AssumeInclusion bool `yaml:"assume_inclusion" mapstructure:"assume_inclusion"`
}

// ConcurrencyConfig bounds the parallel adjudication phase
type ConcurrencyConfig struct {
	// AdjudicationWorkers caps concurrent oracle calls per evaluation
	AdjudicationWorkers int `yaml:"adjudication_workers" mapstructure:"adjudication_workers"`

	// RequestsPerSecond and Burst feed the per-provider rate limiter
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// CacheConfig configures the verdict cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	JSON  bool `yaml:"json" mapstructure:"json"`
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider:       "gemini",
			Model:          "", // Provider default
			Timeout:        60,
			MaxTokens:      1024,
			Temperature:    0.1,
			MaxRetries:     3,
			RetryBaseDelay: 500 * time.Millisecond,
		},
		Structurer: StructurerConfig{
			MinStatementTokens: 3,
		},
		Concurrency: ConcurrencyConfig{
			AdjudicationWorkers: 4,
			RequestsPerSecond:   2,
			Burst:               4,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "", // Resolved to ~/.eligo/cache by the CLI
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
