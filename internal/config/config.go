// Package config provides the configuration schema and loader for the
// PersonaForge pipeline.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for PersonaForge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel    LogLevel          `yaml:"log_level"`
	Provider    ProviderEntry     `yaml:"provider"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Segmenter   SegmenterConfig   `yaml:"segmenter"`
	Linker      LinkerConfig      `yaml:"linker"`
	PostProcess PostProcessConfig `yaml:"post_process"`
	Events      EventsConfig      `yaml:"events"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ProviderEntry configures the text-generation backend.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "anthropic",
	// "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Usually supplied via environment instead of the file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// MaxRetries bounds the retry decorator around transport failures.
	// Default: 2.
	MaxRetries int `yaml:"max_retries"`
}

// PipelineConfig holds the concurrency and timeout knobs of the orchestrator.
type PipelineConfig struct {
	// MaxConcurrent caps the per-speaker pipelines in flight. Default: 10.
	MaxConcurrent int `yaml:"max_concurrent"`

	// StageTimeoutSeconds bounds one speaker's whole extraction chain.
	// Default: 300.
	StageTimeoutSeconds int `yaml:"stage_timeout_seconds"`

	// CleanScopes enables the service-assisted scope cleanup stage.
	CleanScopes bool `yaml:"clean_scopes"`

	// Temperature is the completion temperature for extraction calls.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps completion length for one extraction call.
	MaxTokens int `yaml:"max_tokens"`
}

// SegmenterConfig tunes transcript segmentation.
type SegmenterConfig struct {
	// MinDialogueLength is the noise floor in characters. Default: 3.
	MinDialogueLength int `yaml:"min_dialogue_length"`
}

// LinkerConfig tunes evidence linking.
type LinkerConfig struct {
	// Threshold is the fuzzy acceptance score (0-100). Default: 75.
	Threshold float64 `yaml:"threshold"`
}

// PostProcessConfig toggles the optional post-processing stages. All stages
// default to off and fail open when enabled.
type PostProcessConfig struct {
	QualityGate      bool `yaml:"quality_gate"`
	KeywordHighlight bool `yaml:"keyword_highlight"`
	ReformatTraits   bool `yaml:"reformat_traits"`
	Dedup            bool `yaml:"dedup"`
}

// EventsConfig configures lifecycle event publishing. An empty NATSURL
// means events are discarded.
type EventsConfig struct {
	// NATSURL is the NATS server to publish pipeline events to.
	NATSURL string `yaml:"nats_url"`

	// SubjectPrefix overrides the default event subject prefix.
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MetricsConfig configures the HTTP endpoint that exposes Prometheus
// metrics and the liveness probe. An empty ListenAddr disables it.
type MetricsConfig struct {
	// ListenAddr is the address to serve /metrics and /healthz on,
	// e.g. ":9090".
	ListenAddr string `yaml:"listen_addr"`
}

// StageTimeout returns the per-speaker chain timeout as a [time.Duration].
func (p PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutSeconds) * time.Second
}

// Default values applied by [ApplyDefaults].
const (
	DefaultMaxConcurrent       = 10
	DefaultStageTimeoutSeconds = 300
	DefaultMaxRetries          = 2
	DefaultTemperature         = 0.2
	DefaultMaxTokens           = 2048
	DefaultLinkerThreshold     = 75.0
	DefaultMinDialogueLength   = 3
)

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Pipeline.MaxConcurrent <= 0 {
		cfg.Pipeline.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Pipeline.StageTimeoutSeconds <= 0 {
		cfg.Pipeline.StageTimeoutSeconds = DefaultStageTimeoutSeconds
	}
	if cfg.Pipeline.Temperature == 0 {
		cfg.Pipeline.Temperature = DefaultTemperature
	}
	if cfg.Pipeline.MaxTokens <= 0 {
		cfg.Pipeline.MaxTokens = DefaultMaxTokens
	}
	if cfg.Provider.MaxRetries <= 0 {
		cfg.Provider.MaxRetries = DefaultMaxRetries
	}
	if cfg.Linker.Threshold <= 0 {
		cfg.Linker.Threshold = DefaultLinkerThreshold
	}
	if cfg.Segmenter.MinDialogueLength <= 0 {
		cfg.Segmenter.MinDialogueLength = DefaultMinDialogueLength
	}
}
