// Package config loads the process-wide RuntimeConfig (spec.md §6) plus
// the ambient logging/metrics/tracing knobs SPEC_FULL.md adds, from a
// YAML file. Grounded on the teacher's internal/config.Load: read file,
// expand env vars, decode with KnownFields(true), apply defaults,
// validate, return.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agentruntime/core/internal/observability"
	"github.com/agentruntime/core/internal/runtime"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of a RuntimeConfig YAML document.
type FileConfig struct {
	APIKeys      map[string]string `yaml:"api_keys"`
	DefaultModel ModelConfig       `yaml:"default_model"`
	Bedrock      BedrockConfig     `yaml:"bedrock"`

	HeartbeatIntervalMs   int64 `yaml:"heartbeat_interval_ms"`
	StaleSessionTimeoutMs int64 `yaml:"stale_session_timeout_ms"`
	KeepaliveMs           int64 `yaml:"keepalive_ms"`

	Retry RetryConfig `yaml:"retry"`

	// ResumeOnStartup defaults to true (spec.md §6); a *bool, following
	// the teacher's CommandsConfig.Enabled idiom, so an explicit `false`
	// in the YAML document is distinguishable from the key being absent.
	ResumeOnStartup *bool `yaml:"resume_on_startup"`
	GatewayEnabled  bool  `yaml:"gateway_enabled"`

	MaxSubAgentDepth   int `yaml:"max_sub_agent_depth"`
	MaxSubAgentFanout  int `yaml:"max_sub_agent_fanout"`
	SteeringBufferSize int `yaml:"steering_buffer_size"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig is spec.md §6's `defaultModel: {provider, modelId}`.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	ModelID  string `yaml:"model_id"`
}

// BedrockConfig sources the AWS region/credential overrides for the
// bedrock provider. AccessKeyID/SecretAccessKey/SessionToken are
// optional; left empty, the adapter falls back to the default AWS
// credential chain (env vars, shared config, instance role).
type BedrockConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// RetryConfig mirrors spec.md §6's retry sub-table.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
	MaxTotalMs  int `yaml:"max_total_ms"`
}

// LoggingConfig configures internal/observability.Logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the metrics section of the file. Enabled is
// decoded but not read: the daemon always registers the Prometheus
// metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig toggles OpenTelemetry span export (SPEC_FULL.md's
// ambient tracing section). The core only reads Enabled/OTLPEndpoint;
// wiring the exporter itself is the caller's responsibility, same as
// spec.md §6 treats gatewayEnabled as informational to the core.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load reads, expands, decodes, defaults, and validates a RuntimeConfig
// YAML file at path.
func Load(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg FileConfig
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyAPIKeyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyAPIKeyEnvOverrides fills the default model's provider, when it is
// missing from api_keys, from the <PROVIDER>_API_KEY environment variable
// convention SPEC_FULL.md documents, without overwriting an explicit YAML
// value (spec.md §6: "explicit keys; overrides env" — env only fills
// gaps). Other providers are not filled from the environment.
func applyAPIKeyEnvOverrides(cfg *FileConfig) {
	if cfg.DefaultModel.Provider == "" {
		return
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = make(map[string]string)
	}
	provider := cfg.DefaultModel.Provider
	if _, ok := cfg.APIKeys[provider]; ok {
		return
	}
	envVar := strings.ToUpper(provider) + "_API_KEY"
	if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
		cfg.APIKeys[provider] = value
	}
}

func applyDefaults(cfg *FileConfig) {
	d := runtime.DefaultConfig()
	if cfg.HeartbeatIntervalMs == 0 {
		cfg.HeartbeatIntervalMs = d.HeartbeatInterval.Milliseconds()
	}
	if cfg.StaleSessionTimeoutMs == 0 {
		cfg.StaleSessionTimeoutMs = d.StaleSessionTimeout.Milliseconds()
	}
	if cfg.KeepaliveMs == 0 {
		cfg.KeepaliveMs = d.KeepaliveInterval.Milliseconds()
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = d.Retry.MaxRetries
	}
	if cfg.Retry.BaseDelayMs == 0 {
		cfg.Retry.BaseDelayMs = d.Retry.BaseDelayMs
	}
	if cfg.Retry.MaxDelayMs == 0 {
		cfg.Retry.MaxDelayMs = d.Retry.MaxDelayMs
	}
	if cfg.Retry.MaxTotalMs == 0 {
		cfg.Retry.MaxTotalMs = d.Retry.MaxTotalMs
	}
	if cfg.MaxSubAgentDepth == 0 {
		cfg.MaxSubAgentDepth = d.MaxSubAgentDepth
	}
	if cfg.MaxSubAgentFanout == 0 {
		cfg.MaxSubAgentFanout = d.MaxSubAgentFanout
	}
	if cfg.SteeringBufferSize == 0 {
		cfg.SteeringBufferSize = d.SteeringBufferSize
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.ResumeOnStartup == nil {
		v := true
		cfg.ResumeOnStartup = &v
	}
}

// ConfigValidationError collects every validation issue found, in the
// teacher's own multi-issue reporting style.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *FileConfig) error {
	var issues []string

	if cfg.HeartbeatIntervalMs < 0 {
		issues = append(issues, "heartbeat_interval_ms must be >= 0")
	}
	if cfg.StaleSessionTimeoutMs < 0 {
		issues = append(issues, "stale_session_timeout_ms must be >= 0")
	}
	if cfg.KeepaliveMs < 0 {
		issues = append(issues, "keepalive_ms must be >= 0")
	}
	if cfg.Retry.MaxRetries < 0 {
		issues = append(issues, "retry.max_retries must be >= 0")
	}
	if cfg.Retry.BaseDelayMs < 0 {
		issues = append(issues, "retry.base_delay_ms must be >= 0")
	}
	if cfg.Retry.MaxDelayMs < cfg.Retry.BaseDelayMs {
		issues = append(issues, "retry.max_delay_ms must be >= retry.base_delay_ms")
	}
	if cfg.MaxSubAgentDepth < 0 {
		issues = append(issues, "max_sub_agent_depth must be >= 0")
	}
	if cfg.MaxSubAgentFanout < 0 {
		issues = append(issues, "max_sub_agent_fanout must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, "logging.level must be \"debug\", \"info\", \"warn\", or \"error\"")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "json", "text":
	default:
		issues = append(issues, "logging.format must be \"json\" or \"text\"")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

// ToRuntimeConfig builds the runtime.Config the Runtime accepts,
// translating millisecond fields to time.Duration.
func (c *FileConfig) ToRuntimeConfig() runtime.Config {
	return runtime.Config{
		APIKeys: c.APIKeys,
		DefaultModel: runtime.ModelID{
			Provider: c.DefaultModel.Provider,
			Model:    c.DefaultModel.ModelID,
		},
		HeartbeatInterval:   time.Duration(c.HeartbeatIntervalMs) * time.Millisecond,
		StaleSessionTimeout: time.Duration(c.StaleSessionTimeoutMs) * time.Millisecond,
		KeepaliveInterval:   time.Duration(c.KeepaliveMs) * time.Millisecond,
		Retry: runtime.RetryConfig{
			MaxRetries:  c.Retry.MaxRetries,
			BaseDelayMs: c.Retry.BaseDelayMs,
			MaxDelayMs:  c.Retry.MaxDelayMs,
			MaxTotalMs:  c.Retry.MaxTotalMs,
		},
		ResumeOnStartup:    c.ResumeOnStartup == nil || *c.ResumeOnStartup,
		GatewayEnabled:     c.GatewayEnabled,
		MaxSubAgentDepth:   c.MaxSubAgentDepth,
		MaxSubAgentFanout:  c.MaxSubAgentFanout,
		SteeringBufferSize: c.SteeringBufferSize,
	}
}

// ToLogConfig builds the observability.LogConfig the Logging section
// describes.
func (c *FileConfig) ToLogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	}
}
