package runtime

import "time"

// ModelID names a provider/model pair (spec.md §6's defaultModel option).
type ModelID struct {
	Provider string
	Model    string
}

// RetryConfig mirrors spec.md §6's retry sub-table. The Runtime does not
// read it: ModelClients arrive already built in Deps.Models, and the
// retry loop itself lives in internal/backoff and internal/modelclient.
type RetryConfig struct {
	MaxRetries  int
	BaseDelayMs int
	MaxDelayMs  int
	MaxTotalMs  int
}

// Config is the spec's RuntimeConfig (§6) — the only recognised set of
// process-wide options. Grounded on the teacher's SchedulerConfig
// (internal/tasks/scheduler.go): a flat options struct with a
// Default-constructor applying zero-value defaults field by field.
type Config struct {
	// APIKeys gives explicit provider->key overrides; resolving an
	// unconfigured provider against env vars or a custom-provider table
	// is the caller's responsibility when constructing Deps.Models —
	// the Runtime itself only ever consults the already-built
	// modelclient.ModelClient map (see Deps).
	APIKeys map[string]string

	DefaultModel ModelID

	HeartbeatInterval   time.Duration
	StaleSessionTimeout time.Duration
	KeepaliveInterval   time.Duration

	Retry RetryConfig

	// ResumeOnStartup resumes every active session found in the Store
	// when Start is called (spec.md §4.5's crash-recovery paragraph).
	ResumeOnStartup bool

	// GatewayEnabled is read-only configuration the core does not act
	// on itself (spec.md §6: "whether to construct the event-bus HTTP
	// adapter (excluded from core)"). Carried here only so a caller
	// building both the core and the excluded adapter can share one
	// config value.
	GatewayEnabled bool

	// MaxSubAgentDepth/MaxSubAgentFanout bound spawnSubAgent (spec.md
	// §4.6: "implementation-defined cap").
	MaxSubAgentDepth  int
	MaxSubAgentFanout int

	// SteeringBufferSize bounds how many pending SendMessage calls a
	// live session's loop can have queued before a steer is dropped
	// (supplemented steering feature, see SPEC_FULL.md).
	SteeringBufferSize int

	// AdminStore carries a custom-provider pricing source (spec.md §6);
	// the Runtime does not read it. The core treats it as an opaque
	// collaborator: wiring it into a concrete pricing hook is the
	// caller's responsibility, since its shape is admin-console
	// specific and outside the core's contracts.
	AdminStore any
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:   30 * time.Second,
		StaleSessionTimeout: 5 * time.Minute,
		KeepaliveInterval:   15 * time.Second,
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMs: 500,
			MaxDelayMs:  30_000,
			MaxTotalMs:  120_000,
		},
		ResumeOnStartup:    true,
		MaxSubAgentDepth:   3,
		MaxSubAgentFanout:  5,
		SteeringBufferSize: 8,
	}
}

func sanitizeConfig(cfg Config) Config {
	d := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = d.HeartbeatInterval
	}
	if cfg.StaleSessionTimeout <= 0 {
		cfg.StaleSessionTimeout = d.StaleSessionTimeout
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = d.KeepaliveInterval
	}
	if cfg.MaxSubAgentDepth <= 0 {
		cfg.MaxSubAgentDepth = d.MaxSubAgentDepth
	}
	if cfg.MaxSubAgentFanout <= 0 {
		cfg.MaxSubAgentFanout = d.MaxSubAgentFanout
	}
	if cfg.SteeringBufferSize <= 0 {
		cfg.SteeringBufferSize = d.SteeringBufferSize
	}
	return cfg
}
