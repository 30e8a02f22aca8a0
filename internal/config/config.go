// Package config loads Midnight's daemon configuration: trust level,
// queue/store paths, snapshot and retry tuning, agent model selection,
// sandbox toggles, and hand-off options. Uses a viper+mapstructure
// precedence chain (flags > env > project file > user file > defaults)
// and an atomic-write-on-save primitive for config persistence.
package config

import "time"

// TrustLevel is the autonomy tier gating auto-apply, auto-commit, and
// auto-rotate on hand-off.
type TrustLevel int

const (
	TrustSupervised TrustLevel = 1 // never auto-apply
	TrustAssistant  TrustLevel = 2 // terminal allowed, no auto-commit
	TrustAutonomous TrustLevel = 3 // auto-apply, auto-commit, auto-rotate
)

// Valid reports whether t is one of the three defined tiers.
func (t TrustLevel) Valid() bool {
	return t == TrustSupervised || t == TrustAssistant || t == TrustAutonomous
}

// Config is Midnight's full daemon configuration.
type Config struct {
	TrustLevel TrustLevel `mapstructure:"trust_level"`

	QueuePath string `mapstructure:"queue_path"`

	// WorkspaceRoot bounds every sandboxed tool call (internal/sandbox's
	// Executor.resolvePath): project repos and their task worktrees must
	// live under it.
	WorkspaceRoot string `mapstructure:"workspace_root"`

	SnapshotIntervalMS int `mapstructure:"snapshot_interval_ms"`

	QualityThreshold float64 `mapstructure:"quality_threshold"`
	MaxRetries       int     `mapstructure:"max_retries"`

	ActorModel     string `mapstructure:"actor_model"`
	SentinelModel  string `mapstructure:"sentinel_model"`
	SentinelEffort string `mapstructure:"sentinel_effort"`

	// LLMAPIKey is read from MIDNIGHT_LLM_API_KEY (or llm.api_key in a
	// config file no stricter than 0600); it has no yaml default on
	// purpose, so a committed config never carries a credential.
	LLMAPIKey  string `mapstructure:"llm_api_key"`
	LLMBaseURL string `mapstructure:"llm_base_url"`

	EnableWorktrees       bool `mapstructure:"enable_worktrees"`
	EnableKataContainers  bool `mapstructure:"enable_kata_containers"`

	LogPath string `mapstructure:"log_path"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	PidFile string `mapstructure:"pid_file"`
	Verbose bool   `mapstructure:"verbose"`

	AgentLoop AgentLoopConfig `mapstructure:"agent_loop"`
	Handoff   HandoffConfig   `mapstructure:"handoff"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
}

// AgentLoopConfig tunes the agent loop's veto/revert/retry behavior.
type AgentLoopConfig struct {
	EnableVeto       bool    `mapstructure:"enable_veto"`
	EnableRevert     bool    `mapstructure:"enable_revert"`
	QualityThreshold float64 `mapstructure:"quality_threshold"`
	MaxRetries       int     `mapstructure:"max_retries"`
}

// HandoffConfig tunes the hand-off phase's finalization steps.
type HandoffConfig struct {
	PushToRemote      bool   `mapstructure:"push_to_remote"`
	TriggerDeployment bool   `mapstructure:"trigger_deployment"`
	CleanupWorktrees  bool   `mapstructure:"cleanup_worktrees"`
	NotifyWebhook     string `mapstructure:"notify_webhook"`
}

// HTTPConfig configures the status/event transport (internal/transporthttp).
type HTTPConfig struct {
	ListenAddr   string   `mapstructure:"listen_addr"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	MetricsAddr  string   `mapstructure:"metrics_addr"`
}

// SandboxConfig configures the sandboxed tool executor's resource
// envelope (vCPUs, memory, disk, pids, network, mounts, timeouts).
type SandboxConfig struct {
	RequestedProvider string            `mapstructure:"requested_provider"`
	VCPUs             int               `mapstructure:"vcpus"`
	MemoryMB          int               `mapstructure:"memory_mb"`
	DiskMB            int               `mapstructure:"disk_mb"`
	MaxPIDs           int               `mapstructure:"max_pids"`
	CommandTimeout    string            `mapstructure:"command_timeout"` // parsed with time.ParseDuration
	Env               map[string]string `mapstructure:"env"`
}

// Timeout parses CommandTimeout, falling back to a 30s default on an
// empty or malformed value.
func (s SandboxConfig) Timeout() time.Duration {
	if s.CommandTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(s.CommandTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SnapshotInterval returns the configured snapshot interval as a
// time.Duration.
func (c *Config) SnapshotInterval() time.Duration {
	if c.SnapshotIntervalMS <= 0 {
		return DefaultSnapshotInterval
	}
	return time.Duration(c.SnapshotIntervalMS) * time.Millisecond
}

// Defaults for tunables not set by flags, environment, or config file.
const (
	DefaultSnapshotInterval = 5 * time.Minute
	DefaultQualityThreshold = 85.0
	DefaultMaxRetries       = 3
)

// Validate checks the configuration's enumerated invariants.
func (c *Config) Validate() []string {
	var errs []string
	if !c.TrustLevel.Valid() {
		errs = append(errs, "trust_level must be 1, 2, or 3")
	}
	if c.QueuePath == "" {
		errs = append(errs, "queue_path is required")
	}
	// workspace_root always has a loader default; llm_api_key is enforced
	// where the chat client is built, so offline subcommands work keyless.
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		errs = append(errs, "quality_threshold must be within [0,100]")
	}
	if c.MaxRetries < 1 {
		errs = append(errs, "max_retries must be >= 1")
	}
	if c.SentinelEffort != "" {
		switch c.SentinelEffort {
		case "low", "medium", "high", "max":
		default:
			errs = append(errs, "sentinel_effort must be one of low, medium, high, max")
		}
	}
	return errs
}
