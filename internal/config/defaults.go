package config

// DefaultConfigYAML is the configuration `midnight init` writes and the
// loader falls back to when no project or user config file exists.
// One string shared between `init` and the loader's own defaults.
const DefaultConfigYAML = `# Midnight orchestrator configuration
# Values not listed here use the built-in defaults.

trust_level: 2

queue_path: .midnight/queue.db

workspace_root: "."

snapshot_interval_ms: 300000

quality_threshold: 85
max_retries: 3

actor_model: claude-opus-4-6
sentinel_model: claude-opus-4-6
sentinel_effort: max

enable_worktrees: true
enable_kata_containers: false

log_path: .midnight/midnight.log
log_level: info
log_format: auto
pid_file: .midnight/midnight.pid
verbose: false

agent_loop:
  enable_veto: true
  enable_revert: true
  quality_threshold: 85
  max_retries: 3

handoff:
  push_to_remote: false
  trigger_deployment: false
  cleanup_worktrees: true
  notify_webhook: ""

http:
  listen_addr: "127.0.0.1:8787"
  cors_origins: ["*"]
  metrics_addr: "127.0.0.1:9090"

sandbox:
  requested_provider: ""
  vcpus: 2
  memory_mb: 4096
  disk_mb: 10240
  max_pids: 100
  command_timeout: 30s
  env: {}
`

// setDefaults applies every default onto v as flat dotted keys, one per
// mapstructure field.
func (l *Loader) setDefaults() {
	l.v.SetDefault("trust_level", int(TrustAssistant))
	l.v.SetDefault("queue_path", ".midnight/queue.db")
	l.v.SetDefault("workspace_root", ".")
	l.v.SetDefault("snapshot_interval_ms", int(DefaultSnapshotInterval.Milliseconds()))
	l.v.SetDefault("quality_threshold", DefaultQualityThreshold)
	l.v.SetDefault("max_retries", DefaultMaxRetries)
	l.v.SetDefault("actor_model", "claude-opus-4-6")
	l.v.SetDefault("sentinel_model", "claude-opus-4-6")
	l.v.SetDefault("sentinel_effort", "max")
	l.v.SetDefault("enable_worktrees", true)
	l.v.SetDefault("enable_kata_containers", false)
	l.v.SetDefault("log_path", ".midnight/midnight.log")
	l.v.SetDefault("log_level", "info")
	l.v.SetDefault("log_format", "auto")
	l.v.SetDefault("pid_file", ".midnight/midnight.pid")
	l.v.SetDefault("verbose", false)

	l.v.SetDefault("agent_loop.enable_veto", true)
	l.v.SetDefault("agent_loop.enable_revert", true)
	l.v.SetDefault("agent_loop.quality_threshold", DefaultQualityThreshold)
	l.v.SetDefault("agent_loop.max_retries", DefaultMaxRetries)

	l.v.SetDefault("handoff.push_to_remote", false)
	l.v.SetDefault("handoff.trigger_deployment", false)
	l.v.SetDefault("handoff.cleanup_worktrees", true)
	l.v.SetDefault("handoff.notify_webhook", "")

	l.v.SetDefault("http.listen_addr", "127.0.0.1:8787")
	l.v.SetDefault("http.cors_origins", []string{"*"})
	l.v.SetDefault("http.metrics_addr", "127.0.0.1:9090")

	l.v.SetDefault("sandbox.requested_provider", "")
	l.v.SetDefault("sandbox.vcpus", 2)
	l.v.SetDefault("sandbox.memory_mb", 4096)
	l.v.SetDefault("sandbox.disk_mb", 10240)
	l.v.SetDefault("sandbox.max_pids", 100)
	l.v.SetDefault("sandbox.command_timeout", "30s")
}
