//go:build go1.18

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/midnight-build/midnight/internal/config"
)

func FuzzConfigParse(f *testing.F) {
	// Valid config seeds
	f.Add(config.DefaultConfigYAML)
	f.Add(`trust_level: 3
queue_path: /tmp/queue.db
workspace_root: /tmp/work
quality_threshold: 90
max_retries: 5
`)
	f.Add(`agent_loop:
  enable_veto: false
  max_retries: 1
handoff:
  push_to_remote: true
`)
	f.Add(`{}`)
	f.Add(``)
	f.Add(`trust_level: "not a number"`)
	f.Add(`quality_threshold: [1, 2, 3]`)
	f.Add("\xff\xfe invalid utf8")

	f.Fuzz(func(t *testing.T, yamlContent string) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
			t.Skip()
		}

		cfg, err := config.NewLoader().WithConfigFile(path).Load()
		if err != nil {
			// Malformed input must be rejected, never panic.
			return
		}

		// A successful load must produce a config that Validate can
		// inspect without panicking, and the duration accessors must
		// return something sane.
		_ = cfg.Validate()
		if cfg.SnapshotInterval() <= 0 {
			t.Errorf("SnapshotInterval() = %v, want > 0", cfg.SnapshotInterval())
		}
		if cfg.Sandbox.Timeout() <= 0 {
			t.Errorf("Sandbox.Timeout() = %v, want > 0", cfg.Sandbox.Timeout())
		}
	})
}
