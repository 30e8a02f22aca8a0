package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/midnight-build/midnight/internal/store"
)

// cmdOut is where structured command output goes. Human-readable chatter
// uses fmt.Printf directly; anything a script might pipe goes here.
func cmdOut() io.Writer {
	return os.Stdout
}

// GetVersion returns the injected build version, falling back to "dev".
func GetVersion() string {
	if appVersion == "" {
		return "dev"
	}
	return appVersion
}

// openStore opens the configured queue store for an offline subcommand
// (queue, snapshot, logs). Callers must Close the returned store.
func openStore() (*store.Store, error) {
	st, err := store.Open(loadedConfig.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("opening queue store %s: %w", loadedConfig.QueuePath, err)
	}
	return st, nil
}

// fmtTimestamp renders a unix-millis timestamp for table output; zero
// renders as "-".
func fmtTimestamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// fmtTime renders a time for table output; zero renders as "-".
func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// shortID truncates an id for table output.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
