// Package repomap is the degenerate core.RepoMapProvider fallback the
// port itself allows: a sorted file listing instead of a symbol graph.
// Traversal walks a project's working tree on disk, skipping paths on a
// predicate, and builds a sorted summary.
package repomap

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MaxFiles bounds how many paths are listed before the map is
// truncated, keeping the Sentinel's context budget predictable on large
// trees.
const MaxFiles = 500

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true,
	"build": true, ".midnight": true, ".midnight-worktrees": true,
}

// Provider implements core.RepoMapProvider with a plain file listing.
type Provider struct{}

// New builds a Provider. It is stateless.
func New() *Provider {
	return &Provider{}
}

// GetRepoMap walks projectPath and returns a newline-joined, sorted list
// of relative file paths, truncated to MaxFiles with a trailing count of
// what was omitted.
func (p *Provider) GetRepoMap(ctx context.Context, projectPath string) (string, error) {
	var paths []string
	err := filepath.WalkDir(projectPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(projectPath, path)
		if relErr != nil {
			rel = path
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Strings(paths)
	total := len(paths)
	truncated := false
	if total > MaxFiles {
		paths = paths[:MaxFiles]
		truncated = true
	}

	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	if truncated {
		b.WriteString("... (" + strconv.Itoa(total-MaxFiles) + " more files omitted)\n")
	}
	return b.String(), nil
}
