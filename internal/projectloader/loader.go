// Package projectloader is the concrete core.ProjectLoader: it reads a
// project's three-file DNA off disk (idea.md, tech_stack.yaml,
// definition_of_done.md), validates it, and derives an ordered task list.
// File access goes through internal/fsutil.ReadFileScoped (open a root
// at the containing directory, read by base name, no path traversal);
// YAML decoding uses gopkg.in/yaml.v3. extract_tasks is made deterministic
// by splitting the idea text into checklist-style lines in file order,
// rather than a second nondeterministic model call.
package projectloader

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/fsutil"
)

const (
	IdeaFile     = "idea.md"
	TechStackFile = "tech_stack.yaml"
	DoDFile      = "definition_of_done.md"
)

// Loader implements core.ProjectLoader over a project's DNA files.
type Loader struct{}

// New builds a Loader. It is stateless; one instance serves every
// project.
func New() *Loader {
	return &Loader{}
}

type techStackFile struct {
	Runtime     map[string]string `yaml:"runtime"`
	Development map[string]string `yaml:"development"`
}

// LoadDNA reads idea.md, tech_stack.yaml, and definition_of_done.md from
// path. tech_stack.yaml is optional — a project with no declared
// dependencies still has valid DNA as long as idea and DoD are present.
func (l *Loader) LoadDNA(ctx context.Context, path string) (*core.ProjectDNA, error) {
	idea, err := fsutil.ReadFileScoped(filepath.Join(path, IdeaFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", IdeaFile, err)
	}
	dod, err := fsutil.ReadFileScoped(filepath.Join(path, DoDFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", DoDFile, err)
	}

	techStack := map[string]core.DependencyConstraint{}
	if raw, err := fsutil.ReadFileScoped(filepath.Join(path, TechStackFile)); err == nil {
		var parsed techStackFile
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", TechStackFile, err)
		}
		for name, constraint := range parsed.Runtime {
			techStack[name] = core.DependencyConstraint{Constraint: constraint}
		}
		for name, constraint := range parsed.Development {
			techStack[name] = core.DependencyConstraint{Constraint: constraint, Dev: true}
		}
	}

	return &core.ProjectDNA{
		IdeaText:         string(idea),
		TechStack:        techStack,
		DefinitionOfDone: string(dod),
	}, nil
}

// ValidateDNA defers to ProjectDNA.Validate; kept as a distinct method so
// callers outside the loading phase can re-check already-loaded DNA
// without re-reading disk.
func (l *Loader) ValidateDNA(dna *core.ProjectDNA) (bool, []string) {
	return dna.Validate()
}

// checklistLine matches "- [ ] do the thing" / "- do the thing" / "1. do
// the thing" idea-file lines, ignoring already-checked items.
var checklistLine = regexp.MustCompile(`^\s*(?:[-*]|\d+\.)\s*(?:\[ \])?\s*(.+)$`)

// ExtractTasks derives an ordered task list from the idea text's
// checklist lines. Determinism follows directly from source order: the
// same idea text always yields the same task slice, without a second
// model call.
// A line beginning "- [x]" is treated as already done and skipped; a
// line prefixed "after: N" (1-based index into prior tasks in this same
// call) adds that dependency.
func (l *Loader) ExtractTasks(ctx context.Context, dna *core.ProjectDNA) ([]core.ExtractedTask, error) {
	var tasks []core.ExtractedTask
	for _, line := range strings.Split(dna.IdeaText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(trimmed), "- [x]") {
			continue
		}
		m := checklistLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		desc, deps := parseDependencies(m[1])
		if desc == "" {
			continue
		}
		tasks = append(tasks, core.ExtractedTask{
			Description:  desc,
			Priority:     len(tasks), // first line = highest priority
			Dependencies: deps,
		})
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("idea text yielded no extractable tasks")
	}
	return tasks, nil
}

var afterTag = regexp.MustCompile(`\(after:\s*([\d,\s]+)\)\s*$`)

// parseDependencies strips a trailing "(after: 1, 2)" tag off desc and
// returns the zero-based indices it names.
func parseDependencies(desc string) (string, []int) {
	m := afterTag.FindStringSubmatch(desc)
	if m == nil {
		return strings.TrimSpace(desc), nil
	}
	clean := strings.TrimSpace(afterTag.ReplaceAllString(desc, ""))
	var deps []int
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(part, "%d", &n); err == nil && n > 0 {
			deps = append(deps, n-1)
		}
	}
	return clean, deps
}
