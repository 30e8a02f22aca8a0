// Package sentinel implements the critic agent: a read-only adjudicator
// that vetoes hard violations before ever spending a model call, and
// otherwise asks the configured ChatClient for a scored verdict. Veto
// pattern matching follows a DangerousPatterns-style veto list; verdict
// parsing accepts YAML front-matter with lenient numeric coercion so
// scores expressed as strings, ints, or floats all parse cleanly.
package sentinel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/midnight-build/midnight/internal/core"
)

// DefaultQualityThreshold is the default score required for a pass.
const DefaultQualityThreshold = 85

// PriorViolationPenalty is subtracted when a prior
// correction directive was ignored; it also forces a veto.
const PriorViolationPenalty = 30

var (
	apiKeyPattern    = regexp.MustCompile(`(?i)api_key\s*=\s*["'][^"']{20,}["']`)
	secretPattern    = regexp.MustCompile(`(?i)secret\s*=\s*["'][^"']{10,}["']`)
	passwordPattern  = regexp.MustCompile(`(?i)password\s*=\s*["'][^"']+["']`)
	bearerPattern    = regexp.MustCompile(`(?i)bearer\s+[a-z0-9]{20,}`)
	skKeyPattern     = regexp.MustCompile(`sk-[a-zA-Z0-9]{40,}`)
	ghpKeyPattern    = regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`)
	infiniteLoopRe   = regexp.MustCompile(`while\s*\(\s*true\s*\)|for\s*\(\s*;\s*;\s*\)`)
	sqlInjectionRe   = regexp.MustCompile(`(?i)(query|execute)\s*[(=][^;]*\$\{[^}]+\}`)
)

// CheckVetoConditions scans a diff for hard, score-independent
// violations. Any non-empty return is an automatic veto.
func CheckVetoConditions(diff string) []string {
	var violations []string

	if apiKeyPattern.MatchString(diff) {
		violations = append(violations, "hardcoded api_key literal")
	}
	if secretPattern.MatchString(diff) {
		violations = append(violations, "hardcoded secret literal")
	}
	if passwordPattern.MatchString(diff) {
		violations = append(violations, "hardcoded password literal")
	}
	if bearerPattern.MatchString(diff) {
		violations = append(violations, "hardcoded bearer token")
	}
	if skKeyPattern.MatchString(diff) {
		violations = append(violations, "provider-prefixed secret key (sk-...)")
	}
	if ghpKeyPattern.MatchString(diff) {
		violations = append(violations, "provider-prefixed secret key (ghp_...)")
	}
	if infiniteLoopRe.MatchString(diff) {
		violations = append(violations, "infinite loop (while(true) / for(;;))")
	}
	if unboundedRecursion(diff) {
		violations = append(violations, "unbounded recursion without a visible return")
	}
	if sqlInjectionRe.MatchString(diff) {
		violations = append(violations, "likely SQL injection via interpolated query string")
	}
	return violations
}

var funcDeclRe = regexp.MustCompile(`func\s+(\w+)\s*\(`)

// unboundedRecursion is a crude textual heuristic: a function whose body
// calls itself by name but never contains a "return" statement anywhere
// before the next top-level "func " declaration.
func unboundedRecursion(diff string) bool {
	matches := funcDeclRe.FindAllStringSubmatchIndex(diff, -1)
	for i, m := range matches {
		name := diff[m[2]:m[3]]
		bodyStart := m[1]
		bodyEnd := len(diff)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := diff[bodyStart:bodyEnd]
		if strings.Contains(body, name+"(") && !strings.Contains(body, "return") {
			return true
		}
	}
	return false
}

// VerificationHash returns SHA-256(diff) truncated to 16 hex chars.
func VerificationHash(diff string) string {
	sum := sha256.Sum256([]byte(diff))
	return hex.EncodeToString(sum[:])[:16]
}

// Context is the input to one Sentinel.Verify call.
type Context struct {
	Task             *core.Task
	Diff             string
	ProjectPlanText  string
	DefinitionOfDone string
	RepoMapText      string
	PriorVerdicts    []*core.SentinelVerdict
}

// Config configures the model call and scoring threshold.
type Config struct {
	Model            string
	QualityThreshold float64
}

// Sentinel adjudicates Actor diffs. Read-only: it never mutates a
// worktree.
type Sentinel struct {
	chat core.ChatClient
	cfg  Config

	mu               sync.Mutex
	verifications    int
	vetoes           int
	totalQualitySum  float64
}

// New builds a Sentinel; a zero Config.QualityThreshold defaults to 85.
func New(chat core.ChatClient, cfg Config) *Sentinel {
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = DefaultQualityThreshold
	}
	return &Sentinel{chat: chat, cfg: cfg}
}

const systemPrompt = `You are the Sentinel: a read-only code critic. You never modify the worktree. Evaluate the given diff against the project's plan and definition of done, and respond with a YAML frontmatter block (delimited by --- lines) containing: quality_score (0-100), passed (true/false), architectural_sins (list), slop_patterns (list), mapped_requirements (list), missing_requirements (list), unplanned_additions (list), correction_directive (string, empty if passed).`

func buildVerificationPrompt(c Context, reminder string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Diff:\n%s\n\n", c.Diff)
	fmt.Fprintf(&b, "Plan:\n%s\n\n", c.ProjectPlanText)
	fmt.Fprintf(&b, "Definition of done:\n%s\n\n", c.DefinitionOfDone)
	fmt.Fprintf(&b, "Repo map:\n%s\n", c.RepoMapText)
	if reminder != "" {
		b.WriteString("\n" + reminder)
	}
	return b.String()
}

// Verify checks vetoes first, then (if clean) asks the model for a
// scored verdict.
func (s *Sentinel) Verify(ctx context.Context, c Context) *core.SentinelVerdict {
	if violations := CheckVetoConditions(c.Diff); len(violations) > 0 {
		s.recordVeto()
		return core.NewAutoVetoVerdict(c.Task.ID, violations, VerificationHash(c.Diff))
	}

	reminder := ""
	if len(c.PriorVerdicts) > 0 {
		last := c.PriorVerdicts[len(c.PriorVerdicts)-1]
		if !last.Passed && last.CorrectionDirective != "" {
			reminder = "Note: a prior correction directive was issued for this task. If it was ignored, apply a -30 penalty and veto:\n" + last.CorrectionDirective
		}
	}

	resp, err := s.chat.Chat(ctx, []core.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildVerificationPrompt(c, reminder)},
	}, core.ChatOptions{Model: s.cfg.Model, Effort: core.EffortMax})
	if err != nil {
		return s.failingVerdict(c.Task.ID, c.Diff, fmt.Sprintf("chat client error: %v", err))
	}

	parsed, ok := parseVerdictResponse(resp.Content)
	if !ok {
		return s.failingVerdict(c.Task.ID, c.Diff, "could not parse Sentinel response into the expected schema")
	}

	if reminder != "" && ignoredPriorDirective(c.PriorVerdicts, resp.Content) {
		parsed.score -= PriorViolationPenalty
		parsed.passed = false
	}

	passed := core.ComputePassed(parsed.passed, parsed.score, s.cfg.QualityThreshold)
	verdict := &core.SentinelVerdict{
		ID:                  core.NewVerdictID(),
		TaskID:              c.Task.ID,
		QualityScore:        parsed.score,
		Passed:              passed,
		ThinkingEffort:      core.EffortMax,
		Audit:               parsed.audit,
		VerificationHash:    VerificationHash(c.Diff),
		CreatedAt:           time.Now(),
	}
	if !passed {
		verdict.CorrectionDirective = GenerateCorrectionDirective(parsed.audit)
	}

	s.record(verdict.QualityScore)
	return verdict
}

// ignoredPriorDirective is a conservative heuristic: true unless the
// model's response explicitly references having addressed the prior
// directive.
func ignoredPriorDirective(prior []*core.SentinelVerdict, response string) bool {
	if len(prior) == 0 {
		return false
	}
	return !strings.Contains(strings.ToLower(response), "addressed")
}

func (s *Sentinel) failingVerdict(taskID core.TaskID, diff, reason string) *core.SentinelVerdict {
	s.record(0)
	return &core.SentinelVerdict{
		ID:                  core.NewVerdictID(),
		TaskID:              taskID,
		QualityScore:        0,
		Passed:              false,
		ThinkingEffort:      core.EffortMax,
		Audit:               core.AuditLog{ArchitecturalSins: []string{"Parse error"}},
		CorrectionDirective: "Sentinel could not parse a verdict: " + reason,
		VerificationHash:    VerificationHash(diff),
		CreatedAt:           time.Now(),
	}
}

func (s *Sentinel) recordVeto() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications++
	s.vetoes++
}

func (s *Sentinel) record(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications++
	s.totalQualitySum += score
}

// Stats reports the Sentinel's running totals.
type Stats struct {
	Verifications      int
	Vetoes             int
	AverageQualityScore float64
}

// Stats returns the Sentinel's running totals.
func (s *Sentinel) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg := 0.0
	if s.verifications > 0 {
		avg = s.totalQualitySum / float64(s.verifications)
	}
	return Stats{Verifications: s.verifications, Vetoes: s.vetoes, AverageQualityScore: avg}
}

// --- response parsing ---

type parsedVerdict struct {
	score  float64
	passed bool
	audit  core.AuditLog
}

type verdictFrontmatter struct {
	QualityScore        interface{} `yaml:"quality_score"`
	Passed              interface{} `yaml:"passed"`
	ArchitecturalSins   []string    `yaml:"architectural_sins"`
	SlopPatterns        []string    `yaml:"slop_patterns"`
	MappedRequirements  []string    `yaml:"mapped_requirements"`
	MissingRequirements []string    `yaml:"missing_requirements"`
	UnplannedAdditions  []string    `yaml:"unplanned_additions"`
}

var frontmatterRe = regexp.MustCompile(`(?s)---\s*\n(.*?)\n---`)

func parseVerdictResponse(output string) (parsedVerdict, bool) {
	m := frontmatterRe.FindStringSubmatch(output)
	if m == nil {
		return parsedVerdict{}, false
	}

	var fm verdictFrontmatter
	if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
		return parsedVerdict{}, false
	}

	score, ok := coerceFloat(fm.QualityScore)
	if !ok {
		return parsedVerdict{}, false
	}
	passed := coerceBool(fm.Passed)

	return parsedVerdict{
		score:  score,
		passed: passed,
		audit: core.AuditLog{
			Traceability: core.Traceability{
				MappedRequirements:  fm.MappedRequirements,
				MissingRequirements: fm.MissingRequirements,
				UnplannedAdditions:  fm.UnplannedAdditions,
			},
			ArchitecturalSins: fm.ArchitecturalSins,
			SlopPatternsFound: fm.SlopPatterns,
		},
	}, true
}

// coerceFloat handles the model emitting a score as int, float, or string.
func coerceFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(n, "%")), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s == "true" || s == "yes"
	default:
		return false
	}
}

// GenerateCorrectionDirective produces Socratic follow-up questions from
// an audit log's missing requirements, architectural sins, and slop patterns.
func GenerateCorrectionDirective(audit core.AuditLog) string {
	var questions []string

	for _, missing := range audit.Traceability.MissingRequirements {
		questions = append(questions, fmt.Sprintf("Requirement %q was planned but not implemented — what's blocking it?", missing))
	}
	for _, unplanned := range audit.Traceability.UnplannedAdditions {
		questions = append(questions, fmt.Sprintf("%q was added without being planned — is it in scope?", unplanned))
	}
	for _, sin := range audit.ArchitecturalSins {
		lower := strings.ToLower(sin)
		switch {
		case strings.Contains(lower, "nest"):
			questions = append(questions, "This function nests deeply — could it be refactored with guard clauses?")
		case strings.Contains(lower, "monolith"):
			questions = append(questions, "This function does too much — what sub-functions would split its responsibilities?")
		case strings.Contains(lower, "error handling"):
			questions = append(questions, "Error paths are unhandled — what is the intended recovery path?")
		default:
			questions = append(questions, fmt.Sprintf("Architectural concern: %s — how would you address it?", sin))
		}
	}
	for _, slop := range audit.SlopPatternsFound {
		lower := strings.ToLower(slop)
		switch {
		case strings.Contains(lower, "todo"):
			questions = append(questions, "There are TODOs left in the diff — why isn't this finished?")
		case strings.Contains(lower, "debug") || strings.Contains(lower, "console"):
			questions = append(questions, "Debug prints are present — what does your pre-submission checklist look like?")
		case strings.Contains(lower, "unused import"):
			questions = append(questions, "Unused imports remain — what tool in your toolchain catches these?")
		default:
			questions = append(questions, fmt.Sprintf("Slop pattern detected: %s — please address it.", slop))
		}
	}

	if len(questions) == 0 {
		return "Review this diff against the project's standards before resubmitting."
	}
	return strings.Join(questions, "\n")
}
