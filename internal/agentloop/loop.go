// Package agentloop is the verification core: it drives one task through
// Actor attempts and Sentinel verdicts to either a passing result or a
// lock. Phase-orchestration shape (drive sub-components in sequence,
// bound retries, emit checkpoints) scales down to one
// Actor->Sentinel->commit-or-revert cycle per task.
package agentloop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
)

// ActorRunner executes one Actor attempt for a task.
type ActorRunner interface {
	Execute(ctx context.Context, c ActorContext) *core.TaskResult
}

// ActorContext mirrors actor.Context without importing internal/actor,
// avoiding a dependency cycle risk and keeping agentloop's surface narrow.
type ActorContext struct {
	Task             *core.Task
	ProjectIdeaText  string
	PreviousAttempts []string
	WorktreePath     string
}

// SentinelVerifier verifies one Actor diff.
type SentinelVerifier interface {
	Verify(ctx context.Context, c SentinelContext) *core.SentinelVerdict
}

// SentinelContext mirrors sentinel.Context.
type SentinelContext struct {
	Task             *core.Task
	Diff             string
	ProjectPlanText  string
	DefinitionOfDone string
	RepoMapText      string
	PriorVerdicts    []*core.SentinelVerdict
}

// WorktreeAdapter is the subset of worktree.Adapter the loop needs.
type WorktreeAdapter interface {
	Create(ctx context.Context, projectPath string, taskID core.TaskID) (string, error)
	GetGitDiff(ctx context.Context, worktreePath string) (string, error)
	Revert(ctx context.Context, worktreePath, toHash string) error
	Merge(ctx context.Context, repoPath, worktreePath, targetBranch string) error
	Delete(ctx context.Context, projectPath, worktreePath string) error
}

// RepoMapProvider summarizes a project's source tree for the Sentinel.
type RepoMapProvider interface {
	GetRepoMap(ctx context.Context, projectPath string) (string, error)
}

// CheckVeto scans a diff for hard violations; satisfied by
// sentinel.CheckVetoConditions.
type CheckVeto func(diff string) []string

// Config configures one Loop instance's veto/revert/retry behavior.
type Config struct {
	EnableVeto   bool
	EnableRevert bool
	MaxRetries   int
}

// DefaultMaxRetries is the default retry bound before a task locks.
const DefaultMaxRetries = 3

// Loop drives single tasks to completion or lock.
type Loop struct {
	actor      ActorRunner
	sentinel   SentinelVerifier
	worktrees  WorktreeAdapter
	repoMap    RepoMapProvider
	checkVeto  CheckVeto
	bus        *events.Bus
	cfg        Config
}

// New builds a Loop wired to its collaborators.
func New(actor ActorRunner, sentinel SentinelVerifier, worktrees WorktreeAdapter, repoMap RepoMapProvider, checkVeto CheckVeto, bus *events.Bus, cfg Config) *Loop {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Loop{actor: actor, sentinel: sentinel, worktrees: worktrees, repoMap: repoMap, checkVeto: checkVeto, bus: bus, cfg: cfg}
}

// ProjectInput bundles the context the loop needs about the owning
// project.
type ProjectInput struct {
	ProjectID        core.ProjectID
	ProjectPath      string
	IdeaText         string
	PlanText         string
	DefinitionOfDone string
	LastVerifiedHash string
}

// Result is the outcome of driving one task through the loop.
type Result struct {
	Success          bool
	TaskResult       *core.TaskResult
	Verdicts         []*core.SentinelVerdict
	VetoCount        int // automatic vetoes recorded among Verdicts
	WorktreePath     string
	NewVerifiedHash  string // set only when Success; the loop's new rolling hash
}

// rollingHash computes the agent loop's "last verified hash": a rolling
// FNV-1a over the diff text, kept deliberately distinct from the
// Sentinel's SHA-256 verification hash ( open question, resolved
// in DESIGN.md — the two are never unified).
func rollingHash(diff string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(diff))
	return fmt.Sprintf("%08x", h.Sum32())
}

// Run drives task through up to cfg.MaxRetries Actor/Sentinel cycles.
func (l *Loop) Run(ctx context.Context, task *core.Task, input ProjectInput) Result {
	l.publish(events.NewTaskStarted(input.ProjectID, task.ID))

	worktreePath, err := l.worktrees.Create(ctx, input.ProjectPath, task.ID)
	if err != nil {
		worktreePath = input.ProjectPath // degrade to no isolation
	}

	repoMap, _ := l.repoMap.GetRepoMap(ctx, input.ProjectPath)

	var previousAttempts []string
	var verdicts []*core.SentinelVerdict
	vetoes := 0
	lastVerifiedHash := input.LastVerifiedHash
	var lastResult *core.TaskResult
	var lastVerdict *core.SentinelVerdict

	for attempt := 0; attempt < l.cfg.MaxRetries; attempt++ {
		actorResult := l.actor.Execute(ctx, ActorContext{
			Task:             task,
			ProjectIdeaText:  input.IdeaText,
			PreviousAttempts: previousAttempts,
			WorktreePath:     worktreePath,
		})
		lastResult = actorResult

		if !actorResult.Success {
			l.publish(events.NewTaskFailed(input.ProjectID, task.ID, actorSummaryOrDefault(actorResult)))
			if actorResult.HasNonRecoverableError() {
				return Result{Success: false, TaskResult: actorResult, Verdicts: verdicts, VetoCount: vetoes, WorktreePath: worktreePath}
			}
			previousAttempts = append(previousAttempts, actorResult.OutputSummary)
			continue
		}

		diff, diffErr := l.worktrees.GetGitDiff(ctx, worktreePath)
		if diffErr != nil {
			diff = ""
		}

		if l.cfg.EnableVeto && l.checkVeto != nil {
			if violations := l.checkVeto(diff); len(violations) > 0 {
				verdict := core.NewAutoVetoVerdict(task.ID, violations, sentinelHashStub(diff))
				verdicts = append(verdicts, verdict)
				vetoes++
				lastVerdict = verdict
				l.publish(events.NewSentinelVerdictEvent(input.ProjectID, task.ID, *verdict))
				l.publish(events.NewSentinelVetoEvent(input.ProjectID, task.ID, verdict.CorrectionDirective))

				l.maybeRevert(ctx, input.ProjectID, task.ID, worktreePath, lastVerifiedHash)

				previousAttempts = append(previousAttempts, fmt.Sprintf("VETO: %v\n%s", violations, actorResult.OutputSummary))
				continue
			}
		}

		verdict := l.sentinel.Verify(ctx, SentinelContext{
			Task:             task,
			Diff:             diff,
			ProjectPlanText:  input.PlanText,
			DefinitionOfDone: input.DefinitionOfDone,
			RepoMapText:      repoMap,
			PriorVerdicts:    verdicts,
		})
		verdicts = append(verdicts, verdict)
		lastVerdict = verdict
		l.publish(events.NewSentinelVerdictEvent(input.ProjectID, task.ID, *verdict))

		if verdict.Passed {
			newHash := rollingHash(diff)
			actorResult.Verdict = verdict
			l.mergeBack(ctx, input.ProjectPath, worktreePath)
			l.publish(events.NewTaskCompleted(input.ProjectID, task.ID, *verdict))
			return Result{Success: true, TaskResult: actorResult, Verdicts: verdicts, VetoCount: vetoes, WorktreePath: worktreePath, NewVerifiedHash: newHash}
		}

		l.publish(events.NewSentinelVetoEvent(input.ProjectID, task.ID, verdict.CorrectionDirective))
		l.maybeRevert(ctx, input.ProjectID, task.ID, worktreePath, lastVerifiedHash)

		previousAttempts = append(previousAttempts, rejectionString(verdict, actorResult.OutputSummary))
	}

	reason := fmt.Sprintf("Max retries (%d) exceeded", l.cfg.MaxRetries)
	l.publish(events.NewTaskLocked(input.ProjectID, task.ID, reason))

	result := lastResult
	if result == nil {
		result = &core.TaskResult{}
	}
	result.Success = false
	result.Errors = append(result.Errors, core.ResultError{
		Code: core.CodeMaxRetries, Message: reason, Recoverable: false,
	})
	if lastVerdict != nil {
		result.Verdict = lastVerdict
	}
	return Result{Success: false, TaskResult: result, Verdicts: verdicts, VetoCount: vetoes, WorktreePath: worktreePath}
}

// mergeBack lands an approved worktree's changes on the parent tree and
// best-effort deletes the worktree. A no-isolation attempt (worktree is
// the project path itself) has nothing to merge. Merge failure leaves the
// approved changes on the task branch rather than losing them; the parent
// tree is never left mid-merge (the adapter guarantees that).
func (l *Loop) mergeBack(ctx context.Context, projectPath, worktreePath string) {
	if worktreePath == projectPath {
		return
	}
	if err := l.worktrees.Merge(ctx, projectPath, worktreePath, ""); err != nil {
		return
	}
	_ = l.worktrees.Delete(ctx, projectPath, worktreePath)
}

func (l *Loop) maybeRevert(ctx context.Context, projectID core.ProjectID, taskID core.TaskID, worktreePath, lastVerifiedHash string) {
	if !l.cfg.EnableRevert || lastVerifiedHash == "" {
		return
	}
	if err := l.worktrees.Revert(ctx, worktreePath, lastVerifiedHash); err == nil {
		l.publish(events.NewWorktreeReverted(projectID, taskID, lastVerifiedHash))
	}
	// Revert failures are logged by the caller; the loop does not abort.
}

func (l *Loop) publish(ev events.Event) {
	if l.bus != nil {
		l.bus.Publish(ev)
	}
}

func actorSummaryOrDefault(r *core.TaskResult) string {
	if len(r.Errors) > 0 {
		return r.Errors[0].Message
	}
	return "actor attempt failed"
}

func rejectionString(v *core.SentinelVerdict, actorOutput string) string {
	return fmt.Sprintf(
		"SENTINEL REJECTION (Score: %.0f): sins=%v, slop=%v, correction=%s, actor output=%s",
		v.QualityScore, v.Audit.ArchitecturalSins, v.Audit.SlopPatternsFound, v.CorrectionDirective, actorOutput,
	)
}

// sentinelHashStub computes the SHA-256-truncated hash for an automatic
// veto's verdict record, matching the full Sentinel's VerificationHash.
// Duplicated locally (rather than imported) to keep agentloop decoupled
// from the sentinel package's model-calling dependencies; both compute
// the identical sha256(diff)[:16] function.
func sentinelHashStub(diff string) string {
	sum := sha256.Sum256([]byte(diff))
	return hex.EncodeToString(sum[:])[:16]
}
