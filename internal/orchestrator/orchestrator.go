// Package orchestrator is the top-level loop: it owns the phase machine,
// pulls projects off the durable queue, drives each through loading,
// planning, building, and verifying, and fans out every event to the
// store and any subscribers. Built around an injectable ticker, atomic
// enabled/current-project state, event-bus subscription, and a breaker
// gating dispatch, driving one project through its phase graph at a
// time; pause/resume/stop(graceful) is a small synchronous control
// surface over the same atomic state.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/midnight-build/midnight/internal/agentloop"
	"github.com/midnight-build/midnight/internal/config"
	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
	"github.com/midnight-build/midnight/internal/handoff"
	"github.com/midnight-build/midnight/internal/phase"
	"github.com/midnight-build/midnight/internal/recovery"
	"github.com/midnight-build/midnight/internal/store"
)

// Store is the subset of store.Store the orchestrator drives directly.
type Store interface {
	NextProject(ctx context.Context) (*core.Project, error)
	GetProject(ctx context.Context, id core.ProjectID) (*core.Project, error)
	UpdateProjectStatus(ctx context.Context, id core.ProjectID, status core.ProjectStatus) error
	SetProjectCurrentTask(ctx context.Context, id core.ProjectID, taskID *core.TaskID) error
	SetProjectGitHash(ctx context.Context, id core.ProjectID, hash string) error
	SetProjectError(ctx context.Context, id core.ProjectID, message string) error
	StoreDNA(ctx context.Context, projectID core.ProjectID, dna *core.ProjectDNA) error
	GetDNA(ctx context.Context, projectID core.ProjectID) (*core.ProjectDNA, error)
	AddTask(ctx context.Context, projectID core.ProjectID, description string, priority int, deps []core.TaskID) (*core.Task, error)
	ProjectTasks(ctx context.Context, projectID core.ProjectID) ([]*core.Task, error)
	UpdateTask(ctx context.Context, id core.TaskID, u store.TaskUpdate) error
	AddVerdict(ctx context.Context, v *core.SentinelVerdict) error
	TaskVerdicts(ctx context.Context, taskID core.TaskID) ([]*core.SentinelVerdict, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// StateEngine is the subset of stateengine.Engine the orchestrator uses.
type StateEngine interface {
	StartAutoSnapshot(ctx context.Context, projectID core.ProjectID, interval time.Duration)
	StopAutoSnapshot()
	SaveSnapshot(ctx context.Context, projectID core.ProjectID) (core.SnapshotID, error)
	EnterCooldown(ctx context.Context, provider string, resumeAt time.Time, reason string, currentProjectID core.ProjectID) (*core.Cooldown, error)
	CheckCooldowns(ctx context.Context) ([]*core.Cooldown, error)
	ProcessExpiredCooldowns(ctx context.Context) ([]*core.Cooldown, error)
}

// Recovery is the subset of recovery.System the orchestrator consults on
// boot.
type Recovery interface {
	CheckNeedsRecovery(ctx context.Context) (bool, error)
	Recover(ctx context.Context, opts recovery.Options) ([]*recovery.Result, error)
}

// AgentLoop drives one task to completion or lock.
type AgentLoop interface {
	Run(ctx context.Context, task *core.Task, input agentloop.ProjectInput) agentloop.Result
}

// Handoff finalizes a completed project and rotates the next one in.
type Handoff interface {
	Run(ctx context.Context, cfg handoff.Config, completed handoff.ProjectRef, next *handoff.ProjectRef) error
}

// Metrics is the subset of metrics.Metrics the orchestrator records
// against; nil is a valid no-op.
type Metrics interface {
	TaskCompleted()
	TaskFailed()
	TaskLocked()
	SetCooldownsActive(n int)
	SetConfidenceScore(score int)
	SetProjectActive(active bool)
}

// Logger is the subset of *logging.Logger the orchestrator needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config bundles the orchestrator's tunables.
type Config struct {
	TrustLevel       config.TrustLevel
	SnapshotInterval time.Duration
	HandoffConfig    handoff.Config
	PollInterval     time.Duration // default 5s
	ErrorBackoff     time.Duration // default 10s, after an unhandled panic in the main loop
	ProviderName     string        // provider recorded on cooldown entry; default "openai"
	CooldownDuration time.Duration // wait applied on a rate-limit signal; default 60s
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 10 * time.Second
	}
	if c.ProviderName == "" {
		c.ProviderName = "openai"
	}
	if c.CooldownDuration <= 0 {
		c.CooldownDuration = time.Minute
	}
	return c
}

// Orchestrator drives the whole build pipeline over the queue.
type Orchestrator struct {
	store    Store
	loader   core.ProjectLoader
	loop     AgentLoop
	phases   *phase.Machine
	handoff  Handoff
	engine   StateEngine
	recovery Recovery
	bus      *events.Bus
	metrics  Metrics
	log      Logger
	cfg      Config

	mu               sync.Mutex
	running          bool
	paused           bool
	startedAt        time.Time
	current          *core.Project
	tasksCompleted   int
	tasksFailed      int
	sentinelVetoes   int
	confidenceScore  int
	confidenceStatus string
	reasoningTrace   []string
	resume           []core.ProjectID // recovered or cooldown-interrupted projects, dispatched before the queue
	cancel           context.CancelFunc
	loopDone         chan struct{}
}

// New builds an Orchestrator over its collaborators. metrics may be nil.
func New(st Store, loader core.ProjectLoader, loop AgentLoop, phases *phase.Machine, ho Handoff, engine StateEngine, rec Recovery, bus *events.Bus, m Metrics, log Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		store: st, loader: loader, loop: loop, phases: phases, handoff: ho,
		engine: engine, recovery: rec, bus: bus, metrics: m, log: log,
		cfg: cfg.withDefaults(), confidenceStatus: "healthy",
	}
}

// Start begins the main loop in a background goroutine. It runs startup
// recovery synchronously before returning control
func (o *Orchestrator) Start(ctx context.Context) error {
	if needs, err := o.recovery.CheckNeedsRecovery(ctx); err != nil {
		return fmt.Errorf("checking recovery need: %w", err)
	} else if needs {
		results, err := o.recovery.Recover(ctx, recovery.Options{})
		if err != nil {
			return fmt.Errorf("recovering: %w", err)
		}
		for _, r := range results {
			if r == nil {
				continue
			}
			o.log.Info("recovered project", "project_id", string(r.ProjectID), "new_status", string(r.NewStatus), "message", r.Message)
			if !r.ResetToQueued {
				// In-flight statuses are not dispatchable via next_project;
				// resume them directly ahead of the queue.
				o.mu.Lock()
				o.resume = append(o.resume, r.ProjectID)
				o.mu.Unlock()
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.running = true
	o.startedAt = time.Now()
	o.cancel = cancel
	o.loopDone = make(chan struct{})
	done := o.loopDone
	o.mu.Unlock()

	go func() {
		defer close(done)
		o.runLoop(runCtx)
	}()
	return nil
}

// Stop halts the main loop. With graceful=true and a project in flight,
// a final snapshot is taken before returning .
func (o *Orchestrator) Stop(graceful bool) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	current := o.current
	cancel := o.cancel
	done := o.loopDone
	o.running = false
	o.mu.Unlock()

	if graceful && current != nil {
		_, _ = o.engine.SaveSnapshot(context.Background(), current.ID)
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

// Pause marks the current project paused; the running task is not
// preempted (observed at the top of the next task-loop iteration).
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.paused = true
	current := o.current
	o.mu.Unlock()
	if current != nil {
		_ = o.store.UpdateProjectStatus(context.Background(), current.ID, core.ProjectPaused)
	}
}

// Resume clears the pause flag.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
}

func (o *Orchestrator) isPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Status is the orchestrator's observable snapshot, returned by StatusAsync.
type Status struct {
	Running            bool
	CurrentProjectID   string
	CurrentProjectName string
	QueueLength        int
	ConfidenceScore    int
	ConfidenceStatus   string
	UptimeSeconds      float64
	TasksCompleted     int
	TasksFailed        int
	ActiveCooldowns    int
}

// StatusAsync reports the orchestrator's current status.
func (o *Orchestrator) StatusAsync(ctx context.Context) (Status, error) {
	o.mu.Lock()
	st := Status{
		Running:          o.running,
		ConfidenceScore:  o.confidenceScore,
		ConfidenceStatus: o.confidenceStatus,
		TasksCompleted:   o.tasksCompleted,
		TasksFailed:      o.tasksFailed,
	}
	if o.current != nil {
		st.CurrentProjectID = string(o.current.ID)
		st.CurrentProjectName = o.current.Name
	}
	if !o.startedAt.IsZero() {
		st.UptimeSeconds = time.Since(o.startedAt).Seconds()
	}
	o.mu.Unlock()

	stats, err := o.store.Stats(ctx)
	if err != nil {
		return st, err
	}
	st.QueueLength = stats.Queued

	cooldowns, err := o.engine.CheckCooldowns(ctx)
	if err != nil {
		return st, err
	}
	st.ActiveCooldowns = len(cooldowns)
	if o.metrics != nil {
		o.metrics.SetCooldownsActive(len(cooldowns))
	}
	return st, nil
}

func (o *Orchestrator) setCurrent(p *core.Project) {
	o.mu.Lock()
	o.current = p
	o.tasksCompleted = 0
	o.tasksFailed = 0
	o.sentinelVetoes = 0
	o.confidenceScore = 0
	o.confidenceStatus = "healthy"
	o.reasoningTrace = nil
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.SetProjectActive(true)
	}
}

func (o *Orchestrator) clearCurrent() {
	o.mu.Lock()
	o.current = nil
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.SetProjectActive(false)
	}
}

func (o *Orchestrator) noteReasoning(line string) {
	const maxTrace = 10
	const maxLineLen = 200
	if len(line) > maxLineLen {
		line = line[:maxLineLen]
	}
	o.mu.Lock()
	o.reasoningTrace = append(o.reasoningTrace, line)
	if len(o.reasoningTrace) > maxTrace {
		o.reasoningTrace = o.reasoningTrace[len(o.reasoningTrace)-maxTrace:]
	}
	o.mu.Unlock()
}

// runLoop is the orchestrator's main loop.
func (o *Orchestrator) runLoop(ctx context.Context) {
	for o.isRunning() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		o.loopIteration(ctx)
	}
}

// loopIteration runs one pass of the main loop body, recovering from any
// panic item 9 (log, sleep 10s, resume).
func (o *Orchestrator) loopIteration(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("unhandled panic in main loop", "panic", fmt.Sprintf("%v", r))
			sleepOrDone(ctx, o.cfg.ErrorBackoff)
		}
	}()

	cooldowns, err := o.engine.CheckCooldowns(ctx)
	if err != nil {
		o.log.Error("checking cooldowns failed", "error", err.Error())
		sleepOrDone(ctx, o.cfg.ErrorBackoff)
		return
	}
	if o.metrics != nil {
		o.metrics.SetCooldownsActive(len(cooldowns))
	}
	if len(cooldowns) > 0 {
		resumeAt := earliestResume(cooldowns)
		sleepOrDone(ctx, time.Until(resumeAt))
		_, _ = o.engine.ProcessExpiredCooldowns(ctx)
		return
	}

	if o.isPaused() {
		sleepOrDone(ctx, o.cfg.PollInterval)
		return
	}

	project, err := o.nextDispatch(ctx)
	if err != nil {
		o.log.Error("fetching next project failed", "error", err.Error())
		sleepOrDone(ctx, o.cfg.ErrorBackoff)
		return
	}
	if project == nil {
		sleepOrDone(ctx, o.cfg.PollInterval)
		return
	}

	o.setCurrent(project)
	o.bus.Publish(events.NewProjectStarted(project))

	success := o.processProject(ctx, project)

	if success && o.cfg.TrustLevel == config.TrustAutonomous {
		if next, err := o.store.NextProject(ctx); err == nil && next != nil {
			ref := handoff.ProjectRef{ID: project.ID, Name: project.Name, Path: project.LocalPath}
			nextRef := handoff.ProjectRef{ID: next.ID, Name: next.Name, Path: next.LocalPath}
			if err := o.handoff.Run(ctx, o.cfg.HandoffConfig, ref, &nextRef); err != nil {
				o.log.Warn("hand-off failed", "error", err.Error())
			}
		}
	}

	o.clearCurrent()
}

// nextDispatch pops the resume list before consulting the queue, so a
// recovered or cooldown-interrupted project continues ahead of fresh work.
func (o *Orchestrator) nextDispatch(ctx context.Context) (*core.Project, error) {
	o.mu.Lock()
	var resumeID core.ProjectID
	if len(o.resume) > 0 {
		resumeID = o.resume[0]
		o.resume = o.resume[1:]
	}
	o.mu.Unlock()

	if resumeID != "" {
		p, err := o.store.GetProject(ctx, resumeID)
		if err != nil {
			o.log.Warn("resume target vanished", "project_id", string(resumeID), "error", err.Error())
			return o.store.NextProject(ctx)
		}
		return p, nil
	}
	return o.store.NextProject(ctx)
}

func earliestResume(cooldowns []*core.Cooldown) time.Time {
	earliest := cooldowns[0].ResumeAt
	for _, c := range cooldowns[1:] {
		if c.ResumeAt.Before(earliest) {
			earliest = c.ResumeAt
		}
	}
	return earliest
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// processProject drives one project through loading, planning, building,
// and verifying. It returns true only when the project
// reached ProjectCompleted.
func (o *Orchestrator) processProject(ctx context.Context, project *core.Project) bool {
	o.engine.StartAutoSnapshot(ctx, project.ID, o.cfg.SnapshotInterval)
	defer o.engine.StopAutoSnapshot()

	if !o.transition(core.PhaseLoading) {
		return o.fail(ctx, project, "illegal transition into loading")
	}
	if err := o.store.UpdateProjectStatus(ctx, project.ID, core.ProjectLoading); err != nil {
		return o.fail(ctx, project, fmt.Sprintf("updating status to loading: %v", err))
	}

	dna, err := o.loadAndValidateDNA(ctx, project)
	if err != nil {
		return o.fail(ctx, project, err.Error())
	}

	if !o.transition(core.PhaseResearch) {
		return o.fail(ctx, project, "illegal transition into research")
	}
	o.noteReasoning(fmt.Sprintf("gathering context for %s", project.Name))

	if !o.transition(core.PhasePlanning) {
		return o.fail(ctx, project, "illegal transition into planning")
	}
	if err := o.store.UpdateProjectStatus(ctx, project.ID, core.ProjectPlanning); err != nil {
		return o.fail(ctx, project, fmt.Sprintf("updating status to planning: %v", err))
	}

	tasks, err := o.planTasks(ctx, project, dna)
	if err != nil {
		return o.fail(ctx, project, err.Error())
	}

	if !o.transition(core.PhaseBuilding) {
		return o.fail(ctx, project, "illegal transition into building")
	}
	if err := o.store.UpdateProjectStatus(ctx, project.ID, core.ProjectBuilding); err != nil {
		return o.fail(ctx, project, fmt.Sprintf("updating status to building: %v", err))
	}

	if err := o.buildTasks(ctx, project, dna, tasks); err != nil {
		if err == errProviderCooldown {
			// Project stays in building; the main loop sleeps out the
			// cooldown and the resume list brings it straight back.
			o.mu.Lock()
			o.resume = append(o.resume, project.ID)
			o.mu.Unlock()
			o.transition(core.PhaseCooldown)
			o.transition(core.PhaseIdle)
			return false
		}
		if ctx.Err() != nil {
			// Shutdown mid-build: leave the project in building for the
			// next boot's recovery scan instead of marking it failed.
			return false
		}
		return o.fail(ctx, project, err.Error())
	}

	if !o.transition(core.PhaseVerifying) {
		return o.fail(ctx, project, "illegal transition into verifying")
	}
	if err := o.store.UpdateProjectStatus(ctx, project.ID, core.ProjectVerifying); err != nil {
		return o.fail(ctx, project, fmt.Sprintf("updating status to verifying: %v", err))
	}

	finalTasks, err := o.store.ProjectTasks(ctx, project.ID)
	if err != nil {
		return o.fail(ctx, project, fmt.Sprintf("reloading tasks for verification: %v", err))
	}
	for _, t := range finalTasks {
		if t.Status != core.TaskCompleted {
			return o.fail(ctx, project, fmt.Sprintf("task %s did not reach completed (status=%s)", t.ID, t.Status))
		}
	}

	if err := o.store.UpdateProjectStatus(ctx, project.ID, core.ProjectCompleted); err != nil {
		return o.fail(ctx, project, fmt.Sprintf("updating status to completed: %v", err))
	}
	_ = o.store.SetProjectCurrentTask(ctx, project.ID, nil)
	o.transition(core.PhaseHandoff)
	o.bus.Publish(events.NewProjectCompleted(project.ID))
	o.log.Info("project completed", "project_id", string(project.ID))
	o.transition(core.PhaseIdle)
	return true
}

func (o *Orchestrator) fail(ctx context.Context, project *core.Project, reason string) bool {
	o.log.Error("project failed", "project_id", string(project.ID), "reason", reason)
	_ = o.store.SetProjectError(ctx, project.ID, reason)
	_ = o.store.UpdateProjectStatus(ctx, project.ID, core.ProjectFailed)
	o.transition(core.PhaseError)
	o.bus.Publish(events.NewProjectFailed(project.ID, reason))
	o.transition(core.PhaseIdle)
	return false
}

func (o *Orchestrator) transition(to core.Phase) bool {
	if o.phases == nil {
		return true
	}
	return o.phases.Transition(to)
}

func (o *Orchestrator) loadAndValidateDNA(ctx context.Context, project *core.Project) (*core.ProjectDNA, error) {
	dna, err := o.loader.LoadDNA(ctx, project.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("loading DNA: %w", err)
	}
	if valid, errs := o.loader.ValidateDNA(dna); !valid {
		return nil, fmt.Errorf("invalid project DNA: %v", errs)
	}
	if err := o.store.StoreDNA(ctx, project.ID, dna); err != nil {
		return nil, fmt.Errorf("persisting DNA: %w", err)
	}
	o.noteReasoning(fmt.Sprintf("loaded DNA for %s", project.Name))
	return dna, nil
}

// planTasks extracts tasks from DNA and persists them, resolving each
// ExtractedTask's same-batch dependency indices to store-assigned ids.
// A project resuming after a crash or cooldown already has its task rows;
// those are reused as-is so the task list never changes length across a
// resume.
func (o *Orchestrator) planTasks(ctx context.Context, project *core.Project, dna *core.ProjectDNA) ([]*core.Task, error) {
	existing, err := o.store.ProjectTasks(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("checking for existing tasks: %w", err)
	}
	if len(existing) > 0 {
		o.noteReasoning(fmt.Sprintf("resuming %s with %d existing tasks", project.Name, len(existing)))
		return existing, nil
	}

	extracted, err := o.loader.ExtractTasks(ctx, dna)
	if err != nil {
		return nil, fmt.Errorf("extracting tasks: %w", err)
	}
	if len(extracted) == 0 {
		return nil, fmt.Errorf("project DNA yielded zero tasks")
	}

	tasks := make([]*core.Task, 0, len(extracted))
	for _, e := range extracted {
		var deps []core.TaskID
		for _, idx := range e.Dependencies {
			if idx < 0 || idx >= len(tasks) {
				continue // dependency on a not-yet-created task index is dropped, not fatal
			}
			deps = append(deps, tasks[idx].ID)
		}
		t, err := o.store.AddTask(ctx, project.ID, e.Description, e.Priority, deps)
		if err != nil {
			return nil, fmt.Errorf("persisting task %q: %w", e.Description, err)
		}
		tasks = append(tasks, t)
	}
	o.noteReasoning(fmt.Sprintf("planned %d tasks for %s", len(tasks), project.Name))
	return tasks, nil
}

// buildTasks drives every ready task through the agent loop in
// dependency order, tracking confidence as verdicts accumulate.
func (o *Orchestrator) buildTasks(ctx context.Context, project *core.Project, dna *core.ProjectDNA, tasks []*core.Task) error {
	completed := make(map[core.TaskID]bool)
	var allVerdicts []*core.SentinelVerdict

	// On resume, already-completed tasks satisfy their dependents and are
	// not re-run; locked and failed tasks stay terminal until manual
	// intervention.
	var remaining []*core.Task
	for _, t := range tasks {
		switch t.Status {
		case core.TaskCompleted:
			completed[t.ID] = true
		case core.TaskLocked, core.TaskFailed:
		default:
			remaining = append(remaining, t)
		}
	}
	for len(remaining) > 0 {
		progressed := false
		var stillRemaining []*core.Task

		for _, t := range remaining {
			for o.isPaused() {
				sleepOrDone(ctx, o.cfg.PollInterval)
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if !t.IsReady(completed) {
				stillRemaining = append(stillRemaining, t)
				continue
			}
			progressed = true

			_ = o.store.SetProjectCurrentTask(ctx, project.ID, &t.ID)
			status := core.TaskRunning
			started := true
			_ = o.store.UpdateTask(ctx, t.ID, store.TaskUpdate{Status: &status, StartedAt: &started})

			result := o.loop.Run(ctx, t, agentloop.ProjectInput{
				ProjectID:        project.ID,
				ProjectPath:      project.LocalPath,
				IdeaText:         dna.IdeaText,
				PlanText:         dna.IdeaText,
				DefinitionOfDone: dna.DefinitionOfDone,
				LastVerifiedHash: project.LastVerifiedHash,
			})
			allVerdicts = append(allVerdicts, result.Verdicts...)
			o.mu.Lock()
			o.sentinelVetoes += result.VetoCount
			o.mu.Unlock()
			for _, v := range result.Verdicts {
				if err := o.store.AddVerdict(ctx, v); err != nil {
					o.log.Warn("persisting verdict failed", "task_id", string(t.ID), "error", err.Error())
				}
			}

			if rateLimited(result.TaskResult) {
				// Reset the interrupted task so the resume picks it back up,
				// then snapshot-and-cooldown.
				assigned := core.TaskAssigned
				clearStart := false
				_ = o.store.UpdateTask(ctx, t.ID, store.TaskUpdate{Status: &assigned, StartedAt: &clearStart})
				resumeAt := time.Now().Add(o.cfg.CooldownDuration)
				if _, err := o.engine.EnterCooldown(ctx, o.cfg.ProviderName, resumeAt, rateLimitReason(result.TaskResult), project.ID); err != nil {
					o.log.Error("entering cooldown failed", "error", err.Error())
				}
				return errProviderCooldown
			}

			score, statusLabel := agentloop.Confidence(allVerdicts)
			o.mu.Lock()
			o.confidenceScore = int(score)
			o.confidenceStatus = statusLabel
			o.mu.Unlock()
			if o.metrics != nil {
				o.metrics.SetConfidenceScore(int(score))
			}
			o.bus.Publish(events.NewConfidenceUpdated(project.ID, int(score), statusLabel))

			finalStatus := taskFinalStatus(result)
			done := true
			u := store.TaskUpdate{Status: &finalStatus, Result: result.TaskResult, CompletedAt: &done}
			if result.WorktreePath != "" {
				u.WorktreePath = &result.WorktreePath
			}
			if err := o.store.UpdateTask(ctx, t.ID, u); err != nil {
				return fmt.Errorf("persisting task %s outcome: %w", t.ID, err)
			}

			if result.Success {
				o.mu.Lock()
				o.tasksCompleted++
				o.mu.Unlock()
				if o.metrics != nil {
					o.metrics.TaskCompleted()
				}
				if result.NewVerifiedHash != "" {
					_ = o.store.SetProjectGitHash(ctx, project.ID, result.NewVerifiedHash)
					project.LastVerifiedHash = result.NewVerifiedHash
				}
				completed[t.ID] = true
				o.noteReasoning(fmt.Sprintf("task %s passed: %s", t.ID, truncate(result.TaskResult.OutputSummary, 120)))
				continue
			}

			o.mu.Lock()
			o.tasksFailed++
			o.mu.Unlock()
			if o.metrics != nil {
				if finalStatus == core.TaskLocked {
					o.metrics.TaskLocked()
				} else {
					o.metrics.TaskFailed()
				}
			}
			o.noteReasoning(fmt.Sprintf("task %s did not pass (%s)", t.ID, finalStatus))
		}

		if !progressed {
			// Every remaining task waits on a prerequisite that failed or
			// locked; they stay pending and the verifying phase fails the
			// project.
			break
		}
		remaining = stillRemaining
	}
	return nil
}

// errProviderCooldown signals that the build phase stopped because the
// provider rate-limited; the project is left in building and resumed once
// the cooldown expires.
var errProviderCooldown = fmt.Errorf("provider entered cooldown")

func rateLimited(r *core.TaskResult) bool {
	if r == nil {
		return false
	}
	for _, e := range r.Errors {
		if e.Code == core.CodeRateLimited {
			return true
		}
	}
	return false
}

func rateLimitReason(r *core.TaskResult) string {
	for _, e := range r.Errors {
		if e.Code == core.CodeRateLimited {
			return e.Message
		}
	}
	return "rate limited"
}

// taskFinalStatus maps a loop result onto the persisted terminal status:
// exhausted retries lock the task, a non-recoverable error outside the
// retry budget fails it.
func taskFinalStatus(result agentloop.Result) core.TaskStatus {
	if result.Success {
		return core.TaskCompleted
	}
	if result.TaskResult != nil {
		for _, e := range result.TaskResult.Errors {
			if e.Code == core.CodeMaxRetries {
				return core.TaskLocked
			}
		}
		if result.TaskResult.HasNonRecoverableError() {
			return core.TaskFailed
		}
	}
	return core.TaskLocked
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// CaptureState implements stateengine.StateCapturer, approximating the
// "reasoning trace" as the orchestrator's own rolling buffer of truncated
// task-outcome summaries, since no component threads full Actor/Sentinel
// message history outward.
func (o *Orchestrator) CaptureState(projectID core.ProjectID) (string, core.AgentState, []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var gitHash string
	var currentTaskID core.TaskID
	if o.current != nil && o.current.ID == projectID {
		gitHash = o.current.LastVerifiedHash
		if o.current.CurrentTaskID != nil {
			currentTaskID = *o.current.CurrentTaskID
		}
	}

	total := o.tasksCompleted + o.tasksFailed
	progress := 0.0
	if total > 0 {
		progress = 100 * float64(o.tasksCompleted) / float64(total)
	}

	state := core.AgentState{
		SentinelVetoCount:   o.sentinelVetoes,
		SentinelAvgQuality:  float64(o.confidenceScore),
		CurrentTaskID:       currentTaskID,
		TaskProgressPercent: progress,
		IterationCount:      total,
	}
	trace := append([]string{}, o.reasoningTrace...)
	return gitHash, state, trace
}
