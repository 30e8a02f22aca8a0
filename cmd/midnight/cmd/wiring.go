package cmd

import (
	"context"
	"fmt"

	"github.com/midnight-build/midnight/internal/actor"
	"github.com/midnight-build/midnight/internal/agentloop"
	"github.com/midnight-build/midnight/internal/config"
	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
	"github.com/midnight-build/midnight/internal/gitops"
	"github.com/midnight-build/midnight/internal/handoff"
	"github.com/midnight-build/midnight/internal/llmclient"
	"github.com/midnight-build/midnight/internal/logging"
	"github.com/midnight-build/midnight/internal/metrics"
	"github.com/midnight-build/midnight/internal/orchestrator"
	"github.com/midnight-build/midnight/internal/phase"
	"github.com/midnight-build/midnight/internal/projectloader"
	"github.com/midnight-build/midnight/internal/recovery"
	"github.com/midnight-build/midnight/internal/repomap"
	"github.com/midnight-build/midnight/internal/sandbox"
	"github.com/midnight-build/midnight/internal/sentinel"
	"github.com/midnight-build/midnight/internal/stateengine"
	"github.com/midnight-build/midnight/internal/store"
	"github.com/midnight-build/midnight/internal/transporthttp"
	"github.com/midnight-build/midnight/internal/worktree"
)

// daemon bundles every wired component cmd/midnight's commands drive:
// Config→Store→...→Orchestrator→transporthttp, all built from one
// loaded Config.
type daemon struct {
	cfg      *config.Config
	store    *store.Store
	bus      *events.Bus
	log      *logging.Logger
	orch     *orchestrator.Orchestrator
	server   *transporthttp.Server
	executor *sandbox.Executor
}

// buildDaemon wires every collaborator the orchestrator needs from a
// loaded Config. It does not start anything — callers decide whether to
// run the loop, serve HTTP, or just open the store for a queue/snapshot
// subcommand.
func buildDaemon(cfg *config.Config) (*daemon, error) {
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	st, err := store.Open(cfg.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("opening queue store: %w", err)
	}

	bus := events.New(256)
	m := metrics.New()

	git, err := gitops.New()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("locating git binary: %w", err)
	}

	chat, err := llmclient.New(llmclient.Config{APIKey: cfg.LLMAPIKey, BaseURL: cfg.LLMBaseURL})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building LLM client: %w", err)
	}

	providers := []core.SandboxProvider{sandbox.NewNativeProvider()}
	executor := sandbox.NewExecutor(cfg.WorkspaceRoot, providers, cfg.Sandbox.RequestedProvider)

	act := actor.New(chat, executor, actor.Config{Model: cfg.ActorModel, MaxTokens: 4096})
	sent := sentinel.New(chat, sentinel.Config{Model: cfg.SentinelModel, QualityThreshold: cfg.QualityThreshold})
	wt := worktree.New(git)
	repos := repomap.New()

	loop := agentloop.New(
		actorRunnerAdapter{act}, sentinelVerifierAdapter{sent}, wt, repos,
		sentinel.CheckVetoConditions, bus,
		agentloop.Config{
			EnableVeto:   cfg.AgentLoop.EnableVeto,
			EnableRevert: cfg.AgentLoop.EnableRevert,
			MaxRetries:   cfg.AgentLoop.MaxRetries,
		},
	)

	loader := projectloader.New()
	phases := phase.New()

	engine := stateengine.New(st, nil, bus).WithLogger(log).WithMetricSink(m) // StateCapturer wired below, after Orchestrator exists
	rec := recovery.New(st, git)
	ho := handoff.New(st, engine, git, nil, bus, log)

	orchCfg := orchestrator.Config{
		TrustLevel:       cfg.TrustLevel,
		SnapshotInterval: cfg.SnapshotInterval(),
		HandoffConfig: handoff.Config{
			PushToRemote:      cfg.Handoff.PushToRemote,
			TriggerDeployment: cfg.Handoff.TriggerDeployment,
			CleanupWorktrees:  cfg.Handoff.CleanupWorktrees,
			NotifyWebhookURL:  cfg.Handoff.NotifyWebhook,
		},
	}
	orch := orchestrator.New(st, loader, loop, phases, ho, engine, rec, bus, m, log, orchCfg)
	engine.SetCapturer(orch)

	server := transporthttp.New(
		transporthttp.Config{ListenAddr: cfg.HTTP.ListenAddr, CORSOrigins: cfg.HTTP.CORSOrigins},
		statusAdapter{orch}, bus, m.Registry(), log,
	)

	return &daemon{cfg: cfg, store: st, bus: bus, log: log, orch: orch, server: server, executor: executor}, nil
}

func (d *daemon) Close() error {
	return d.store.Close()
}

// actorRunnerAdapter satisfies agentloop.ActorRunner over *actor.Actor;
// the two packages define structurally identical but distinctly named
// context types to avoid an import cycle, so the adapter just copies
// fields across.
type actorRunnerAdapter struct{ a *actor.Actor }

func (w actorRunnerAdapter) Execute(ctx context.Context, c agentloop.ActorContext) *core.TaskResult {
	return w.a.Execute(ctx, actor.Context{
		Task:             c.Task,
		ProjectIdeaText:  c.ProjectIdeaText,
		PreviousAttempts: c.PreviousAttempts,
		WorktreePath:     c.WorktreePath,
	})
}

// sentinelVerifierAdapter satisfies agentloop.SentinelVerifier over
// *sentinel.Sentinel, for the same reason as actorRunnerAdapter.
type sentinelVerifierAdapter struct{ s *sentinel.Sentinel }

func (w sentinelVerifierAdapter) Verify(ctx context.Context, c agentloop.SentinelContext) *core.SentinelVerdict {
	return w.s.Verify(ctx, sentinel.Context{
		Task:             c.Task,
		Diff:             c.Diff,
		ProjectPlanText:  c.ProjectPlanText,
		DefinitionOfDone: c.DefinitionOfDone,
		RepoMapText:      c.RepoMapText,
		PriorVerdicts:    c.PriorVerdicts,
	})
}

// statusAdapter satisfies transporthttp.Orchestrator by converting
// orchestrator.Status into transporthttp.Status field-for-field;
// transporthttp must not import internal/orchestrator, so the shapes
// are declared independently and reconciled only here, at the wiring
// site.
type statusAdapter struct{ o *orchestrator.Orchestrator }

func (a statusAdapter) StatusAsync(ctx context.Context) (transporthttp.Status, error) {
	st, err := a.o.StatusAsync(ctx)
	if err != nil {
		return transporthttp.Status{}, err
	}
	return transporthttp.Status{
		Running:            st.Running,
		CurrentProjectID:   st.CurrentProjectID,
		CurrentProjectName: st.CurrentProjectName,
		QueueLength:        st.QueueLength,
		ConfidenceScore:    st.ConfidenceScore,
		ConfidenceStatus:   st.ConfidenceStatus,
		UptimeSeconds:      st.UptimeSeconds,
		TasksCompleted:     st.TasksCompleted,
		TasksFailed:        st.TasksFailed,
		ActiveCooldowns:    st.ActiveCooldowns,
	}, nil
}
