// Package stateengine is the snapshot/state engine: periodic agent-state
// capture, cooldown entry/exit, and structured logging/metrics recording,
// all routed through the durable store's serialized write path. The
// checkpoint shape is typed records appended to state; the cooldown's
// "named target that opens until cleared" shape generalizes from a fixed
// failure-count breaker to a provider-scoped timed one.
// golang.org/x/sync/singleflight dedupes concurrent snapshot saves for
// one project, the way the breaker avoids redundant trip bookkeeping.
package stateengine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
	"github.com/midnight-build/midnight/internal/store"
)

// Store is the subset of store.Store the state engine depends on.
type Store interface {
	GetProject(ctx context.Context, id core.ProjectID) (*core.Project, error)
	SaveSnapshot(ctx context.Context, snap *core.StateSnapshot) error
	LoadLatestSnapshot(ctx context.Context, projectID core.ProjectID) (*core.StateSnapshot, error)
	LoadSnapshot(ctx context.Context, id core.SnapshotID) (*core.StateSnapshot, error)
	ListSnapshots(ctx context.Context, projectID core.ProjectID) ([]*core.StateSnapshot, error)
	AddCooldown(ctx context.Context, c *core.Cooldown) error
	CheckCooldowns(ctx context.Context, now int64) ([]*core.Cooldown, error)
	ProcessExpiredCooldowns(ctx context.Context, now int64) ([]*core.Cooldown, error)
	AppendLog(ctx context.Context, level store.LogLevel, source, message string, fields map[string]interface{}, projectID, taskID string) error
	RecordMetric(ctx context.Context, name string, value float64, projectID string, tags map[string]string) error
}

// Logger is the live sink Log mirrors into alongside the durable row.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricSink is the live sink RecordMetric mirrors into alongside the
// durable row; internal/metrics.Metrics satisfies it.
type MetricSink interface {
	RecordMetric(name string, value float64, projectID string)
}

// StateCapturer produces the in-memory state a snapshot should carry.
// The agent loop / orchestrator implement this; the reasoning trace is
// the last 10 truncated assistant messages (see DESIGN.md).
type StateCapturer interface {
	CaptureState(projectID core.ProjectID) (gitHash string, state core.AgentState, reasoningTrace []string)
}

// Engine is the snapshot/state engine.
type Engine struct {
	store    Store
	capturer StateCapturer
	bus      *events.Bus
	log      Logger
	sink     MetricSink

	group singleflight.Group

	mu          sync.Mutex
	timerCancel context.CancelFunc
}

// New builds an Engine over a store, a state capturer, and an event bus.
// capturer may be nil if the caller will supply one via SetCapturer once
// it exists — the orchestrator implements StateCapturer itself but needs
// an Engine to construct, so the wiring site builds the Engine first and
// closes the loop after.
func New(store Store, capturer StateCapturer, bus *events.Bus) *Engine {
	return &Engine{store: store, capturer: capturer, bus: bus}
}

// SetCapturer assigns the state capturer after construction, closing the
// Engine<->Orchestrator construction cycle.
func (e *Engine) SetCapturer(capturer StateCapturer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capturer = capturer
}

// WithLogger mirrors Log rows into a live logger in addition to the
// durable table. Chainable; nil-safe.
func (e *Engine) WithLogger(log Logger) *Engine {
	e.log = log
	return e
}

// WithMetricSink mirrors RecordMetric samples into a live sink (the
// Prometheus registry) in addition to the durable table.
func (e *Engine) WithMetricSink(sink MetricSink) *Engine {
	e.sink = sink
	return e
}

// SaveSnapshot captures current state for a project and persists it,
// emitting snapshot_created. Retention (at most 20 snapshots per
// project) is enforced by the store's SaveSnapshot itself.
func (e *Engine) SaveSnapshot(ctx context.Context, projectID core.ProjectID) (core.SnapshotID, error) {
	v, err, _ := e.group.Do(string(projectID), func() (interface{}, error) {
		gitHash, state, trace := e.capturer.CaptureState(projectID)
		snap := core.NewSnapshot(projectID, gitHash, state, trace)
		if err := e.store.SaveSnapshot(ctx, snap); err != nil {
			return core.SnapshotID(""), err
		}
		e.publish(events.NewSnapshotCreated(projectID, snap.ID))
		return snap.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(core.SnapshotID), nil
}

// StartAutoSnapshot starts a periodic timer that calls SaveSnapshot for
// projectID every interval, taking one snapshot immediately. Calling
// this again cancels the previous timer first (at most one active
// project's auto-snapshot timer at a time, matching Midnight's
// single-project-at-a-time scheduling model).
func (e *Engine) StartAutoSnapshot(ctx context.Context, projectID core.ProjectID, interval time.Duration) {
	e.StopAutoSnapshot()

	timerCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.timerCancel = cancel
	e.mu.Unlock()

	_, _ = e.SaveSnapshot(timerCtx, projectID)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-timerCtx.Done():
				return
			case <-ticker.C:
				_, _ = e.SaveSnapshot(timerCtx, projectID)
			}
		}
	}()
}

// StopAutoSnapshot cancels any running auto-snapshot timer. Idempotent.
func (e *Engine) StopAutoSnapshot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timerCancel != nil {
		e.timerCancel()
		e.timerCancel = nil
	}
}

// LoadLatestSnapshot, LoadSnapshot, and ListSnapshots pass through to the
// store's read paths.
func (e *Engine) LoadLatestSnapshot(ctx context.Context, projectID core.ProjectID) (*core.StateSnapshot, error) {
	return e.store.LoadLatestSnapshot(ctx, projectID)
}

func (e *Engine) LoadSnapshot(ctx context.Context, id core.SnapshotID) (*core.StateSnapshot, error) {
	return e.store.LoadSnapshot(ctx, id)
}

func (e *Engine) ListSnapshots(ctx context.Context, projectID core.ProjectID) ([]*core.StateSnapshot, error) {
	return e.store.ListSnapshots(ctx, projectID)
}

// EnterCooldown snapshots the current project (if any), persists the
// cooldown keyed to that snapshot, and emits cooldown_entered.
func (e *Engine) EnterCooldown(ctx context.Context, provider string, resumeAt time.Time, reason string, currentProjectID core.ProjectID) (*core.Cooldown, error) {
	var snapshotID core.SnapshotID
	if currentProjectID != "" {
		id, err := e.SaveSnapshot(ctx, currentProjectID)
		if err == nil {
			snapshotID = id
		}
	}

	cooldown := core.NewCooldown(provider, resumeAt, snapshotID, reason)
	if err := e.store.AddCooldown(ctx, cooldown); err != nil {
		return nil, err
	}
	e.publish(events.NewCooldownEntered(currentProjectID, provider, resumeAt))
	return cooldown, nil
}

// CheckCooldowns returns active (not-yet-expired) cooldowns.
func (e *Engine) CheckCooldowns(ctx context.Context) ([]*core.Cooldown, error) {
	return e.store.CheckCooldowns(ctx, time.Now().UnixMilli())
}

// ProcessExpiredCooldowns deletes expired cooldowns and emits
// cooldown_exited for each.
func (e *Engine) ProcessExpiredCooldowns(ctx context.Context) ([]*core.Cooldown, error) {
	expired, err := e.store.ProcessExpiredCooldowns(ctx, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	for _, c := range expired {
		e.publish(events.NewCooldownExited("", c.Provider))
	}
	return expired, nil
}

// Log appends a structured log row and mirrors it to the live logger.
// projectID/taskID are optional. Both sinks always receive the entry,
// never just one.
func (e *Engine) Log(ctx context.Context, level store.LogLevel, source, message string, fields map[string]interface{}, projectID, taskID string) error {
	if e.log != nil {
		args := []any{"source", source}
		if projectID != "" {
			args = append(args, "project_id", projectID)
		}
		if taskID != "" {
			args = append(args, "task_id", taskID)
		}
		for k, v := range fields {
			args = append(args, k, v)
		}
		switch level {
		case store.LogDebug:
			e.log.Debug(message, args...)
		case store.LogWarn:
			e.log.Warn(message, args...)
		case store.LogError:
			e.log.Error(message, args...)
		default:
			e.log.Info(message, args...)
		}
	}
	return e.store.AppendLog(ctx, level, source, message, fields, projectID, taskID)
}

// RecordMetric appends one metric sample and mirrors it to the live sink.
func (e *Engine) RecordMetric(ctx context.Context, name string, value float64, projectID string, tags map[string]string) error {
	if e.sink != nil {
		e.sink.RecordMetric(name, value, projectID)
	}
	return e.store.RecordMetric(ctx, name, value, projectID, tags)
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
