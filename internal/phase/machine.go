// Package phase implements the orchestrator's legal-transition graph: the
// nine states a project moves through, guarded transitions, a bounded
// history buffer, and synchronous listeners.
package phase

import (
	"sync"
	"time"

	"github.com/midnight-build/midnight/internal/core"
)

// MaxHistory bounds the transition history buffer.
const MaxHistory = 100

// Transition records one completed phase change.
type Transition struct {
	From core.Phase
	To   core.Phase
	At   time.Time
}

// Guard is consulted before a transition is allowed to proceed. Returning
// false denies the transition with no state change and no history entry.
type Guard func(from, to core.Phase) bool

// Hook runs on entering or exiting a phase.
type Hook func(p core.Phase)

// Listener is notified after a successful transition with (new, previous).
type Listener func(newPhase, previous core.Phase)

// legalTransitions is the graph of legal phase-to-phase transitions.
var legalTransitions = map[core.Phase]map[core.Phase]bool{
	core.PhaseIdle:      {core.PhaseLoading: true},
	core.PhaseLoading:   {core.PhaseResearch: true, core.PhaseError: true, core.PhaseIdle: true},
	core.PhaseResearch:  {core.PhasePlanning: true, core.PhaseError: true, core.PhaseIdle: true},
	core.PhasePlanning:  {core.PhaseBuilding: true, core.PhaseError: true, core.PhaseIdle: true},
	core.PhaseBuilding:  {core.PhaseVerifying: true, core.PhaseCooldown: true, core.PhaseError: true, core.PhaseIdle: true},
	core.PhaseVerifying: {core.PhaseBuilding: true, core.PhaseHandoff: true, core.PhaseError: true, core.PhaseIdle: true},
	core.PhaseHandoff:   {core.PhaseLoading: true, core.PhaseIdle: true},
	core.PhaseCooldown:  {core.PhaseBuilding: true, core.PhaseIdle: true},
	core.PhaseError:     {core.PhaseIdle: true, core.PhaseLoading: true},
}

// Legal reports whether a transition from "from" to "to" is in the graph.
func Legal(from, to core.Phase) bool {
	return legalTransitions[from][to]
}

// Machine drives one project's phase. It is not safe for concurrent use
// across multiple projects — projects are serialized globally, so one
// Machine per in-flight project is the expected usage.
type Machine struct {
	mu        sync.Mutex
	current   core.Phase
	history   []Transition
	guards    map[core.Phase][]Guard
	onEnter   map[core.Phase][]Hook
	onExit    map[core.Phase][]Hook
	listeners []Listener
}

// New creates a Machine starting at PhaseIdle.
func New() *Machine {
	return &Machine{
		current: core.PhaseIdle,
		guards:  make(map[core.Phase][]Guard),
		onEnter: make(map[core.Phase][]Hook),
		onExit:  make(map[core.Phase][]Hook),
	}
}

// Current returns the machine's current phase.
func (m *Machine) Current() core.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of the bounded transition history, oldest first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// OnEnter registers a hook that runs when entering phase p.
func (m *Machine) OnEnter(p core.Phase, h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnter[p] = append(m.onEnter[p], h)
}

// OnExit registers a hook that runs when exiting phase p.
func (m *Machine) OnExit(p core.Phase, h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit[p] = append(m.onExit[p], h)
}

// Guard registers a guard condition evaluated before transitioning into p.
func (m *Machine) Guard(p core.Phase, g Guard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guards[p] = append(m.guards[p], g)
}

// Listen registers a listener notified after every successful transition.
func (m *Machine) Listen(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Transition attempts to move from the current phase to "to". It returns
// false with no state change if "to" is not legal from the current phase
// or any registered guard denies it.
func (m *Machine) Transition(to core.Phase) bool {
	m.mu.Lock()
	from := m.current
	if !legalTransitions[from][to] {
		m.mu.Unlock()
		return false
	}
	for _, g := range m.guards[to] {
		if !g(from, to) {
			m.mu.Unlock()
			return false
		}
	}
	exitHooks := append([]Hook(nil), m.onExit[from]...)
	m.mu.Unlock()

	runHooksSafely(exitHooks, from)

	m.mu.Lock()
	m.current = to
	m.history = append(m.history, Transition{From: from, To: to, At: time.Now()})
	if len(m.history) > MaxHistory {
		m.history = m.history[len(m.history)-MaxHistory:]
	}
	enter := append([]Hook(nil), m.onEnter[to]...)
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	runHooksSafely(enter, to)
	notifyListenersSafely(listeners, to, from)
	return true
}

// ForceState bypasses guards and legality checks entirely. Used only by
// recovery to restore a phase from a snapshot.
func (m *Machine) ForceState(to core.Phase) {
	m.mu.Lock()
	from := m.current
	m.current = to
	m.history = append(m.history, Transition{From: from, To: to, At: time.Now()})
	if len(m.history) > MaxHistory {
		m.history = m.history[len(m.history)-MaxHistory:]
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	notifyListenersSafely(listeners, to, from)
}

func runHooksSafely(hooks []Hook, p core.Phase) {
	for _, h := range hooks {
		func() {
			defer func() { recover() }()
			h(p)
		}()
	}
}

func notifyListenersSafely(listeners []Listener, newPhase, previous core.Phase) {
	for _, l := range listeners {
		func() {
			defer func() { recover() }()
			l(newPhase, previous)
		}()
	}
}
