package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
)

// StateID names a state inside a Graph.
type StateID string

const (
	// StateStart is entered when the dialog is created.
	StateStart StateID = "start"
	// StateClose runs once when the dialog terminates and is never left.
	StateClose StateID = "close"
)

type transitionKind uint8

const (
	transitionInvalid transitionKind = iota
	transitionStay
	transitionGoTo
	transitionClose
)

// Transition is the result of a state function. The zero value is invalid.
type Transition struct {
	kind transitionKind
	next StateID
}

// Stay keeps the current state.
func Stay() Transition { return Transition{kind: transitionStay} }

// GoTo moves to state next.
func GoTo(next StateID) Transition { return Transition{kind: transitionGoTo, next: next} }

// Close terminates the dialog.
func Close() Transition { return Transition{kind: transitionClose} }

func (t Transition) String() string {
	switch t.kind {
	case transitionStay:
		return "stay"
	case transitionGoTo:
		return "goto:" + string(t.next)
	case transitionClose:
		return "close"
	default:
		return "invalid"
	}
}

// StateFunc handles one event for dialog data d.
type StateFunc[T any] func(d T, ctx context.Context, env Env, ev Event) (Transition, error)

// Graph is the fixed state table of one dialog type.
type Graph[T any] struct {
	name    string
	timeout time.Duration
	states  map[StateID]StateFunc[T]
}

// NewGraph builds a dialog type. It panics when states lacks StateStart or
// StateClose, so graphs are declared as package variables.
func NewGraph[T any](name string, timeout time.Duration, states map[StateID]StateFunc[T]) *Graph[T] {
	for _, id := range []StateID{StateStart, StateClose} {
		if states[id] == nil {
			panic(fmt.Sprintf("dialog %s: missing %q state", name, id))
		}
	}
	table := make(map[StateID]StateFunc[T], len(states))
	for id, fn := range states {
		table[id] = fn
	}
	return &Graph[T]{name: name, timeout: timeout, states: table}
}

// Name returns the dialog type name.
func (g *Graph[T]) Name() string { return g.name }

// Timeout returns the default idle timeout.
func (g *Graph[T]) Timeout() time.Duration { return g.timeout }

// Has reports whether the graph defines state id.
func (g *Graph[T]) Has(id StateID) bool {
	_, ok := g.states[id]
	return ok
}

// Machine runs a Graph over dialog data T. It is not safe for concurrent use;
// the owning session serializes events.
type Machine[T any] struct {
	graph   *Graph[T]
	data    T
	env     Env
	timeout time.Duration
	state   StateID
	active  bool
}

var _ Dialog = (*Machine[struct{}])(nil)

// New creates an active dialog positioned at StateStart. A non-positive
// timeout selects the graph default.
func New[T any](g *Graph[T], data T, env Env, timeout time.Duration) *Machine[T] {
	if timeout <= 0 {
		timeout = g.timeout
	}
	return &Machine[T]{
		graph:   g,
		data:    data,
		env:     env,
		timeout: timeout,
		state:   StateStart,
		active:  true,
	}
}

func (m *Machine[T]) Name() string           { return m.graph.name }
func (m *Machine[T]) State() StateID         { return m.state }
func (m *Machine[T]) Active() bool           { return m.active }
func (m *Machine[T]) Timeout() time.Duration { return m.timeout }

// Handle runs the current state function on ev and applies its transition.
func (m *Machine[T]) Handle(ctx context.Context, ev Event) bool {
	if !m.active {
		return false
	}
	ctx = m.logContext(ctx)
	start := time.Now()
	tr, err := m.run(ctx, m.state, ev)
	if err != nil {
		logger.Error(ctx, logger.CompDialog, "dialog.state.failed",
			slog.String("status", "error"),
			slog.String("kind", ev.Kind.String()),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return false
	}

	switch tr.kind {
	case transitionStay:
	case transitionGoTo:
		if tr.next == StateClose {
			m.Close(ctx)
			break
		}
		if !m.graph.Has(tr.next) {
			logger.Warn(ctx, logger.CompDialog, "dialog.transition.unknown",
				slog.String("status", "skip"),
				slog.String("next_state", string(tr.next)),
			)
			return false
		}
		m.state = tr.next
	case transitionClose:
		m.Close(ctx)
	default:
		logger.Warn(ctx, logger.CompDialog, "dialog.transition.invalid",
			slog.String("status", "skip"),
			slog.String("transition", tr.String()),
		)
		return false
	}

	if logger.ShouldSampleDebug("dialog.state.done") {
		logger.Debug(ctx, logger.CompDialog, "dialog.state.done",
			slog.String("status", "ok"),
			slog.String("kind", ev.Kind.String()),
			slog.String("transition", tr.String()),
			slog.String("next_state", string(m.state)),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return true
}

// Close runs the close state once and deactivates the dialog.
func (m *Machine[T]) Close(ctx context.Context) {
	if !m.active {
		return
	}
	m.active = false
	m.state = StateClose
	ctx = m.logContext(ctx)
	if _, err := m.run(ctx, StateClose, Event{ConversationID: m.env.ConversationID}); err != nil {
		logger.Error(ctx, logger.CompDialog, "dialog.close.failed",
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Debug(ctx, logger.CompDialog, "dialog.close",
		slog.String("status", "ok"),
	)
}

// run executes one state function, turning panics into errors.
func (m *Machine[T]) run(ctx context.Context, id StateID, ev Event) (tr Transition, err error) {
	fn := m.graph.states[id]
	if fn == nil {
		return Transition{}, fmt.Errorf("state %q not defined", id)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Debug(ctx, logger.CompDialog, "dialog.state.panic",
				slog.String("stack", string(debug.Stack())),
			)
			tr, err = Transition{}, fmt.Errorf("panic in state %q: %v", id, r)
		}
	}()
	return fn(m.data, ctx, m.env, ev)
}

func (m *Machine[T]) logContext(ctx context.Context) context.Context {
	ctx = logger.WithConversation(ctx, m.env.ConversationID)
	return logger.WithDialog(ctx, m.graph.name, string(m.state))
}
