// Package assessment is the screen that runs the module sequence.
package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	tea "charm.land/bubbletea/v2"
	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/orchestrator"
	"github.com/abhisek/cogtest/internal/router"
	"github.com/abhisek/cogtest/internal/screen"
	"github.com/abhisek/cogtest/internal/ui/components"
	"github.com/abhisek/cogtest/internal/ui/layout"
	"github.com/abhisek/cogtest/internal/widget"
)

// Orchestrator is the part of *orchestrator.Orchestrator the screen drives.
type Orchestrator interface {
	Start(ctx context.Context) error
	Submit(ctx context.Context, payload json.RawMessage) error
	HandleIdle(ctx context.Context, idleFor time.Duration) orchestrator.GateKind
	Restart(ctx context.Context) error
	GoHome(ctx context.Context) error
	Snapshot() orchestrator.View
}

// IdleControl starts and stops idle tracking for the lifetime of the screen.
type IdleControl interface {
	Start()
	Stop()
}

// Deps are the screen's collaborators. Idle and Log may be nil.
type Deps struct {
	Orchestrator Orchestrator
	Widgets      *widget.Registry
	Language     string
	Idle         IdleControl
	Log          *zap.Logger
}

// Screen shows the active module, the idle gate, and the terminal states.
type Screen struct {
	deps Deps
	view orchestrator.View

	widget    widget.Widget
	sessionID string

	// payload is kept so a failed submission can be retried.
	payload  json.RawMessage
	busy     bool
	tracking bool

	gateButton components.Button
}

var _ screen.Screen = (*Screen)(nil)

// New creates the assessment screen.
func New(deps Deps) *Screen {
	if deps.Widgets == nil {
		deps.Widgets = widget.NewRegistry()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Screen{deps: deps, busy: true}
}

func (s *Screen) Title() string { return "Assessment" }

func (s *Screen) Init() tea.Cmd {
	orch := s.deps.Orchestrator
	return func() tea.Msg {
		return startedMsg{Err: orch.Start(context.Background())}
	}
}

// Close stops idle tracking.
func (s *Screen) Close() {
	s.stopIdle()
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case startedMsg:
		s.busy = false
		if msg.Err != nil && !errors.Is(msg.Err, orchestrator.ErrFatalBootstrap) {
			s.deps.Log.Warn("start assessment", zap.Error(msg.Err))
		}
		return s, s.sync()

	case screen.IdleMsg:
		return s, s.handleIdle(msg.IdleFor)

	case gateMsg:
		return s, s.sync()

	case widget.CompletedMsg:
		if msg.SessionID != s.sessionID || s.busy {
			return s, nil
		}
		s.payload = msg.Payload
		return s, s.submit()

	case submittedMsg:
		s.busy = false
		if msg.Err != nil && !errors.Is(msg.Err, orchestrator.ErrStale) {
			s.deps.Log.Warn("submit module", zap.Error(msg.Err))
		}
		return s, s.sync()

	case gateActionMsg:
		s.busy = false
		if msg.Err != nil {
			s.deps.Log.Warn("idle gate action", zap.Error(msg.Err))
		}
		return s, s.sync()

	case tea.KeyMsg:
		return s, s.handleKey(msg)
	}

	if s.view.State == orchestrator.StateActive && s.widget != nil {
		var cmd tea.Cmd
		s.widget, cmd = s.widget.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *Screen) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch s.view.State {
	case orchestrator.StateIdleGate:
		if s.busy {
			return nil
		}
		var cmd tea.Cmd
		s.gateButton, cmd = s.gateButton.Update(msg)
		return cmd

	case orchestrator.StateError, orchestrator.StateCompleted:
		if msg.String() == "enter" {
			s.stopIdle()
			return func() tea.Msg { return router.ResetScreenMsg{} }
		}
		return nil

	case orchestrator.StateActive:
		if s.submitFailed() && !s.busy && msg.String() == "r" {
			return s.submit()
		}
		if s.widget != nil {
			var cmd tea.Cmd
			s.widget, cmd = s.widget.Update(msg)
			return cmd
		}
	}
	return nil
}

func (s *Screen) handleIdle(idleFor time.Duration) tea.Cmd {
	if s.view.State != orchestrator.StateActive {
		return nil
	}
	orch := s.deps.Orchestrator
	return func() tea.Msg {
		return gateMsg{Kind: orch.HandleIdle(context.Background(), idleFor)}
	}
}

func (s *Screen) submit() tea.Cmd {
	s.busy = true
	orch, payload := s.deps.Orchestrator, s.payload
	return func() tea.Msg {
		return submittedMsg{Err: orch.Submit(context.Background(), payload)}
	}
}

func (s *Screen) gateAction(kind orchestrator.GateKind) func() tea.Cmd {
	return func() tea.Cmd {
		s.busy = true
		orch := s.deps.Orchestrator
		return func() tea.Msg {
			if kind == orchestrator.GateGoHome {
				return gateActionMsg{Err: orch.GoHome(context.Background())}
			}
			return gateActionMsg{Err: orch.Restart(context.Background())}
		}
	}
}

// sync refreshes the cached view and rebuilds the widget when the active
// session changed.
func (s *Screen) sync() tea.Cmd {
	s.view = s.deps.Orchestrator.Snapshot()

	switch s.view.State {
	case orchestrator.StateActive, orchestrator.StateIdleGate:
		s.startIdle()
	default:
		s.stopIdle()
	}

	if s.view.State == orchestrator.StateIdleGate {
		if s.view.Gate == orchestrator.GateGoHome {
			s.gateButton = components.NewButton("Go home", "h", s.gateAction(orchestrator.GateGoHome))
		} else {
			s.gateButton = components.NewButton("Restart", "r", s.gateAction(orchestrator.GateRestart))
		}
	}

	sess := s.view.Session
	if s.view.State != orchestrator.StateActive || sess == nil || sess.SessionID == s.sessionID {
		return nil
	}
	s.sessionID = sess.SessionID
	s.payload = nil
	s.widget = s.deps.Widgets.New(*sess, s.deps.Language, widget.Emit(sess.SessionID))
	return s.widget.Init()
}

func (s *Screen) submitFailed() bool {
	return s.payload != nil && errors.Is(s.view.Err, orchestrator.ErrRecoverableSubmit)
}

func (s *Screen) startIdle() {
	if s.tracking || s.deps.Idle == nil {
		return
	}
	s.tracking = true
	s.deps.Idle.Start()
}

func (s *Screen) stopIdle() {
	if !s.tracking {
		return
	}
	s.tracking = false
	s.deps.Idle.Stop()
}

// Status shows the module position while a module is active.
func (s *Screen) Status() string {
	if s.view.State != orchestrator.StateActive || s.view.Total == 0 {
		return ""
	}
	return components.NewProgressBar(s.view.Position, s.view.Total, 0).Label()
}

func (s *Screen) KeyHints() []layout.KeyHint {
	switch s.view.State {
	case orchestrator.StateIdleGate:
		if s.view.Gate == orchestrator.GateGoHome {
			return []layout.KeyHint{{Key: "H", Description: "Go home"}}
		}
		return []layout.KeyHint{{Key: "R", Description: "Restart"}}
	case orchestrator.StateError, orchestrator.StateCompleted:
		return []layout.KeyHint{{Key: "Enter", Description: "Home"}, {Key: "Ctrl+C", Description: "Quit"}}
	case orchestrator.StateActive:
		if s.submitFailed() && !s.busy {
			return []layout.KeyHint{{Key: "R", Description: "Retry"}, {Key: "Ctrl+C", Description: "Quit"}}
		}
		return []layout.KeyHint{{Key: "Enter", Description: "Submit"}, {Key: "Ctrl+C", Description: "Quit"}}
	}
	return []layout.KeyHint{{Key: "Ctrl+C", Description: "Quit"}}
}

// BlocksBack keeps the idle gate from being dismissed with Esc.
func (s *Screen) BlocksBack() bool {
	return s.view.State == orchestrator.StateIdleGate
}
