// Package widget renders a single assessment module in the terminal and
// reports the user's answers once the module is finished.
package widget

import (
	"encoding/json"
	"sync"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/cogtest/internal/assessment"
)

// Widget is the interactive body of one module session.
type Widget interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Widget, tea.Cmd)
	View(width, height int) string
}

// Done receives a module's answer payload and returns the command that
// forwards it.
type Done func(payload json.RawMessage) tea.Cmd

// Factory builds a widget for a session. language is the UI language the
// questions should be shown in.
type Factory func(s assessment.Session, language string, done Done) Widget

// CompletedMsg is the default message emitted when a widget finishes.
type CompletedMsg struct {
	SessionID string
	Payload   json.RawMessage
}

// Emit returns a Done that sends a CompletedMsg for sessionID.
func Emit(sessionID string) Done {
	return func(payload json.RawMessage) tea.Cmd {
		return func() tea.Msg {
			return CompletedMsg{SessionID: sessionID, Payload: payload}
		}
	}
}

// Once lets a Done fire a single time. Later calls return nil.
type Once struct {
	mu    sync.Mutex
	done  Done
	fired bool
}

// NewOnce guards done.
func NewOnce(done Done) *Once {
	return &Once{done: done}
}

// Complete forwards payload the first time it is called.
func (o *Once) Complete(payload json.RawMessage) tea.Cmd {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fired || o.done == nil {
		return nil
	}
	o.fired = true
	return o.done(payload)
}

// Fired reports whether Complete has already run.
func (o *Once) Fired() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fired
}
