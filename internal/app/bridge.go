package app

import (
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/cogtest/internal/screen"
)

type destination int

const (
	destHome destination = iota
	destFlowStart
)

// navigateMsg moves the router to a destination chosen by the orchestrator.
type navigateMsg struct {
	to destination
}

// Bridge delivers messages from outside the Bubble Tea loop to the running
// program. It implements orchestrator.Navigator and is the idle monitor's
// callback target. Messages sent before Attach are dropped.
type Bridge struct {
	mu sync.Mutex
	p  *tea.Program
}

// NewBridge returns a detached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes subsequent messages to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.p = p
}

// ToFlowStart implements orchestrator.Navigator.
func (b *Bridge) ToFlowStart() { b.send(navigateMsg{to: destFlowStart}) }

// ToHome implements orchestrator.Navigator.
func (b *Bridge) ToHome() { b.send(navigateMsg{to: destHome}) }

// OnIdle is passed to idle.Monitor.Start.
func (b *Bridge) OnIdle(idleFor time.Duration) {
	b.send(screen.IdleMsg{IdleFor: idleFor})
}

// send never blocks: Program.Send waits for the event loop, and callers
// include the idle monitor's goroutine, which Stop waits on from inside
// Update.
func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p == nil {
		return
	}
	go p.Send(msg)
}
