package screen

import (
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/cogtest/internal/ui/layout"
)

// Screen defines the interface for all application screens.
type Screen interface {
	// Init returns an initial command when the screen is first created.
	Init() tea.Cmd

	// Update handles messages and returns updated screen + command.
	Update(msg tea.Msg) (Screen, tea.Cmd)

	// View renders the screen content (excluding header/footer).
	View(width, height int) string

	// Title returns the screen name for the header.
	Title() string
}

// KeyHintProvider is an optional interface that screens can implement
// to provide custom footer key hints.
type KeyHintProvider interface {
	KeyHints() []layout.KeyHint
}

// StatusProvider is implemented by screens that show a status on the right
// of the header, such as the current module position.
type StatusProvider interface {
	Status() string
}

// Closer is implemented by screens that hold resources while on the stack.
// The router calls Close when the screen is removed.
type Closer interface {
	Close()
}

// IdleMsg reports that the user has been inactive for IdleFor.
type IdleMsg struct {
	IdleFor time.Duration
}

// BackBlocker is implemented by screens that must not be left with Esc
// while BlocksBack returns true.
type BackBlocker interface {
	BlocksBack() bool
}
