package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/cogtest/internal/assessment"
)

// State is the orchestrator's lifecycle state.
type State int

const (
	StateBootstrapping State = iota
	StateIdleGate
	StateActive
	StateError
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateIdleGate:
		return "idle_gate"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// GateKind is the single action an idle gate admits.
type GateKind int

const (
	GateNone GateKind = iota

	// GateRestart is shown while attempts remain.
	GateRestart

	// GateGoHome is shown once attempts are exhausted.
	GateGoHome
)

func (g GateKind) String() string {
	switch g {
	case GateRestart:
		return "restart"
	case GateGoHome:
		return "go_home"
	}
	return "none"
}

var (
	// ErrFatalBootstrap means the assessment cannot be shown. There is no
	// retry path other than starting over.
	ErrFatalBootstrap = errors.New("assessment could not be loaded")

	// ErrRecoverableSubmit means a submission did not go through. The
	// previous session stays active and the user may retry.
	ErrRecoverableSubmit = errors.New("submission failed")

	ErrNotActive      = errors.New("no active session")
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	ErrNoGate         = errors.New("idle gate does not admit this action")

	// ErrStale is returned when a result arrived after the orchestrator had
	// moved on; the result was discarded.
	ErrStale = errors.New("result discarded: superseded")
)

// SubmitError describes a recoverable submission failure. errors.Is matches
// it against ErrRecoverableSubmit; the adapter error is kept in Cause for
// logging only.
type SubmitError struct {
	ModuleID int

	// Stage is "submit" when the answers were not accepted, or "start"
	// when they were but the next module's session could not be started.
	Stage string

	Cause error
}

func (e *SubmitError) Error() string {
	if e.Stage == "start" {
		return fmt.Sprintf("module %d was saved but the next one could not be started", e.ModuleID)
	}
	return fmt.Sprintf("answers for module %d could not be sent", e.ModuleID)
}

func (e *SubmitError) Unwrap() error { return ErrRecoverableSubmit }

func fatal(reason string) error {
	return fmt.Errorf("%w: %s", ErrFatalBootstrap, reason)
}

// View is a point-in-time copy of the orchestrator for rendering.
type View struct {
	State State
	RunID string

	// Session is the module to render while Active.
	Session *assessment.Session

	// Position is the 1-based place of the active module; Total is the
	// catalog size.
	Position int
	Total    int

	Gate    GateKind
	IdleFor time.Duration

	// Attempts is the last attempt status seen, if any.
	Attempts *assessment.AttemptStatus

	Submitting bool

	// Err is ErrFatalBootstrap-wrapped in StateError, or the last
	// *SubmitError while Active.
	Err error
}
