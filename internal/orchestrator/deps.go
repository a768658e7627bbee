package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/assessment"
	"github.com/abhisek/cogtest/internal/metrics"
	"github.com/abhisek/cogtest/internal/store"
)

// CatalogClient fetches the module list.
type CatalogClient interface {
	Modules(ctx context.Context) (assessment.Catalog, error)
}

// AttemptClient reads attempt counters.
type AttemptClient interface {
	AttemptStatus(ctx context.Context, userID string) (assessment.AttemptStatus, error)
}

// SessionClient starts module sessions and submits their answers.
type SessionClient interface {
	StartSession(ctx context.Context, moduleID int, req assessment.StartRequest) (assessment.Session, error)
	Submit(ctx context.Context, moduleID int, sessionID string, payload json.RawMessage) (assessment.SubmitResult, error)
}

// Abandoner discards a user's open sessions on the server.
type Abandoner interface {
	AbandonInProgress(ctx context.Context, userID string) error
}

// Store is the persisted state the orchestrator reads and writes.
// *store.Facade implements it.
type Store interface {
	Progress() store.Progress
	SetProgress(p store.Progress)
	LastActiveAt() (time.Time, bool)
	SetLastActiveAt(t time.Time)
	ClearFlow()
}

// Navigator moves the presentation layer between destinations.
type Navigator interface {
	// ToFlowStart returns to the first screen of the assessment flow.
	ToFlowStart()
	// ToHome leaves the assessment.
	ToHome()
}

// ActivityMarker resets the idle clock. *idle.Monitor implements it.
type ActivityMarker interface {
	MarkActive()
}

// Journal records orchestrator events. store.EventRepo implements it.
type Journal interface {
	Append(ctx context.Context, e store.Event) error
}

// Deps are the orchestrator's collaborators. Catalog, Sessions and Store
// are required.
type Deps struct {
	Catalog   CatalogClient
	Attempts  AttemptClient
	Sessions  SessionClient
	Abandoner Abandoner
	Store     Store

	Navigator Navigator
	Activity  ActivityMarker
	Journal   Journal
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Now       func() time.Time

	// OnAllModulesComplete runs once the last module is submitted.
	OnAllModulesComplete func()
}

// Config holds per-run settings.
type Config struct {
	UserID   string
	Language string

	// Namespace labels journal entries; it matches the Store namespace.
	Namespace string

	// IdleTimeout is the idle threshold applied at load time. Zero
	// disables the load-time check.
	IdleTimeout time.Duration

	// CleanupWait bounds how long a session start waits for a pending
	// abandon call.
	CleanupWait time.Duration
}

const defaultCleanupWait = 5 * time.Second

type nopNavigator struct{}

func (nopNavigator) ToFlowStart() {}
func (nopNavigator) ToHome()      {}
