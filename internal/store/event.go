package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

const eventsTable = "events"

// EventKind names a journaled orchestrator transition.
type EventKind string

const (
	EventBootstrap    EventKind = "bootstrap"
	EventSessionStart EventKind = "session_start"
	EventSubmit       EventKind = "submit"
	EventIdleGate     EventKind = "idle_gate"
	EventRestart      EventKind = "restart"
	EventGoHome       EventKind = "go_home"
	EventComplete     EventKind = "complete"
	EventError        EventKind = "error"
)

// Event is one journal entry.
type Event struct {
	Seq       int64
	At        time.Time
	RunID     string
	Namespace string
	Kind      EventKind
	ModuleID  int
	SessionID string
	Detail    string
}

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit     int    // max results (0 = unlimited)
	Namespace string // empty = all namespaces
	Kind      EventKind
}

// EventRepo provides append and query access to the orchestrator journal.
type EventRepo interface {
	// Append records an event. Seq is assigned by the store.
	Append(ctx context.Context, e Event) error

	// Recent returns the newest events first.
	Recent(ctx context.Context, opts QueryOpts) ([]Event, error)
}

type eventRepo struct {
	db *sql.DB
}

func (r *eventRepo) Append(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	query, args := builder().
		Insert(eventsTable).
		Columns("at", "run_id", "namespace", "kind", "module_id", "session_id", "detail").
		Values(e.At.UnixNano(), e.RunID, e.Namespace, string(e.Kind), e.ModuleID, e.SessionID, e.Detail).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append %s event: %w", e.Kind, err)
	}
	return nil
}

func (r *eventRepo) Recent(ctx context.Context, opts QueryOpts) ([]Event, error) {
	sel := builder().
		Select("seq", "at", "run_id", "namespace", "kind", "module_id", "session_id", "detail").
		From(entsql.Table(eventsTable)).
		OrderBy(entsql.Desc("seq"))

	var preds []*entsql.Predicate
	if opts.Namespace != "" {
		preds = append(preds, entsql.EQ("namespace", opts.Namespace))
	}
	if opts.Kind != "" {
		preds = append(preds, entsql.EQ("kind", string(opts.Kind)))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}

	query, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e    Event
			at   int64
			kind string
		)
		if err := rows.Scan(&e.Seq, &at, &e.RunID, &e.Namespace, &kind, &e.ModuleID, &e.SessionID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At = time.Unix(0, at)
		e.Kind = EventKind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
