// Package orchestrator decides which module session a user sees: where an
// attempt starts or resumes, how submissions advance it, and how an idle
// user is gated and restarted.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/assessment"
	"github.com/abhisek/cogtest/internal/store"
)

// Orchestrator is the session state machine. All methods are safe for
// concurrent use; network calls run without the lock held and their results
// are applied only if no other transition happened in the meantime.
type Orchestrator struct {
	cfg   Config
	deps  Deps
	log   *zap.Logger
	now   func() time.Time
	runID string

	bgCtx    context.Context
	bgCancel context.CancelFunc

	mu            sync.Mutex
	state         State
	epoch         uint64
	catalog       assessment.Catalog
	session       *assessment.Session
	gate          GateKind
	idleFor       time.Duration
	err           error
	submitting    bool
	pendingNext   int
	status        *assessment.AttemptStatus
	lastCompleted *int
	seenProgress  bool
	cleanup       chan struct{}
	fresh         chan struct{} // closed when the fresh start in flight returns
	closed        bool
}

// New creates an Orchestrator in StateBootstrapping.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Catalog == nil || deps.Sessions == nil || deps.Store == nil {
		return nil, errors.New("orchestrator: catalog, sessions and store are required")
	}
	if deps.Navigator == nil {
		deps.Navigator = nopNavigator{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.CleanupWait <= 0 {
		cfg.CleanupWait = defaultCleanupWait
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		now:      deps.Now,
		runID:    uuid.NewString(),
		bgCtx:    bgCtx,
		bgCancel: cancel,
	}
	o.log = deps.Log.With(zap.String("run_id", o.runID), zap.String("namespace", cfg.Namespace))
	return o, nil
}

// RunID identifies this orchestrator in logs and the journal.
func (o *Orchestrator) RunID() string { return o.runID }

// Start reads the attempt status and bootstraps with the server-reported
// progress. An unreachable status endpoint is not fatal: bootstrap proceeds
// on local state alone.
func (o *Orchestrator) Start(ctx context.Context) error {
	var lastCompleted *int
	if o.deps.Attempts != nil {
		st, err := o.deps.Attempts.AttemptStatus(ctx, o.cfg.UserID)
		if err != nil {
			o.log.Warn("attempt status unavailable, using local progress", zap.Error(err))
			o.record(store.EventError, 0, "", "attempt status: "+err.Error())
		} else {
			o.mu.Lock()
			o.status = &st
			if st.IsCompleted {
				if o.closed {
					o.mu.Unlock()
					return ErrStale
				}
				o.advance()
				o.deps.Store.SetProgress(store.Fresh())
				o.session = nil
				o.gate = GateNone
				o.setState(StateCompleted)
				o.mu.Unlock()
				o.finish("attempt already completed")
				return nil
			}
			o.mu.Unlock()
			lastCompleted = st.LastCompletedModuleID
		}
	}
	return o.Bootstrap(ctx, lastCompleted)
}

// UpdateProgress re-bootstraps when the externally supplied last completed
// module changes. A completed attempt is left alone.
func (o *Orchestrator) UpdateProgress(ctx context.Context, lastCompleted *int) error {
	o.mu.Lock()
	skip := o.state == StateCompleted || (o.seenProgress && sameModule(o.lastCompleted, lastCompleted))
	o.mu.Unlock()
	if skip {
		return nil
	}
	return o.Bootstrap(ctx, lastCompleted)
}

// Bootstrap resolves the start module and starts its session. It supersedes
// any transition in flight.
func (o *Orchestrator) Bootstrap(ctx context.Context, lastCompleted *int) error {
	began := o.now()
	defer func() { o.deps.Metrics.ObserveBootstrap(o.now().Sub(began)) }()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrStale
	}
	ep := o.advance()
	o.session = nil
	o.gate = GateNone
	o.idleFor = 0
	o.err = nil
	o.lastCompleted = copyModule(lastCompleted)
	o.seenProgress = true
	o.setState(StateBootstrapping)
	o.mu.Unlock()

	cat, err := o.deps.Catalog.Modules(ctx)
	if err == nil && len(cat) == 0 {
		err = errors.New("empty module catalog")
	}
	if err != nil {
		o.log.Error("fetch module catalog", zap.Error(err))
		return o.fail(ep, "module catalog unavailable", err)
	}
	cat = assessment.NewCatalog(cat)

	idleFor := o.persistedIdle()
	if o.cfg.IdleTimeout > 0 && idleFor > o.cfg.IdleTimeout {
		o.mu.Lock()
		if ep != o.epoch {
			o.mu.Unlock()
			return ErrStale
		}
		o.catalog = cat
		o.deps.Store.SetProgress(store.ForcedRestart(o.now()))
		o.idleFor = idleFor
		o.gate = gateFor(o.status)
		o.setState(StateIdleGate)
		gate := o.gate
		o.mu.Unlock()

		o.log.Info("idle at load time", zap.Duration("idle_for", idleFor), zap.Stringer("gate", gate))
		o.deps.Metrics.IdleGate(gate.String())
		o.record(store.EventIdleGate, 0, "", fmt.Sprintf("at load, idle %s, %s", idleFor.Round(time.Second), gate))
		return nil
	}

	o.mu.Lock()
	if ep != o.epoch {
		o.mu.Unlock()
		return ErrStale
	}
	o.catalog = cat
	progress := o.deps.Store.Progress()
	o.mu.Unlock()

	mod, done := resolveStart(cat, progress, lastCompleted)
	if done {
		o.mu.Lock()
		if ep != o.epoch {
			o.mu.Unlock()
			return ErrStale
		}
		o.deps.Store.SetProgress(progress.WithoutCheckpoint())
		o.setState(StateCompleted)
		o.mu.Unlock()
		o.finish("last module already completed")
		return nil
	}

	sess, resume, err := o.beginSession(ctx, ep, mod, true)
	if err != nil {
		if errors.Is(err, ErrStale) {
			return err
		}
		o.log.Error("start session", zap.Int("module_id", mod.ID), zap.Error(err))
		return o.fail(ep, fmt.Sprintf("could not start %s", mod), err)
	}

	o.log.Info("session started",
		zap.Int("module_id", mod.ID),
		zap.String("session_id", sess.SessionID),
		zap.Bool("resume", resume))
	o.record(store.EventBootstrap, mod.ID, sess.SessionID, startDetail(resume))
	return nil
}

// resolveStart picks the start module. Precedence: a forced restart
// ignores server progress; otherwise the module after the server's last
// completed one; then the local checkpoint; then the first module. done is
// true when the server's last completed module is the final one.
func resolveStart(cat assessment.Catalog, p store.Progress, lastCompleted *int) (mod assessment.Module, done bool) {
	if !p.ForceRestartFromBeginning() && lastCompleted != nil {
		if i := cat.Index(*lastCompleted); i >= 0 {
			if i+1 >= len(cat) {
				return assessment.Module{}, true
			}
			return cat[i+1], false
		}
	}
	if id, ok := p.Checkpoint(); ok {
		if m, found := cat.Find(id); found {
			return m, false
		}
	}
	first, _ := cat.First()
	return first, false
}

// beginSession waits for any pending cleanup and starts mod. When
// consumeOneShot is set, a pending new-session demand is consumed first so
// the start is fresh. Only one fresh start is in flight at a time: later
// starts wait for it and then re-read the demand. A failed fresh start puts
// the demand back, even when its result is stale, unless progress changed
// in the meantime.
func (o *Orchestrator) beginSession(ctx context.Context, ep uint64, mod assessment.Module, consumeOneShot bool) (assessment.Session, bool, error) {
	o.waitCleanup(ctx)

	var (
		prev, consumed store.Progress
		fresh          chan struct{}
	)
	resume := true
	for {
		o.mu.Lock()
		if ep != o.epoch {
			o.mu.Unlock()
			return assessment.Session{}, false, ErrStale
		}
		if consumeOneShot && o.fresh != nil {
			c := o.fresh
			o.mu.Unlock()
			select {
			case <-c:
				continue
			case <-ctx.Done():
				return assessment.Session{}, false, ctx.Err()
			}
		}
		prev = o.deps.Store.Progress()
		if consumeOneShot {
			if next, used := prev.ConsumeNewSession(); used {
				o.deps.Store.SetProgress(next)
				consumed = next
				resume = false
				fresh = make(chan struct{})
				o.fresh = fresh
			}
		}
		o.mu.Unlock()
		break
	}

	sess, err := o.deps.Sessions.StartSession(ctx, mod.ID, assessment.StartRequest{
		UserID:       o.cfg.UserID,
		LanguageCode: o.cfg.Language,
		Resume:       resume,
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if fresh != nil {
		if err != nil && o.deps.Store.Progress().Equal(consumed) {
			o.deps.Store.SetProgress(prev)
		}
		o.fresh = nil
		close(fresh)
	}
	if ep != o.epoch {
		return assessment.Session{}, resume, ErrStale
	}
	if err != nil {
		return assessment.Session{}, resume, err
	}

	if mod.Code != "" {
		sess.Module = mod
	}
	if sess.LanguageCode == "" {
		sess.LanguageCode = o.cfg.Language
	}
	o.deps.Store.SetProgress(o.deps.Store.Progress().WithCheckpoint(sess.Module.ID))
	o.session = &sess
	o.submitting = false
	o.pendingNext = 0
	o.err = nil
	o.setState(StateActive)
	o.deps.Metrics.SessionStarted(resume)
	return sess, resume, nil
}

// Submit sends the active module's answers and advances to the next
// module. Failures leave the current session active and return a
// *SubmitError. If the answers were accepted but the next session could not
// be started, a later Submit only retries the start.
func (o *Orchestrator) Submit(ctx context.Context, payload json.RawMessage) error {
	o.mu.Lock()
	if o.state != StateActive || o.session == nil {
		o.mu.Unlock()
		return ErrNotActive
	}
	if o.submitting {
		o.mu.Unlock()
		return ErrSubmitInFlight
	}
	o.submitting = true
	ep := o.epoch
	cur := *o.session
	next := o.pendingNext
	o.mu.Unlock()

	if next == 0 {
		res, err := o.deps.Sessions.Submit(ctx, cur.Module.ID, cur.SessionID, payload)

		o.mu.Lock()
		if ep != o.epoch {
			o.mu.Unlock()
			return ErrStale
		}
		if err != nil {
			serr := &SubmitError{ModuleID: cur.Module.ID, Stage: "submit", Cause: err}
			o.submitting = false
			o.err = serr
			o.mu.Unlock()

			o.log.Warn("submit failed", zap.Int("module_id", cur.Module.ID), zap.Error(err))
			o.deps.Metrics.Submit("error")
			o.record(store.EventError, cur.Module.ID, cur.SessionID, "submit: "+err.Error())
			return serr
		}

		o.deps.Metrics.Submit("ok")
		if res.Done() {
			o.advance()
			o.deps.Store.SetProgress(store.Fresh())
			o.session = nil
			o.err = nil
			o.setState(StateCompleted)
			o.mu.Unlock()

			o.record(store.EventSubmit, cur.Module.ID, cur.SessionID, "last module")
			o.log.Info("all modules complete")
			o.finish("all modules submitted")
			return nil
		}

		next = *res.NextModuleID
		p := o.deps.Store.Progress()
		if o.catalog.IsFirst(cur.Module.ID) {
			p = p.ClearForceRestart()
		}
		o.deps.Store.SetProgress(p.WithCheckpoint(next))
		o.pendingNext = next
		o.mu.Unlock()

		o.record(store.EventSubmit, cur.Module.ID, cur.SessionID, fmt.Sprintf("next %d", next))
	}

	o.mu.Lock()
	mod, ok := o.catalog.Find(next)
	o.mu.Unlock()
	if !ok {
		mod = assessment.Module{ID: next}
	}

	sess, resume, err := o.beginSession(ctx, ep, mod, false)
	if err != nil {
		if errors.Is(err, ErrStale) {
			return err
		}
		serr := &SubmitError{ModuleID: cur.Module.ID, Stage: "start", Cause: err}
		o.mu.Lock()
		if ep == o.epoch {
			o.submitting = false
			o.err = serr
		}
		o.mu.Unlock()

		o.log.Warn("start next session", zap.Int("module_id", next), zap.Error(err))
		o.record(store.EventError, next, "", "start next: "+err.Error())
		return serr
	}

	o.record(store.EventSessionStart, sess.Module.ID, sess.SessionID, startDetail(resume))
	return nil
}

// HandleIdle opens the idle gate while a session is active, superseding
// anything in flight. The gate admits Restart while attempts remain and
// GoHome once they are exhausted; an unknown status admits Restart. Outside
// StateActive the call is ignored and the current gate is returned.
func (o *Orchestrator) HandleIdle(ctx context.Context, idleFor time.Duration) GateKind {
	o.mu.Lock()
	if o.state != StateActive {
		g := o.gate
		o.mu.Unlock()
		return g
	}
	ep := o.advance()
	o.idleFor = idleFor
	o.gate = gateFor(o.status)
	o.setState(StateIdleGate)
	gate := o.gate
	o.mu.Unlock()

	if o.deps.Attempts != nil {
		st, err := o.deps.Attempts.AttemptStatus(ctx, o.cfg.UserID)
		o.mu.Lock()
		if ep == o.epoch {
			if err == nil {
				o.status = &st
				o.gate = gateFor(&st)
			} else {
				o.log.Warn("attempt status unavailable at idle gate", zap.Error(err))
			}
		}
		gate = o.gate
		o.mu.Unlock()
	}

	// A restart gate survives a relaunch: the markers make the next
	// bootstrap ignore the checkpoint and start module 1 fresh.
	o.mu.Lock()
	if ep == o.epoch && o.gate == GateRestart {
		o.deps.Store.SetProgress(store.ForcedRestart(o.now()))
	}
	o.mu.Unlock()

	o.log.Info("idle gate", zap.Duration("idle_for", idleFor), zap.Stringer("gate", gate))
	o.deps.Metrics.IdleGate(gate.String())
	o.record(store.EventIdleGate, 0, "", fmt.Sprintf("idle %s, %s", idleFor.Round(time.Second), gate))
	return gate
}

// Restart confirms a restart gate: the idle clock is reset, the checkpoint
// is dropped, both restart markers and the flow stages are cleared, open
// sessions are abandoned in the background and the user is sent to the
// start of the flow. The next session start waits for the abandon call.
func (o *Orchestrator) Restart(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdleGate || o.gate != GateRestart {
		o.mu.Unlock()
		return ErrNoGate
	}
	o.advance()
	now := o.now()
	o.deps.Store.SetProgress(store.ForcedRestart(now))
	o.deps.Store.ClearFlow()
	o.session = nil
	o.gate = GateNone
	o.idleFor = 0
	o.err = nil
	o.seenProgress = false
	o.setState(StateBootstrapping)
	o.startCleanup()
	o.mu.Unlock()

	o.markActive(now)
	o.deps.Metrics.Restart()
	o.record(store.EventRestart, 0, "", "")
	o.log.Info("restarting attempt")
	o.deps.Navigator.ToFlowStart()
	return nil
}

// GoHome confirms a go-home gate. Open sessions are abandoned in the
// background and local progress is left untouched.
func (o *Orchestrator) GoHome(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdleGate || o.gate != GateGoHome {
		o.mu.Unlock()
		return ErrNoGate
	}
	o.advance()
	o.session = nil
	o.gate = GateNone
	o.idleFor = 0
	o.seenProgress = false
	o.setState(StateBootstrapping)
	o.startCleanup()
	o.mu.Unlock()

	o.record(store.EventGoHome, 0, "", "")
	o.log.Info("attempts exhausted, leaving assessment")
	o.deps.Navigator.ToHome()
	return nil
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		State:      o.state,
		RunID:      o.runID,
		Total:      len(o.catalog),
		Gate:       o.gate,
		IdleFor:    o.idleFor,
		Submitting: o.submitting,
		Err:        o.err,
	}
	if o.session != nil {
		s := *o.session
		v.Session = &s
		v.Position = o.catalog.Position(s.Module.ID)
	}
	if o.status != nil {
		st := *o.status
		v.Attempts = &st
	}
	return v
}

// Close discards any result still in flight and waits, bounded by
// CleanupWait, for a pending abandon call.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.advance()
	c := o.cleanup
	o.mu.Unlock()

	if c != nil {
		t := time.NewTimer(o.cfg.CleanupWait)
		select {
		case <-c:
		case <-t.C:
			o.log.Warn("closing with abandon call still pending")
		}
		t.Stop()
	}
	o.bgCancel()
}

// advance invalidates every result still in flight. Caller holds mu.
func (o *Orchestrator) advance() uint64 {
	o.epoch++
	o.submitting = false
	o.pendingNext = 0
	return o.epoch
}

// setState records a transition. Caller holds mu.
func (o *Orchestrator) setState(s State) {
	o.state = s
	o.deps.Metrics.Transition(s.String())
}

// fail moves to StateError unless the bootstrap was superseded.
func (o *Orchestrator) fail(ep uint64, reason string, cause error) error {
	o.mu.Lock()
	if ep != o.epoch {
		o.mu.Unlock()
		return ErrStale
	}
	err := fatal(reason)
	o.err = err
	o.session = nil
	o.setState(StateError)
	o.mu.Unlock()

	o.record(store.EventError, 0, "", reason+": "+cause.Error())
	return err
}

func (o *Orchestrator) finish(detail string) {
	o.deps.Metrics.Complete()
	o.record(store.EventComplete, 0, "", detail)
	if o.deps.OnAllModulesComplete != nil {
		o.deps.OnAllModulesComplete()
	}
}

// startCleanup fires the abandon call in the background. Caller holds mu.
func (o *Orchestrator) startCleanup() {
	if o.deps.Abandoner == nil {
		return
	}
	done := make(chan struct{})
	o.cleanup = done

	go func() {
		defer close(done)
		if err := o.deps.Abandoner.AbandonInProgress(o.bgCtx, o.cfg.UserID); err != nil {
			o.log.Warn("abandon in-progress sessions", zap.Error(err))
			o.record(store.EventError, 0, "", "abandon: "+err.Error())
			return
		}
		o.log.Debug("abandoned in-progress sessions")
	}()
}

// waitCleanup blocks until a pending abandon call returns, CleanupWait
// elapses or ctx is done.
func (o *Orchestrator) waitCleanup(ctx context.Context) {
	o.mu.Lock()
	c := o.cleanup
	o.mu.Unlock()
	if c == nil {
		return
	}

	t := time.NewTimer(o.cfg.CleanupWait)
	defer t.Stop()
	select {
	case <-c:
	case <-t.C:
		o.log.Warn("starting session before abandon call returned", zap.Duration("waited", o.cfg.CleanupWait))
	case <-ctx.Done():
	}
}

func (o *Orchestrator) markActive(now time.Time) {
	if o.deps.Activity != nil {
		o.deps.Activity.MarkActive()
		return
	}
	o.deps.Store.SetLastActiveAt(now)
}

func (o *Orchestrator) persistedIdle() time.Duration {
	t, ok := o.deps.Store.LastActiveAt()
	if !ok {
		return 0
	}
	if d := o.now().Sub(t); d > 0 {
		return d
	}
	return 0
}

func (o *Orchestrator) record(kind store.EventKind, moduleID int, sessionID, detail string) {
	if o.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := o.deps.Journal.Append(ctx, store.Event{
		At:        o.now(),
		RunID:     o.runID,
		Namespace: o.cfg.Namespace,
		Kind:      kind,
		ModuleID:  moduleID,
		SessionID: sessionID,
		Detail:    detail,
	})
	if err != nil {
		o.log.Warn("journal event", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func gateFor(st *assessment.AttemptStatus) GateKind {
	if st == nil || st.Allowed() {
		return GateRestart
	}
	return GateGoHome
}

func startDetail(resume bool) string {
	if resume {
		return "resume"
	}
	return "fresh"
}

func sameModule(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyModule(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
