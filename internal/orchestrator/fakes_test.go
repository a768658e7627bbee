package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/cogtest/internal/assessment"
	"github.com/abhisek/cogtest/internal/metrics"
	"github.com/abhisek/cogtest/internal/store"
)

const (
	m1 = 10
	m2 = 20
	m3 = 30
)

func ptr(v int) *int { return &v }

// threeModules returns the catalog out of order to exercise sorting.
func threeModules() assessment.Catalog {
	return assessment.Catalog{
		{ID: m3, Code: assessment.CodeWordRecall, OrderIndex: 3},
		{ID: m1, Code: assessment.CodeImageFlash, OrderIndex: 1},
		{ID: m2, Code: assessment.CodeDrawing, OrderIndex: 2},
	}
}

type fakeCatalog struct {
	mu    sync.Mutex
	cat   assessment.Catalog
	err   error
	gate  chan struct{}
	calls int
}

func (f *fakeCatalog) Modules(ctx context.Context) (assessment.Catalog, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.gate = nil
	cat, err := f.cat, f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return cat, err
}

type fakeAttempts struct {
	mu    sync.Mutex
	st    assessment.AttemptStatus
	err   error
	calls int
}

func (f *fakeAttempts) set(st assessment.AttemptStatus, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st, f.err = st, err
}

func (f *fakeAttempts) AttemptStatus(context.Context, string) (assessment.AttemptStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.st, f.err
}

type startCall struct {
	ModuleID int
	Req      assessment.StartRequest
}

type submitCall struct {
	ModuleID  int
	SessionID string
	Payload   string
}

type fakeSessions struct {
	mu sync.Mutex

	starts    []startCall
	startErrs []error
	startGate chan struct{}

	submits    []submitCall
	submitRes  map[int]*int // module -> next module; missing key means last
	submitErrs []error
	submitGate chan struct{}

	order *orderLog
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{submitRes: map[int]*int{m1: ptr(m2), m2: ptr(m3)}}
}

func (f *fakeSessions) StartSession(ctx context.Context, moduleID int, req assessment.StartRequest) (assessment.Session, error) {
	f.mu.Lock()
	f.starts = append(f.starts, startCall{ModuleID: moduleID, Req: req})
	n := len(f.starts)
	if f.order != nil {
		f.order.add("start")
	}
	var err error
	if len(f.startErrs) > 0 {
		err = f.startErrs[0]
		f.startErrs = f.startErrs[1:]
	}
	gate := f.startGate
	f.startGate = nil
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return assessment.Session{}, err
	}
	return assessment.Session{
		SessionID: fmt.Sprintf("s%d-%d", moduleID, n),
		Module:    assessment.Module{ID: moduleID},
		Questions: json.RawMessage(`[]`),
	}, nil
}

func (f *fakeSessions) Submit(ctx context.Context, moduleID int, sessionID string, payload json.RawMessage) (assessment.SubmitResult, error) {
	f.mu.Lock()
	f.submits = append(f.submits, submitCall{ModuleID: moduleID, SessionID: sessionID, Payload: string(payload)})
	var err error
	if len(f.submitErrs) > 0 {
		err = f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
	}
	next := f.submitRes[moduleID]
	gate := f.submitGate
	f.submitGate = nil
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return assessment.SubmitResult{}, err
	}
	return assessment.SubmitResult{NextModuleID: next}, nil
}

func (f *fakeSessions) startCalls() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startCall(nil), f.starts...)
}

func (f *fakeSessions) submitCalls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.submits...)
}

func (f *fakeSessions) freshStarts() int {
	n := 0
	for _, c := range f.startCalls() {
		if !c.Req.Resume {
			n++
		}
	}
	return n
}

type fakeAbandoner struct {
	mu    sync.Mutex
	calls int
	err   error
	gate  chan struct{}
	order *orderLog
	done  chan struct{}
}

func newFakeAbandoner() *fakeAbandoner {
	return &fakeAbandoner{done: make(chan struct{}, 8)}
}

func (f *fakeAbandoner) AbandonInProgress(ctx context.Context, userID string) error {
	f.mu.Lock()
	f.calls++
	gate, err := f.gate, f.err
	f.mu.Unlock()

	defer func() { f.done <- struct{}{} }()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.order != nil {
		f.order.add("abandon")
	}
	return err
}

func (f *fakeAbandoner) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("abandon was never called")
	}
}

// orderLog records the interleaving of calls across fakes.
type orderLog struct {
	mu    sync.Mutex
	items []string
}

func (l *orderLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, s)
}

func (l *orderLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.items...)
}

type fakeNav struct {
	mu        sync.Mutex
	flowStart int
	home      int
}

func (f *fakeNav) ToFlowStart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flowStart++
}

func (f *fakeNav) ToHome() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.home++
}

// fakeActivity persists like idle.Monitor.MarkActive does.
type fakeActivity struct {
	mu    sync.Mutex
	marks int
	store *store.Facade
	now   func() time.Time
}

func (f *fakeActivity) MarkActive() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks++
	f.store.SetLastActiveAt(f.now())
}

type fakeJournal struct {
	mu     sync.Mutex
	events []store.Event
}

func (f *fakeJournal) Append(_ context.Context, e store.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeJournal) kinds() []store.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.EventKind
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type harness struct {
	orch      *Orchestrator
	catalog   *fakeCatalog
	attempts  *fakeAttempts
	sessions  *fakeSessions
	abandoner *fakeAbandoner
	store     *store.Facade
	nav       *fakeNav
	activity  *fakeActivity
	journal   *fakeJournal
	clock     *fakeClock
	metrics   *metrics.Metrics
	cfg       Config
	completed int
}

type option func(*Config)

func withCleanupWait(d time.Duration) option {
	return func(c *Config) { c.CleanupWait = d }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		catalog:   &fakeCatalog{cat: threeModules()},
		attempts:  &fakeAttempts{st: assessment.AttemptStatus{Count: 1, MaxAttempts: 3}},
		sessions:  newFakeSessions(),
		abandoner: newFakeAbandoner(),
		store:     store.NewFacade(store.NewMemoryKV(), "test", nil),
		nav:       &fakeNav{},
		journal:   &fakeJournal{},
		clock:     &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		metrics:   metrics.New(),
	}

	h.activity = &fakeActivity{store: h.store, now: h.clock.Now}

	cfg := Config{
		UserID:      "u1",
		Language:    "en",
		Namespace:   "test",
		IdleTimeout: 10 * time.Minute,
		CleanupWait: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h.cfg = cfg
	h.orch = h.newOrchestrator(t)
	return h
}

// newOrchestrator builds an orchestrator over the harness fakes. A second
// call models a relaunch on the same local store.
func (h *harness) newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	orch, err := New(h.cfg, Deps{
		Catalog:   h.catalog,
		Attempts:  h.attempts,
		Sessions:  h.sessions,
		Abandoner: h.abandoner,
		Store:     h.store,
		Navigator: h.nav,
		Activity:  h.activity,
		Journal:   h.journal,
		Metrics:   h.metrics,
		Now:       h.clock.Now,
		OnAllModulesComplete: func() {
			h.completed++
		},
	})
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	return orch
}

// assertCompletions checks the completions counter.
func (h *harness) assertCompletions(t *testing.T, want int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP cogtest_completions_total Assessments completed.
# TYPE cogtest_completions_total counter
cogtest_completions_total %d
`, want)
	require.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "cogtest_completions_total"))
}

// activeOn bootstraps and asserts the active module.
func (h *harness) activeOn(t *testing.T, lastCompleted *int, module int) {
	t.Helper()
	require.NoError(t, h.orch.Bootstrap(context.Background(), lastCompleted))
	v := h.orch.Snapshot()
	require.Equal(t, StateActive, v.State)
	require.Equal(t, module, v.Session.Module.ID)
}

var errDown = errors.New("connection refused")
