package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/cogtest/internal/assessment"
	"github.com/abhisek/cogtest/internal/store"
)

var ctx = context.Background()

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestFreshUserStartsFirstModuleWithResume(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, nil, m1)

	calls := h.sessions.startCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, assessment.StartRequest{UserID: "u1", LanguageCode: "en", Resume: true}, calls[0].Req)

	cp, ok := h.store.Progress().Checkpoint()
	assert.True(t, ok)
	assert.Equal(t, m1, cp)

	v := h.orch.Snapshot()
	assert.Equal(t, 1, v.Position)
	assert.Equal(t, 3, v.Total)
	assert.Equal(t, assessment.CodeImageFlash, v.Session.Module.Code, "catalog entry replaces the server's module")
	assert.Equal(t, "en", v.Session.LanguageCode)
	assert.Contains(t, h.journal.kinds(), store.EventBootstrap)
}

func TestResumeFollowsServerProgress(t *testing.T) {
	tests := []struct {
		name          string
		lastCompleted int
		want          int
	}{
		{"after first", m1, m2},
		{"after second", m2, m3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			// A stale local checkpoint loses to server progress.
			h.store.SetProgress(store.Resuming(m1))

			h.activeOn(t, ptr(tt.lastCompleted), tt.want)
			assert.True(t, h.sessions.startCalls()[0].Req.Resume)
		})
	}
}

func TestServerReportsLastModuleCompleted(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.Resuming(m3))

	require.NoError(t, h.orch.Bootstrap(ctx, ptr(m3)))

	assert.Equal(t, StateCompleted, h.orch.Snapshot().State)
	assert.Empty(t, h.sessions.startCalls())
	assert.Equal(t, store.Fresh(), h.store.Progress())
	assert.Equal(t, 1, h.completed)
	h.assertCompletions(t, 1)
}

func TestForcedRestartIgnoresServerProgress(t *testing.T) {
	marked := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		progress store.Progress
		want     int
	}{
		{"falls back to checkpoint", store.Progress{Kind: store.ProgressRestartPending, ModuleID: m2, MarkedAt: marked}, m2},
		{"falls back to first", store.Progress{Kind: store.ProgressRestartPending, MarkedAt: marked}, m1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.SetProgress(tt.progress)

			h.activeOn(t, ptr(m2), tt.want)
		})
	}
}

func TestCheckpointWithoutServerProgress(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.Resuming(m2))
	h.activeOn(t, nil, m2)

	h = newHarness(t)
	h.store.SetProgress(store.Resuming(99))
	h.activeOn(t, nil, m1)
}

func TestOneShotNewSessionConsumedOnce(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.ForcedRestart(h.clock.Now()))

	h.activeOn(t, nil, m1)
	p := h.store.Progress()
	assert.False(t, p.ForceNewSessionForModule1())
	assert.True(t, p.ForceRestartFromBeginning())

	h.activeOn(t, nil, m1)

	calls := h.sessions.startCalls()
	require.Len(t, calls, 2)
	assert.False(t, calls[0].Req.Resume, "first start after a restart is fresh")
	assert.True(t, calls[1].Req.Resume)
}

func TestOneShotRestoredWhenStartFails(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.ForcedRestart(h.clock.Now()))
	h.sessions.startErrs = []error{errDown}

	err := h.orch.Bootstrap(ctx, nil)
	require.ErrorIs(t, err, ErrFatalBootstrap)
	assert.Equal(t, StateError, h.orch.Snapshot().State)
	assert.True(t, h.store.Progress().ForceNewSessionForModule1())

	h.activeOn(t, nil, m1)
	calls := h.sessions.startCalls()
	require.Len(t, calls, 2)
	assert.False(t, calls[1].Req.Resume)
	assert.False(t, h.store.Progress().ForceNewSessionForModule1())
}

func TestAttemptNotDuplicatedAcrossRebootstrap(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.ForcedRestart(h.clock.Now()))

	h.activeOn(t, nil, m1)
	require.NoError(t, h.orch.UpdateProgress(ctx, ptr(m1)))

	assert.Len(t, h.sessions.startCalls(), 2)
	assert.Equal(t, 1, h.sessions.freshStarts())
	assert.Equal(t, m1, h.orch.Snapshot().Session.Module.ID, "restart marker still ignores server progress")
}

func TestAttemptNotDuplicatedConcurrentBootstrap(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.ForcedRestart(h.clock.Now()))
	release := make(chan struct{})
	h.sessions.startGate = release

	first := make(chan error, 1)
	go func() { first <- h.orch.Bootstrap(ctx, nil) }()
	require.Eventually(t, func() bool { return len(h.sessions.startCalls()) == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- h.orch.UpdateProgress(ctx, ptr(m1)) }()
	waitSuperseded(t, h.orch)
	assert.Len(t, h.sessions.startCalls(), 1, "the second start waits for the fresh one")

	close(release)
	assert.ErrorIs(t, <-first, ErrStale)
	require.NoError(t, <-second)

	calls := h.sessions.startCalls()
	require.Len(t, calls, 2)
	assert.False(t, calls[0].Req.Resume)
	assert.True(t, calls[1].Req.Resume, "the fresh session already exists on the server")

	v := h.orch.Snapshot()
	assert.Equal(t, StateActive, v.State)
	assert.Equal(t, "s10-2", v.Session.SessionID, "the superseded result is discarded")
}

func TestSupersededFreshStartFailureKeepsDemand(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.ForcedRestart(h.clock.Now()))
	h.sessions.startErrs = []error{errDown}
	release := make(chan struct{})
	h.sessions.startGate = release

	first := make(chan error, 1)
	go func() { first <- h.orch.Bootstrap(ctx, nil) }()
	require.Eventually(t, func() bool { return len(h.sessions.startCalls()) == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- h.orch.UpdateProgress(ctx, ptr(m1)) }()
	waitSuperseded(t, h.orch)

	close(release)
	assert.ErrorIs(t, <-first, ErrStale)
	require.NoError(t, <-second)

	calls := h.sessions.startCalls()
	require.Len(t, calls, 2)
	assert.False(t, calls[0].Req.Resume)
	assert.False(t, calls[1].Req.Resume, "the failed fresh start is retried fresh")
	assert.Equal(t, m1, calls[1].ModuleID)

	assert.False(t, h.store.Progress().ForceNewSessionForModule1())
	assert.Equal(t, StateActive, h.orch.Snapshot().State)
}

// waitSuperseded blocks until a second bootstrap has advanced past the one
// whose fresh start is in flight.
func waitSuperseded(t *testing.T, o *Orchestrator) {
	t.Helper()
	o.mu.Lock()
	ep := o.epoch
	o.mu.Unlock()
	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.epoch > ep
	}, time.Second, time.Millisecond)
}

func TestCatalogFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.catalog.err = errDown

	err := h.orch.Bootstrap(ctx, nil)
	require.ErrorIs(t, err, ErrFatalBootstrap)
	assert.False(t, errors.Is(err, errDown), "transport errors are not leaked")

	v := h.orch.Snapshot()
	assert.Equal(t, StateError, v.State)
	assert.ErrorIs(t, v.Err, ErrFatalBootstrap)
	assert.Empty(t, h.sessions.startCalls())
	assert.Contains(t, h.journal.kinds(), store.EventError)
}

func TestEmptyCatalogIsFatal(t *testing.T) {
	h := newHarness(t)
	h.catalog.cat = nil

	assert.ErrorIs(t, h.orch.Bootstrap(ctx, nil), ErrFatalBootstrap)
}

func TestLoadTimeIdleOpensGate(t *testing.T) {
	h := newHarness(t)
	h.store.SetLastActiveAt(h.clock.Now().Add(-20 * time.Minute))
	h.store.SetProgress(store.Resuming(m2))

	require.NoError(t, h.orch.Bootstrap(ctx, ptr(m1)))

	v := h.orch.Snapshot()
	assert.Equal(t, StateIdleGate, v.State)
	assert.Equal(t, GateRestart, v.Gate)
	assert.Equal(t, 20*time.Minute, v.IdleFor)
	assert.Empty(t, h.sessions.startCalls(), "no session before the gate is answered")

	p := h.store.Progress()
	assert.True(t, p.ForceRestartFromBeginning())
	assert.True(t, p.ForceNewSessionForModule1())
	_, hasCheckpoint := p.Checkpoint()
	assert.False(t, hasCheckpoint)

	require.NoError(t, h.orch.Restart(ctx))
	h.abandoner.wait(t)

	h.activeOn(t, ptr(m1), m1)
	assert.False(t, h.sessions.startCalls()[0].Req.Resume)
}

func TestRecentActivityDoesNotGate(t *testing.T) {
	h := newHarness(t)
	h.store.SetLastActiveAt(h.clock.Now().Add(-9 * time.Minute))

	h.activeOn(t, nil, m1)
}

func TestStartUsesAttemptStatus(t *testing.T) {
	h := newHarness(t)
	h.attempts.set(assessment.AttemptStatus{Count: 1, MaxAttempts: 3, LastCompletedModuleID: ptr(m1)}, nil)

	require.NoError(t, h.orch.Start(ctx))

	v := h.orch.Snapshot()
	assert.Equal(t, m2, v.Session.Module.ID)
	require.NotNil(t, v.Attempts)
	assert.Equal(t, 3, v.Attempts.MaxAttempts)
}

func TestStartWithoutAttemptStatus(t *testing.T) {
	h := newHarness(t)
	h.attempts.set(assessment.AttemptStatus{}, errDown)
	h.store.SetProgress(store.Resuming(m2))

	require.NoError(t, h.orch.Start(ctx))

	assert.Equal(t, m2, h.orch.Snapshot().Session.Module.ID)
	assert.Contains(t, h.journal.kinds(), store.EventError)
}

func TestStartCompletedAttempt(t *testing.T) {
	h := newHarness(t)
	h.attempts.set(assessment.AttemptStatus{Count: 1, MaxAttempts: 3, IsCompleted: true}, nil)

	require.NoError(t, h.orch.Start(ctx))

	assert.Equal(t, StateCompleted, h.orch.Snapshot().State)
	assert.Equal(t, 0, h.catalog.calls)
	assert.Empty(t, h.sessions.startCalls())
	assert.Equal(t, 1, h.completed)
	h.assertCompletions(t, 1)
}

func TestStartCompletedAttemptClearsProgress(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.Resuming(m3))
	h.attempts.set(assessment.AttemptStatus{Count: 1, MaxAttempts: 3, LastCompletedModuleID: ptr(m3), IsCompleted: true}, nil)

	require.NoError(t, h.orch.Start(ctx))

	assert.Equal(t, store.Fresh(), h.store.Progress())
}

func TestUpdateProgressOnlyOnChange(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, nil, m1)

	require.NoError(t, h.orch.UpdateProgress(ctx, nil))
	assert.Len(t, h.sessions.startCalls(), 1)

	require.NoError(t, h.orch.UpdateProgress(ctx, ptr(m1)))
	assert.Equal(t, m2, h.orch.Snapshot().Session.Module.ID)

	require.NoError(t, h.orch.UpdateProgress(ctx, ptr(m1)))
	assert.Len(t, h.sessions.startCalls(), 2)
}

func TestSubmitAdvances(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, nil, m1)

	require.NoError(t, h.orch.Submit(ctx, json.RawMessage(`{"answer":"cat"}`)))

	subs := h.sessions.submitCalls()
	require.Len(t, subs, 1)
	assert.Equal(t, submitCall{ModuleID: m1, SessionID: "s10-1", Payload: `{"answer":"cat"}`}, subs[0])

	v := h.orch.Snapshot()
	assert.Equal(t, StateActive, v.State)
	assert.Equal(t, m2, v.Session.Module.ID)
	assert.Equal(t, 2, v.Position)
	assert.True(t, h.sessions.startCalls()[1].Req.Resume)
	assert.Equal(t, store.Resuming(m2), h.store.Progress())
	assert.Contains(t, h.journal.kinds(), store.EventSessionStart)
}

func TestSubmitFirstModuleClearsForcedRestart(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.ForcedRestart(h.clock.Now()))
	h.activeOn(t, nil, m1)

	require.NoError(t, h.orch.Submit(ctx, nil))

	assert.Equal(t, store.Resuming(m2), h.store.Progress())
}

func TestSubmitLaterModuleKeepsForcedRestart(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.Progress{Kind: store.ProgressRestartPending, ModuleID: m2, MarkedAt: h.clock.Now()})
	h.activeOn(t, ptr(m2), m2)

	require.NoError(t, h.orch.Submit(ctx, nil))

	p := h.store.Progress()
	assert.Equal(t, store.ProgressRestartPending, p.Kind)
	assert.Equal(t, m3, p.ModuleID)
}

func TestSubmitLastModuleCompletes(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, ptr(m1), m2)

	require.NoError(t, h.orch.Submit(ctx, nil))
	require.NoError(t, h.orch.Submit(ctx, nil))

	assert.Equal(t, StateCompleted, h.orch.Snapshot().State)
	assert.Equal(t, store.Fresh(), h.store.Progress())
	assert.Equal(t, 1, h.completed)
	h.assertCompletions(t, 1)
	assert.Contains(t, h.journal.kinds(), store.EventComplete)

	// Nothing else happens until a new attempt is started explicitly.
	assert.ErrorIs(t, h.orch.Submit(ctx, nil), ErrNotActive)
	require.NoError(t, h.orch.UpdateProgress(ctx, ptr(m3)))
	assert.Equal(t, GateNone, h.orch.HandleIdle(ctx, time.Hour))
	assert.Len(t, h.sessions.startCalls(), 2)
	assert.Len(t, h.sessions.submitCalls(), 2)
	assert.Equal(t, 1, h.completed)
}

func TestSubmitFailureIsRecoverable(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, nil, m1)
	h.sessions.submitErrs = []error{errDown}

	err := h.orch.Submit(ctx, nil)
	require.ErrorIs(t, err, ErrRecoverableSubmit)
	assert.False(t, errors.Is(err, errDown))

	var se *SubmitError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "submit", se.Stage)
	assert.Equal(t, errDown, se.Cause)

	v := h.orch.Snapshot()
	assert.Equal(t, StateActive, v.State)
	assert.Equal(t, "s10-1", v.Session.SessionID, "previous session stays displayed")
	assert.Equal(t, err, v.Err)

	require.NoError(t, h.orch.Submit(ctx, nil))
	v = h.orch.Snapshot()
	assert.Equal(t, m2, v.Session.Module.ID)
	assert.Nil(t, v.Err)
}

func TestSubmitSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, nil, m1)
	release := make(chan struct{})
	h.sessions.submitGate = release

	first := make(chan error, 1)
	go func() { first <- h.orch.Submit(ctx, nil) }()
	require.Eventually(t, func() bool { return len(h.sessions.submitCalls()) == 1 }, time.Second, time.Millisecond)

	assert.True(t, h.orch.Snapshot().Submitting)
	assert.ErrorIs(t, h.orch.Submit(ctx, nil), ErrSubmitInFlight)

	close(release)
	require.NoError(t, <-first)
	assert.Len(t, h.sessions.submitCalls(), 1)
	assert.False(t, h.orch.Snapshot().Submitting)
}

func TestSubmitRetriesOnlyNextStart(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, nil, m1)
	h.sessions.startErrs = []error{errDown}

	err := h.orch.Submit(ctx, nil)
	var se *SubmitError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "start", se.Stage)
	assert.Equal(t, m1, h.orch.Snapshot().Session.Module.ID)
	assert.Equal(t, store.Resuming(m2), h.store.Progress(), "checkpoint follows the accepted submission")

	require.NoError(t, h.orch.Submit(ctx, nil))
	assert.Len(t, h.sessions.submitCalls(), 1, "answers are not sent twice")
	assert.Equal(t, m2, h.orch.Snapshot().Session.Module.ID)
}

func TestSubmitNotActive(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.orch.Submit(ctx, nil), ErrNotActive)
}

func TestIdleGateRestart(t *testing.T) {
	h := newHarness(t)
	h.attempts.set(assessment.AttemptStatus{Count: 2, MaxAttempts: 3}, nil)
	h.store.AcceptFlow(store.StageDisclaimer, h.clock.Now())
	h.store.AcceptFlow(store.StagePreTest, h.clock.Now())
	h.activeOn(t, nil, m1)

	gate := h.orch.HandleIdle(ctx, 11*time.Minute)
	assert.Equal(t, GateRestart, gate)
	v := h.orch.Snapshot()
	assert.Equal(t, StateIdleGate, v.State)
	assert.Equal(t, 11*time.Minute, v.IdleFor)
	assert.ErrorIs(t, h.orch.GoHome(ctx), ErrNoGate)

	require.NoError(t, h.orch.Restart(ctx))
	h.abandoner.wait(t)

	p := h.store.Progress()
	assert.True(t, p.ForceRestartFromBeginning())
	assert.True(t, p.ForceNewSessionForModule1())
	_, hasCheckpoint := p.Checkpoint()
	assert.False(t, hasCheckpoint)
	assert.False(t, h.store.FlowAccepted(store.StageDisclaimer))
	assert.False(t, h.store.FlowAccepted(store.StagePreTest))
	assert.Equal(t, 1, h.nav.flowStart)
	assert.Equal(t, 1, h.activity.marks)
	assert.Equal(t, 1, h.abandoner.calls)

	assert.Equal(t, StateBootstrapping, h.orch.Snapshot().State)
	assert.ErrorIs(t, h.orch.Submit(ctx, nil), ErrNotActive)
	assert.ErrorIs(t, h.orch.Restart(ctx), ErrNoGate)
	assert.Contains(t, h.journal.kinds(), store.EventRestart)
}

func TestRestartGateSurvivesRelaunch(t *testing.T) {
	h := newHarness(t)
	h.store.SetProgress(store.Resuming(m2))
	h.activeOn(t, ptr(m1), m2)

	require.Equal(t, GateRestart, h.orch.HandleIdle(ctx, 11*time.Minute))
	p := h.store.Progress()
	assert.True(t, p.ForceRestartFromBeginning())
	assert.True(t, p.ForceNewSessionForModule1())

	// A key pressed at the gate, then the program is closed and relaunched.
	h.store.SetLastActiveAt(h.clock.Now())
	h.orch.Close()
	relaunched := h.newOrchestrator(t)
	require.NoError(t, relaunched.Bootstrap(ctx, ptr(m1)))

	v := relaunched.Snapshot()
	require.Equal(t, StateActive, v.State)
	assert.Equal(t, m1, v.Session.Module.ID)
	calls := h.sessions.startCalls()
	assert.False(t, calls[len(calls)-1].Req.Resume)
}

func TestIdleGateGoHome(t *testing.T) {
	h := newHarness(t)
	h.attempts.set(assessment.AttemptStatus{Count: 3, MaxAttempts: 3}, nil)
	h.activeOn(t, nil, m1)

	assert.Equal(t, GateGoHome, h.orch.HandleIdle(ctx, 11*time.Minute))
	assert.ErrorIs(t, h.orch.Restart(ctx), ErrNoGate)

	require.NoError(t, h.orch.GoHome(ctx))
	h.abandoner.wait(t)

	assert.Equal(t, 1, h.nav.home)
	assert.Equal(t, 0, h.nav.flowStart)
	assert.Equal(t, store.Resuming(m1), h.store.Progress(), "markers are left unset")
	assert.Contains(t, h.journal.kinds(), store.EventGoHome)
}

func TestIdleGateUsesCachedStatusOnError(t *testing.T) {
	h := newHarness(t)
	h.attempts.set(assessment.AttemptStatus{Count: 3, MaxAttempts: 3}, nil)
	require.NoError(t, h.orch.Start(ctx))

	h.attempts.set(assessment.AttemptStatus{}, errDown)
	assert.Equal(t, GateGoHome, h.orch.HandleIdle(ctx, time.Hour))
}

func TestIdleGateDefaultsToRestart(t *testing.T) {
	h := newHarness(t)
	h.attempts.set(assessment.AttemptStatus{}, errDown)
	require.NoError(t, h.orch.Start(ctx))

	assert.Equal(t, GateRestart, h.orch.HandleIdle(ctx, time.Hour))
}

func TestIdleIgnoredWhenNotActive(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, GateNone, h.orch.HandleIdle(ctx, time.Hour))
	assert.Equal(t, StateBootstrapping, h.orch.Snapshot().State)
	assert.Equal(t, 0, h.attempts.calls)
}

func TestIdleDiscardsInFlightSubmit(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, nil, m1)
	release := make(chan struct{})
	h.sessions.submitGate = release

	done := make(chan error, 1)
	go func() { done <- h.orch.Submit(ctx, nil) }()
	require.Eventually(t, func() bool { return len(h.sessions.submitCalls()) == 1 }, time.Second, time.Millisecond)

	h.orch.HandleIdle(ctx, 11*time.Minute)
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, StateIdleGate, h.orch.Snapshot().State)
	assert.Len(t, h.sessions.startCalls(), 1)
}

func TestAbandonFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.abandoner.err = errDown
	h.activeOn(t, nil, m1)
	h.orch.HandleIdle(ctx, time.Hour)

	require.NoError(t, h.orch.Restart(ctx))
	assert.Equal(t, 1, h.nav.flowStart)

	h.abandoner.wait(t)
	require.Eventually(t, func() bool {
		return slices.Contains(h.journal.kinds(), store.EventError)
	}, time.Second, time.Millisecond)

	h.activeOn(t, nil, m1)
}

func TestCleanupSerializedBeforeNextStart(t *testing.T) {
	h := newHarness(t)
	order := &orderLog{}
	h.sessions.order = order
	h.abandoner.order = order
	release := make(chan struct{})
	h.abandoner.gate = release

	h.activeOn(t, nil, m1)
	h.orch.HandleIdle(ctx, time.Hour)
	require.NoError(t, h.orch.Restart(ctx), "navigation does not wait for cleanup")
	assert.Equal(t, 1, h.nav.flowStart)

	done := make(chan error, 1)
	go func() { done <- h.orch.Bootstrap(ctx, nil) }()

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.sessions.startCalls(), 1, "start waits for the abandon call")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"start", "abandon", "start"}, order.list())
	assert.False(t, h.sessions.startCalls()[1].Req.Resume)
}

func TestCleanupWaitIsBounded(t *testing.T) {
	h := newHarness(t, withCleanupWait(20*time.Millisecond))
	h.abandoner.gate = make(chan struct{})

	h.activeOn(t, nil, m1)
	h.orch.HandleIdle(ctx, time.Hour)
	require.NoError(t, h.orch.Restart(ctx))

	h.activeOn(t, nil, m1)
	assert.False(t, h.sessions.startCalls()[1].Req.Resume)
}

func TestStaleBootstrapDiscarded(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.catalog.gate = release

	first := make(chan error, 1)
	go func() { first <- h.orch.Bootstrap(ctx, nil) }()
	require.Eventually(t, func() bool {
		h.catalog.mu.Lock()
		defer h.catalog.mu.Unlock()
		return h.catalog.calls == 1
	}, time.Second, time.Millisecond)

	h.activeOn(t, ptr(m1), m2)
	close(release)

	assert.ErrorIs(t, <-first, ErrStale)
	assert.Equal(t, m2, h.orch.Snapshot().Session.Module.ID)
	assert.Len(t, h.sessions.startCalls(), 1)
}

func TestCloseDiscardsLaterWork(t *testing.T) {
	h := newHarness(t)
	h.orch.Close()
	h.orch.Close()

	assert.ErrorIs(t, h.orch.Bootstrap(ctx, nil), ErrStale)
	assert.Empty(t, h.sessions.startCalls())
}

func TestJournalCarriesRunAndNamespace(t *testing.T) {
	h := newHarness(t)
	h.activeOn(t, nil, m1)
	require.NoError(t, h.orch.Submit(ctx, nil))

	h.journal.mu.Lock()
	events := slices.Clone(h.journal.events)
	h.journal.mu.Unlock()

	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, h.orch.RunID(), e.RunID)
		assert.Equal(t, "test", e.Namespace)
	}
	assert.Equal(t, []store.EventKind{store.EventBootstrap, store.EventSubmit, store.EventSessionStart}, h.journal.kinds())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle_gate", StateIdleGate.String())
	assert.Equal(t, "go_home", GateGoHome.String())
	assert.Equal(t, "unknown", State(99).String())
}
