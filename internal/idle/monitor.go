package idle

import (
	"sync"
	"time"
)

// Signal is a user-interaction event that counts as activity.
type Signal int

const (
	SignalPointer Signal = iota
	SignalKeyboard
	SignalScroll
	SignalTouch
	SignalVisible // focus or visibility regained
)

func (s Signal) String() string {
	switch s {
	case SignalPointer:
		return "pointer"
	case SignalKeyboard:
		return "keyboard"
	case SignalScroll:
		return "scroll"
	case SignalTouch:
		return "touch"
	case SignalVisible:
		return "visible"
	}
	return "unknown"
}

// ActivityStore persists the last-activity timestamp across restarts.
type ActivityStore interface {
	LastActiveAt() (time.Time, bool)
	SetLastActiveAt(t time.Time)
}

// DefaultCheckInterval is how often elapsed idle time is recomputed.
const DefaultCheckInterval = 5 * time.Second

// persistEvery throttles activity writes to the store.
const persistEvery = time.Second

// Monitor raises onIdle once per idle episode. An episode ends only when
// Activity is called.
type Monitor struct {
	store    ActivityStore
	interval time.Duration
	now      func() time.Time
	newTick  func(d time.Duration) (<-chan time.Time, func())

	mu          sync.Mutex
	timeout     time.Duration
	onIdle      func(time.Duration)
	lastActive  time.Time
	persistedAt time.Time
	fired       bool
	running     bool
	stop        chan struct{}
	done        chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCheckInterval sets the periodic check interval.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithTicker replaces the periodic ticker. The returned func stops it.
func WithTicker(newTick func(d time.Duration) (<-chan time.Time, func())) Option {
	return func(m *Monitor) { m.newTick = newTick }
}

// New creates a stopped Monitor. store may be nil.
func New(store ActivityStore, opts ...Option) *Monitor {
	m := &Monitor{
		store:    store,
		interval: DefaultCheckInterval,
		now:      time.Now,
		newTick: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins observing. The persisted last-activity time is loaded rather
// than reset, so a restart is not activity: if it is already stale, onIdle
// fires on the immediate first check. Calling Start on a running Monitor
// restarts it with the new timeout and callback.
func (m *Monitor) Start(timeout time.Duration, onIdle func(time.Duration)) {
	m.Stop()

	m.mu.Lock()
	now := m.now()
	m.timeout = timeout
	m.onIdle = onIdle
	m.fired = false
	m.lastActive = now
	if m.store != nil {
		if t, ok := m.store.LastActiveAt(); ok {
			m.lastActive = t
			m.persistedAt = t
		} else {
			m.store.SetLastActiveAt(now)
			m.persistedAt = now
		}
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	tick, stopTick := m.newTick(m.interval)
	stop, done := m.stop, m.done
	m.mu.Unlock()

	m.check()

	go func() {
		defer close(done)
		defer stopTick()
		for {
			select {
			case <-stop:
				return
			case <-tick:
				m.check()
			}
		}
	}()
}

// Stop detaches the monitor. It is idempotent, and onIdle never runs after
// Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()
	<-done
}

// Activity records a user-interaction signal, resetting the idle clock and
// re-arming the latch.
func (m *Monitor) Activity(Signal) {
	m.mu.Lock()
	now := m.now()
	m.lastActive = now
	m.fired = false
	persist := m.store != nil && now.Sub(m.persistedAt) >= persistEvery
	if persist {
		m.persistedAt = now
	}
	m.mu.Unlock()

	if persist {
		m.store.SetLastActiveAt(now)
	}
}

// MarkActive resets the idle clock as if the user had interacted and
// persists it immediately.
func (m *Monitor) MarkActive() {
	m.mu.Lock()
	now := m.now()
	m.lastActive = now
	m.fired = false
	m.persistedAt = now
	m.mu.Unlock()

	if m.store != nil {
		m.store.SetLastActiveAt(now)
	}
}

// IdleFor returns the current idle duration.
func (m *Monitor) IdleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastActive)
}

// check fires onIdle when the idle time exceeds the timeout and the latch
// is open. The callback runs without the lock held, but under the same
// running check, so a concurrent Stop waits for it.
func (m *Monitor) check() {
	m.mu.Lock()
	if !m.running || m.fired {
		m.mu.Unlock()
		return
	}
	elapsed := m.now().Sub(m.lastActive)
	if elapsed <= m.timeout {
		m.mu.Unlock()
		return
	}
	m.fired = true
	onIdle := m.onIdle
	m.mu.Unlock()

	if onIdle != nil {
		onIdle(elapsed)
	}
}

// Running reports whether the monitor is between Start and Stop.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
