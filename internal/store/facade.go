package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FlowStage is a step of the assessment flow that precedes the modules.
type FlowStage string

const (
	StageDisclaimer FlowStage = "disclaimer"
	StagePreTest    FlowStage = "pretest"
)

// Stages lists the flow stages in order.
var Stages = []FlowStage{StageDisclaimer, StagePreTest}

const (
	keyLastActiveAt = "last_active_at"
	keyProgress     = "progress"
	keyFlowPrefix   = "flow."
)

// Facade is typed, namespaced access to the durable slots the orchestrator
// and idle monitor need. No method returns an error: the first failure of
// the durable backend is logged and the Facade continues on an in-memory
// copy for the rest of the process.
type Facade struct {
	mu        sync.Mutex
	backend   KV
	mem       *MemoryKV
	ns        string
	log       *zap.Logger
	degraded  bool
	onDegrade func()
}

// NewFacade creates a Facade over backend with keys scoped to namespace. A
// nil backend starts degraded.
func NewFacade(backend KV, namespace string, log *zap.Logger) *Facade {
	if log == nil {
		log = zap.NewNop()
	}
	return &Facade{
		backend:  backend,
		mem:      NewMemoryKV(),
		ns:       namespace,
		log:      log,
		degraded: backend == nil,
	}
}

// OnDegrade registers fn to run once when the Facade falls back to memory.
// fn runs with the Facade locked and must not call back into it.
func (f *Facade) OnDegrade(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDegrade = fn
}

// Degraded reports whether the Facade has fallen back to memory.
func (f *Facade) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

// Namespace returns the key namespace.
func (f *Facade) Namespace() string {
	return f.ns
}

func (f *Facade) key(k string) string {
	return f.ns + ":" + k
}

func (f *Facade) degrade(op string, err error) {
	if f.degraded {
		return
	}
	f.degraded = true
	if f.onDegrade != nil {
		f.onDegrade()
	}
	f.log.Warn("durable storage failed, continuing in memory",
		zap.String("op", op),
		zap.String("namespace", f.ns),
		zap.Error(err))
}

func (f *Facade) get(k string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()
	key := f.key(k)
	if !f.degraded {
		v, ok, err := f.backend.Get(ctx, key)
		if err == nil {
			return v, ok
		}
		f.degrade("get", err)
	}
	v, ok, _ := f.mem.Get(ctx, key)
	return v, ok
}

func (f *Facade) set(k, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()
	key := f.key(k)
	_ = f.mem.Set(ctx, key, v)
	if !f.degraded {
		if err := f.backend.Set(ctx, key, v); err != nil {
			f.degrade("set", err)
		}
	}
}

func (f *Facade) remove(k string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()
	key := f.key(k)
	_ = f.mem.Delete(ctx, key)
	if !f.degraded {
		if err := f.backend.Delete(ctx, key); err != nil {
			f.degrade("delete", err)
		}
	}
}

func (f *Facade) removePrefix(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()
	key := f.key(prefix)
	_ = f.mem.DeletePrefix(ctx, key)
	if !f.degraded {
		if err := f.backend.DeletePrefix(ctx, key); err != nil {
			f.degrade("delete_prefix", err)
		}
	}
}

// LastActiveAt returns the persisted last-activity time.
func (f *Facade) LastActiveAt() (time.Time, bool) {
	v, ok := f.get(keyLastActiveAt)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetLastActiveAt persists the last-activity time.
func (f *Facade) SetLastActiveAt(t time.Time) {
	f.set(keyLastActiveAt, t.UTC().Format(time.RFC3339Nano))
}

// Progress returns the persisted progress. Absent or unreadable values
// degrade to Fresh.
func (f *Facade) Progress() Progress {
	v, ok := f.get(keyProgress)
	if !ok {
		return Fresh()
	}
	var p Progress
	if err := json.Unmarshal([]byte(v), &p); err != nil || !p.Valid() {
		f.log.Warn("discarding unreadable progress", zap.String("value", v))
		return Fresh()
	}
	return p
}

// SetProgress persists p. Fresh progress removes the slot.
func (f *Facade) SetProgress(p Progress) {
	if p.Kind == ProgressFresh || p.Kind == "" {
		f.remove(keyProgress)
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		f.log.Warn("encode progress", zap.Error(err))
		return
	}
	f.set(keyProgress, string(b))
}

// FlowAccepted reports whether the user has passed stage.
func (f *Facade) FlowAccepted(stage FlowStage) bool {
	_, ok := f.get(keyFlowPrefix + string(stage))
	return ok
}

// AcceptFlow marks stage as passed.
func (f *Facade) AcceptFlow(stage FlowStage, at time.Time) {
	f.set(keyFlowPrefix+string(stage), at.UTC().Format(time.RFC3339Nano))
}

// ClearFlow forgets every flow-stage acceptance.
func (f *Facade) ClearFlow() {
	f.removePrefix(keyFlowPrefix)
}

// Reset removes every slot in the namespace.
func (f *Facade) Reset() {
	f.removePrefix("")
}
