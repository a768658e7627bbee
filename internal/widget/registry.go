package widget

import (
	"sync"

	"github.com/abhisek/cogtest/internal/assessment"
)

// Registry maps module codes to widget factories. Codes without a factory
// get the prompt widget.
type Registry struct {
	mu        sync.RWMutex
	factories map[assessment.ModuleCode]Factory
	fallback  Factory
}

// NewRegistry returns a registry with the built-in widgets.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[assessment.ModuleCode]Factory),
		fallback:  NewPrompt,
	}
	r.Register(assessment.CodeNumberRecall, NewNumericPrompt)
	r.Register(assessment.CodeImageFlash, NewChoice)
	r.Register(assessment.CodePuzzle, NewChoice)
	return r
}

// Register sets the factory for code, replacing any previous one.
func (r *Registry) Register(code assessment.ModuleCode, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[code] = f
}

// Lookup returns the factory for code and whether it was registered.
func (r *Registry) Lookup(code assessment.ModuleCode) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[code]
	if !ok {
		return r.fallback, false
	}
	return f, true
}

// New builds the widget for s. done is wrapped so it fires at most once.
func (r *Registry) New(s assessment.Session, language string, done Done) Widget {
	f, _ := r.Lookup(s.Module.Code)
	return f(s, language, NewOnce(done).Complete)
}
