package assessment

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ModuleCode identifies which widget renders a module.
type ModuleCode string

const (
	CodeImageFlash    ModuleCode = "IMAGE_FLASH"
	CodeDrawing       ModuleCode = "DRAWING"
	CodeNumberRecall  ModuleCode = "NUMBER_RECALL"
	CodeWordRecall    ModuleCode = "WORD_RECALL"
	CodeSpeechCapture ModuleCode = "SPEECH_CAPTURE"
	CodePuzzle        ModuleCode = "PUZZLE"
)

// Module is one catalog entry. Modules are immutable once fetched.
type Module struct {
	ID         int        `json:"id"`
	Code       ModuleCode `json:"code"`
	OrderIndex int        `json:"orderIndex"`
	Name       string     `json:"name,omitempty"`
}

// Session is a live attempt at one module. It is replaced, never mutated,
// whenever the active module changes.
type Session struct {
	SessionID    string          `json:"sessionId"`
	Module       Module          `json:"module"`
	Questions    json.RawMessage `json:"questions"`
	LanguageCode string          `json:"languageCode"`
}

// AttemptStatus reports how many full attempts a user has consumed.
type AttemptStatus struct {
	Count                 int  `json:"count"`
	MaxAttempts           int  `json:"maxAttempts"`
	LastCompletedModuleID *int `json:"lastCompletedModuleId"`
	IsCompleted           bool `json:"isCompleted"`
}

// Allowed reports whether the user may start or continue another attempt.
func (s AttemptStatus) Allowed() bool {
	return s.Count < s.MaxAttempts
}

// Remaining returns the number of attempts left, never negative.
func (s AttemptStatus) Remaining() int {
	if s.Count >= s.MaxAttempts {
		return 0
	}
	return s.MaxAttempts - s.Count
}

// SubmitResult is the backend's answer to a module submission. A nil
// NextModuleID means the catalog is exhausted.
type SubmitResult struct {
	NextModuleID *int `json:"nextModuleId"`
}

// Done reports whether the submission finished the whole assessment.
func (r SubmitResult) Done() bool {
	return r.NextModuleID == nil
}

// StartRequest is the body of a session-start call.
type StartRequest struct {
	UserID       string `json:"userId"`
	LanguageCode string `json:"languageCode"`
	Resume       bool   `json:"resume"`
}

// Catalog is the ordered module list.
type Catalog []Module

// NewCatalog copies modules and sorts them by OrderIndex. Ties keep the
// backend's order.
func NewCatalog(modules []Module) Catalog {
	c := make(Catalog, len(modules))
	copy(c, modules)
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].OrderIndex < c[j].OrderIndex
	})
	return c
}

// First returns the first module in order.
func (c Catalog) First() (Module, bool) {
	if len(c) == 0 {
		return Module{}, false
	}
	return c[0], true
}

// IsFirst reports whether id is the first module in order.
func (c Catalog) IsFirst(id int) bool {
	first, ok := c.First()
	return ok && first.ID == id
}

// Index returns the position of the module with the given id, or -1.
func (c Catalog) Index(id int) int {
	for i, m := range c {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the module with the given id.
func (c Catalog) Find(id int) (Module, bool) {
	if i := c.Index(id); i >= 0 {
		return c[i], true
	}
	return Module{}, false
}

// After returns the module immediately after id in order. ok is false when
// id is the last module or is not in the catalog.
func (c Catalog) After(id int) (Module, bool) {
	i := c.Index(id)
	if i < 0 || i+1 >= len(c) {
		return Module{}, false
	}
	return c[i+1], true
}

// Position returns the 1-based position of id, or 0 when unknown.
func (c Catalog) Position(id int) int {
	return c.Index(id) + 1
}

func (m Module) String() string {
	if m.Name != "" {
		return fmt.Sprintf("%s (#%d)", m.Name, m.ID)
	}
	return fmt.Sprintf("%s (#%d)", m.Code, m.ID)
}
