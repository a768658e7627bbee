// Package flow shows the stages a user passes before the first module:
// the disclaimer and the pre-test instructions.
package flow

import (
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/cogtest/internal/router"
	"github.com/abhisek/cogtest/internal/screen"
	"github.com/abhisek/cogtest/internal/store"
	"github.com/abhisek/cogtest/internal/ui/components"
	"github.com/abhisek/cogtest/internal/ui/layout"
	"github.com/abhisek/cogtest/internal/ui/theme"
)

// Acceptances records which stages the user has passed. *store.Facade
// implements it.
type Acceptances interface {
	FlowAccepted(stage store.FlowStage) bool
	AcceptFlow(stage store.FlowStage, at time.Time)
}

// Deps configure the flow. Next builds the screen shown once every stage
// is accepted.
type Deps struct {
	Store Acceptances
	Next  func() screen.Screen
	Now   func() time.Time
}

type page struct {
	title string
	body  []string
}

var pages = map[store.FlowStage]page{
	store.StageDisclaimer: {
		title: "Before you begin",
		body: []string{
			"This assessment is a screening tool. It does not provide a diagnosis.",
			"Your answers are sent to your care provider and stored securely.",
			"Please complete it on your own, without help from others.",
		},
	},
	store.StagePreTest: {
		title: "How it works",
		body: []string{
			"You will work through a short series of modules, one at a time.",
			"Read each question carefully and answer with the keyboard.",
			"If you step away for too long, the assessment starts over.",
		},
	},
}

// Screen shows one flow stage.
type Screen struct {
	deps   Deps
	stage  store.FlowStage
	done   bool
	accept components.Button
}

var _ screen.Screen = (*Screen)(nil)

// New returns the screen for the first stage not yet accepted. When every
// stage is accepted the screen replaces itself with deps.Next on Init.
func New(deps Deps) *Screen {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Screen{deps: deps, done: true}
	for _, st := range store.Stages {
		if !deps.Store.FlowAccepted(st) {
			s.stage, s.done = st, false
			break
		}
	}
	s.accept = components.NewButton("I understand", "", s.acceptStage)
	return s
}

// Stage returns the stage shown, or "" when the flow is complete.
func (s *Screen) Stage() store.FlowStage {
	return s.stage
}

func (s *Screen) Title() string {
	if s.done {
		return ""
	}
	return pages[s.stage].title
}

func (s *Screen) Init() tea.Cmd {
	if s.done {
		return s.next()
	}
	return nil
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if s.done {
		return s, nil
	}
	var cmd tea.Cmd
	s.accept, cmd = s.accept.Update(msg)
	return s, cmd
}

func (s *Screen) acceptStage() tea.Cmd {
	s.deps.Store.AcceptFlow(s.stage, s.deps.Now())
	s.done = true
	return s.next()
}

// next replaces this screen with the following stage, or with deps.Next
// after the last one.
func (s *Screen) next() tea.Cmd {
	following := New(s.deps)
	var target screen.Screen = following
	if following.done {
		target = s.deps.Next()
	}
	return func() tea.Msg {
		return router.ReplaceScreenMsg{Screen: target}
	}
}

func (s *Screen) View(width, height int) string {
	if s.done {
		return ""
	}
	p := pages[s.stage]

	var lines []string
	lines = append(lines, theme.Title.Render(p.title), "")
	for _, l := range p.body {
		lines = append(lines, theme.Body.Render(l))
	}
	lines = append(lines, "", s.accept.View())

	card := theme.Card.Width(min(width-4, 76)).Render(strings.Join(lines, "\n"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, card)
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Continue"},
		{Key: "Esc", Description: "Back"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}
