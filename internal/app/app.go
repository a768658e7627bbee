package app

import (
	"fmt"
	"os"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/idle"
	"github.com/abhisek/cogtest/internal/router"
	"github.com/abhisek/cogtest/internal/screen"
	"github.com/abhisek/cogtest/internal/screens/assessment"
	"github.com/abhisek/cogtest/internal/screens/flow"
	"github.com/abhisek/cogtest/internal/screens/home"
	"github.com/abhisek/cogtest/internal/store"
	"github.com/abhisek/cogtest/internal/ui/layout"
	"github.com/abhisek/cogtest/internal/variant"
	"github.com/abhisek/cogtest/internal/widget"
)

const brand = "cogtest"

// Options holds the dependencies the TUI needs.
type Options struct {
	Variant  variant.Variant
	UserID   string
	Language string

	Orchestrator assessment.Orchestrator
	Store        *store.Facade
	Widgets      *widget.Registry

	// Monitor tracks activity while an assessment screen is open.
	Monitor     *idle.Monitor
	IdleTimeout time.Duration

	// Bridge must be the Navigator the orchestrator was built with.
	Bridge *Bridge

	Log *zap.Logger
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	opts   Options
	router *router.Router
	width  int
	height int
}

// newAppModel creates a new AppModel with the home screen.
func newAppModel(opts Options) AppModel {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Widgets == nil {
		opts.Widgets = widget.NewRegistry()
	}
	if opts.Bridge == nil {
		opts.Bridge = NewBridge()
	}
	m := AppModel{opts: opts}
	m.router = router.New(home.New(opts.Variant.Title, opts.UserID, m.flowStart))
	return m
}

// flowStart builds the first screen of the assessment flow.
func (m AppModel) flowStart() screen.Screen {
	return flow.New(flow.Deps{
		Store: m.opts.Store,
		Next:  m.assessmentScreen,
	})
}

func (m AppModel) assessmentScreen() screen.Screen {
	var tracker assessment.IdleControl
	if m.opts.Monitor != nil {
		tracker = idleTracker{mon: m.opts.Monitor, timeout: m.opts.IdleTimeout, onIdle: m.opts.Bridge.OnIdle}
	}
	return assessment.New(assessment.Deps{
		Orchestrator: m.opts.Orchestrator,
		Widgets:      m.opts.Widgets,
		Language:     m.opts.Language,
		Idle:         tracker,
		Log:          m.opts.Log,
	})
}

func (m AppModel) Init() tea.Cmd {
	return nil
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if sig, ok := activitySignal(msg); ok && m.opts.Monitor != nil && m.opts.Monitor.Running() {
		m.opts.Monitor.Activity(sig)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case navigateMsg:
		if msg.to == destHome {
			return m, m.router.Reset(nil)
		}
		return m, m.router.Reset(m.flowStart())

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if b, ok := m.router.Active().(screen.BackBlocker); ok && b.BlocksBack() {
				return m, nil
			}
			if m.router.Depth() > 1 {
				return m, func() tea.Msg { return router.PopScreenMsg{} }
			}
			return m, nil
		}
	}

	cmd := m.router.Update(msg)
	return m, cmd
}

// activitySignal maps terminal input to idle-monitor signals.
func activitySignal(msg tea.Msg) (idle.Signal, bool) {
	switch msg.(type) {
	case tea.KeyMsg:
		return idle.SignalKeyboard, true
	case tea.MouseWheelMsg:
		return idle.SignalScroll, true
	case tea.MouseMsg:
		return idle.SignalPointer, true
	case tea.FocusMsg:
		return idle.SignalVisible, true
	}
	return 0, false
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	v.MouseMode = tea.MouseModeCellMotion
	v.ReportFocus = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	active := m.router.Active()
	title, status := "", ""
	if active != nil {
		title = active.Title()
	}
	if sp, ok := active.(screen.StatusProvider); ok {
		status = sp.Status()
	}
	if status == "" {
		status = m.opts.Variant.Name
	}

	header := layout.RenderHeader(brand, title, status, m.width)

	var footerHints []layout.KeyHint
	if kp, ok := active.(screen.KeyHintProvider); ok {
		footerHints = kp.KeyHints()
	} else if m.router.Depth() > 1 {
		footerHints = []layout.KeyHint{
			{Key: "Esc", Description: "Back"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	} else {
		footerHints = []layout.KeyHint{
			{Key: "Ctrl+C", Description: "Quit"},
		}
	}

	footer := layout.RenderFooter(footerHints, m.width)

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := m.height - headerHeight - footerHeight
	if contentHeight < 0 {
		contentHeight = 0
	}

	content := m.router.View(m.width, contentHeight)
	frame := layout.RenderFrame(header, content, footer, m.width, m.height)

	v.SetContent(frame)
	return v
}

// idleTracker starts the monitor with the bridge as its callback.
type idleTracker struct {
	mon     *idle.Monitor
	timeout time.Duration
	onIdle  func(time.Duration)
}

func (t idleTracker) Start() { t.mon.Start(t.timeout, t.onIdle) }
func (t idleTracker) Stop()  { t.mon.Stop() }

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	if opts.Bridge == nil {
		opts.Bridge = NewBridge()
	}
	p := tea.NewProgram(newAppModel(opts))
	opts.Bridge.Attach(p)
	defer opts.Bridge.Attach(nil)
	if opts.Monitor != nil {
		defer opts.Monitor.Stop()
	}

	_, err := p.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error running program:", err)
		return err
	}
	return nil
}
