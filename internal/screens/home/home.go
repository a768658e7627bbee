package home

import (
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/cogtest/internal/router"
	"github.com/abhisek/cogtest/internal/screen"
	"github.com/abhisek/cogtest/internal/ui/components"
	"github.com/abhisek/cogtest/internal/ui/layout"
	"github.com/abhisek/cogtest/internal/ui/theme"
)

// HomeScreen is the root screen. The assessment is entered from here and
// Go Home returns here.
type HomeScreen struct {
	heading string
	userID  string
	menu    components.Menu
}

var _ screen.Screen = (*HomeScreen)(nil)

// New creates the home screen. begin builds the first screen of the
// assessment flow each time it is entered.
func New(heading, userID string, begin func() screen.Screen) *HomeScreen {
	items := []components.MenuItem{
		{Label: "Begin assessment", Action: func() tea.Cmd {
			return func() tea.Msg {
				return router.PushScreenMsg{Screen: begin()}
			}
		}},
		{Label: "Quit", Action: func() tea.Cmd {
			return tea.Quit
		}},
	}
	return &HomeScreen{
		heading: heading,
		userID:  userID,
		menu:    components.NewMenu(items),
	}
}

func (h *HomeScreen) Init() tea.Cmd {
	return nil
}

func (h *HomeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	var cmd tea.Cmd
	h.menu, cmd = h.menu.Update(msg)
	return h, cmd
}

func (h *HomeScreen) View(width, height int) string {
	var b strings.Builder
	b.WriteString(theme.Title.Width(width).Render(h.heading))
	b.WriteString("\n")
	if h.userID != "" {
		b.WriteString(theme.Subtitle.Width(width).Render("Signed in as " + h.userID))
	}
	b.WriteString("\n\n")
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, h.menu.View()))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, b.String())
}

func (h *HomeScreen) Title() string {
	return "Home"
}

func (h *HomeScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Enter", Description: "Select"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}
