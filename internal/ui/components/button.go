package components

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/cogtest/internal/ui/theme"
)

// Button is a single focusable action. Enter presses it, as does Shortcut
// when set.
type Button struct {
	Label    string
	Shortcut string
	Active   bool
	OnPress  func() tea.Cmd
}

// NewButton creates an active button.
func NewButton(label, shortcut string, onPress func() tea.Cmd) Button {
	return Button{
		Label:    label,
		Shortcut: shortcut,
		Active:   true,
		OnPress:  onPress,
	}
}

// Update fires OnPress on enter or the shortcut key.
func (b Button) Update(msg tea.Msg) (Button, tea.Cmd) {
	if !b.Active || b.OnPress == nil {
		return b, nil
	}
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return b, nil
	}
	if k := kmsg.String(); k == "enter" || (b.Shortcut != "" && k == b.Shortcut) {
		return b, b.OnPress()
	}
	return b, nil
}

// View renders the button.
func (b Button) View() string {
	label := "▸ " + b.Label
	if b.Shortcut != "" {
		label += " (" + b.Shortcut + ")"
	}
	if b.Active {
		return theme.ButtonActive.Render(label)
	}
	return theme.ButtonInactive.Render(label)
}
