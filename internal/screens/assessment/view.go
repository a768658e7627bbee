package assessment

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/cogtest/internal/orchestrator"
	"github.com/abhisek/cogtest/internal/ui/components"
	"github.com/abhisek/cogtest/internal/ui/theme"
)

func (s *Screen) View(width, height int) string {
	switch s.view.State {
	case orchestrator.StateActive:
		return s.renderActive(width, height)
	case orchestrator.StateIdleGate:
		return s.renderGate(width, height)
	case orchestrator.StateError:
		return s.renderError(width, height)
	case orchestrator.StateCompleted:
		return s.renderCompleted(width, height)
	}
	return renderCentered(width, height, theme.Hint.Render("Loading assessment..."))
}

func (s *Screen) renderActive(width, height int) string {
	var b strings.Builder

	bar := components.NewProgressBar(s.view.Position, s.view.Total, width-8)
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, bar.View()))
	b.WriteString("\n\n")

	if s.widget != nil {
		b.WriteString(s.widget.View(width, height-4))
	}
	b.WriteString("\n\n")

	switch {
	case s.busy:
		b.WriteString(theme.Hint.Width(width).Align(lipgloss.Center).Render("Sending answers..."))
	case s.submitFailed():
		b.WriteString(theme.ErrorText.Width(width).Align(lipgloss.Center).Render(s.view.Err.Error()))
		b.WriteString("\n")
		b.WriteString(theme.Hint.Width(width).Align(lipgloss.Center).Render("Press R to try again."))
	}
	return b.String()
}

func (s *Screen) renderGate(width, height int) string {
	var lines []string
	lines = append(lines, theme.Title.Render("Are you still there?"), "")

	mins := int(s.view.IdleFor.Minutes())
	if mins > 0 {
		lines = append(lines, theme.Body.Render(fmt.Sprintf("No activity for %d minute(s).", mins)))
	} else {
		lines = append(lines, theme.Body.Render("No recent activity."))
	}

	if s.view.Gate == orchestrator.GateGoHome {
		lines = append(lines, theme.Body.Render("There are no attempts left for this assessment."))
	} else {
		lines = append(lines, theme.Body.Render("The assessment will start again from the beginning."))
		if a := s.view.Attempts; a != nil {
			lines = append(lines, theme.Hint.Render(fmt.Sprintf("Attempts remaining: %d", a.Remaining())))
		}
	}
	lines = append(lines, "", s.gateButton.View())

	return renderCentered(width, height, theme.Gate.Render(strings.Join(lines, "\n")))
}

func (s *Screen) renderError(width, height int) string {
	msg := "The assessment could not be loaded."
	if s.view.Err != nil {
		msg = s.view.Err.Error()
	}
	body := strings.Join([]string{
		theme.ErrorText.Render("Something went wrong"),
		"",
		theme.Body.Render(msg),
		"",
		theme.Hint.Render("Press Enter to return home and try again."),
	}, "\n")
	return renderCentered(width, height, theme.Card.Render(body))
}

func (s *Screen) renderCompleted(width, height int) string {
	body := strings.Join([]string{
		theme.Title.Render("All modules complete"),
		"",
		theme.Body.Render("Thank you. Your answers have been recorded."),
		"",
		theme.Hint.Render("Press Enter to return home."),
	}, "\n")
	return renderCentered(width, height, theme.Card.Render(body))
}

func renderCentered(width, height int, content string) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
