package widget

import (
	"encoding/json"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/cogtest/internal/assessment"
	"github.com/abhisek/cogtest/internal/ui/components"
	"github.com/abhisek/cogtest/internal/ui/theme"
)

// Prompt shows every question of a module and collects one free-text answer.
type Prompt struct {
	session  assessment.Session
	language string
	lines    []string
	input    components.TextInput
	done     Done
	sent     bool
}

// NewPrompt is the fallback widget.
func NewPrompt(s assessment.Session, language string, done Done) Widget {
	return newPrompt(s, language, done, false)
}

// NewNumericPrompt only accepts digits.
func NewNumericPrompt(s assessment.Session, language string, done Done) Widget {
	return newPrompt(s, language, done, true)
}

func newPrompt(s assessment.Session, language string, done Done, numeric bool) *Prompt {
	if s.LanguageCode != "" {
		language = s.LanguageCode
	}
	p := &Prompt{
		session:  s,
		language: language,
		input:    components.NewTextInput("Type your answer", numeric, 200),
		done:     done,
	}
	if qs, ok := ParseQuestions(s.Questions); ok {
		for _, q := range qs {
			if t := q.Prompt(language); t != "" {
				p.lines = append(p.lines, t)
			}
		}
	} else {
		p.lines = []string{rawText(s.Questions)}
	}
	return p
}

func (p *Prompt) Init() tea.Cmd {
	return p.input.Init()
}

func (p *Prompt) Update(msg tea.Msg) (Widget, tea.Cmd) {
	if p.sent {
		return p, nil
	}
	if kmsg, ok := msg.(tea.KeyMsg); ok && kmsg.String() == "enter" {
		answer := strings.TrimSpace(p.input.Value())
		if answer == "" {
			return p, nil
		}
		payload, err := json.Marshal(map[string]string{"answer": answer})
		if err != nil {
			return p, nil
		}
		p.sent = true
		p.input.Submit()
		return p, p.done(payload)
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p *Prompt) View(width, height int) string {
	var b strings.Builder
	center := lipgloss.NewStyle().Width(width).Align(lipgloss.Center)

	b.WriteString(center.Foreground(theme.Secondary).Bold(true).Render(p.session.Module.String()))
	b.WriteString("\n\n")
	if len(p.lines) == 0 {
		b.WriteString(center.Foreground(theme.TextDim).Render("No questions for this module."))
	}
	for i, line := range p.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(center.Foreground(theme.Text).Render(line))
	}
	b.WriteString("\n\n")
	b.WriteString(center.Render("Answer: " + p.input.View()))
	return b.String()
}
