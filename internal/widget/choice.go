package widget

import (
	"encoding/json"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/cogtest/internal/assessment"
	"github.com/abhisek/cogtest/internal/ui/components"
	"github.com/abhisek/cogtest/internal/ui/theme"
)

// ChoiceAnswer is one entry of a choice widget payload.
type ChoiceAnswer struct {
	QuestionID json.RawMessage `json:"questionId,omitempty"`
	Choice     int             `json:"choice"`
}

// Choice walks through multiple-choice questions one at a time. Questions
// without options fall back to the prompt widget.
type Choice struct {
	session   assessment.Session
	language  string
	questions []Question
	current   int
	mc        components.MultiChoice
	answers   []ChoiceAnswer
	done      Done
	sent      bool
}

// NewChoice builds a Choice, or a Prompt when the session has no options to
// choose from.
func NewChoice(s assessment.Session, language string, done Done) Widget {
	if s.LanguageCode != "" {
		language = s.LanguageCode
	}
	qs, ok := ParseQuestions(s.Questions)
	if !ok || len(qs) == 0 {
		return NewPrompt(s, language, done)
	}
	for _, q := range qs {
		if len(q.Options) == 0 {
			return NewPrompt(s, language, done)
		}
	}
	c := &Choice{session: s, language: language, questions: qs, done: done}
	c.load()
	return c
}

func (c *Choice) load() {
	q := c.questions[c.current]
	c.mc = components.NewMultiChoice(q.Prompt(c.language), q.Options)
}

func (c *Choice) Init() tea.Cmd { return nil }

func (c *Choice) Update(msg tea.Msg) (Widget, tea.Cmd) {
	if c.sent {
		return c, nil
	}
	var cmd tea.Cmd
	c.mc, cmd = c.mc.Update(msg)
	if !c.mc.Submitted {
		return c, cmd
	}

	c.answers = append(c.answers, ChoiceAnswer{
		QuestionID: c.questions[c.current].ID,
		Choice:     c.mc.ChosenIndex,
	})
	if c.current+1 < len(c.questions) {
		c.current++
		c.load()
		return c, cmd
	}

	payload, err := json.Marshal(map[string]any{"answers": c.answers})
	if err != nil {
		return c, cmd
	}
	c.sent = true
	return c, tea.Batch(cmd, c.done(payload))
}

func (c *Choice) View(width, height int) string {
	var b strings.Builder
	center := lipgloss.NewStyle().Width(width).Align(lipgloss.Center)

	b.WriteString(center.Foreground(theme.Secondary).Bold(true).Render(c.session.Module.String()))
	b.WriteString("\n")
	b.WriteString(center.Foreground(theme.TextDim).Render(
		fmt.Sprintf("Question %d of %d", c.current+1, len(c.questions))))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, c.mc.View()))
	return b.String()
}
