package widget

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Question is the subset of a backend question the built-in widgets
// understand. Unknown fields are ignored.
type Question struct {
	ID      json.RawMessage   `json:"id,omitempty"`
	Text    string            `json:"text"`
	Texts   map[string]string `json:"texts,omitempty"`
	Options []string          `json:"options,omitempty"`
}

// Prompt returns the question text in language, falling back to Text.
func (q Question) Prompt(language string) string {
	if t, ok := q.Texts[language]; ok && t != "" {
		return t
	}
	if i := strings.IndexByte(language, '-'); i > 0 {
		if t, ok := q.Texts[language[:i]]; ok && t != "" {
			return t
		}
	}
	return q.Text
}

// ParseQuestions decodes a session's question payload. It accepts an array
// of questions or an object with a "questions" array. ok is false when the
// payload has neither shape.
func ParseQuestions(raw json.RawMessage) (qs []Question, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}
	if err := json.Unmarshal(raw, &qs); err == nil {
		return qs, true
	}
	var wrapped struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Questions != nil {
		return wrapped.Questions, true
	}
	return nil, false
}

// rawText pretty-prints a payload that could not be parsed.
func rawText(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
