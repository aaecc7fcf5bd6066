package ui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// MultiChoice is a four-way choice selector. Once submitted it shows the
// correct choice and, when different, the chosen one.
type MultiChoice struct {
	Question     string
	Choices      []string
	CorrectIndex int
	Selected     int
	Submitted    bool
	ChosenIndex  int
}

// NewMultiChoice creates a selector with the first choice highlighted.
func NewMultiChoice(question string, choices []string, correctIndex int) MultiChoice {
	return MultiChoice{
		Question:     question,
		Choices:      choices,
		CorrectIndex: correctIndex,
		ChosenIndex:  -1,
	}
}

// Update moves the highlight and submits on enter or a direct pick.
func (m MultiChoice) Update(msg tea.Msg) MultiChoice {
	if m.Submitted {
		return m
	}
	kmsg, ok := msg.(tea.KeyPressMsg)
	if !ok {
		return m
	}

	switch {
	case key.Matches(kmsg, keys.Up):
		if m.Selected > 0 {
			m.Selected--
		}
	case key.Matches(kmsg, keys.Down):
		if m.Selected < len(m.Choices)-1 {
			m.Selected++
		}
	case key.Matches(kmsg, keys.Pick):
		if i, ok := pickIndex(kmsg.String()); ok && i < len(m.Choices) {
			m.Selected = i
			m.submit()
		}
	case key.Matches(kmsg, keys.Submit):
		m.submit()
	}
	return m
}

func (m *MultiChoice) submit() {
	m.Submitted = true
	m.ChosenIndex = m.Selected
}

// View renders the question and its choices.
func (m MultiChoice) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(Text).Bold(true).Render(m.Question))
	b.WriteString("\n\n")

	for i, c := range m.Choices {
		prefix := "  "
		if i == m.Selected && !m.Submitted {
			prefix = "▸ "
		}
		line := fmt.Sprintf("%s%c)  %s", prefix, rune('A'+i), c)

		style := lipgloss.NewStyle().Foreground(Text)
		switch {
		case m.Submitted && i == m.CorrectIndex:
			style = correctStyle
		case m.Submitted && i == m.ChosenIndex:
			style = wrongStyle
		case m.Submitted:
			style = dimStyle
		case i == m.Selected:
			style = lipgloss.NewStyle().Foreground(Primary).Bold(true)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// IsCorrect reports whether the submitted choice is the correct one.
func (m MultiChoice) IsCorrect() bool {
	return m.Submitted && m.ChosenIndex == m.CorrectIndex
}
