// Package ui is the interactive terminal quiz.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/gquiz/internal/bank"
	"github.com/abhisek/gquiz/internal/orchestrator"
)

// Quiz is the serving side the quiz screen drives.
type Quiz interface {
	Next(ctx context.Context, s *orchestrator.Session) (orchestrator.Served, error)
	Answer(ctx context.Context, s *orchestrator.Session, questionID string, choice int) (orchestrator.Graded, error)
}

type phase int

const (
	phaseLoading phase = iota
	phaseAsking
	phaseGrading
	phaseFeedback
	phaseDone
)

// questionReadyMsg carries the result of a Next call.
type questionReadyMsg struct {
	Served orchestrator.Served
	Err    error
}

// answeredMsg carries the result of an Answer call.
type answeredMsg struct {
	Graded orchestrator.Graded
	Err    error
}

// spinnerTickMsg animates the loading line.
type spinnerTickMsg time.Time

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Model is the quiz screen: fetch a question, take an answer, show the
// grade, repeat.
type Model struct {
	ctx   context.Context
	quiz  Quiz
	sess  *orchestrator.Session
	limit int

	phase  phase
	asked  int
	served orchestrator.Served
	mc     MultiChoice
	graded orchestrator.Graded
	frame  int
	err    error
}

// NewModel creates the quiz screen for sess. limit stops after that many
// answers; 0 runs until the learner quits.
func NewModel(ctx context.Context, q Quiz, sess *orchestrator.Session, limit int) Model {
	return Model{
		ctx:   ctx,
		quiz:  q,
		sess:  sess,
		limit: limit,
	}
}

// Run shows the quiz until the learner quits or the limit is reached and
// returns the session score.
func Run(ctx context.Context, q Quiz, sess *orchestrator.Session, limit int) (orchestrator.Score, error) {
	p := tea.NewProgram(NewModel(ctx, q, sess, limit))
	final, err := p.Run()
	if err != nil {
		return sess.Score(), fmt.Errorf("run quiz: %w", err)
	}
	if m, ok := final.(Model); ok && m.err != nil {
		return sess.Score(), m.err
	}
	return sess.Score(), nil
}

// Err is the error that ended the quiz, if any.
func (m Model) Err() error {
	return m.err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func (m Model) fetch() tea.Cmd {
	ctx, q, s := m.ctx, m.quiz, m.sess
	return func() tea.Msg {
		served, err := q.Next(ctx, s)
		return questionReadyMsg{Served: served, Err: err}
	}
}

func (m Model) submit(choice int) tea.Cmd {
	ctx, q, s, id := m.ctx, m.quiz, m.sess, m.served.Record.ID
	return func() tea.Msg {
		g, err := q.Answer(ctx, s, id, choice)
		return answeredMsg{Graded: g, Err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return spinnerTickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinnerTickMsg:
		if m.phase != phaseLoading {
			return m, nil
		}
		m.frame++
		return m, tick()

	case questionReadyMsg:
		if msg.Err != nil {
			return m.stop(msg.Err)
		}
		rec := msg.Served.Record
		m.served = msg.Served
		m.mc = NewMultiChoice(rec.PromptText, rec.Choices, rec.CorrectIndex)
		m.phase = phaseAsking
		return m, nil

	case answeredMsg:
		if msg.Err != nil {
			return m.stop(msg.Err)
		}
		m.graded = msg.Graded
		m.asked++
		m.phase = phaseFeedback
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		return m.stop(nil)
	}

	switch m.phase {
	case phaseAsking:
		m.mc = m.mc.Update(msg)
		if m.mc.Submitted {
			m.phase = phaseGrading
			return m, m.submit(m.mc.ChosenIndex)
		}
	case phaseFeedback:
		if !key.Matches(msg, keys.Next) {
			return m, nil
		}
		if m.limit > 0 && m.asked >= m.limit {
			return m.stop(nil)
		}
		m.phase = phaseLoading
		return m, tea.Batch(m.fetch(), tick())
	}
	return m, nil
}

func (m Model) stop(err error) (tea.Model, tea.Cmd) {
	m.err = err
	m.phase = phaseDone
	return m, tea.Quit
}

func (m Model) View() tea.View {
	return tea.NewView(m.render())
}

func (m Model) render() string {
	var b strings.Builder
	score := m.sess.Score()

	b.WriteString(titleStyle.Render("gquiz"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  score %d/%d", score.Correct, score.Answered)))
	b.WriteString("\n\n")

	switch m.phase {
	case phaseLoading:
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		b.WriteString(dimStyle.Render(frame + " Fetching a question..."))
		b.WriteString("\n")

	case phaseAsking, phaseGrading, phaseFeedback:
		b.WriteString(m.questionHeader())
		b.WriteString("\n")
		b.WriteString(cardStyle.Render(strings.TrimRight(m.mc.View(), "\n")))
		b.WriteString("\n")
		if m.phase == phaseFeedback {
			b.WriteString(m.feedback())
		}

	case phaseDone:
		b.WriteString(fmt.Sprintf("Score: %d/%d\n", score.Correct, score.Answered))
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(renderFooter(m.hints()))
	b.WriteString("\n")
	return b.String()
}

func (m Model) questionHeader() string {
	source := "online"
	if m.served.Origin != bank.OriginOnline {
		source = "bank"
	}
	return chapterStyle.Render(fmt.Sprintf("Q%d  %s", m.asked+1, m.served.Record.ChapterTag)) +
		dimStyle.Render("  "+source)
}

func (m Model) feedback() string {
	var b strings.Builder
	b.WriteString("\n")
	if m.graded.Correct {
		b.WriteString(correctStyle.Render("Correct!"))
	} else {
		b.WriteString(wrongStyle.Render(fmt.Sprintf("Wrong. The answer is %c.", rune('A'+m.graded.CorrectIndex))))
	}
	b.WriteString("\n")
	if m.graded.Explanation != "" {
		b.WriteString(m.graded.Explanation)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) hints() []key.Binding {
	switch m.phase {
	case phaseAsking:
		return []key.Binding{keys.Up, keys.Down, keys.Pick, keys.Submit, keys.Quit}
	case phaseFeedback:
		return []key.Binding{keys.Next, keys.Quit}
	}
	return []key.Binding{keys.Quit}
}

// renderFooter lists the key hints for the current phase.
func renderFooter(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts,
			lipgloss.NewStyle().Foreground(Text).Bold(true).Render(h.Key)+" "+dimStyle.Render(h.Desc))
	}
	return "  " + strings.Join(parts, "   ")
}
