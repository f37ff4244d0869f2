package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// confirmModel asks a yes/no question; enter alone means no.
type confirmModel struct {
	question  string
	answer    bool
	cancelled bool
}

func newConfirmModel(question string) *confirmModel {
	return &confirmModel{question: question}
}

func (m *confirmModel) Init() tea.Cmd { return nil }

func (m *confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.answer = true
		return m, tea.Quit
	case "n", "enter":
		m.answer = false
		return m, tea.Quit
	case "esc", "ctrl+c":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *confirmModel) View() string {
	return questionStyle.Render(m.question) + " " + hintStyle.Render("[y/N]") + "\n"
}

// inputModel reads one line of text.
type inputModel struct {
	question  string
	input     textinput.Model
	done      bool
	cancelled bool
}

func newInputModel(question string) *inputModel {
	input := textinput.New()
	input.Placeholder = question
	input.CharLimit = 256
	input.Focus()
	return &inputModel{question: question, input: input}
}

func (m *inputModel) Init() tea.Cmd { return textinput.Blink }

func (m *inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *inputModel) View() string {
	return questionStyle.Render(m.question) + "\n" + m.input.View() + "\n" +
		hintStyle.Render("enter to confirm · esc to cancel") + "\n"
}

func (m *inputModel) Value() string {
	return strings.TrimSpace(m.input.Value())
}

// pauseModel shows a message until any key is pressed.
type pauseModel struct {
	message string
}

func (m *pauseModel) Init() tea.Cmd { return nil }

func (m *pauseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(tea.KeyMsg); ok {
		return m, tea.Quit
	}
	return m, nil
}

func (m *pauseModel) View() string {
	return hintStyle.Render(m.message) + "\n"
}
