// internal/tui/app.go
//
// Built-in bubbletea menu for hosts without gum or a dialog program. It
// follows The Elm Architecture:
//
// 1. Model: the entry list, the filter and the chosen entry
// 2. Update: key and window messages change the model
// 3. View: header, list, status line and the logbook panel
//
// The App quits as soon as an entry is chosen or the user backs out; the
// menu controller owns the loop around it.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/linux-setup/internal/logbook"
	"github.com/kingrea/linux-setup/internal/present"
)

const logPanelLines = 6

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the tail of lb under the menu.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithStatus sets the footer message.
func WithStatus(msg string) AppOption {
	return func(a *App) {
		a.statusMsg = msg
	}
}

// App is the selection model for one pass through the menu.
type App struct {
	title   string
	entries []present.Entry
	menu    list.Model
	logbook *logbook.Logbook

	statusMsg string
	chosen    *present.Entry
	cancelled bool

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// NewApp builds the menu for entries.
func NewApp(title string, entries []present.Entry, opts ...AppOption) *App {
	items := make([]list.Item, len(entries))
	for i, entry := range entries {
		items[i] = entry
	}
	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	menu.Title = title
	menu.Filter = substringFilter
	menu.SetShowStatusBar(false)
	menu.SetStatusBarItemName("action", "actions")
	menu.DisableQuitKeybindings()

	app := &App{
		title:   title,
		entries: entries,
		menu:    menu,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Chosen returns the selected entry once the program has quit.
func (a *App) Chosen() (present.Entry, bool) {
	if a.chosen == nil {
		return present.Entry{}, false
	}
	return *a.chosen, true
}

// Cancelled reports whether the user backed out.
func (a *App) Cancelled() bool {
	return a.cancelled
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.menu.SetSize(max(0, msg.Width-6), max(0, msg.Height-logPanelLines-10))
		return a, nil

	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			a.cancelled = true
			return a, tea.Quit
		}
		// While the filter prompt is open every key belongs to it.
		if a.menu.FilterState() == list.Filtering {
			break
		}
		switch key {
		case "q", "esc":
			if a.menu.FilterState() == list.Unfiltered {
				a.cancelled = true
				return a, tea.Quit
			}
		case "enter":
			if entry, ok := a.menu.SelectedItem().(present.Entry); ok {
				a.chosen = &entry
				return a, tea.Quit
			}
			return a, nil
		}
	}

	var cmd tea.Cmd
	a.menu, cmd = a.menu.Update(msg)
	return a, cmd
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	if a.height <= 0 {
		a.menu.SetSize(max(20, width-6), max(10, len(a.entries)*3+4))
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ " + strings.ToUpper(a.title))
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-2)).
		Render(a.menu.View())

	sections := []string{header, body, a.renderStatusLine()}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	if a.statusMsg != "" {
		footer := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			Render(a.statusMsg)
		sections = append(sections, footer)
	}
	return strings.Join(sections, "\n")
}

func (a *App) renderStatusLine() string {
	status := fmt.Sprintf("Items: %d/%d", len(a.menu.VisibleItems()), len(a.entries))
	if term := a.menu.FilterValue(); term != "" {
		status += " | Search: " + term
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(status)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logPanelLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s (%d lines)", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

// substringFilter ranks targets containing term, ignoring case, in their
// original order.
func substringFilter(term string, targets []string) []list.Rank {
	needle := strings.ToLower(strings.TrimSpace(term))
	ranks := make([]list.Rank, 0, len(targets))
	for i, target := range targets {
		haystack := strings.ToLower(target)
		at := strings.Index(haystack, needle)
		if at < 0 {
			continue
		}
		start := utf8.RuneCountInString(haystack[:at])
		matched := make([]int, utf8.RuneCountInString(needle))
		for j := range matched {
			matched[j] = start + j
		}
		ranks = append(ranks, list.Rank{Index: i, MatchedIndexes: matched})
	}
	return ranks
}
