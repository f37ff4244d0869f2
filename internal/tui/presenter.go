package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/linux-setup/internal/logbook"
	"github.com/kingrea/linux-setup/internal/present"
)

// Presenter runs one short bubbletea program per question. It serves the
// plain-text tier when the orchestrator is attached to a terminal.
type Presenter struct {
	in      io.Reader
	out     io.Writer
	logbook *logbook.Logbook
}

// NewPresenter reads keys from in and draws on out. lb may be nil.
func NewPresenter(in io.Reader, out io.Writer, lb *logbook.Logbook) *Presenter {
	return &Presenter{in: in, out: out, logbook: lb}
}

// Choose shows the menu.
func (p *Presenter) Choose(ctx context.Context, title string, entries []present.Entry) (present.Entry, error) {
	if len(entries) == 0 {
		return present.Entry{}, present.ErrCancelled
	}
	final, err := p.run(ctx, NewApp(title, entries, WithLogbook(p.logbook),
		WithStatus("enter select · / search · esc clear · q quit")), true)
	if err != nil {
		return present.Entry{}, err
	}
	app, ok := final.(*App)
	if !ok {
		return present.Entry{}, fmt.Errorf("tui: unexpected model %T", final)
	}
	if entry, chosen := app.Chosen(); chosen {
		return entry, nil
	}
	return present.Entry{}, present.ErrCancelled
}

// Confirm asks a yes/no question.
func (p *Presenter) Confirm(ctx context.Context, question string) (bool, error) {
	final, err := p.run(ctx, newConfirmModel(question), false)
	if err != nil {
		return false, err
	}
	m, ok := final.(*confirmModel)
	if !ok {
		return false, fmt.Errorf("tui: unexpected model %T", final)
	}
	if m.cancelled {
		return false, present.ErrCancelled
	}
	return m.answer, nil
}

// Input reads one line.
func (p *Presenter) Input(ctx context.Context, question string) (string, error) {
	final, err := p.run(ctx, newInputModel(question), false)
	if err != nil {
		return "", err
	}
	m, ok := final.(*inputModel)
	if !ok {
		return "", fmt.Errorf("tui: unexpected model %T", final)
	}
	if m.cancelled || !m.done {
		return "", present.ErrCancelled
	}
	return m.Value(), nil
}

// Pause waits for any key.
func (p *Presenter) Pause(ctx context.Context, message string) error {
	_, err := p.run(ctx, &pauseModel{message: message}, false)
	return err
}

func (p *Presenter) run(ctx context.Context, model tea.Model, fullscreen bool) (tea.Model, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithInput(p.in), tea.WithOutput(p.out)}
	if fullscreen {
		opts = append(opts, tea.WithAltScreen())
	}
	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
			return nil, present.ErrCancelled
		}
		return nil, fmt.Errorf("tui: %w", err)
	}
	return final, nil
}
