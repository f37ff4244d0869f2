package present

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kingrea/linux-setup/internal/system"
)

// gumInterrupted is gum's exit status on ctrl+c.
const gumInterrupted = 130

// Gum drives the gum binary for the rich-interactive tier. gum draws on the
// terminal and prints the chosen value on stdout.
type Gum struct {
	Host   system.Host
	Binary string
	// In and Out are used by Pause; gum has no pause widget.
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// Choose runs "gum filter" over the rendered entry lines.
func (g *Gum) Choose(ctx context.Context, title string, entries []Entry) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, ErrCancelled
	}
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.Line()
	}
	out, err := g.run(ctx, strings.Join(lines, "\n")+"\n",
		"filter", "--header", title, "--placeholder", "Search...", "--height", "20")
	if err != nil {
		return Entry{}, err
	}
	return byLine(entries, strings.TrimRight(out, "\r\n"))
}

// Confirm runs "gum confirm"; exit status 1 means no.
func (g *Gum) Confirm(ctx context.Context, question string) (bool, error) {
	_, err := g.run(ctx, "", "confirm", question)
	switch code := system.ExitCode(err); {
	case err == nil:
		return true, nil
	case code == 1:
		return false, nil
	default:
		return false, err
	}
}

// Input runs "gum input".
func (g *Gum) Input(ctx context.Context, question string) (string, error) {
	out, err := g.run(ctx, "", "input", "--header", question, "--placeholder", question)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Pause prints message and waits for a line on In.
func (g *Gum) Pause(ctx context.Context, message string) error {
	if g.reader == nil && g.In != nil {
		g.reader = bufio.NewReader(g.In)
	}
	return pause(ctx, g.reader, g.Out, message)
}

func (g *Gum) run(ctx context.Context, stdin string, args ...string) (string, error) {
	var stdout bytes.Buffer
	cmd := system.Command{Name: g.Binary, Args: args, Stdout: &stdout}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	err := g.Host.Run(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil || system.ExitCode(err) == gumInterrupted {
			return "", ErrCancelled
		}
		if args[0] != "confirm" && system.ExitCode(err) == 1 {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("present: gum %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

func pause(ctx context.Context, in *bufio.Reader, out io.Writer, message string) error {
	if out != nil && message != "" {
		fmt.Fprintln(out, message)
	}
	if in == nil {
		return nil
	}
	_, err := readLine(ctx, in)
	if errors.Is(err, ErrCancelled) && ctx.Err() == nil {
		// end of input
		return nil
	}
	return err
}
