package present

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Line is the plain-text tier for hosts without a terminal UI: a numbered
// list and a prompt read line by line. "/term" narrows the list, "q" or end
// of input cancels.
type Line struct {
	out    io.Writer
	reader *bufio.Reader
}

// NewLine reads answers from in and writes prompts to out.
func NewLine(in io.Reader, out io.Writer) *Line {
	return &Line{out: out, reader: bufio.NewReader(in)}
}

// Choose prints the entries and reads a selection.
func (l *Line) Choose(ctx context.Context, title string, entries []Entry) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, ErrCancelled
	}
	shown := entries
	search := ""
	for {
		fmt.Fprintf(l.out, "\n%s\n", title)
		for i, entry := range shown {
			fmt.Fprintf(l.out, "%3d) %s\n", i+1, entry.Line())
		}
		fmt.Fprintf(l.out, "Items: %d/%d", len(shown), len(entries))
		if search != "" {
			fmt.Fprintf(l.out, " | Search: %s", search)
		}
		fmt.Fprintf(l.out, "\nSelect [1-%d], /term to search, q to quit: ", len(shown))

		answer, err := readLine(ctx, l.reader)
		if err != nil {
			return Entry{}, err
		}
		switch {
		case answer == "q" || answer == "Q":
			return Entry{}, ErrCancelled
		case strings.HasPrefix(answer, "/"):
			search = strings.TrimSpace(answer[1:])
			shown = filterEntries(entries, search)
			continue
		case answer == "":
			continue
		}
		idx, convErr := strconv.Atoi(answer)
		if convErr != nil || idx < 1 || idx > len(shown) {
			fmt.Fprintf(l.out, "Invalid selection %q\n", answer)
			continue
		}
		return shown[idx-1], nil
	}
}

// Confirm reads a yes/no answer; anything but y or yes is no.
func (l *Line) Confirm(ctx context.Context, question string) (bool, error) {
	fmt.Fprintf(l.out, "%s [y/N]: ", question)
	answer, err := readLine(ctx, l.reader)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Input reads one line.
func (l *Line) Input(ctx context.Context, question string) (string, error) {
	fmt.Fprintf(l.out, "%s: ", question)
	return readLine(ctx, l.reader)
}

// Pause prints message and waits for enter.
func (l *Line) Pause(ctx context.Context, message string) error {
	return pause(ctx, l.reader, l.out, message)
}

// filterEntries keeps entries matching term, case-insensitively. Entries
// that are not actions stay visible so the user can always leave.
func filterEntries(entries []Entry, term string) []Entry {
	needle := strings.ToLower(term)
	if needle == "" {
		return entries
	}
	var out []Entry
	for _, entry := range entries {
		if entry.Kind != KindAction || strings.Contains(strings.ToLower(entry.FilterValue()), needle) {
			out = append(out, entry)
		}
	}
	return out
}

// readLine returns the next trimmed line. End of input is ErrCancelled
// unless a partial line was read.
func readLine(ctx context.Context, r *bufio.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ErrCancelled
	}
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("present: read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
