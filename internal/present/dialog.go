package present

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kingrea/linux-setup/internal/system"
)

// Exit statuses shared by whiptail and dialog.
const (
	dialogNo  = 1
	dialogEsc = 255
)

const (
	dialogHeight     = 20
	dialogWidth      = 78
	dialogListHeight = 12
)

// Dialog drives whiptail or dialog for the basic-dialog tier. Both draw on
// the terminal and report the answer on stderr. Menu rows are tagged with
// their 1-based index so the answer never depends on the label text.
type Dialog struct {
	Host   system.Host
	Binary string
}

// Choose shows a --menu box.
func (d *Dialog) Choose(ctx context.Context, title string, entries []Entry) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, ErrCancelled
	}
	args := []string{"--title", title, "--menu", "Choose an action",
		strconv.Itoa(dialogHeight), strconv.Itoa(dialogWidth), strconv.Itoa(dialogListHeight)}
	for i, entry := range entries {
		args = append(args, strconv.Itoa(i+1), entry.Line())
	}
	answer, err := d.run(ctx, args...)
	if err != nil {
		return Entry{}, err
	}
	idx, convErr := strconv.Atoi(strings.TrimSpace(answer))
	if convErr != nil || idx < 1 || idx > len(entries) {
		return Entry{}, fmt.Errorf("%w: tag %q", ErrUnknownSelection, answer)
	}
	return entries[idx-1], nil
}

// Confirm shows a --yesno box.
func (d *Dialog) Confirm(ctx context.Context, question string) (bool, error) {
	_, err := d.run(ctx, "--yesno", question, "10", "60")
	if err == nil {
		return true, nil
	}
	if system.ExitCode(err) == dialogNo {
		return false, nil
	}
	return false, err
}

// Input shows an --inputbox.
func (d *Dialog) Input(ctx context.Context, question string) (string, error) {
	answer, err := d.run(ctx, "--inputbox", question, "10", "60")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// Pause shows a --msgbox.
func (d *Dialog) Pause(ctx context.Context, message string) error {
	_, err := d.run(ctx, "--msgbox", message, "10", "60")
	return err
}

func (d *Dialog) run(ctx context.Context, args ...string) (string, error) {
	var answer bytes.Buffer
	err := d.Host.Run(ctx, system.Command{Name: d.Binary, Args: args, Stderr: &answer})
	if err == nil {
		return answer.String(), nil
	}
	if ctx.Err() != nil || system.ExitCode(err) == dialogEsc {
		return "", ErrCancelled
	}
	if system.ExitCode(err) == dialogNo {
		if args[0] == "--yesno" {
			return "", fmt.Errorf("present: %s: %w", d.Binary, err)
		}
		return "", ErrCancelled
	}
	return "", fmt.Errorf("present: %s %s: %w", d.Binary, args[0], err)
}
