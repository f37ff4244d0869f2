// Package present holds the menu's presentation adapters. Every adapter
// returns typed Entry handles, never the label that was displayed.
package present

import (
	"context"
	"errors"
	"fmt"

	"github.com/kingrea/linux-setup/internal/catalog"
)

// ErrCancelled means the user backed out (interrupt, Esc, end of input).
var ErrCancelled = errors.New("present: cancelled")

// ErrUnknownSelection means an adapter returned something that matches no
// entry it was given.
var ErrUnknownSelection = errors.New("present: selection matches no entry")

// Kind classifies a menu entry.
type Kind int

const (
	KindAction Kind = iota
	KindUpdateTool
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindUpdateTool:
		return "update-tool"
	case KindExit:
		return "exit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry is one selectable menu row.
type Entry struct {
	Kind   Kind
	Label  string
	Detail string
	// Action is set for KindAction entries.
	Action catalog.Descriptor
}

// ActionEntry wraps a discovered descriptor.
func ActionEntry(d catalog.Descriptor) Entry {
	return Entry{Kind: KindAction, Label: d.Name, Detail: d.Description, Action: d}
}

// Line renders the row as "<label:20> - <detail>".
func (e Entry) Line() string {
	if e.Detail == "" {
		return e.Label
	}
	return fmt.Sprintf("%-20s - %s", e.Label, e.Detail)
}

// FilterValue is matched by search filters.
func (e Entry) FilterValue() string {
	return e.Label + " " + e.Detail
}

// Title and Description let Entry act as a list item.
func (e Entry) Title() string       { return e.Label }
func (e Entry) Description() string { return e.Detail }

// Presenter is the selection surface for one capability tier.
type Presenter interface {
	Choose(ctx context.Context, title string, entries []Entry) (Entry, error)
	Confirm(ctx context.Context, question string) (bool, error)
	Input(ctx context.Context, question string) (string, error)
	Pause(ctx context.Context, message string) error
}

// byLine maps a rendered line back to its entry.
func byLine(entries []Entry, line string) (Entry, error) {
	for _, entry := range entries {
		if entry.Line() == line {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrUnknownSelection, line)
}
