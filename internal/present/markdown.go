package present

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown writes md to w, styled by glamour when styled is true and
// verbatim otherwise.
func RenderMarkdown(w io.Writer, md string, styled bool, width int) error {
	if !styled {
		_, err := io.WriteString(w, md)
		return err
	}
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("present: markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("present: render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
