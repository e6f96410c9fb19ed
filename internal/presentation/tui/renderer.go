package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Print writes markdown to w, styled when styled is true and as plain text
// otherwise.
func Print(w io.Writer, markdown string, styled bool) error {
	out := markdown
	if styled {
		rendered, err := NewRenderer()(markdown)
		if err == nil {
			out = rendered
		}
	}
	_, err := io.WriteString(w, out)
	return err
}
