package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used for terminal output.
type Styles struct {
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Success   lipgloss.Style
	Muted     lipgloss.Style
	Header    lipgloss.Style
	Traceback lipgloss.Style
}

// NewStyles builds styles for w. Without a TTY every style renders plain text.
func NewStyles(w io.Writer, isTTY bool) *Styles {
	r := lipgloss.NewRenderer(w)
	if !isTTY {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Styles{
		Error:     r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Warning:   r.NewStyle().Foreground(lipgloss.Color("11")),
		Success:   r.NewStyle().Foreground(lipgloss.Color("10")),
		Muted:     r.NewStyle().Foreground(lipgloss.Color("8")),
		Header:    r.NewStyle().Bold(true),
		Traceback: r.NewStyle().Foreground(lipgloss.Color("8")).PaddingLeft(2),
	}
}
