package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"golang.org/x/term"
)

// Renderer writes results to out and diagnostics to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   OutputMode
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, IsTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	return &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
		styles: NewStyles(errOut, isTTY && IsTerminal(errOut)),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Out returns the result writer.
func (r *Renderer) Out() io.Writer { return r.out }

// Err returns the diagnostics writer.
func (r *Renderer) Err() io.Writer { return r.errOut }

// IsTTY reports whether results go to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the renderer's styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// EffectiveMode resolves ModeAuto against the TTY state.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto && r.mode != "" {
		return r.mode
	}
	if r.isTTY {
		return ModeTable
	}
	return ModeMarkdown
}

// Success prints a success message to stderr.
func (r *Renderer) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warning prints a warning to stderr.
func (r *Renderer) Warning(format string, args ...any) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Muted prints secondary information to stderr.
func (r *Renderer) Muted(format string, args ...any) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Muted.Render(fmt.Sprintf(format, args...)))
}

// Error prints err to stderr. Source errors are followed by their traceback.
func (r *Renderer) Error(err error) {
	var se *source.Error
	if !errors.As(err, &se) {
		_, _ = fmt.Fprintf(r.errOut, "%s %v\n", r.styles.Error.Render("Error:"), err)
		return
	}
	if tb := strings.TrimRight(se.Traceback, "\n"); tb != "" {
		_, _ = fmt.Fprintln(r.errOut, r.styles.Muted.Render("Traceback (most recent call last):"))
		_, _ = fmt.Fprintln(r.errOut, r.styles.Traceback.Render(tb))
	}
	_, _ = fmt.Fprintf(r.errOut, "%s %s\n", r.styles.Error.Render(se.Kind.String()+" error:"), se.Msg)
}

// Result writes a result set in the renderer's mode.
func (r *Renderer) Result(cols []string, rows [][]core.Value) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return renderJSON(r.out, cols, rows)
	case ModeCSV:
		return renderCSV(r.out, cols, rows)
	case ModeMarkdown:
		return renderMarkdown(r.out, cols, rows)
	default:
		return renderTable(r.out, cols, rows)
	}
}

func renderTable(w io.Writer, cols []string, rows [][]core.Value) error {
	if len(cols) == 0 {
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v.String()
		}
		t.AppendRow(tr)
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

func renderJSON(w io.Writer, cols []string, rows [][]core.Value) error {
	results := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(cols))
		for i, col := range cols {
			m[col] = row[i].Any()
		}
		results = append(results, m)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func renderCSV(w io.Writer, cols []string, rows [][]core.Value) error {
	if len(cols) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(cellStrings(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func renderMarkdown(w io.Writer, cols []string, rows [][]core.Value) error {
	if len(cols) == 0 {
		return nil
	}
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(cols, " | "))
	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
	for _, row := range rows {
		cells := cellStrings(row)
		for i, c := range cells {
			cells[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

func cellStrings(row []core.Value) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = v.String()
	}
	return out
}
