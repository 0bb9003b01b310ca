package source

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// contextWindow bounds the snippet printed on each side of a caret.
const contextWindow = 128

// AsTraceback renders a traceback for an offset in the rewritten text. The
// first frame points into the original text; if the text was rewritten the
// expanded form is shown too and the frame of the rewrite containing the
// offset follows, outermost first.
func (t *Text) AsTraceback(off int) string {
	var b strings.Builder
	t.writeTraceback(&b, off)
	return b.String()
}

func (t *Text) writeTraceback(b *strings.Builder, off int) {
	off = min(max(off, 0), len(t.rewritten))
	orig := t.mapStart(off)

	fmt.Fprintf(b, "  %s %s\n", t.name, t.start.Advance(t.original[:orig]))
	writeContext(b, t.original, orig)
	if len(t.rewrites) == 0 {
		return
	}

	b.WriteString("  Fully expanded statement\n")
	writeContext(b, t.rewritten, off)
	for _, r := range t.rewrites {
		if r.rwStart <= off && off < r.rwEnd {
			r.repl.writeTraceback(b, off-r.rwStart)
			return
		}
	}
}

// writeContext prints the line around off, clipped to contextWindow bytes
// on each side, and a caret under off. Clipping never splits a rune.
func writeContext(b *strings.Builder, text string, off int) {
	lineStart := max(strings.LastIndexByte(text[:off], '\n')+1, off-contextWindow)
	for lineStart < off && !utf8.RuneStart(text[lineStart]) {
		lineStart++
	}
	lineEnd := len(text)
	if i := strings.IndexByte(text[off:], '\n'); i >= 0 {
		lineEnd = off + i
	}
	lineEnd = min(lineEnd, off+contextWindow)
	for lineEnd > off && lineEnd < len(text) && !utf8.RuneStart(text[lineEnd]) {
		lineEnd--
	}

	pad := utf8.RuneCountInString(text[lineStart:off])
	fmt.Fprintf(b, "    %s\n    %s^\n", text[lineStart:lineEnd], strings.Repeat(" ", pad))
}
