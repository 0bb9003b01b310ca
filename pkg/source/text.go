// Package source models SQL text together with the tree of rewrites that
// produced it, so offsets in executed text can be traced back to what the
// user actually wrote.
package source

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/token"
)

// Text is an immutable original string plus an ordered list of in-place
// rewrites. Each rewrite replaces original[origStart:origEnd] with the
// rewritten form of another Text, which owns its own rewrites.
type Text struct {
	name      string
	original  string
	rewritten string
	start     token.Position
	rewrites  []rewrite
}

type rewrite struct {
	origStart, origEnd int
	rwStart, rwEnd     int
	repl               *Text
}

// New creates a Text with no rewrites starting at line 1, column 1.
func New(name, text string) *Text {
	return NewAt(name, text, token.Position{Line: 1, Column: 1})
}

// NewAt creates a Text whose first byte sits at pos in the file it came from.
func NewAt(name, text string, pos token.Position) *Text {
	return &Text{name: name, original: text, rewritten: text, start: pos}
}

// Name returns the diagnostic label of the text.
func (t *Text) Name() string { return t.name }

// Original returns the text as the user wrote it.
func (t *Text) Original() string { return t.original }

// Rewritten returns the text with all rewrites applied.
func (t *Text) Rewritten() string { return t.rewritten }

// Len returns the length of the rewritten text.
func (t *Text) Len() int { return len(t.rewritten) }

// Start returns the file position of the first original byte.
func (t *Text) Start() token.Position { return t.start }

// HasRewrites reports whether any part of the text was rewritten.
func (t *Text) HasRewrites() bool { return len(t.rewrites) > 0 }

func (t *Text) String() string { return t.rewritten }

// OriginalOffset maps an offset in the rewritten text to the original text.
// Offsets inside a replacement resolve to the start of the replaced span.
func (t *Text) OriginalOffset(off int) int {
	return t.mapStart(off)
}

// Position returns the file position of a rewritten offset.
func (t *Text) Position(off int) token.Position {
	return t.start.Advance(t.original[:t.mapStart(off)])
}

// Straddles reports whether rewritten[start:end] partly overlaps a rewrite,
// which a Rewriter cannot replace.
func (t *Text) Straddles(start, end int) bool {
	for _, r := range t.rewrites {
		if r.rwStart == r.rwEnd || end <= r.rwStart || start >= r.rwEnd {
			continue
		}
		inside := r.rwStart <= start && end <= r.rwEnd
		covers := start <= r.rwStart && r.rwEnd <= end
		if !inside && !covers {
			return true
		}
	}
	return false
}

// mapStart maps a rewritten offset used as the start of a range. Empty
// replacements at off are treated as lying before it.
func (t *Text) mapStart(p int) int {
	for _, r := range t.rewrites {
		if p < r.rwStart {
			return r.origStart - (r.rwStart - p)
		}
		if p < r.rwEnd {
			return r.origStart
		}
	}
	return len(t.original) - (len(t.rewritten) - p)
}

// mapEnd maps a rewritten offset used as the end of a range. Empty
// replacements at off are treated as lying after it.
func (t *Text) mapEnd(p int) int {
	for _, r := range t.rewrites {
		if p <= r.rwStart {
			return r.origStart - (r.rwStart - p)
		}
		if p <= r.rwEnd {
			return r.origEnd
		}
	}
	return len(t.original) - (len(t.rewritten) - p)
}

// Substr returns an independent Text covering rewritten[off:off+n]. The new
// text's original is the smallest original span producing that range;
// rewrites cut by either edge are clipped recursively.
func (t *Text) Substr(off, n int) *Text {
	end := off + n
	if off < 0 || n < 0 || end > len(t.rewritten) {
		panic(fmt.Sprintf("source: substr [%d,%d) out of range for length %d", off, end, len(t.rewritten)))
	}

	lo, hi := t.mapStart(off), t.mapEnd(end)
	if hi < lo {
		hi = lo
	}

	var rws []rewrite
	for _, r := range t.rewrites {
		if r.rwStart == r.rwEnd {
			if off < r.rwStart && r.rwStart < end {
				rws = append(rws, rewrite{origStart: r.origStart - lo, origEnd: r.origEnd - lo, repl: r.repl})
			}
			continue
		}
		if r.rwEnd <= off || r.rwStart >= end {
			continue
		}
		cs, ce := max(off, r.rwStart), min(end, r.rwEnd)
		repl := r.repl
		if cs != r.rwStart || ce != r.rwEnd {
			repl = r.repl.Substr(cs-r.rwStart, ce-cs)
		}
		rws = append(rws, rewrite{origStart: r.origStart - lo, origEnd: r.origEnd - lo, repl: repl})
	}

	res := assemble(t.name, t.start.Advance(t.original[:lo]), t.original[lo:hi], rws)
	if res.rewritten != t.rewritten[off:end] {
		panic(fmt.Sprintf("source: substr self-check failed: got %q, want %q", res.rewritten, t.rewritten[off:end]))
	}
	return res
}

// assemble computes the rewritten text and rewrite positions from rewrites
// sorted in original order.
func assemble(name string, start token.Position, original string, rws []rewrite) *Text {
	var b strings.Builder
	prev := 0
	for i := range rws {
		r := &rws[i]
		if r.origStart < prev || r.origEnd < r.origStart || r.origEnd > len(original) {
			panic(fmt.Sprintf("source: overlapping rewrite [%d,%d) after offset %d", r.origStart, r.origEnd, prev))
		}
		b.WriteString(original[prev:r.origStart])
		r.rwStart = b.Len()
		b.WriteString(r.repl.rewritten)
		r.rwEnd = b.Len()
		prev = r.origEnd
	}
	b.WriteString(original[prev:])
	return &Text{name: name, original: original, rewritten: b.String(), start: start, rewrites: rws}
}
