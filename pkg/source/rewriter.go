package source

import (
	"fmt"
	"sort"
	"strings"
)

// Rewriter stages rewrites against a Text and commits them all at once
// with Build. Offsets passed to Rewrite are in the source's rewritten text.
type Rewriter struct {
	src    *Text
	nested map[int]*Rewriter
	added  []pendingRewrite
}

type pendingRewrite struct {
	start, end int
	repl       *Text
	swallows   []int
}

// NewRewriter returns a Rewriter over src.
func NewRewriter(src *Text) *Rewriter {
	return &Rewriter{src: src}
}

// Source returns the text being rewritten.
func (rw *Rewriter) Source() *Text { return rw.src }

// Rewrite replaces rewritten[start:end] with repl. The range must either lie
// inside exactly one existing rewrite, in which case the request is forwarded
// to that rewrite's own text, or be disjoint from (or fully cover) every
// existing rewrite. Straddling a rewrite boundary panics.
func (rw *Rewriter) Rewrite(start, end int, repl *Text) {
	t := rw.src
	if start < 0 || start > end || end > len(t.rewritten) {
		panic(fmt.Sprintf("source: rewrite [%d,%d) out of range for length %d", start, end, len(t.rewritten)))
	}

	for i, r := range t.rewrites {
		if r.rwStart == r.rwEnd || start < r.rwStart || end > r.rwEnd {
			continue
		}
		if start == end && (start == r.rwStart || start == r.rwEnd) {
			continue
		}
		if rw.nested == nil {
			rw.nested = make(map[int]*Rewriter)
		}
		sub, ok := rw.nested[i]
		if !ok {
			sub = NewRewriter(r.repl)
			rw.nested[i] = sub
		}
		sub.Rewrite(start-r.rwStart, end-r.rwStart, repl)
		return
	}

	var swallows []int
	for i, r := range t.rewrites {
		if r.rwStart == r.rwEnd {
			if start < r.rwStart && r.rwStart < end {
				swallows = append(swallows, i)
			}
			continue
		}
		if end <= r.rwStart || start >= r.rwEnd {
			continue
		}
		if start <= r.rwStart && r.rwEnd <= end {
			swallows = append(swallows, i)
			continue
		}
		panic(fmt.Sprintf("source: rewrite [%d,%d) straddles existing rewrite [%d,%d)", start, end, r.rwStart, r.rwEnd))
	}

	for _, a := range rw.added {
		if start < a.end && a.start < end {
			panic(fmt.Sprintf("source: rewrite [%d,%d) overlaps staged rewrite [%d,%d)", start, end, a.start, a.end))
		}
	}
	rw.added = append(rw.added, pendingRewrite{start: start, end: end, repl: repl, swallows: swallows})
}

// Build commits all staged rewrites and returns the resulting Text. The
// source is left untouched.
func (rw *Rewriter) Build() *Text {
	t := rw.src
	if len(rw.added) == 0 && len(rw.nested) == 0 {
		return t
	}

	swallowed := make(map[int]bool)
	for _, a := range rw.added {
		for _, i := range a.swallows {
			swallowed[i] = true
		}
	}

	type keyed struct {
		r              rewrite
		rwStart, rwEnd int
	}
	var all []keyed
	var spans []pendingRewrite

	for i, r := range t.rewrites {
		if swallowed[i] {
			continue
		}
		repl := r.repl
		if sub, ok := rw.nested[i]; ok {
			repl = sub.Build()
			spans = append(spans, pendingRewrite{start: r.rwStart, end: r.rwEnd, repl: repl})
		}
		all = append(all, keyed{rewrite{origStart: r.origStart, origEnd: r.origEnd, repl: repl}, r.rwStart, r.rwEnd})
	}
	for _, a := range rw.added {
		lo, hi := t.mapStart(a.start), t.mapEnd(a.end)
		if hi < lo {
			hi = lo
		}
		all = append(all, keyed{rewrite{origStart: lo, origEnd: hi, repl: a.repl}, a.start, a.end})
		spans = append(spans, a)
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.r.origStart != b.r.origStart {
			return a.r.origStart < b.r.origStart
		}
		if a.r.origEnd != b.r.origEnd {
			return a.r.origEnd < b.r.origEnd
		}
		if a.rwStart != b.rwStart {
			return a.rwStart < b.rwStart
		}
		return a.rwEnd < b.rwEnd
	})

	rws := make([]rewrite, len(all))
	for i, k := range all {
		rws[i] = k.r
	}
	res := assemble(t.name, t.start, t.original, rws)

	if want := applySpans(t.rewritten, spans); res.rewritten != want {
		panic(fmt.Sprintf("source: rewrite self-check failed: got %q, want %q", res.rewritten, want))
	}
	return res
}

// applySpans substitutes each span's replacement into text directly.
func applySpans(text string, spans []pendingRewrite) string {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})
	var b strings.Builder
	prev := 0
	for _, s := range spans {
		b.WriteString(text[prev:s.start])
		b.WriteString(s.repl.rewritten)
		prev = s.end
	}
	b.WriteString(text[prev:])
	return b.String()
}
