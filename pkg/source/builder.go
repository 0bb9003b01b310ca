package source

import (
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/token"
)

// Builder composes generated text out of literal strings and existing
// Texts. Every embedded Text keeps its provenance as a rewrite of the
// generated text.
type Builder struct {
	name string
	orig strings.Builder
	rws  []rewrite
}

// NewBuilder returns a Builder producing a Text labelled name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// WriteString appends literal generated text.
func (b *Builder) WriteString(s string) {
	b.orig.WriteString(s)
}

// WriteText appends t, keeping its provenance.
func (b *Builder) WriteText(t *Text) {
	start := b.orig.Len()
	b.orig.WriteString(t.original)
	b.rws = append(b.rws, rewrite{origStart: start, origEnd: b.orig.Len(), repl: t})
}

// Build returns the composed Text.
func (b *Builder) Build() *Text {
	rws := make([]rewrite, len(b.rws))
	copy(rws, b.rws)
	return assemble(b.name, token.Position{Line: 1, Column: 1}, b.orig.String(), rws)
}
