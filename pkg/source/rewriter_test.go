package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriterNoopIsIdentity(t *testing.T) {
	src := New("stmt", "SELECT 1")
	assert.Same(t, src, NewRewriter(src).Build())
}

func TestRewriterDisjoint(t *testing.T) {
	src := New("stmt", "SELECT $a, $b")
	rw := NewRewriter(src)
	rw.Rewrite(11, 13, New("b", "22"))
	rw.Rewrite(7, 9, New("a", "1"))
	out := rw.Build()

	assert.Equal(t, "SELECT 1, 22", out.Rewritten())
	assert.Equal(t, "SELECT $a, $b", out.Original())
	assert.Equal(t, 11, out.OriginalOffset(10))
	assert.Equal(t, 9, out.OriginalOffset(8))
	assert.Same(t, src, rw.Source())
}

func TestRewriterNested(t *testing.T) {
	src := expandFoo(t)

	rw := NewRewriter(src)
	rw.Rewrite(7, 8, New("arg", "42"))
	out := rw.Build()

	assert.Equal(t, "SELECT 42 + 1 FROM t", out.Rewritten())
	assert.Equal(t, "SELECT foo!(a) FROM t", out.Original())

	inner := out.Substr(7, 6)
	assert.Equal(t, "42 + 1", inner.Rewritten())
	assert.Equal(t, "foo!(a)", inner.Original())

	// The source is unchanged.
	assert.Equal(t, "SELECT a + 1 FROM t", src.Rewritten())
}

func TestRewriterSwallowsCoveredRewrites(t *testing.T) {
	src := expandFoo(t)

	rw := NewRewriter(src)
	rw.Rewrite(0, 12, New("x", "X"))
	out := rw.Build()

	assert.Equal(t, "X FROM t", out.Rewritten())
	assert.Equal(t, 0, out.OriginalOffset(0))
	assert.Equal(t, 14, out.OriginalOffset(1))
}

func TestRewriterInsertion(t *testing.T) {
	src := New("stmt", "SELECT a")
	rw := NewRewriter(src)
	rw.Rewrite(8, 8, New("gen", " FROM t"))
	out := rw.Build()
	assert.Equal(t, "SELECT a FROM t", out.Rewritten())
	assert.Equal(t, "SELECT a", out.Original())
}

func TestRewriterContractViolations(t *testing.T) {
	src := expandFoo(t)

	tests := []struct {
		name       string
		start, end int
	}{
		{"straddles start of rewrite", 5, 9},
		{"straddles end of rewrite", 10, 14},
		{"out of range", 0, 100},
		{"inverted", 5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := NewRewriter(src)
			assert.Panics(t, func() { rw.Rewrite(tt.start, tt.end, New("x", "x")) })
		})
	}

	t.Run("overlaps staged rewrite", func(t *testing.T) {
		rw := NewRewriter(New("stmt", "SELECT 1"))
		rw.Rewrite(0, 6, New("x", "x"))
		assert.Panics(t, func() { rw.Rewrite(3, 8, New("y", "y")) })
	})
}

func TestBuilderKeepsProvenance(t *testing.T) {
	arg := expandFoo(t).Substr(7, 5)
	require.Equal(t, "a + 1", arg.Rewritten())

	b := NewBuilder("token_apply")
	b.WriteString("f!(")
	b.WriteText(arg)
	b.WriteString(")")
	out := b.Build()

	assert.Equal(t, "f!(a + 1)", out.Rewritten())
	assert.Equal(t, "f!(foo!(a))", out.Original())
	assert.Equal(t, 3, out.OriginalOffset(5))
	assert.Contains(t, out.AsTraceback(5), "macro foo line 3 col 7")
}
