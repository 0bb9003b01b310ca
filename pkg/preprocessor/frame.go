package preprocessor

import (
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/leapstack-labs/perfettosql/pkg/tokenizer"
)

type frameKind int

const (
	// frameRoot builds the statement itself.
	frameRoot frameKind = iota
	// frameRewrite replaces an invocation span in its parent.
	frameRewrite
	// frameAppend produces one argument of an invocation in its parent.
	frameAppend
)

type varMode int

const (
	// modeLookup fails on undefined variables.
	modeLookup varMode = iota
	// modeLookupOrIgnore leaves undefined variables for an outer frame.
	modeLookupOrIgnore
	// modeIgnore never substitutes; variables are only recorded.
	modeIgnore
)

// frame is one activation of the expansion state machine.
type frame struct {
	kind   frameKind
	parent *frame

	src  *source.Text
	z    *tokenizer.Tokenizer
	rw   *source.Rewriter
	vars map[string]*source.Text
	mode varMode

	// anchor is the offset in the parent's text of the invocation that
	// created this frame; invEnd closes that span for frameRewrite.
	anchor, invEnd int
	// target receives the result of a frameAppend.
	target *invocation

	// inv is the invocation whose arguments are being expanded.
	inv *invocation
}

func newFrame(kind frameKind, parent *frame, src *source.Text, vars map[string]*source.Text, mode varMode) *frame {
	return &frame{
		kind:   kind,
		parent: parent,
		src:    src,
		z:      tokenizer.New(src),
		rw:     source.NewRewriter(src),
		vars:   vars,
		mode:   mode,
	}
}

// invocation is a `name!(args)` occurrence in a frame.
type invocation struct {
	name    string
	macro   *Macro
	nameTok tokenizer.Token

	start, end int
	args       []*source.Text
	expanded   []*source.Text

	seenVars     map[string]bool
	expandedVars map[string]bool
}

func (inv *invocation) ready() bool {
	return len(inv.expanded) == len(inv.args)
}

// unresolved reports whether the arguments reference a variable that could
// not be substituted, other than the ones in ignore.
func (inv *invocation) unresolved(ignore ...string) bool {
	for name := range inv.seenVars {
		if inv.expandedVars[name] {
			continue
		}
		skip := false
		for _, ig := range ignore {
			skip = skip || ig == name
		}
		if !skip {
			return true
		}
	}
	return false
}

// changed reports whether expanding the arguments altered their text.
func (inv *invocation) changed() bool {
	for i, arg := range inv.args {
		if inv.expanded[i].Rewritten() != arg.Rewritten() {
			return true
		}
	}
	return false
}

// record notes a variable reference in every invocation whose arguments
// enclose frame f.
func record(f *frame, name string, expanded bool) {
	for g := f; g != nil; g = g.parent {
		if g.kind != frameAppend {
			continue
		}
		g.target.seenVars[name] = true
		if expanded {
			g.target.expandedVars[name] = true
		}
	}
}
