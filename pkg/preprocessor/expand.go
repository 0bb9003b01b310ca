package preprocessor

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/leapstack-labs/perfettosql/pkg/token"
	"github.com/leapstack-labs/perfettosql/pkg/tokenizer"
)

// expand runs the frame state machine over one statement.
func (p *Preprocessor) expand(stmt *source.Text) (*source.Text, error) {
	mode := modeIgnore
	if p.strict && !definesParams(stmt) {
		mode = modeLookup
	}
	stack := []*frame{newFrame(frameRoot, nil, stmt, nil, mode)}

	for {
		f := stack[len(stack)-1]

		if f.inv != nil && f.inv.ready() {
			inv := f.inv
			f.inv = nil
			next, err := p.invoke(f, inv)
			if err != nil {
				return nil, err
			}
			if next != nil {
				stack = append(stack, next)
			}
			continue
		}

		tok := f.z.NextNonTrivial()
		switch {
		case tok.Type == token.EOF:
			stack = stack[:len(stack)-1]
			built := f.rw.Build()
			switch f.kind {
			case frameRoot:
				return built, nil
			case frameRewrite:
				f.parent.rw.Rewrite(f.anchor, f.invEnd, built)
			case frameAppend:
				f.target.expanded = append(f.target.expanded, built)
			}

		case tok.Type == token.ILLEGAL:
			return nil, p.errorf(source.KindLexical, f, tok.Offset, "unrecognized token %q", tok.Text)

		case tok.Type == token.VARIABLE && strings.HasPrefix(tok.Text, "$"):
			if err := p.variable(f, tok); err != nil {
				return nil, err
			}

		case isWord(tok) && f.z.PeekNonTrivial().Type == token.BANG:
			inv, err := p.scanInvocation(f, tok)
			if err != nil {
				return nil, err
			}
			f.inv = inv
			// Arguments are expanded first to last; each Append frame adds
			// its result to inv.expanded when it finishes.
			for i := len(inv.args) - 1; i >= 0; i-- {
				arg := newFrame(frameAppend, f, inv.args[i], f.vars, f.mode)
				arg.anchor = inv.start
				arg.target = inv
				stack = append(stack, arg)
			}
		}
	}
}

// definesParams reports whether stmt is CREATE [OR REPLACE] PERFETTO
// FUNCTION or MACRO.
func definesParams(stmt *source.Text) bool {
	z := tokenizer.New(stmt)
	want := []string{"CREATE", "PERFETTO"}
	tok := z.NextNonTrivial()
	for i, w := range want {
		if !strings.EqualFold(tok.Text, w) {
			return false
		}
		tok = z.NextNonTrivial()
		if i == 0 && strings.EqualFold(tok.Text, "OR") {
			if tok = z.NextNonTrivial(); !strings.EqualFold(tok.Text, "REPLACE") {
				return false
			}
			tok = z.NextNonTrivial()
		}
	}
	return strings.EqualFold(tok.Text, "FUNCTION") || strings.EqualFold(tok.Text, "MACRO")
}

func isWord(tok tokenizer.Token) bool {
	if tok.Type != token.IDENT && !token.IsKeyword(tok.Type) {
		return false
	}
	c := tok.Text[0]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (p *Preprocessor) variable(f *frame, tok tokenizer.Token) error {
	name := tok.Text[1:]
	if f.mode == modeIgnore {
		record(f, name, false)
		return nil
	}
	if v, ok := f.vars[name]; ok {
		f.rw.Rewrite(tok.Offset, tok.End(), v)
		record(f, name, true)
		return nil
	}
	record(f, name, false)
	if f.mode == modeLookup {
		return p.errorf(source.KindMacro, f, tok.Offset, "variable $%s is not defined", name)
	}
	return nil
}

// scanInvocation consumes `!(args)` after nameTok and splits the argument
// list at top-level commas.
func (p *Preprocessor) scanInvocation(f *frame, nameTok tokenizer.Token) (*invocation, error) {
	inv := &invocation{
		name:         nameTok.Text,
		nameTok:      nameTok,
		start:        nameTok.Offset,
		seenVars:     make(map[string]bool),
		expandedVars: make(map[string]bool),
	}
	if !IsBuiltin(inv.name) {
		m, ok := p.macros.Lookup(inv.name)
		if !ok {
			return nil, p.errorf(source.KindMacro, f, nameTok.Offset, "unknown macro %s", inv.name)
		}
		inv.macro = m
	}

	f.z.NextNonTrivial() // !
	if lp := f.z.NextNonTrivial(); lp.Type != token.LPAREN {
		return nil, p.errorf(source.KindMacro, f, lp.Offset, "expected '(' after %s!", inv.name)
	}

	var first, last *tokenizer.Token
	depth := 0
	closeArg := func(at tokenizer.Token, final bool) error {
		if first == nil {
			if final && len(inv.args) == 0 {
				return nil
			}
			return p.errorf(source.KindMacro, f, at.Offset, "empty argument in invocation of %s", inv.name)
		}
		inv.args = append(inv.args, f.src.Substr(first.Offset, last.End()-first.Offset))
		first, last = nil, nil
		return nil
	}

	for {
		tok := f.z.NextNonTrivial()
		switch tok.Type {
		case token.EOF:
			return nil, p.errorf(source.KindMacro, f, nameTok.Offset, "unterminated invocation of %s", inv.name)
		case token.ILLEGAL:
			return nil, p.errorf(source.KindLexical, f, tok.Offset, "unrecognized token %q", tok.Text)
		case token.LPAREN:
			depth++
		case token.RPAREN:
			if depth == 0 {
				if err := closeArg(tok, true); err != nil {
					return nil, err
				}
				inv.end = tok.End()
				return inv, nil
			}
			depth--
		case token.COMMA:
			if depth == 0 {
				if err := closeArg(tok, false); err != nil {
					return nil, err
				}
				continue
			}
		}
		if first == nil {
			t := tok
			first = &t
		}
		t := tok
		last = &t
	}
}

// invoke runs a fully collected invocation. It either rewrites the
// invocation in place or returns a frame that will produce the rewrite.
func (p *Preprocessor) invoke(f *frame, inv *invocation) (*frame, error) {
	switch inv.name {
	case "stringify":
		return nil, p.stringify(f, inv)
	case "stringify_ignore_table":
		return nil, p.stringify(f, inv, "table")
	case "token_apply":
		return p.tokenApply(f, inv, ", ", false)
	case "token_apply_prefix":
		return p.tokenApply(f, inv, ", ", true)
	case "token_apply_and":
		return p.tokenApply(f, inv, " AND ", false)
	case "token_apply_and_prefix":
		return p.tokenApply(f, inv, " AND ", true)
	}

	m := inv.macro
	if len(inv.args) != len(m.Params) {
		return nil, p.errorf(source.KindMacro, f, inv.start,
			"macro %s expects %d arguments but %d were given", m.Name, len(m.Params), len(inv.args))
	}
	vars := make(map[string]*source.Text, len(m.Params))
	for i, param := range m.Params {
		vars[param.Name] = inv.expanded[i]
	}
	body := newFrame(frameRewrite, f, m.Body, vars, modeLookupOrIgnore)
	body.anchor, body.invEnd = inv.start, inv.end
	return body, nil
}

// reemit writes the invocation back with its expanded arguments so a later
// expansion, with more variables bound, can retry it.
func (p *Preprocessor) reemit(f *frame, inv *invocation) {
	if !inv.changed() {
		return
	}
	b := source.NewBuilder(inv.name + "!")
	b.WriteString(inv.name + "!(")
	for i, arg := range inv.expanded {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteText(arg)
	}
	b.WriteString(")")
	f.rw.Rewrite(inv.start, inv.end, b.Build())
}

func (p *Preprocessor) stringify(f *frame, inv *invocation, ignore ...string) error {
	if len(inv.args) != 1 {
		return p.errorf(source.KindMacro, f, inv.start, "%s expects 1 argument but %d were given", inv.name, len(inv.args))
	}
	if inv.unresolved(ignore...) {
		p.reemit(f, inv)
		return nil
	}
	quoted := "'" + strings.ReplaceAll(inv.expanded[0].Rewritten(), "'", "''") + "'"
	f.rw.Rewrite(inv.start, inv.end, source.New(inv.name+"!", quoted))
	return nil
}

func (p *Preprocessor) tokenApply(f *frame, inv *invocation, joiner string, prefix bool) (*frame, error) {
	if n := len(inv.args); n != 2 && n != 3 {
		return nil, p.errorf(source.KindMacro, f, inv.start, "%s expects 2 or 3 arguments but %d were given", inv.name, n)
	}
	for _, arg := range inv.expanded[1:] {
		if isBareVariable(arg) {
			p.reemit(f, inv)
			return nil, nil
		}
	}

	name, ok := singleWord(inv.expanded[0])
	if !ok {
		return nil, p.errorf(source.KindMacro, f, inv.start, "%s expects a macro name as its first argument", inv.name)
	}
	var lists [][]*source.Text
	for _, arg := range inv.expanded[1:] {
		items, err := splitList(arg)
		if err != nil {
			return nil, p.errorf(source.KindMacro, f, inv.start, "%s: %v", inv.name, err)
		}
		lists = append(lists, items)
	}
	if len(lists) == 2 && len(lists[0]) != len(lists[1]) {
		return nil, p.errorf(source.KindMacro, f, inv.start,
			"%s: argument lists have different lengths (%d and %d)", inv.name, len(lists[0]), len(lists[1]))
	}

	if len(lists[0]) == 0 {
		stub := ""
		if joiner == " AND " {
			stub = "TRUE"
			if prefix {
				stub = " AND TRUE"
			}
		}
		f.rw.Rewrite(inv.start, inv.end, source.New(inv.name+"!", stub))
		return nil, nil
	}

	b := source.NewBuilder(inv.name + "!")
	if prefix {
		b.WriteString(joiner)
	}
	for i := range lists[0] {
		if i > 0 {
			b.WriteString(joiner)
		}
		b.WriteString(name + "!(")
		for j, list := range lists {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteText(list[i])
		}
		b.WriteString(")")
	}

	gen := newFrame(frameRewrite, f, b.Build(), nil, modeIgnore)
	gen.anchor, gen.invEnd = inv.start, inv.end
	return gen, nil
}

func isBareVariable(t *source.Text) bool {
	z := tokenizer.New(t)
	tok := z.NextNonTrivial()
	return tok.Type == token.VARIABLE && z.NextNonTrivial().Type == token.EOF
}

func singleWord(t *source.Text) (string, bool) {
	z := tokenizer.New(t)
	tok := z.NextNonTrivial()
	if !isWord(tok) || z.NextNonTrivial().Type != token.EOF {
		return "", false
	}
	return tok.Text, true
}

// splitList splits a parenthesized, comma separated list into its items.
func splitList(t *source.Text) ([]*source.Text, error) {
	z := tokenizer.New(t)
	if tok := z.NextNonTrivial(); tok.Type != token.LPAREN {
		return nil, fmt.Errorf("expected '(' but found %q", tok.Text)
	}

	var items []*source.Text
	var first, last tokenizer.Token
	have := false
	depth := 0
	for {
		tok := z.NextNonTrivial()
		switch tok.Type {
		case token.EOF:
			return nil, fmt.Errorf("unterminated list")
		case token.LPAREN:
			depth++
		case token.RPAREN:
			if depth == 0 {
				if have {
					items = append(items, t.Substr(first.Offset, last.End()-first.Offset))
				} else if len(items) > 0 {
					return nil, fmt.Errorf("empty list item")
				}
				if rest := z.NextNonTrivial(); rest.Type != token.EOF {
					return nil, fmt.Errorf("unexpected %q after list", rest.Text)
				}
				return items, nil
			}
			depth--
		case token.COMMA:
			if depth == 0 {
				if !have {
					return nil, fmt.Errorf("empty list item")
				}
				items = append(items, t.Substr(first.Offset, last.End()-first.Offset))
				have = false
				continue
			}
		}
		if !have {
			first, have = tok, true
		}
		last = tok
	}
}

// errorf builds an error whose traceback walks from the statement down
// through every enclosing invocation to off in frame f.
func (p *Preprocessor) errorf(kind source.Kind, f *frame, off int, format string, args ...any) error {
	var chain []*frame
	for g := f; g != nil; g = g.parent {
		chain = append(chain, g)
	}
	var tb strings.Builder
	for i := len(chain) - 1; i > 0; i-- {
		tb.WriteString(chain[i].src.AsTraceback(chain[i-1].anchor))
	}
	tb.WriteString(f.src.AsTraceback(off))
	return &source.Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Traceback: tb.String()}
}
