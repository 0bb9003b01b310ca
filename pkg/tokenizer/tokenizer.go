// Package tokenizer splits PerfettoSQL source text into tokens.
package tokenizer

import (
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/leapstack-labs/perfettosql/pkg/token"
)

// Token is a lexical token. Text slices the rewritten text of the source the
// token came from; Offset is its start in that text.
type Token struct {
	Type   token.TokenType
	Text   string
	Offset int
}

// IsTerminal reports whether the token ends a statement.
func (t Token) IsTerminal() bool {
	return t.Type == token.EOF || t.Type == token.SEMI
}

// End returns the offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Text)
}

// Tokenizer lexes a single source.Text. It remembers the kind of the last
// non-trivial token to classify context-sensitive keywords.
type Tokenizer struct {
	src   *source.Text
	input string
	pos   int
	prev  token.TokenType
}

// New returns a Tokenizer positioned at the start of src.
func New(src *source.Text) *Tokenizer {
	z := &Tokenizer{}
	z.Reset(src)
	return z
}

// Reset rebinds the tokenizer to src. Tokens returned before the call
// refer to the previous source.
func (z *Tokenizer) Reset(src *source.Text) {
	z.src = src
	z.input = src.Rewritten()
	z.pos = 0
	z.prev = token.EOF
}

// Source returns the text being tokenized.
func (z *Tokenizer) Source() *source.Text { return z.src }

// Next returns the next token, including whitespace and comments.
func (z *Tokenizer) Next() Token {
	start := z.pos
	if start >= len(z.input) {
		return Token{Type: token.EOF, Offset: len(z.input)}
	}
	typ := z.scan()
	tok := Token{Type: typ, Text: z.input[start:z.pos], Offset: start}
	if typ == token.IDENT || token.IsKeyword(typ) {
		tok.Type = z.classifyWord(tok.Text)
	}
	if !token.IsTrivial(tok.Type) {
		z.prev = tok.Type
	}
	return tok
}

// NextNonTrivial returns the next token that is not whitespace or a comment.
func (z *Tokenizer) NextNonTrivial() Token {
	for {
		tok := z.Next()
		if !token.IsTrivial(tok.Type) {
			return tok
		}
	}
}

// PeekNonTrivial returns the next non-trivial token without consuming it.
func (z *Tokenizer) PeekNonTrivial() Token {
	pos, prev := z.pos, z.prev
	tok := z.NextNonTrivial()
	z.pos, z.prev = pos, prev
	return tok
}

// Span returns the source between begin (inclusive) and end (exclusive).
func (z *Tokenizer) Span(begin, end Token) *source.Text {
	return z.src.Substr(begin.Offset, end.Offset-begin.Offset)
}

// SpanThrough returns the source from begin through end, both inclusive.
func (z *Tokenizer) SpanThrough(begin, end Token) *source.Text {
	return z.src.Substr(begin.Offset, end.End()-begin.Offset)
}

// AsTraceback renders a traceback pointing at tok.
func (z *Tokenizer) AsTraceback(tok Token) string {
	return z.src.AsTraceback(tok.Offset)
}

// classifyWord resolves keywords, including the ones whose meaning depends
// on the previous token.
func (z *Tokenizer) classifyWord(word string) token.TokenType {
	t := token.Lookup(word)
	switch t {
	case token.WINDOW:
		if !endsOperand(z.prev) {
			return token.IDENT
		}
	case token.OVER, token.FILTER:
		if z.prev != token.RPAREN {
			return token.IDENT
		}
	}
	return t
}

// endsOperand reports whether t can be the last token of an expression or a
// table reference.
func endsOperand(t token.TokenType) bool {
	switch t {
	case token.IDENT, token.RPAREN, token.STRING, token.INTEGER, token.FLOAT, token.BLOB, token.VARIABLE, token.NULL:
		return true
	}
	return false
}
