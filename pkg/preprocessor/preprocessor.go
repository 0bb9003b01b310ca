// Package preprocessor splits PerfettoSQL source into statements and expands
// the macro invocations in each of them.
package preprocessor

import (
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/leapstack-labs/perfettosql/pkg/token"
	"github.com/leapstack-labs/perfettosql/pkg/tokenizer"
)

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithStrictVariables makes undefined $variables at statement level an
// error instead of passing them through as bind parameters. Statements that
// define a function or macro are exempt since their bodies refer to
// parameters.
func WithStrictVariables() Option {
	return func(p *Preprocessor) { p.strict = true }
}

// Preprocessor yields one fully expanded statement per call to Next. Macros
// registered in the table between calls are visible to later statements.
type Preprocessor struct {
	src    *source.Text
	macros *Macros
	strict bool

	z    *tokenizer.Tokenizer
	stmt *source.Text
	err  error
}

// New returns a Preprocessor over src using the given macro table.
func New(src *source.Text, macros *Macros, opts ...Option) *Preprocessor {
	p := &Preprocessor{src: src, macros: macros, z: tokenizer.New(src)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next advances to the next statement. It returns false at the end of the
// input or on error.
func (p *Preprocessor) Next() bool {
	p.stmt = nil
	if p.err != nil {
		return false
	}
	for {
		first := p.z.NextNonTrivial()
		switch first.Type {
		case token.EOF:
			return false
		case token.SEMI:
			continue
		}

		end := p.statementEnd(first)
		stmt, err := p.expand(p.src.Substr(first.Offset, end-first.Offset))
		if err != nil {
			p.err = err
			return false
		}
		p.stmt = stmt
		return true
	}
}

// Statement returns the statement produced by the last successful Next.
func (p *Preprocessor) Statement() *source.Text {
	return p.stmt
}

// Err returns the error that stopped iteration, if any.
func (p *Preprocessor) Err() error {
	return p.err
}

// statementEnd scans to the end of the statement starting at first and
// returns the offset just past its terminator. Separators inside macro
// argument lists do not end the statement.
func (p *Preprocessor) statementEnd(first tokenizer.Token) int {
	depth := 0
	prev := first
	for {
		tok := p.z.NextNonTrivial()
		switch tok.Type {
		case token.EOF:
			return tok.Offset
		case token.SEMI:
			if depth == 0 {
				return tok.End()
			}
		case token.LPAREN:
			if depth > 0 || prev.Type == token.BANG {
				depth++
			}
		case token.RPAREN:
			if depth > 0 {
				depth--
			}
		}
		prev = tok
	}
}
