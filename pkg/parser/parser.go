// Package parser turns PerfettoSQL source into a stream of statements.
//
// # Usage
//
//	p := parser.New(source.New("query.sql", sql), macros)
//	for p.Next() {
//	    switch stmt := p.Statement().(type) {
//	    case *parser.CreateFunction:
//	        // ...
//	    }
//	}
//	if err := p.Err(); err != nil {
//	    // handle error
//	}
//
// Every statement is macro-expanded by the preprocessor before it is parsed.
// Macros registered in the table between calls to Next are visible to later
// statements.
//
// # Grammar Overview
//
//	statement      → perfetto_stmt | passthrough
//	perfetto_stmt  → CREATE [OR REPLACE] PERFETTO create_body
//	               | DROP PERFETTO INDEX name ON name
//	               | INCLUDE PERFETTO MODULE module_key
//	create_body    → FUNCTION name '(' [args] ')' RETURNS returns (AS body | DELEGATES TO name)
//	               | TABLE name ['(' columns ')'] AS body
//	               | VIEW name ['(' columns ')'] AS body
//	               | MACRO name '(' [params] ')' RETURNS type AS body
//	               | INDEX name ON name '(' name {',' name} ')'
//	returns        → type | TABLE '(' columns ')'
//	module_key     → word {'.' word} ['.' '*']
//
// Anything that does not start a perfetto_stmt is a Passthrough.
package parser

import (
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/preprocessor"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/leapstack-labs/perfettosql/pkg/token"
	"github.com/leapstack-labs/perfettosql/pkg/tokenizer"
)

// Parser yields one Statement per call to Next.
type Parser struct {
	pp   *preprocessor.Preprocessor
	stmt Statement
	err  error
}

// New creates a parser over src. Macro invocations are expanded with the
// given table.
func New(src *source.Text, macros *preprocessor.Macros, opts ...preprocessor.Option) *Parser {
	return &Parser{pp: preprocessor.New(src, macros, opts...)}
}

// Next parses the next statement. It returns false at the end of the input
// or on error.
func (p *Parser) Next() bool {
	p.stmt = nil
	if p.err != nil {
		return false
	}
	if !p.pp.Next() {
		p.err = p.pp.Err()
		return false
	}
	stmt, err := ParseStatement(p.pp.Statement())
	if err != nil {
		p.err = err
		return false
	}
	p.stmt = stmt
	return true
}

// Statement returns the statement parsed by the last successful Next.
func (p *Parser) Statement() Statement {
	return p.stmt
}

// Err returns the error that stopped parsing, if any.
func (p *Parser) Err() error {
	return p.err
}

// ParseStatement parses one already expanded statement.
func ParseStatement(src *source.Text) (Statement, error) {
	sp := &stmtParser{src: src, z: tokenizer.New(src)}
	sp.nextToken()
	sp.nextToken()
	sp.start = sp.token.Offset
	return sp.parseStatement()
}

// stmtParser holds the token cursor for one statement.
type stmtParser struct {
	src   *source.Text
	z     *tokenizer.Tokenizer
	token tokenizer.Token // current token
	peek  tokenizer.Token // lookahead token
	start int             // offset of the first token
}

// ---------- Token Helpers ----------

// nextToken advances to the next non-trivial token.
func (p *stmtParser) nextToken() {
	p.token = p.peek
	p.peek = p.z.NextNonTrivial()
}

// check returns true if the current token is of the given type.
func (p *stmtParser) check(t token.TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *stmtParser) checkPeek(t token.TokenType) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *stmtParser) match(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise returns an error
// naming what was expected.
func (p *stmtParser) expect(t token.TokenType, what string) error {
	if p.match(t) {
		return nil
	}
	return p.unexpected(what)
}

// atEnd reports whether the current token ends the statement.
func (p *stmtParser) atEnd() bool {
	return p.check(token.EOF) || (p.check(token.SEMI) && p.checkPeek(token.EOF))
}

// expectEnd consumes the optional terminating ';' and requires the end of
// the statement.
func (p *stmtParser) expectEnd() error {
	p.match(token.SEMI)
	if !p.check(token.EOF) {
		return p.errorf(ErrTrailingTokens, p.token.Text)
	}
	return nil
}

// ---------- Error Helpers ----------

func (p *stmtParser) errorf(format string, args ...any) error {
	return p.errorAt(p.token, format, args...)
}

func (p *stmtParser) errorAt(tok tokenizer.Token, format string, args ...any) error {
	return source.NewError(source.KindParse, p.src, tok.Offset, format, args...)
}

func (p *stmtParser) unexpected(what string) error {
	found := p.token.Text
	if p.check(token.EOF) {
		found = "end of statement"
	}
	return p.errorf(ErrUnexpectedToken, what, found)
}

// ---------- Name Helpers ----------

// isWord reports whether tok can name a column, argument or parameter.
// Any unquoted keyword qualifies.
func isWord(tok tokenizer.Token) bool {
	return tok.Type == token.IDENT || token.IsKeyword(tok.Type)
}

// isObjectName reports whether tok can name a table, view, function, macro
// or index.
func isObjectName(tok tokenizer.Token) bool {
	return tok.Type == token.IDENT || token.IsDynamic(tok.Type)
}

// isSoftKeyword reports whether tok is the unreserved keyword kw.
func isSoftKeyword(tok tokenizer.Token, kw string) bool {
	return isWord(tok) && strings.EqualFold(tok.Text, kw)
}

// objectName consumes a name for the given kind of object.
func (p *stmtParser) objectName(what string) (string, error) {
	if !isObjectName(p.token) {
		return "", p.unexpected(what + " name")
	}
	name := p.token.Text
	p.nextToken()
	return name, nil
}

// word consumes a column, argument or parameter name.
func (p *stmtParser) word(what string) (string, error) {
	if !isWord(p.token) {
		return "", p.unexpected(what + " name")
	}
	name := p.token.Text
	p.nextToken()
	return name, nil
}

// nameSet reports duplicate names case-insensitively.
type nameSet map[string]bool

func (s nameSet) add(name string) bool {
	key := strings.ToLower(name)
	if s[key] {
		return false
	}
	s[key] = true
	return true
}
