package parser

import (
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/preprocessor"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/leapstack-labs/perfettosql/pkg/token"
)

// parseStatement dispatches on the leading keywords.
//
//	perfetto_stmt → CREATE [OR REPLACE] PERFETTO ... | DROP PERFETTO ... | INCLUDE PERFETTO ...
func (p *stmtParser) parseStatement() (Statement, error) {
	info := NodeInfo{SQL: p.src}

	switch {
	case p.check(TOKEN_INCLUDE) && p.checkPeek(TOKEN_PERFETTO):
		p.nextToken()
		p.nextToken()
		return p.parseInclude(info)

	case p.check(token.DROP) && p.checkPeek(TOKEN_PERFETTO):
		p.nextToken()
		p.nextToken()
		return p.parseDropIndex(info)

	case p.check(token.CREATE):
		p.nextToken()
		replace := false
		if p.check(token.OR) && p.checkPeek(token.REPLACE) {
			p.nextToken()
			p.nextToken()
			replace = true
		}
		if p.match(TOKEN_PERFETTO) {
			return p.parseCreate(info, replace)
		}
	}
	return &Passthrough{NodeInfo: info}, nil
}

func (p *stmtParser) parseCreate(info NodeInfo, replace bool) (Statement, error) {
	switch {
	case p.match(TOKEN_FUNCTION):
		return p.parseCreateFunction(info, replace)
	case p.match(token.TABLE):
		return p.parseCreateTable(info, replace)
	case p.match(token.VIEW):
		return p.parseCreateView(info, replace)
	case p.match(TOKEN_MACRO):
		return p.parseCreateMacro(info, replace)
	case p.match(token.INDEX):
		return p.parseCreateIndex(info, replace)
	}
	found := p.token.Text
	if p.check(token.EOF) {
		found = "end of statement"
	}
	return nil, p.errorf(ErrUnknownPerfetto, found)
}

// parseCreateFunction parses the part after FUNCTION.
//
//	name '(' [args] ')' RETURNS returns (AS body | DELEGATES TO name)
func (p *stmtParser) parseCreateFunction(info NodeInfo, replace bool) (Statement, error) {
	stmt := &CreateFunction{NodeInfo: info, Replace: replace}

	var err error
	if stmt.Name, err = p.objectName("function"); err != nil {
		return nil, err
	}
	if stmt.Args, err = p.parseColumns("argument", true); err != nil {
		return nil, err
	}
	if err := p.expect(TOKEN_RETURNS, "RETURNS"); err != nil {
		return nil, err
	}
	if p.match(token.TABLE) {
		cols, err := p.parseColumns("column", false)
		if err != nil {
			return nil, err
		}
		stmt.Returns.Table = cols
	} else {
		col, err := p.parseType()
		if err != nil {
			return nil, err
		}
		stmt.Returns.Scalar = col.Type
	}

	switch {
	case p.match(token.AS):
		stmt.Body, err = p.parseBody("function")
		return stmt, err

	case p.match(TOKEN_DELEGATES):
		if !isSoftKeyword(p.token, SoftKeywordTo) {
			return nil, p.unexpected("TO")
		}
		p.nextToken()
		if p.atEnd() {
			return nil, p.errorf(ErrEmptyDelegate)
		}
		if stmt.DelegatesTo, err = p.objectName("delegate function"); err != nil {
			return nil, err
		}
		return stmt, p.expectEnd()
	}
	return nil, p.unexpected("AS or DELEGATES TO")
}

// parseCreateTable parses the part after TABLE.
//
//	name ['(' columns ')'] AS body
func (p *stmtParser) parseCreateTable(info NodeInfo, replace bool) (Statement, error) {
	stmt := &CreateTable{NodeInfo: info, Replace: replace}

	var err error
	if stmt.Name, err = p.objectName("table"); err != nil {
		return nil, err
	}
	if p.check(token.LPAREN) {
		if stmt.Schema, err = p.parseColumns("column", false); err != nil {
			return nil, err
		}
	}
	if err := p.expect(token.AS, "AS"); err != nil {
		return nil, err
	}
	stmt.Body, err = p.parseBody("table")
	return stmt, err
}

// parseCreateView parses the part after VIEW and synthesizes the
// equivalent plain CREATE VIEW statement.
//
//	name ['(' columns ')'] AS body
func (p *stmtParser) parseCreateView(info NodeInfo, replace bool) (Statement, error) {
	stmt := &CreateView{NodeInfo: info, Replace: replace}

	var err error
	if stmt.Name, err = p.objectName("view"); err != nil {
		return nil, err
	}
	if p.check(token.LPAREN) {
		if stmt.Schema, err = p.parseColumns("column", false); err != nil {
			return nil, err
		}
	}
	if err := p.expect(token.AS, "AS"); err != nil {
		return nil, err
	}
	bodyStart := p.token.Offset
	if stmt.Body, err = p.parseBody("view"); err != nil {
		return nil, err
	}
	stmt.CreateViewSQL = p.rewriteAround(bodyStart, bodyStart+stmt.Body.Len(), "CREATE VIEW "+stmt.Name+" AS ")
	return stmt, nil
}

// rewriteAround rewrites the statement into header followed by
// src[bodyStart:bodyEnd], dropping the terminator. Offsets before the body
// still trace back to the statement as written.
func (p *stmtParser) rewriteAround(bodyStart, bodyEnd int, header string) *source.Text {
	name := p.src.Name()
	end := p.src.Len()
	if p.src.Straddles(p.start, bodyStart) || p.src.Straddles(bodyEnd, end) {
		b := source.NewBuilder(name)
		b.WriteString(header)
		b.WriteText(p.src.Substr(bodyStart, bodyEnd-bodyStart))
		return b.Build()
	}

	rw := source.NewRewriter(p.src)
	rw.Rewrite(p.start, bodyStart, source.NewAt(name, header, p.src.Position(p.start)))
	if bodyEnd < end {
		rw.Rewrite(bodyEnd, end, source.NewAt(name, "", p.src.Position(bodyEnd)))
	}
	return rw.Build()
}

// parseCreateMacro parses the part after MACRO.
//
//	name '(' [name type {',' name type}] ')' RETURNS type AS body
func (p *stmtParser) parseCreateMacro(info NodeInfo, replace bool) (Statement, error) {
	stmt := &CreateMacro{NodeInfo: info, Replace: replace}

	var err error
	if stmt.Name, err = p.objectName("macro"); err != nil {
		return nil, err
	}
	if err := p.expect(token.LPAREN, "'('"); err != nil {
		return nil, err
	}
	seen := nameSet{}
	for !p.check(token.RPAREN) {
		nameTok := p.token
		name, err := p.word("parameter")
		if err != nil {
			return nil, err
		}
		if !seen.add(name) {
			return nil, p.errorAt(nameTok, ErrDuplicateName, "parameter", name)
		}
		typ, err := p.macroType()
		if err != nil {
			return nil, err
		}
		stmt.Params = append(stmt.Params, preprocessor.MacroParam{Name: name, Type: typ})
		if !p.match(token.COMMA) {
			break
		}
	}
	if err := p.expect(token.RPAREN, "',' or ')'"); err != nil {
		return nil, err
	}
	if err := p.expect(TOKEN_RETURNS, "RETURNS"); err != nil {
		return nil, err
	}
	if stmt.Returns, err = p.macroType(); err != nil {
		return nil, err
	}
	if err := p.expect(token.AS, "AS"); err != nil {
		return nil, err
	}
	stmt.Body, err = p.parseBody("macro")
	return stmt, err
}

func (p *stmtParser) macroType() (string, error) {
	if !isWord(p.token) {
		return "", p.unexpected("macro type")
	}
	if !preprocessor.IsValidParamType(p.token.Text) {
		return "", p.errorf(ErrInvalidParamType, p.token.Text)
	}
	typ := p.token.Text
	p.nextToken()
	return typ, nil
}

// parseCreateIndex parses the part after INDEX.
//
//	name ON table '(' col {',' col} ')'
func (p *stmtParser) parseCreateIndex(info NodeInfo, replace bool) (Statement, error) {
	stmt := &CreateIndex{NodeInfo: info, Replace: replace}

	var err error
	if stmt.Name, err = p.objectName("index"); err != nil {
		return nil, err
	}
	if err := p.expect(token.ON, "ON"); err != nil {
		return nil, err
	}
	if stmt.Table, err = p.objectName("table"); err != nil {
		return nil, err
	}
	if err := p.expect(token.LPAREN, "'('"); err != nil {
		return nil, err
	}
	if p.check(token.RPAREN) {
		return nil, p.errorf(ErrEmptyColumns, "index column")
	}
	seen := nameSet{}
	for {
		nameTok := p.token
		col, err := p.word("column")
		if err != nil {
			return nil, err
		}
		if !seen.add(col) {
			return nil, p.errorAt(nameTok, ErrDuplicateName, "column", col)
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.match(token.COMMA) {
			break
		}
	}
	if err := p.expect(token.RPAREN, "',' or ')'"); err != nil {
		return nil, err
	}
	return stmt, p.expectEnd()
}

// parseDropIndex parses the part after DROP PERFETTO.
//
//	INDEX name ON table
func (p *stmtParser) parseDropIndex(info NodeInfo) (Statement, error) {
	stmt := &DropIndex{NodeInfo: info}
	if err := p.expect(token.INDEX, "INDEX"); err != nil {
		return nil, err
	}

	var err error
	if stmt.Name, err = p.objectName("index"); err != nil {
		return nil, err
	}
	if err := p.expect(token.ON, "ON"); err != nil {
		return nil, err
	}
	if stmt.Table, err = p.objectName("table"); err != nil {
		return nil, err
	}
	return stmt, p.expectEnd()
}

// parseInclude parses the part after INCLUDE PERFETTO. The key must be
// written without spaces.
//
//	MODULE word {'.' word} ['.' '*']
func (p *stmtParser) parseInclude(info NodeInfo) (Statement, error) {
	if err := p.expect(TOKEN_MODULE, "MODULE"); err != nil {
		return nil, err
	}
	if p.check(token.STAR) {
		p.nextToken()
		return &IncludeModule{NodeInfo: info, Key: "*"}, p.expectEnd()
	}
	if !isWord(p.token) {
		return nil, p.unexpected("module key")
	}

	first := p.token
	var key strings.Builder
	key.WriteString(p.token.Text)
	prev := p.token
	p.nextToken()
	for p.check(token.DOT) && p.token.Offset == prev.End() {
		dot := p.token
		p.nextToken()
		if p.token.Offset != dot.End() || !(isWord(p.token) || p.check(token.STAR)) {
			return nil, p.errorAt(first, ErrInvalidModuleKey, key.String()+".")
		}
		key.WriteString("." + p.token.Text)
		prev = p.token
		p.nextToken()
		if prev.Type == token.STAR {
			break
		}
	}
	if strings.HasPrefix(key.String(), "\"") || strings.HasPrefix(key.String(), "`") {
		return nil, p.errorAt(first, ErrInvalidModuleKey, key.String())
	}
	return &IncludeModule{NodeInfo: info, Key: key.String()}, p.expectEnd()
}

// parseColumns parses a parenthesized `name type` list.
func (p *stmtParser) parseColumns(what string, allowEmpty bool) ([]Column, error) {
	if err := p.expect(token.LPAREN, "'('"); err != nil {
		return nil, err
	}
	cols := []Column{}
	if p.check(token.RPAREN) {
		if !allowEmpty {
			return nil, p.errorf(ErrEmptyColumns, what)
		}
		p.nextToken()
		return cols, nil
	}

	seen := nameSet{}
	for {
		nameTok := p.token
		name, err := p.word(what)
		if err != nil {
			return nil, err
		}
		if !seen.add(name) {
			return nil, p.errorAt(nameTok, ErrDuplicateName, what, name)
		}
		col, err := p.parseType()
		if err != nil {
			return nil, err
		}
		col.Name = name
		cols = append(cols, col)
		if !p.match(token.COMMA) {
			break
		}
	}
	if err := p.expect(token.RPAREN, "',' or ')'"); err != nil {
		return nil, err
	}
	return cols, nil
}

// parseType parses a type name with its optional `(table.col)` reference.
func (p *stmtParser) parseType() (Column, error) {
	if !isWord(p.token) {
		return Column{}, p.unexpected("type")
	}
	typ, ok := ParseType(p.token.Text)
	if !ok {
		return Column{}, p.errorf(ErrInvalidType, p.token.Text)
	}
	p.nextToken()
	col := Column{Type: typ}

	if !typ.AcceptsRef() || !p.check(token.LPAREN) {
		return col, nil
	}
	p.nextToken()
	table, err := p.word("table")
	if err != nil {
		return Column{}, err
	}
	if err := p.expect(token.DOT, "'.'"); err != nil {
		return Column{}, err
	}
	column, err := p.word("column")
	if err != nil {
		return Column{}, err
	}
	if err := p.expect(token.RPAREN, "')'"); err != nil {
		return Column{}, err
	}
	col.Ref = table + "." + column
	return col, nil
}

// parseBody takes every remaining token up to the terminating ';'.
func (p *stmtParser) parseBody(what string) (*source.Text, error) {
	if p.atEnd() {
		return nil, p.errorf(ErrEmptyBody, what)
	}
	first, last := p.token, p.token
	for {
		p.nextToken()
		if p.atEnd() {
			break
		}
		last = p.token
	}
	return p.z.SpanThrough(first, last), nil
}
