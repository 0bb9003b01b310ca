package tokenizer

import "github.com/leapstack-labs/perfettosql/pkg/token"

func (z *Tokenizer) peek(n int) byte {
	if z.pos+n >= len(z.input) {
		return 0
	}
	return z.input[z.pos+n]
}

// scan consumes one token starting at z.pos and returns its raw kind. Words
// are reported as IDENT and classified by the caller.
func (z *Tokenizer) scan() token.TokenType {
	ch := z.input[z.pos]

	switch {
	case isSpace(ch):
		for z.pos < len(z.input) && isSpace(z.input[z.pos]) {
			z.pos++
		}
		return token.SPACE
	case isDigit(ch) || (ch == '.' && isDigit(z.peek(1))):
		return z.scanNumber()
	case (ch == 'x' || ch == 'X') && z.peek(1) == '\'':
		z.pos++
		if z.scanQuoted('\'') != token.STRING {
			return token.ILLEGAL
		}
		return token.BLOB
	case isIdentStart(ch):
		z.scanIdent()
		return token.IDENT
	}

	z.pos++
	switch ch {
	case ';':
		return token.SEMI
	case '(':
		return token.LPAREN
	case ')':
		return token.RPAREN
	case ',':
		return token.COMMA
	case '.':
		return token.DOT
	case '+':
		return token.PLUS
	case '*':
		return token.STAR
	case '%':
		return token.PERCENT
	case '~':
		return token.TILDE
	case '&':
		return token.AMP
	case '-':
		switch z.peek(0) {
		case '-':
			for z.pos < len(z.input) && z.input[z.pos] != '\n' {
				z.pos++
			}
			return token.COMMENT
		case '>':
			z.pos++
			if z.peek(0) == '>' {
				z.pos++
				return token.PTR2
			}
			return token.PTR
		}
		return token.MINUS
	case '/':
		if z.peek(0) != '*' {
			return token.SLASH
		}
		for z.pos++; z.pos < len(z.input); z.pos++ {
			if z.input[z.pos] == '*' && z.peek(1) == '/' {
				z.pos += 2
				return token.COMMENT
			}
		}
		return token.ILLEGAL
	case '=':
		if z.peek(0) == '=' {
			z.pos++
		}
		return token.EQ
	case '<':
		switch z.peek(0) {
		case '=':
			z.pos++
			return token.LE
		case '>':
			z.pos++
			return token.NE
		case '<':
			z.pos++
			return token.SHL
		}
		return token.LT
	case '>':
		switch z.peek(0) {
		case '=':
			z.pos++
			return token.GE
		case '>':
			z.pos++
			return token.SHR
		}
		return token.GT
	case '!':
		if z.peek(0) == '=' {
			z.pos++
			return token.NE
		}
		return token.BANG
	case '|':
		if z.peek(0) == '|' {
			z.pos++
			return token.CONCAT
		}
		return token.PIPE
	case '\'':
		z.pos--
		return z.scanQuoted('\'')
	case '"', '`':
		z.pos--
		if z.scanQuoted(ch) == token.ILLEGAL {
			return token.ILLEGAL
		}
		return token.IDENT
	case '[':
		for ; z.pos < len(z.input); z.pos++ {
			if z.input[z.pos] == ']' {
				z.pos++
				return token.IDENT
			}
		}
		return token.ILLEGAL
	case '$', ':', '@':
		if z.pos >= len(z.input) || !isIdentChar(z.input[z.pos]) {
			return token.ILLEGAL
		}
		z.scanIdent()
		return token.VARIABLE
	case '?':
		for z.pos < len(z.input) && isDigit(z.input[z.pos]) {
			z.pos++
		}
		return token.VARIABLE
	}
	return token.ILLEGAL
}

// scanQuoted consumes a quoted run starting at the opening quote. A doubled
// quote character is an escaped quote.
func (z *Tokenizer) scanQuoted(quote byte) token.TokenType {
	for z.pos++; z.pos < len(z.input); z.pos++ {
		if z.input[z.pos] != quote {
			continue
		}
		if z.peek(1) == quote {
			z.pos++
			continue
		}
		z.pos++
		return token.STRING
	}
	return token.ILLEGAL
}

func (z *Tokenizer) scanNumber() token.TokenType {
	typ := token.INTEGER
	if z.input[z.pos] == '0' && (z.peek(1) == 'x' || z.peek(1) == 'X') && isHexDigit(z.peek(2)) {
		z.pos += 2
		for z.pos < len(z.input) && isHexDigit(z.input[z.pos]) {
			z.pos++
		}
	} else {
		z.digits()
		if z.peek(0) == '.' {
			typ = token.FLOAT
			z.pos++
			z.digits()
		}
		if c := z.peek(0); c == 'e' || c == 'E' {
			next := z.peek(1)
			if isDigit(next) || ((next == '+' || next == '-') && isDigit(z.peek(2))) {
				typ = token.FLOAT
				z.pos += 2
				z.digits()
			}
		}
	}
	if z.pos < len(z.input) && isIdentChar(z.input[z.pos]) {
		z.scanIdent()
		return token.ILLEGAL
	}
	return typ
}

func (z *Tokenizer) digits() {
	for z.pos < len(z.input) && isDigit(z.input[z.pos]) {
		z.pos++
	}
}

func (z *Tokenizer) scanIdent() {
	for z.pos < len(z.input) && isIdentChar(z.input[z.pos]) {
		z.pos++
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch >= 0x80
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}
