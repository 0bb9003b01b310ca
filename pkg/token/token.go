// Package token defines the lexical token kinds of PerfettoSQL.
//
// SQLite tokens and keywords are constants (IDs 0-999) for switch performance.
// PerfettoSQL-only words (PERFETTO, MACRO, ...) are registered dynamically via
// Register() by the packages that give them meaning.
package token

import (
	"fmt"
	"strings"
)

// TokenType represents the type of a lexical token.
//
//nolint:revive // Accept stutter as token.TokenType is clear and widely used
type TokenType int32

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL
	SPACE
	COMMENT

	// Literals
	IDENT    // identifier, "quoted", `quoted` or [quoted]
	STRING   // 'hello'
	INTEGER  // 123, 0x1f
	FLOAT    // 45.67, 1e10
	BLOB     // x'00ff'
	VARIABLE // $name, :name, @name, ?1

	// Punctuation
	SEMI   // ;
	LPAREN // (
	RPAREN // )
	COMMA  // ,
	DOT    // .
	BANG   // ! (macro invocation marker)

	// Operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	CONCAT  // ||
	PTR     // ->
	PTR2    // ->>
	EQ      // = or ==
	NE      // != or <>
	LT      // <
	GT      // >
	LE      // <=
	GE      // >=
	SHL     // <<
	SHR     // >>
	AMP     // &
	PIPE    // |
	TILDE   // ~

	// SQLite keywords (alphabetical)
	ALL
	AND
	AS
	ASC
	BETWEEN
	BY
	CASE
	CAST
	COLLATE
	CREATE
	CROSS
	DELETE
	DESC
	DISTINCT
	DROP
	ELSE
	END
	ESCAPE
	EXCEPT
	EXISTS
	FILTER // contextual, see tokenizer
	FROM
	FULL
	GLOB
	GROUP
	HAVING
	IF
	IN
	INDEX
	INNER
	INSERT
	INTERSECT
	IS
	ISNULL
	JOIN
	LEFT
	LIKE
	LIMIT
	MATCH
	NATURAL
	NOT
	NOTNULL
	NULL
	OFFSET
	ON
	OR
	ORDER
	OUTER
	OVER // contextual, see tokenizer
	PARTITION
	RECURSIVE
	REGEXP
	REPLACE
	RIGHT
	SELECT
	SET
	TABLE
	TEMP
	TEMPORARY
	THEN
	UNION
	UNIQUE
	UPDATE
	USING
	VALUES
	VIEW
	WHEN
	WHERE
	WINDOW // contextual, see tokenizer
	WITH

	keywordEnd

	// Sentinel - dynamic tokens start after this
	maxBuiltin TokenType = 999
)

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := getDynamicName(t); ok {
		return name
	}
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

var tokenNames = map[TokenType]string{
	EOF:     "EOF",
	ILLEGAL: "ILLEGAL",
	SPACE:   "SPACE",
	COMMENT: "COMMENT",

	IDENT:    "IDENT",
	STRING:   "STRING",
	INTEGER:  "INTEGER",
	FLOAT:    "FLOAT",
	BLOB:     "BLOB",
	VARIABLE: "VARIABLE",

	SEMI:   ";",
	LPAREN: "(",
	RPAREN: ")",
	COMMA:  ",",
	DOT:    ".",
	BANG:   "!",

	PLUS:    "+",
	MINUS:   "-",
	STAR:    "*",
	SLASH:   "/",
	PERCENT: "%",
	CONCAT:  "||",
	PTR:     "->",
	PTR2:    "->>",
	EQ:      "=",
	NE:      "!=",
	LT:      "<",
	GT:      ">",
	LE:      "<=",
	GE:      ">=",
	SHL:     "<<",
	SHR:     ">>",
	AMP:     "&",
	PIPE:    "|",
	TILDE:   "~",
}

// keywords maps upper-case keyword text to its token type.
var keywords = map[string]TokenType{
	"ALL":       ALL,
	"AND":       AND,
	"AS":        AS,
	"ASC":       ASC,
	"BETWEEN":   BETWEEN,
	"BY":        BY,
	"CASE":      CASE,
	"CAST":      CAST,
	"COLLATE":   COLLATE,
	"CREATE":    CREATE,
	"CROSS":     CROSS,
	"DELETE":    DELETE,
	"DESC":      DESC,
	"DISTINCT":  DISTINCT,
	"DROP":      DROP,
	"ELSE":      ELSE,
	"END":       END,
	"ESCAPE":    ESCAPE,
	"EXCEPT":    EXCEPT,
	"EXISTS":    EXISTS,
	"FILTER":    FILTER,
	"FROM":      FROM,
	"FULL":      FULL,
	"GLOB":      GLOB,
	"GROUP":     GROUP,
	"HAVING":    HAVING,
	"IF":        IF,
	"IN":        IN,
	"INDEX":     INDEX,
	"INNER":     INNER,
	"INSERT":    INSERT,
	"INTERSECT": INTERSECT,
	"IS":        IS,
	"ISNULL":    ISNULL,
	"JOIN":      JOIN,
	"LEFT":      LEFT,
	"LIKE":      LIKE,
	"LIMIT":     LIMIT,
	"MATCH":     MATCH,
	"NATURAL":   NATURAL,
	"NOT":       NOT,
	"NOTNULL":   NOTNULL,
	"NULL":      NULL,
	"OFFSET":    OFFSET,
	"ON":        ON,
	"OR":        OR,
	"ORDER":     ORDER,
	"OUTER":     OUTER,
	"OVER":      OVER,
	"PARTITION": PARTITION,
	"RECURSIVE": RECURSIVE,
	"REGEXP":    REGEXP,
	"REPLACE":   REPLACE,
	"RIGHT":     RIGHT,
	"SELECT":    SELECT,
	"SET":       SET,
	"TABLE":     TABLE,
	"TEMP":      TEMP,
	"TEMPORARY": TEMPORARY,
	"THEN":      THEN,
	"UNION":     UNION,
	"UNIQUE":    UNIQUE,
	"UPDATE":    UPDATE,
	"USING":     USING,
	"VALUES":    VALUES,
	"VIEW":      VIEW,
	"WHEN":      WHEN,
	"WHERE":     WHERE,
	"WINDOW":    WINDOW,
	"WITH":      WITH,
}

func init() {
	for name, t := range keywords {
		tokenNames[t] = name
	}
}

// Lookup returns the keyword token for an identifier, or IDENT.
// Dynamically registered keywords are consulted after the builtin set.
func Lookup(ident string) TokenType {
	upper := strings.ToUpper(ident)
	if t, ok := keywords[upper]; ok {
		return t
	}
	if t, ok := LookupDynamicKeyword(upper); ok {
		return t
	}
	return IDENT
}

// IsKeyword reports whether t is a builtin or registered keyword.
func IsKeyword(t TokenType) bool {
	return (t >= ALL && t < keywordEnd) || IsDynamic(t)
}

// IsTrivial reports whether t carries no syntactic meaning.
func IsTrivial(t TokenType) bool {
	return t == SPACE || t == COMMENT
}

// IsLiteral reports whether t is a literal value.
func IsLiteral(t TokenType) bool {
	switch t {
	case STRING, INTEGER, FLOAT, BLOB, NULL:
		return true
	}
	return false
}
