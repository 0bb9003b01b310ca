package parser

import "github.com/leapstack-labs/perfettosql/pkg/token"

// PerfettoSQL keywords. They are registered as dynamic keywords so plain
// SQLite keeps treating them as identifiers until the tokenizer sees them.
var (
	TOKEN_PERFETTO  = token.Register("PERFETTO")
	TOKEN_FUNCTION  = token.Register("FUNCTION")
	TOKEN_MACRO     = token.Register("MACRO")
	TOKEN_RETURNS   = token.Register("RETURNS")
	TOKEN_DELEGATES = token.Register("DELEGATES")
	TOKEN_MODULE    = token.Register("MODULE")
	TOKEN_INCLUDE   = token.Register("INCLUDE")
)

// Soft keywords are matched by identifier text.
const (
	SoftKeywordTo = "TO"
)
