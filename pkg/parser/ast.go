package parser

import (
	"github.com/leapstack-labs/perfettosql/pkg/preprocessor"
	"github.com/leapstack-labs/perfettosql/pkg/source"
)

// Statement is one parsed, fully expanded statement.
type Statement interface {
	// Source returns the expanded statement text.
	Source() *source.Text
	// Kind names the statement variant.
	Kind() string
	stmtNode()
}

// NodeInfo provides the common fields of all statements.
type NodeInfo struct {
	SQL *source.Text
}

// Source returns the statement's expanded text.
func (n *NodeInfo) Source() *source.Text {
	return n.SQL
}

// Column is a named, typed column or function argument. Ref holds the
// `table.col` of ID(...) and JOINID(...) types.
type Column struct {
	Name string
	Type Type
	Ref  string
}

// Arg is a function argument.
type Arg = Column

// Returns describes what a function returns: a scalar type or a table.
type Returns struct {
	Scalar Type
	Table  []Column
}

// IsTable reports whether the function returns a table.
func (r Returns) IsTable() bool {
	return r.Table != nil
}

// ---------- Statement Types ----------

// Passthrough is any statement PerfettoSQL does not interpret. It is handed
// to the backend as is.
type Passthrough struct {
	NodeInfo
}

func (*Passthrough) Kind() string { return "passthrough" }
func (*Passthrough) stmtNode()    {}

// CreateFunction is CREATE PERFETTO FUNCTION.
type CreateFunction struct {
	NodeInfo
	Replace     bool
	Name        string
	Args        []Arg
	Returns     Returns
	Body        *source.Text
	DelegatesTo string
}

func (*CreateFunction) Kind() string { return "create_function" }
func (*CreateFunction) stmtNode()    {}

// CreateTable is CREATE PERFETTO TABLE.
type CreateTable struct {
	NodeInfo
	Replace bool
	Name    string
	Schema  []Column
	Body    *source.Text
}

func (*CreateTable) Kind() string { return "create_table" }
func (*CreateTable) stmtNode()    {}

// CreateView is CREATE PERFETTO VIEW. CreateViewSQL is the equivalent
// plain `CREATE VIEW name AS body` statement.
type CreateView struct {
	NodeInfo
	Replace       bool
	Name          string
	Schema        []Column
	Body          *source.Text
	CreateViewSQL *source.Text
}

func (*CreateView) Kind() string { return "create_view" }
func (*CreateView) stmtNode()    {}

// CreateMacro is CREATE PERFETTO MACRO.
type CreateMacro struct {
	NodeInfo
	Replace bool
	Name    string
	Params  []preprocessor.MacroParam
	Returns string
	Body    *source.Text
}

func (*CreateMacro) Kind() string { return "create_macro" }
func (*CreateMacro) stmtNode()    {}

// Macro returns the macro definition for the preprocessor table.
func (s *CreateMacro) Macro() *preprocessor.Macro {
	return &preprocessor.Macro{
		Name:    s.Name,
		Replace: s.Replace,
		Params:  s.Params,
		Returns: s.Returns,
		Body:    s.Body,
	}
}

// CreateIndex is CREATE PERFETTO INDEX.
type CreateIndex struct {
	NodeInfo
	Replace bool
	Name    string
	Table   string
	Columns []string
}

func (*CreateIndex) Kind() string { return "create_index" }
func (*CreateIndex) stmtNode()    {}

// DropIndex is DROP PERFETTO INDEX.
type DropIndex struct {
	NodeInfo
	Name  string
	Table string
}

func (*DropIndex) Kind() string { return "drop_index" }
func (*DropIndex) stmtNode()    {}

// IncludeModule is INCLUDE PERFETTO MODULE. Key may end in `.*`.
type IncludeModule struct {
	NodeInfo
	Key string
}

func (*IncludeModule) Kind() string { return "include_module" }
func (*IncludeModule) stmtNode()    {}
