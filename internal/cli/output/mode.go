// Package output renders command results and errors for the terminal or
// for machines.
package output

import "strings"

// OutputMode selects how results are written.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto" // table on a TTY, markdown otherwise
	ModeTable    OutputMode = "table"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
	ModeCSV      OutputMode = "csv"
)

// Modes lists every accepted mode name.
var Modes = []string{"auto", "table", "markdown", "json", "csv"}

// Mode parses a mode name. Unknown names fall back to ModeAuto.
func Mode(s string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "text":
		return ModeTable
	case "markdown", "md":
		return ModeMarkdown
	case "json":
		return ModeJSON
	case "csv":
		return ModeCSV
	default:
		return ModeAuto
	}
}

// Valid reports whether s names a mode.
func Valid(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "table", "text", "markdown", "md", "json", "csv":
		return true
	}
	return false
}
