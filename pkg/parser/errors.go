package parser

// Common error messages
const (
	ErrUnexpectedToken  = "expected %s but found %q"
	ErrUnknownPerfetto  = "expected FUNCTION, TABLE, VIEW, MACRO or INDEX after PERFETTO but found %q"
	ErrInvalidType      = "invalid type %q"
	ErrInvalidParamType = "invalid macro type %q"
	ErrDuplicateName    = "duplicate %s name %q"
	ErrEmptyColumns     = "%s list must not be empty"
	ErrEmptyBody        = "%s body must not be empty"
	ErrEmptyDelegate    = "DELEGATES TO requires a function name"
	ErrTrailingTokens   = "unexpected %q after statement"
	ErrInvalidModuleKey = "invalid module key %q"
	ErrTableReturn      = "TABLE return type must declare at least one column"
	ErrUnexpectedRef    = "type %s does not take a column reference"
)
