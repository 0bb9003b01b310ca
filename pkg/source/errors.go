package source

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

// Error kinds.
const (
	KindLexical Kind = iota + 1
	KindMacro
	KindParse
	KindExecution
	KindEvaluation
)

func (k Kind) String() string {
	switch k {
	case KindLexical:
		return "lexical"
	case KindMacro:
		return "macro"
	case KindParse:
		return "parse"
	case KindExecution:
		return "execution"
	case KindEvaluation:
		return "evaluation"
	}
	return "unknown"
}

// Error is an error enriched with a pre-rendered traceback into the
// user's original source.
type Error struct {
	Kind      Kind
	Msg       string
	Traceback string
	Err       error
}

func (e *Error) Error() string {
	if e.Traceback == "" {
		return e.Msg
	}
	return "Traceback (most recent call last):\n" + e.Traceback + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithFrame returns a copy of e with the frame for off in t prepended.
func (e *Error) WithFrame(t *Text, off int) *Error {
	c := *e
	if t != nil {
		c.Traceback = t.AsTraceback(off) + e.Traceback
	}
	return &c
}

// NewError creates an Error pointing at off in t. t may be nil.
func NewError(kind Kind, t *Text, off int, format string, args ...any) *Error {
	e := &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
	if t != nil {
		e.Traceback = t.AsTraceback(off)
	}
	return e
}

// WrapError attaches a traceback to err. If err already carries one, the
// new frame is prepended and the original kind kept.
func WrapError(kind Kind, t *Text, off int, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se.WithFrame(t, off)
	}
	e := NewError(kind, t, off, "%s", err.Error())
	e.Err = err
	return e
}
