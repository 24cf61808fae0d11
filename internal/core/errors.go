package core

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindRead
	KindFatalBatch
	KindValidation
	KindCommit
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config error"
	case KindRead:
		return "read error"
	case KindFatalBatch:
		return "fatal batch error"
	case KindValidation:
		return "validation failure"
	case KindCommit:
		return "commit error"
	default:
		return "error"
	}
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrConfig     = &Error{Kind: KindConfig}
	ErrRead       = &Error{Kind: KindRead}
	ErrFatalBatch = &Error{Kind: KindFatalBatch}
	ErrValidation = &Error{Kind: KindValidation}
	ErrCommit     = &Error{Kind: KindCommit}
)

// Error is the structured error returned by every pipeline stage.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func configErrorf(format string, args ...any) *Error {
	return newError(KindConfig, nil, format, args...)
}

func readErrorf(err error, format string, args ...any) *Error {
	return newError(KindRead, err, format, args...)
}

func fatalErrorf(format string, args ...any) *Error {
	return newError(KindFatalBatch, nil, format, args...)
}
