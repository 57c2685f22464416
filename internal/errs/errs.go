// Package errs defines the error taxonomy shared by the store, the engine,
// the ETABS bridge and the diff engine. Every failure that reaches the
// command facade maps to exactly one Kind.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	NotFound              Kind = "NotFound"
	DuplicateName         Kind = "DuplicateName"
	InvalidName           Kind = "InvalidName"
	InvalidParent         Kind = "InvalidParent"
	ProtectedBranch       Kind = "ProtectedBranch"
	HasUncommittedChanges Kind = "HasUncommittedChanges"
	EmptyMessage          Kind = "EmptyMessage"
	NoWorkingFile         Kind = "NoWorkingFile"
	ToolUnavailable       Kind = "ToolUnavailable"
	LaunchFailed          Kind = "LaunchFailed"
	NotRunning            Kind = "NotRunning"
	AlreadyRunning        Kind = "AlreadyRunning"
	OutputExists          Kind = "OutputExists"
	SourceInvalid         Kind = "SourceInvalid"
	ExportFailed          Kind = "ExportFailed"
	ParseError            Kind = "ParseError"
	IOFailure             Kind = "IOFailure"
	InvalidRequest        Kind = "InvalidRequest"
	Internal              Kind = "Internal"
)

// Error is a classified failure. Msg is the human-readable text shown to
// callers; Err is the optional underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return e.Err.Error()
		}
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels of the same kind, so errors.Is(err, errs.ErrNotFound)
// holds for every NotFound error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound              = &Error{Kind: NotFound}
	ErrDuplicateName         = &Error{Kind: DuplicateName}
	ErrInvalidName           = &Error{Kind: InvalidName}
	ErrInvalidParent         = &Error{Kind: InvalidParent}
	ErrProtectedBranch       = &Error{Kind: ProtectedBranch}
	ErrHasUncommittedChanges = &Error{Kind: HasUncommittedChanges}
	ErrEmptyMessage          = &Error{Kind: EmptyMessage}
	ErrNoWorkingFile         = &Error{Kind: NoWorkingFile}
	ErrToolUnavailable       = &Error{Kind: ToolUnavailable}
	ErrLaunchFailed          = &Error{Kind: LaunchFailed}
	ErrNotRunning            = &Error{Kind: NotRunning}
	ErrAlreadyRunning        = &Error{Kind: AlreadyRunning}
	ErrOutputExists          = &Error{Kind: OutputExists}
	ErrSourceInvalid         = &Error{Kind: SourceInvalid}
	ErrExportFailed          = &Error{Kind: ExportFailed}
	ErrParseError            = &Error{Kind: ParseError}
	ErrIOFailure             = &Error{Kind: IOFailure}
	ErrInvalidRequest        = &Error{Kind: InvalidRequest}
)

// E builds a classified error with a formatted message.
func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it as the cause.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IO classifies a storage failure. Errors that already carry a kind keep it.
func IO(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(IOFailure, err, format, args...)
}

// KindOf reports the kind of err, or Internal if err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
