// Package errs defines the error taxonomy shared by the ingestion pipeline.
//
// Every failure surfaced to a caller is an [*Error] whose Kind is one of the
// sentinel errors below, so callers branch with errors.Is:
//
//	if errors.Is(err, errs.ErrQueryTimeout) {
//	    // retry later
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds of failure.
var (
	// ErrInvalidArgument is a malformed batch (duplicate table/file pairs,
	// missing identifiers, unknown operations).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDataValidation is a well-formed request that is illegal for the
	// current state (operation preconditions, duplicate columns).
	ErrDataValidation = errors.New("data validation failed")

	// ErrInvalidOperation is a transport or service fault.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrQueryTimeout is a query still running when its wait budget ran out.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrQueryExecution is a query the service reported as failed.
	ErrQueryExecution = errors.New("query execution failed")

	// ErrDataNotFound is an expected absence in an existence lookup.
	ErrDataNotFound = errors.New("data not found")
)

// Code is a machine readable reason attached to an Error.
type Code string

// Error codes.
const (
	CodeTableAlreadyExists Code = "TABLE_ALREADY_EXISTS"
	CodeInvalidTableSet    Code = "INVALID_TABLE_SET"
	CodeTableDoesNotExist  Code = "TABLE_DOES_NOT_EXIST"
	CodeFileAlreadyExists  Code = "FILE_ALREADY_EXISTS"
	CodeDuplicateFile      Code = "DUPLICATE_FILE"
	CodeDuplicateColumns   Code = "DUPLICATE_COLUMNS"
	CodeMalformedStream    Code = "MALFORMED_STREAM"
	CodeStorageFailure     Code = "STORAGE_FAILURE"
)

// Error carries a failure kind plus enough context to reconstruct what was
// being attempted without a stack trace.
type Error struct {
	Kind    error  // one of the sentinel kinds
	Op      string // operation that failed, e.g. "reconcile.Validate"
	Code    Code   // optional machine code
	Subject string // affected identifiers, e.g. "table=sales file=q1.csv"
	Msg     string // optional human detail
	Err     error  // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Subject != "" {
		b.WriteString(" ")
		b.WriteString(e.Subject)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New builds an Error of the given kind.
func New(kind error, op string, code Code, subject, msg string) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Subject: subject, Msg: msg}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind error, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Subject formats key=value pairs, skipping empty values.
func Subject(kv ...string) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		parts = append(parts, kv[i]+"="+kv[i+1])
	}
	return strings.Join(parts, " ")
}

// CodeOf returns the code of the first *Error in err's tree.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Codes returns every code found in err's tree, including errors.Join members.
func Codes(err error) []Code {
	var out []Code
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if e, ok := err.(*Error); ok && e.Code != "" {
			out = append(out, e.Code)
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// IsFatal reports whether an error should fail a file's ingestion, as
// opposed to the expected not-found signal.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrDataNotFound)
}
