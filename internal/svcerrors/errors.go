// Package svcerrors gives the enumeration pipeline and path engine a small,
// typed error vocabulary so callers can branch on failure class instead of
// matching on error strings.
package svcerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by failure domain.
type Kind string

const (
	KindTransport   Kind = "transport"   // LDAP I/O, auth
	KindParse       Kind = "parse"       // malformed SPN/GPLink, non-fatal
	KindPersistence Kind = "persistence" // transaction failure, aborts the run
	KindResource    Kind = "resource"    // spill file I/O
	KindQuery       Kind = "query"       // unknown SID, missing graph endpoints
)

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Transport wraps a directory-transport failure.
func Transport(msg string, err error) *Error { return newErr(KindTransport, msg, err) }

// Parse wraps a malformed-input failure (SPN/GPLink parsing).
func Parse(msg string, err error) *Error { return newErr(KindParse, msg, err) }

// Persistence wraps a transaction/commit failure.
func Persistence(msg string, err error) *Error { return newErr(KindPersistence, msg, err) }

// Resource wraps a spill-file or other local-resource failure.
func Resource(msg string, err error) *Error { return newErr(KindResource, msg, err) }

// Query wraps a graph-query failure (missing SID, bad mode).
func Query(msg string, err error) *Error { return newErr(KindQuery, msg, err) }

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
