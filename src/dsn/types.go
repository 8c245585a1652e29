// Package dsn normalizes, classifies and validates database connection strings.
//
// Everything in this package is pure string inspection: nothing here opens a
// connection or resolves a host.
package dsn

import (
	"errors"
	"fmt"
)

// Dialect is the kind of database a connection string points at.
type Dialect string

const (
	PostgreSQL Dialect = "postgresql"
	MySQL      Dialect = "mysql"
	SQLite     Dialect = "sqlite"
	Unknown    Dialect = "unknown"
)

// Supported lists the dialects a session can be bound to, in display order.
var Supported = []Dialect{PostgreSQL, MySQL, SQLite}

// ErrUnsupportedDialect is wrapped by every rejection produced by Validate.
var ErrUnsupportedDialect = errors.New("unsupported database type")

// Info is the validated form of a connection string.
type Info struct {
	Dialect Dialect
	// Conn is the normalized connection string handed to drivers.
	Conn string
	// Original is the string exactly as the client sent it.
	Original string
}

// String returns the normalized connection string.
func (i Info) String() string {
	return i.Conn
}

// ParseError describes why a connection string was rejected.
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s. %s", e.Reason, e.Hint)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a new ParseError.
func NewParseError(dsn, reason, hint string, err error) *ParseError {
	return &ParseError{DSN: dsn, Reason: reason, Hint: hint, Err: err}
}
