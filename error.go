package sqlite3

import "fmt"

// Code is a primary SQLite result code, exposed with the value the engine
// reported. Callers branch on engine-specific conditions by comparing codes
// directly; no grouping or reinterpretation happens in this package.
type Code int32

const (
	OK         Code = 0
	ERROR      Code = 1
	INTERNAL   Code = 2
	PERM       Code = 3
	ABORT      Code = 4
	BUSY       Code = 5
	LOCKED     Code = 6
	NOMEM      Code = 7
	READONLY   Code = 8
	INTERRUPT  Code = 9
	IOERR      Code = 10
	CORRUPT    Code = 11
	NOTFOUND   Code = 12
	FULL       Code = 13
	CANTOPEN   Code = 14
	PROTOCOL   Code = 15
	EMPTY      Code = 16
	SCHEMA     Code = 17
	TOOBIG     Code = 18
	CONSTRAINT Code = 19
	MISMATCH   Code = 20
	MISUSE     Code = 21
	NOLFS      Code = 22
	AUTH       Code = 23
	FORMAT     Code = 24
	RANGE      Code = 25
	NOTADB     Code = 26
)

// codeText mirrors the engine's own result-code descriptions so an Error
// renders usefully even when no message was captured.
var codeText = map[Code]string{
	OK:         "not an error",
	ERROR:      "SQL logic error",
	INTERNAL:   "internal error",
	PERM:       "access permission denied",
	ABORT:      "query aborted",
	BUSY:       "database is locked",
	LOCKED:     "database table is locked",
	NOMEM:      "out of memory",
	READONLY:   "attempt to write a readonly database",
	INTERRUPT:  "interrupted",
	IOERR:      "disk I/O error",
	CORRUPT:    "database disk image is malformed",
	NOTFOUND:   "unknown operation",
	FULL:       "database or disk is full",
	CANTOPEN:   "unable to open database file",
	PROTOCOL:   "locking protocol",
	EMPTY:      "empty database",
	SCHEMA:     "database schema has changed",
	TOOBIG:     "string or blob too big",
	CONSTRAINT: "constraint failed",
	MISMATCH:   "datatype mismatch",
	MISUSE:     "bad parameter or other API misuse",
	NOLFS:      "large file support is disabled",
	AUTH:       "authorization denied",
	FORMAT:     "auxiliary database format error",
	RANGE:      "column index out of range",
	NOTADB:     "file is not a database",
}

func (c Code) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code %d", int32(c))
}

// Error pairs an engine result code with the diagnostic message captured at
// the moment of failure, when one was available.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return "sqlite3: " + e.Message
	}
	return "sqlite3: " + e.Code.String()
}

// Shared errors for operations attempted through a released handle. The
// engine reports MISUSE for the same class of mistake when it catches it.
var (
	errConnClosed  = &Error{Code: MISUSE, Message: "connection is closed"}
	errStmtClosed  = &Error{Code: MISUSE, Message: "statement is finalized"}
	errInteriorNUL = &Error{Code: MISMATCH, Message: "string contains a NUL byte"}
)
