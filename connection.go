package sqlite3

import (
	"runtime"
	"time"

	"go.uber.org/atomic"
)

// OpenFlags control how Open establishes the database session. The values
// mirror the engine's SQLITE_OPEN_* bits and are combined with OR.
type OpenFlags uint32

const (
	OPEN_READONLY     OpenFlags = 0x00000001
	OPEN_READWRITE    OpenFlags = 0x00000002
	OPEN_CREATE       OpenFlags = 0x00000004
	OPEN_URI          OpenFlags = 0x00000040
	OPEN_MEMORY       OpenFlags = 0x00000080
	OPEN_NOMUTEX      OpenFlags = 0x00008000
	OPEN_FULLMUTEX    OpenFlags = 0x00010000
	OPEN_SHAREDCACHE  OpenFlags = 0x00020000
	OPEN_PRIVATECACHE OpenFlags = 0x00040000
)

// Connection owns one database handle. It must not be driven by two
// goroutines at once. Independent Connections to the same file are fine; the
// engine serializes them through its file locks, surfaced here as BUSY errors
// or busy-handler invocations.
type Connection struct {
	db     *sqlite3_db_t
	token  uintptr
	cbs    *connCallbacks
	closed atomic.Bool
}

// Open establishes a session with the database at path, creating the file if
// needed. With no flags the session is read-write-create. The engine's path
// sentinels apply: ":memory:" opens a new private in-memory database and ""
// a new temporary one.
func Open(path string, flags ...OpenFlags) (*Connection, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	if hasNUL(path) {
		return nil, errInteriorNUL
	}
	var mode OpenFlags
	for _, f := range flags {
		mode |= f
	}
	if mode == 0 {
		mode = OPEN_READWRITE | OPEN_CREATE
	}
	var db *sqlite3_db_t
	rc := c_sqlite3_open_v2(path, &db, int32(mode), 0)
	if rc != int32(OK) {
		// The engine may hand back a handle holding the diagnostics.
		if db != nil {
			err := lastError(db)
			c_sqlite3_close_v2(db)
			return nil, err
		}
		return nil, &Error{Code: Code(rc)}
	}
	c := &Connection{db: db, cbs: &connCallbacks{}}
	c.token = registerCallbacks(c.cbs)
	runtime.SetFinalizer(c, (*Connection).Close)
	return c, nil
}

// Close releases the connection. The close is deferred: the engine tears the
// session down only once every Statement prepared on it has been finalized,
// so statements in flight stay usable. Close is idempotent and a forgotten
// Connection is closed by the garbage collector.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(c, nil)
	unregisterCallbacks(c.token)
	c_sqlite3_close_v2(c.db)
	return nil
}

// Execute runs one or more semicolon-separated statements, discarding any
// rows they produce.
func (c *Connection) Execute(sql string) error {
	if c.closed.Load() {
		return errConnClosed
	}
	if hasNUL(sql) {
		return errInteriorNUL
	}
	if rc := c_sqlite3_exec(c.db, sql, 0, 0, 0); rc != int32(OK) {
		return lastError(c.db)
	}
	return nil
}

// Iterate executes a query and calls fn once per result row with the column
// names and the text rendering of each value, nil standing for SQL null.
// Returning false from fn stops the scan without error.
func (c *Connection) Iterate(sql string, fn func(names []string, values []*string) bool) error {
	if c.closed.Load() {
		return errConnClosed
	}
	if hasNUL(sql) {
		return errInteriorNUL
	}
	c.cbs.iter = fn
	defer func() { c.cbs.iter = nil }()
	rc := c_sqlite3_exec(c.db, sql, execTrampoline, c.token, 0)
	if rc == int32(ABORT) {
		// fn asked to stop.
		return nil
	}
	if rc != int32(OK) {
		return lastError(c.db)
	}
	return nil
}

// Prepare compiles the first statement in sql into a reusable Statement.
// Trailing statements in the same text are accepted and ignored. The
// connection must outlive any use of the Statement's results, though the
// Statement itself stays valid past Close thanks to the deferred close.
func (c *Connection) Prepare(sql string) (*Statement, error) {
	if c.closed.Load() {
		return nil, errConnClosed
	}
	if hasNUL(sql) {
		return nil, errInteriorNUL
	}
	var stmt *sqlite3_stmt_t
	if rc := c_sqlite3_prepare_v2(c.db, sql, -1, &stmt, 0); rc != int32(OK) {
		return nil, lastError(c.db)
	}
	if stmt == nil {
		// Whitespace or comments only.
		return nil, &Error{Code: MISUSE, Message: "empty statement"}
	}
	s := &Statement{stmt: stmt, db: c.db}
	runtime.SetFinalizer(s, (*Statement).Close)
	return s, nil
}

// Changes reports the number of rows modified by the most recent statement.
func (c *Connection) Changes() int {
	if c.closed.Load() {
		return 0
	}
	return int(c_sqlite3_changes(c.db))
}

// TotalChanges reports the number of rows modified over the connection's
// lifetime.
func (c *Connection) TotalChanges() int {
	if c.closed.Load() {
		return 0
	}
	return int(c_sqlite3_total_changes(c.db))
}

// LastInsertRowID reports the rowid of the most recent successful insert on
// this connection.
func (c *Connection) LastInsertRowID() int64 {
	if c.closed.Load() {
		return 0
	}
	return c_sqlite3_last_insert_rowid(c.db)
}

// SetBusyHandler installs fn as the connection's lock-retry policy. The
// engine calls it with the number of prior retries for the current lock wait;
// returning true retries, returning false fails the operation with BUSY. The
// connection owns fn until it is replaced, cleared with a nil fn, or the
// connection closes. Installing a handler replaces any busy timeout.
func (c *Connection) SetBusyHandler(fn func(retries int) bool) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.cbs.busy = fn
	var rc int32
	if fn == nil {
		rc = c_sqlite3_busy_handler(c.db, 0, 0)
	} else {
		rc = c_sqlite3_busy_handler(c.db, busyTrampoline, c.token)
	}
	if rc != int32(OK) {
		return lastError(c.db)
	}
	return nil
}

// BusyTimeout installs the engine's built-in sleep-and-retry busy policy for
// the given duration. It replaces any busy handler; a non-positive duration
// clears busy handling entirely.
func (c *Connection) BusyTimeout(d time.Duration) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.cbs.busy = nil
	if rc := c_sqlite3_busy_timeout(c.db, int32(d.Milliseconds())); rc != int32(OK) {
		return lastError(c.db)
	}
	return nil
}

// SetTrace installs fn to observe every statement as it first runs, receiving
// the unexpanded SQL text. A nil fn removes the trace.
func (c *Connection) SetTrace(fn func(sql string)) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.cbs.trace = fn
	var rc int32
	if fn == nil {
		rc = c_sqlite3_trace_v2(c.db, 0, 0, 0)
	} else {
		rc = c_sqlite3_trace_v2(c.db, traceStmtMask, traceTrampoline, c.token)
	}
	if rc != int32(OK) {
		return lastError(c.db)
	}
	return nil
}
