package sqlite3

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/atomic"
)

// Opaque engine handles. Only pointers to these cross the boundary.
type sqlite3_db_t struct{}
type sqlite3_stmt_t struct{}

// SQLITE_TRANSIENT: the engine copies the buffer before the call returns.
const transientDestructor = ^uintptr(0)

// SQLITE_TRACE_STMT
const traceStmtMask = 0x01

// C extern functions, resolved from the loaded library. Prototypes are quoted
// from sqlite3.h.
var (
	// int sqlite3_open_v2(const char *filename, sqlite3 **ppDb, int flags, const char *zVfs);
	c_sqlite3_open_v2 func(filename string, db **sqlite3_db_t, flags int32, vfs uintptr) int32

	// int sqlite3_close_v2(sqlite3*);
	c_sqlite3_close_v2 func(db *sqlite3_db_t) int32

	// int sqlite3_exec(sqlite3*, const char *sql, int (*callback)(void*,int,char**,char**), void *, char **errmsg);
	c_sqlite3_exec func(db *sqlite3_db_t, sql string, callback uintptr, arg uintptr, errmsg uintptr) int32

	// int sqlite3_prepare_v2(sqlite3 *db, const char *zSql, int nByte, sqlite3_stmt **ppStmt, const char **pzTail);
	c_sqlite3_prepare_v2 func(db *sqlite3_db_t, sql string, nByte int32, stmt **sqlite3_stmt_t, tail uintptr) int32

	// int sqlite3_step(sqlite3_stmt*);
	c_sqlite3_step func(stmt *sqlite3_stmt_t) int32

	// int sqlite3_reset(sqlite3_stmt *pStmt);
	c_sqlite3_reset func(stmt *sqlite3_stmt_t) int32

	// int sqlite3_finalize(sqlite3_stmt *pStmt);
	c_sqlite3_finalize func(stmt *sqlite3_stmt_t) int32

	// int sqlite3_bind_parameter_index(sqlite3_stmt*, const char *zName);
	c_sqlite3_bind_parameter_index func(stmt *sqlite3_stmt_t, name string) int32

	// int sqlite3_bind_int64(sqlite3_stmt*, int, sqlite3_int64);
	c_sqlite3_bind_int64 func(stmt *sqlite3_stmt_t, index int32, value int64) int32

	// int sqlite3_bind_double(sqlite3_stmt*, int, double);
	c_sqlite3_bind_double func(stmt *sqlite3_stmt_t, index int32, value float64) int32

	// int sqlite3_bind_text(sqlite3_stmt*, int, const char*, int, void(*)(void*));
	c_sqlite3_bind_text func(stmt *sqlite3_stmt_t, index int32, value string, n int32, destructor uintptr) int32

	// int sqlite3_bind_blob(sqlite3_stmt*, int, const void*, int, void(*)(void*));
	c_sqlite3_bind_blob func(stmt *sqlite3_stmt_t, index int32, value unsafe.Pointer, n int32, destructor uintptr) int32

	// int sqlite3_bind_zeroblob(sqlite3_stmt*, int, int n);
	c_sqlite3_bind_zeroblob func(stmt *sqlite3_stmt_t, index int32, n int32) int32

	// int sqlite3_bind_null(sqlite3_stmt*, int);
	c_sqlite3_bind_null func(stmt *sqlite3_stmt_t, index int32) int32

	// int sqlite3_column_count(sqlite3_stmt *pStmt);
	c_sqlite3_column_count func(stmt *sqlite3_stmt_t) int32

	// const char *sqlite3_column_name(sqlite3_stmt*, int N);
	c_sqlite3_column_name func(stmt *sqlite3_stmt_t, index int32) uintptr

	// int sqlite3_column_type(sqlite3_stmt*, int iCol);
	c_sqlite3_column_type func(stmt *sqlite3_stmt_t, index int32) int32

	// sqlite3_int64 sqlite3_column_int64(sqlite3_stmt*, int iCol);
	c_sqlite3_column_int64 func(stmt *sqlite3_stmt_t, index int32) int64

	// double sqlite3_column_double(sqlite3_stmt*, int iCol);
	c_sqlite3_column_double func(stmt *sqlite3_stmt_t, index int32) float64

	// const unsigned char *sqlite3_column_text(sqlite3_stmt*, int iCol);
	c_sqlite3_column_text func(stmt *sqlite3_stmt_t, index int32) uintptr

	// const void *sqlite3_column_blob(sqlite3_stmt*, int iCol);
	c_sqlite3_column_blob func(stmt *sqlite3_stmt_t, index int32) uintptr

	// int sqlite3_column_bytes(sqlite3_stmt*, int iCol);
	c_sqlite3_column_bytes func(stmt *sqlite3_stmt_t, index int32) int32

	// int sqlite3_errcode(sqlite3 *db);
	c_sqlite3_errcode func(db *sqlite3_db_t) int32

	// const char *sqlite3_errmsg(sqlite3*);
	c_sqlite3_errmsg func(db *sqlite3_db_t) uintptr

	// int sqlite3_changes(sqlite3*);
	c_sqlite3_changes func(db *sqlite3_db_t) int32

	// int sqlite3_total_changes(sqlite3*);
	c_sqlite3_total_changes func(db *sqlite3_db_t) int32

	// sqlite3_int64 sqlite3_last_insert_rowid(sqlite3*);
	c_sqlite3_last_insert_rowid func(db *sqlite3_db_t) int64

	// int sqlite3_busy_handler(sqlite3*, int(*)(void*,int), void*);
	c_sqlite3_busy_handler func(db *sqlite3_db_t, callback uintptr, arg uintptr) int32

	// int sqlite3_busy_timeout(sqlite3*, int ms);
	c_sqlite3_busy_timeout func(db *sqlite3_db_t, ms int32) int32

	// int sqlite3_trace_v2(sqlite3*, unsigned uMask, int(*xCallback)(unsigned,void*,void*,void*), void *pCtx);
	c_sqlite3_trace_v2 func(db *sqlite3_db_t, mask uint32, callback uintptr, arg uintptr) int32

	// const char *sqlite3_libversion(void);
	c_sqlite3_libversion func() uintptr

	// int sqlite3_libversion_number(void);
	c_sqlite3_libversion_number func() int32
)

// register_sqlite3 resolves every extern function from the given library
// handle. Loading the library is done externally.
func register_sqlite3(handle uintptr) {
	purego.RegisterLibFunc(&c_sqlite3_open_v2, handle, "sqlite3_open_v2")
	purego.RegisterLibFunc(&c_sqlite3_close_v2, handle, "sqlite3_close_v2")
	purego.RegisterLibFunc(&c_sqlite3_exec, handle, "sqlite3_exec")
	purego.RegisterLibFunc(&c_sqlite3_prepare_v2, handle, "sqlite3_prepare_v2")
	purego.RegisterLibFunc(&c_sqlite3_step, handle, "sqlite3_step")
	purego.RegisterLibFunc(&c_sqlite3_reset, handle, "sqlite3_reset")
	purego.RegisterLibFunc(&c_sqlite3_finalize, handle, "sqlite3_finalize")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_index, handle, "sqlite3_bind_parameter_index")
	purego.RegisterLibFunc(&c_sqlite3_bind_int64, handle, "sqlite3_bind_int64")
	purego.RegisterLibFunc(&c_sqlite3_bind_double, handle, "sqlite3_bind_double")
	purego.RegisterLibFunc(&c_sqlite3_bind_text, handle, "sqlite3_bind_text")
	purego.RegisterLibFunc(&c_sqlite3_bind_blob, handle, "sqlite3_bind_blob")
	purego.RegisterLibFunc(&c_sqlite3_bind_zeroblob, handle, "sqlite3_bind_zeroblob")
	purego.RegisterLibFunc(&c_sqlite3_bind_null, handle, "sqlite3_bind_null")
	purego.RegisterLibFunc(&c_sqlite3_column_count, handle, "sqlite3_column_count")
	purego.RegisterLibFunc(&c_sqlite3_column_name, handle, "sqlite3_column_name")
	purego.RegisterLibFunc(&c_sqlite3_column_type, handle, "sqlite3_column_type")
	purego.RegisterLibFunc(&c_sqlite3_column_int64, handle, "sqlite3_column_int64")
	purego.RegisterLibFunc(&c_sqlite3_column_double, handle, "sqlite3_column_double")
	purego.RegisterLibFunc(&c_sqlite3_column_text, handle, "sqlite3_column_text")
	purego.RegisterLibFunc(&c_sqlite3_column_blob, handle, "sqlite3_column_blob")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes, handle, "sqlite3_column_bytes")
	purego.RegisterLibFunc(&c_sqlite3_errcode, handle, "sqlite3_errcode")
	purego.RegisterLibFunc(&c_sqlite3_errmsg, handle, "sqlite3_errmsg")
	purego.RegisterLibFunc(&c_sqlite3_changes, handle, "sqlite3_changes")
	purego.RegisterLibFunc(&c_sqlite3_total_changes, handle, "sqlite3_total_changes")
	purego.RegisterLibFunc(&c_sqlite3_last_insert_rowid, handle, "sqlite3_last_insert_rowid")
	purego.RegisterLibFunc(&c_sqlite3_busy_handler, handle, "sqlite3_busy_handler")
	purego.RegisterLibFunc(&c_sqlite3_busy_timeout, handle, "sqlite3_busy_timeout")
	purego.RegisterLibFunc(&c_sqlite3_trace_v2, handle, "sqlite3_trace_v2")
	purego.RegisterLibFunc(&c_sqlite3_libversion, handle, "sqlite3_libversion")
	purego.RegisterLibFunc(&c_sqlite3_libversion_number, handle, "sqlite3_libversion_number")
}

// Helpers

// copyCString copies a NUL-terminated C string into Go memory.
func copyCString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

// goBytes copies n bytes starting at p into Go memory.
func goBytes(p uintptr, n int) []byte {
	if p == 0 || n <= 0 {
		return nil
	}
	b := make([]byte, n)
	copy(b, unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
	return b
}

// hasNUL reports whether s cannot be represented as a C string.
func hasNUL(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}

// lastError captures the connection's current error code and message.
func lastError(db *sqlite3_db_t) *Error {
	return &Error{
		Code:    Code(c_sqlite3_errcode(db)),
		Message: copyCString(c_sqlite3_errmsg(db)),
	}
}

// Callback bridging.
//
// The engine calls back into Go for the busy handler, the exec row callback
// and the statement trace. Each bridge is a single process-wide callback;
// the void* argument given to the engine at install time is a token into the
// registry below. Callbacks live outside the Connection value so the registry
// does not keep an abandoned Connection reachable.

type connCallbacks struct {
	busy  func(retries int) bool
	trace func(sql string)
	iter  func(names []string, values []*string) bool
}

var (
	tokenSeq    atomic.Uintptr
	callbacksMu sync.RWMutex
	callbackReg = make(map[uintptr]*connCallbacks)
)

func registerCallbacks(cbs *connCallbacks) uintptr {
	token := tokenSeq.Add(1)
	callbacksMu.Lock()
	callbackReg[token] = cbs
	callbacksMu.Unlock()
	return token
}

func lookupCallbacks(token uintptr) *connCallbacks {
	callbacksMu.RLock()
	cbs := callbackReg[token]
	callbacksMu.RUnlock()
	return cbs
}

func unregisterCallbacks(token uintptr) {
	callbacksMu.Lock()
	delete(callbackReg, token)
	callbacksMu.Unlock()
}

var (
	// int (*)(void *arg, int retries)
	busyTrampoline = purego.NewCallback(func(arg uintptr, retries uintptr) uintptr {
		cbs := lookupCallbacks(arg)
		if cbs == nil || cbs.busy == nil {
			return 0
		}
		if cbs.busy(int(int32(retries))) {
			return 1
		}
		return 0
	})

	// int (*)(void *arg, int argc, char **argv, char **colv)
	execTrampoline = purego.NewCallback(func(arg, argc, argv, colv uintptr) uintptr {
		cbs := lookupCallbacks(arg)
		if cbs == nil || cbs.iter == nil {
			return 0
		}
		n := int(int32(argc))
		names := make([]string, n)
		values := make([]*string, n)
		if n > 0 {
			cols := unsafe.Slice((*uintptr)(unsafe.Pointer(colv)), n)
			row := unsafe.Slice((*uintptr)(unsafe.Pointer(argv)), n)
			for i := 0; i < n; i++ {
				names[i] = copyCString(cols[i])
				if row[i] != 0 {
					s := copyCString(row[i])
					values[i] = &s
				}
			}
		}
		if cbs.iter(names, values) {
			return 0
		}
		return 1
	})

	// int (*)(unsigned mask, void *arg, void *p, void *x)
	traceTrampoline = purego.NewCallback(func(mask, arg, p, x uintptr) uintptr {
		if uint32(mask) != traceStmtMask {
			return 0
		}
		cbs := lookupCallbacks(arg)
		if cbs != nil && cbs.trace != nil {
			cbs.trace(copyCString(x))
		}
		return 0
	})
)
