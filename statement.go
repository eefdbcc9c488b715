package sqlite3

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"go.uber.org/atomic"
)

// State is the outcome of a Step: a result row is available, or the result
// set is exhausted. The values are the engine's own step statuses.
type State int32

const (
	ROW  State = 100
	DONE State = 101
)

func (s State) String() string {
	switch s {
	case ROW:
		return "ROW"
	case DONE:
		return "DONE"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Statement owns one prepared statement handle. Parameters are bound by
// 1-based index, columns are read by 0-based index; the asymmetry is the
// engine's and is kept on purpose.
//
// After Prepare or Reset the next Step starts the query; each ROW exposes one
// result row to the column readers; DONE means the scan finished. Bindings
// survive Reset unless overwritten. A Statement stays usable after its
// Connection value was closed, because the session is only torn down with the
// last statement.
type Statement struct {
	stmt *sqlite3_stmt_t
	// db backs error reporting; the deferred close keeps it valid until the
	// last statement is finalized.
	db     *sqlite3_db_t
	closed atomic.Bool
}

// Binder is implemented by values that can write themselves into a parameter
// slot. Bind ends its dispatch here, so external types participate in binding
// without changes to this package.
type Binder interface {
	BindTo(s *Statement, index int) error
}

// ColumnReader is implemented by destinations that can materialize
// themselves from a result column. Read ends its dispatch here.
type ColumnReader interface {
	ReadColumn(s *Statement, index int) error
}

// Nullable pairs a payload with presence. Binding an invalid Nullable stores
// SQL null; reading sets Valid to false exactly when the column's current
// type is NULL and otherwise reads T through the usual dispatch.
type Nullable[T any] struct {
	Value T
	Valid bool
}

func (n Nullable[T]) BindTo(s *Statement, index int) error {
	if !n.Valid {
		return s.BindNull(index)
	}
	return s.Bind(index, n.Value)
}

func (n *Nullable[T]) ReadColumn(s *Statement, index int) error {
	if s.ColumnType(index) == NULL {
		var zero T
		n.Value, n.Valid = zero, false
		return nil
	}
	if err := s.Read(index, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// libErr turns a bind or step status into an error carrying the owning
// connection's current code and message.
func (s *Statement) libErr(rc int32) error {
	if rc == int32(OK) {
		return nil
	}
	return lastError(s.db)
}

// BindInt64 binds a 64-bit integer to parameter slot index.
func (s *Statement) BindInt64(index int, v int64) error {
	if s.closed.Load() {
		return errStmtClosed
	}
	return s.libErr(c_sqlite3_bind_int64(s.stmt, int32(index), v))
}

// BindFloat binds a 64-bit float to parameter slot index.
func (s *Statement) BindFloat(index int, v float64) error {
	if s.closed.Load() {
		return errStmtClosed
	}
	return s.libErr(c_sqlite3_bind_double(s.stmt, int32(index), v))
}

// BindText binds text to parameter slot index. The text may contain NUL
// bytes; it is passed with an explicit length.
func (s *Statement) BindText(index int, v string) error {
	if s.closed.Load() {
		return errStmtClosed
	}
	return s.libErr(c_sqlite3_bind_text(s.stmt, int32(index), v, int32(len(v)), transientDestructor))
}

// BindBlob binds a byte sequence to parameter slot index. A nil slice binds
// SQL null, an empty one a zero-length blob.
func (s *Statement) BindBlob(index int, v []byte) error {
	if s.closed.Load() {
		return errStmtClosed
	}
	if v == nil {
		return s.libErr(c_sqlite3_bind_null(s.stmt, int32(index)))
	}
	if len(v) == 0 {
		return s.libErr(c_sqlite3_bind_zeroblob(s.stmt, int32(index), 0))
	}
	rc := c_sqlite3_bind_blob(s.stmt, int32(index), unsafe.Pointer(&v[0]), int32(len(v)), transientDestructor)
	runtime.KeepAlive(v)
	return s.libErr(rc)
}

// BindNull binds SQL null to parameter slot index.
func (s *Statement) BindNull(index int) error {
	if s.closed.Load() {
		return errStmtClosed
	}
	return s.libErr(c_sqlite3_bind_null(s.stmt, int32(index)))
}

// Bind binds v to parameter slot index, dispatching on its dynamic type.
// Supported are nil, the Go integer types, floats, string, []byte, Value and
// any Binder. Index 0 is always invalid; an out-of-range index is reported by
// the engine as RANGE.
func (s *Statement) Bind(index int, v any) error {
	switch v := v.(type) {
	case nil:
		return s.BindNull(index)
	case int:
		return s.BindInt64(index, int64(v))
	case int8:
		return s.BindInt64(index, int64(v))
	case int16:
		return s.BindInt64(index, int64(v))
	case int32:
		return s.BindInt64(index, int64(v))
	case int64:
		return s.BindInt64(index, v)
	case uint:
		return s.BindInt64(index, int64(v))
	case uint8:
		return s.BindInt64(index, int64(v))
	case uint16:
		return s.BindInt64(index, int64(v))
	case uint32:
		return s.BindInt64(index, int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return &Error{Code: MISUSE, Message: "uint64 value overflows the integer storage class"}
		}
		return s.BindInt64(index, int64(v))
	case float32:
		return s.BindFloat(index, float64(v))
	case float64:
		return s.BindFloat(index, v)
	case string:
		return s.BindText(index, v)
	case []byte:
		return s.BindBlob(index, v)
	case Value:
		return v.BindTo(s, index)
	case Binder:
		return v.BindTo(s, index)
	}
	return &Error{Code: MISUSE, Message: fmt.Sprintf("cannot bind a value of type %T", v)}
}

// BindByName resolves a named parameter such as ":name", "@name" or "$name"
// through the statement's parameter table and binds v to it. An unknown name
// fails with MISMATCH.
func (s *Statement) BindByName(name string, v any) error {
	index, err := s.ParameterIndex(name)
	if err != nil {
		return err
	}
	if index == 0 {
		return &Error{Code: MISMATCH, Message: fmt.Sprintf("unknown parameter %q", name)}
	}
	return s.Bind(index, v)
}

// ParameterIndex reports the 1-based slot of a named parameter, or 0 when the
// name does not appear in the statement text. The name includes its prefix
// character.
func (s *Statement) ParameterIndex(name string) (int, error) {
	if s.closed.Load() {
		return 0, errStmtClosed
	}
	if hasNUL(name) {
		return 0, errInteriorNUL
	}
	return int(c_sqlite3_bind_parameter_index(s.stmt, name)), nil
}

// ColumnCount reports the number of columns the statement produces.
func (s *Statement) ColumnCount() int {
	if s.closed.Load() {
		return 0
	}
	return int(c_sqlite3_column_count(s.stmt))
}

// checkCol guards the column readers that dereference engine pointers.
func (s *Statement) checkCol(index int) error {
	if s.closed.Load() {
		return errStmtClosed
	}
	if index < 0 || index >= int(c_sqlite3_column_count(s.stmt)) {
		return &Error{Code: RANGE, Message: "column index out of range"}
	}
	return nil
}

// ColumnName reports the name of the 0-based column index.
func (s *Statement) ColumnName(index int) (string, error) {
	if err := s.checkCol(index); err != nil {
		return "", err
	}
	p := c_sqlite3_column_name(s.stmt, int32(index))
	if p == 0 {
		return "", &Error{Code: NOMEM}
	}
	return copyCString(p), nil
}

// ColumnNames reports all column names in order.
func (s *Statement) ColumnNames() ([]string, error) {
	if s.closed.Load() {
		return nil, errStmtClosed
	}
	names := make([]string, s.ColumnCount())
	for i := range names {
		name, err := s.ColumnName(i)
		if err != nil {
			return nil, err
		}
		names[i] = name
	}
	return names, nil
}

// ColumnType reports the current storage class of column index. It is
// meaningful only while a row is available: before the first Step the engine
// reports NULL for every column regardless of the declared schema.
func (s *Statement) ColumnType(index int) Type {
	if s.closed.Load() {
		return NULL
	}
	return Type(c_sqlite3_column_type(s.stmt, int32(index)))
}

// Step advances execution by one row. It returns ROW while results are
// available and DONE once the scan is exhausted; what a further Step without
// Reset does is the engine's call and is passed through. Any other engine
// status becomes an error built from the owning connection's current code and
// message.
func (s *Statement) Step() (State, error) {
	if s.closed.Load() {
		return 0, errStmtClosed
	}
	rc := c_sqlite3_step(s.stmt)
	switch State(rc) {
	case ROW:
		return ROW, nil
	case DONE:
		return DONE, nil
	}
	return 0, lastError(s.db)
}

// ColumnInt64 reads column index as a 64-bit integer, applying the engine's
// storage-class conversions.
func (s *Statement) ColumnInt64(index int) (int64, error) {
	if s.closed.Load() {
		return 0, errStmtClosed
	}
	return c_sqlite3_column_int64(s.stmt, int32(index)), nil
}

// ColumnFloat reads column index as a 64-bit float, applying the engine's
// storage-class conversions.
func (s *Statement) ColumnFloat(index int) (float64, error) {
	if s.closed.Load() {
		return 0, errStmtClosed
	}
	return c_sqlite3_column_double(s.stmt, int32(index)), nil
}

// ColumnText reads column index as text. A null column has no text
// representation and fails with MISMATCH.
func (s *Statement) ColumnText(index int) (string, error) {
	if err := s.checkCol(index); err != nil {
		return "", err
	}
	p := c_sqlite3_column_text(s.stmt, int32(index))
	if p == 0 {
		return "", &Error{Code: MISMATCH}
	}
	n := int(c_sqlite3_column_bytes(s.stmt, int32(index)))
	return string(goBytes(p, n)), nil
}

// ColumnBlob reads column index as a byte sequence. A null or zero-length
// blob yields an empty slice, not an error.
func (s *Statement) ColumnBlob(index int) ([]byte, error) {
	if err := s.checkCol(index); err != nil {
		return nil, err
	}
	p := c_sqlite3_column_blob(s.stmt, int32(index))
	if p == 0 {
		return []byte{}, nil
	}
	n := int(c_sqlite3_column_bytes(s.stmt, int32(index)))
	b := goBytes(p, n)
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

// ColumnBytes copies column index into buf, truncating or under-filling as
// the sizes dictate, and reports how many bytes were captured.
func (s *Statement) ColumnBytes(index int, buf []byte) (int, error) {
	if err := s.checkCol(index); err != nil {
		return 0, err
	}
	p := c_sqlite3_column_blob(s.stmt, int32(index))
	if p == 0 {
		return 0, nil
	}
	n := int(c_sqlite3_column_bytes(s.stmt, int32(index)))
	if n <= 0 {
		return 0, nil
	}
	return copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(p)), n)), nil
}

// ColumnValue reads column index as a dynamically typed Value, selecting the
// variant from the column's current storage class.
func (s *Statement) ColumnValue(index int) (Value, error) {
	if err := s.checkCol(index); err != nil {
		return Value{}, err
	}
	switch s.ColumnType(index) {
	case INTEGER:
		return Integer(c_sqlite3_column_int64(s.stmt, int32(index))), nil
	case FLOAT:
		return Float(c_sqlite3_column_double(s.stmt, int32(index))), nil
	case TEXT:
		v, err := s.ColumnText(index)
		if err != nil {
			return Value{}, err
		}
		return Text(v), nil
	case BLOB:
		v, err := s.ColumnBlob(index)
		if err != nil {
			return Value{}, err
		}
		return Blob(v), nil
	}
	return Value{}, nil
}

// Read materializes column index into dst, dispatching on its type.
// Supported are *int64, *float64, *string, *[]byte, *Value and any
// ColumnReader; the per-type null policies of the column readers apply.
func (s *Statement) Read(index int, dst any) error {
	switch dst := dst.(type) {
	case *int64:
		v, err := s.ColumnInt64(index)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	case *float64:
		v, err := s.ColumnFloat(index)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	case *string:
		v, err := s.ColumnText(index)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	case *[]byte:
		v, err := s.ColumnBlob(index)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	case *Value:
		return dst.ReadColumn(s, index)
	case ColumnReader:
		return dst.ReadColumn(s, index)
	}
	return &Error{Code: MISUSE, Message: fmt.Sprintf("cannot read a column into %T", dst)}
}

// Reset rewinds the statement so the next Step starts the query over.
// Bindings are preserved until overwritten. The native reset echoes the prior
// step's error, which Step already surfaced; it is ignored here.
func (s *Statement) Reset() {
	if s.closed.Load() {
		return
	}
	c_sqlite3_reset(s.stmt)
}

// Close finalizes the statement, releasing its handle. It is idempotent,
// never fails, and a forgotten Statement is finalized by the garbage
// collector. The native finalize echoes the prior step's error; the handle is
// released regardless.
func (s *Statement) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(s, nil)
	c_sqlite3_finalize(s.stmt)
	return nil
}
