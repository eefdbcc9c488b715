package sqlite3

import (
	"bytes"
	"fmt"
	"strconv"
)

// Type is the storage class of a column or parameter value, with the values
// the engine uses for its fundamental datatypes.
type Type int32

const (
	INTEGER Type = 1
	FLOAT   Type = 2
	TEXT    Type = 3
	BLOB    Type = 4
	NULL    Type = 5
)

func (t Type) String() string {
	switch t {
	case INTEGER:
		return "INTEGER"
	case FLOAT:
		return "FLOAT"
	case TEXT:
		return "TEXT"
	case BLOB:
		return "BLOB"
	case NULL:
		return "NULL"
	}
	return fmt.Sprintf("Type(%d)", int32(t))
}

// Value is a dynamically typed SQL value: an integer, a float, text, a blob,
// or null. It owns its payload outright and is copied freely. The zero Value
// is null.
//
// A Value never coerces between kinds on its own; conversions happen only in
// the bind and read paths, driven by the engine's rules.
type Value struct {
	kind Type
	n    int64
	f    float64
	s    string
	b    []byte
}

// Integer returns an INTEGER value.
func Integer(v int64) Value { return Value{kind: INTEGER, n: v} }

// Float returns a FLOAT value.
func Float(v float64) Value { return Value{kind: FLOAT, f: v} }

// Text returns a TEXT value.
func Text(s string) Value { return Value{kind: TEXT, s: s} }

// Blob returns a BLOB value holding a copy of b.
func Blob(b []byte) Value {
	c := make([]byte, len(b))
	copy(c, b)
	return Value{kind: BLOB, b: c}
}

// Kind reports the value's storage class. It never allocates.
func (v Value) Kind() Type {
	if v.kind == 0 {
		return NULL
	}
	return v.kind
}

// Int64 returns the payload of an INTEGER value and 0 for any other kind.
func (v Value) Int64() int64 {
	if v.kind == INTEGER {
		return v.n
	}
	return 0
}

// Float64 returns the payload of a FLOAT value and 0 for any other kind.
func (v Value) Float64() float64 {
	if v.kind == FLOAT {
		return v.f
	}
	return 0
}

// Text returns the payload of a TEXT value and "" for any other kind.
func (v Value) Text() string {
	if v.kind == TEXT {
		return v.s
	}
	return ""
}

// Blob returns the payload of a BLOB value and nil for any other kind.
// The returned slice is the value's own storage and must not be modified.
func (v Value) Blob() []byte {
	if v.kind == BLOB {
		return v.b
	}
	return nil
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case INTEGER:
		return v.n == o.n
	case FLOAT:
		return v.f == o.f
	case TEXT:
		return v.s == o.s
	case BLOB:
		return bytes.Equal(v.b, o.b)
	}
	return true
}

func (v Value) String() string {
	switch v.Kind() {
	case INTEGER:
		return strconv.FormatInt(v.n, 10)
	case FLOAT:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TEXT:
		return v.s
	case BLOB:
		return fmt.Sprintf("x'%x'", v.b)
	}
	return "NULL"
}

// BindTo writes the value into parameter slot index, choosing the bind call
// matching the value's kind. Value implements Binder.
func (v Value) BindTo(s *Statement, index int) error {
	switch v.kind {
	case INTEGER:
		return s.BindInt64(index, v.n)
	case FLOAT:
		return s.BindFloat(index, v.f)
	case TEXT:
		return s.BindText(index, v.s)
	case BLOB:
		return s.BindBlob(index, v.b)
	}
	return s.BindNull(index)
}

// ReadColumn materializes column index into v, selecting the variant from the
// column's current storage class. *Value implements ColumnReader.
func (v *Value) ReadColumn(s *Statement, index int) error {
	x, err := s.ColumnValue(index)
	if err != nil {
		return err
	}
	*v = x
	return nil
}
