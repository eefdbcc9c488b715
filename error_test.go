package sqlite3

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	require.Equal(t, "sqlite3: database is locked", (&Error{Code: BUSY}).Error())
	require.Equal(t, "sqlite3: no such table: users", (&Error{Code: ERROR, Message: "no such table: users"}).Error())
}

func TestCodeString(t *testing.T) {
	require.Equal(t, "database is locked", BUSY.String())
	require.Equal(t, "datatype mismatch", MISMATCH.String())
	require.Equal(t, "not an error", OK.String())
	require.Equal(t, "unknown error code 999", Code(999).String())
}
