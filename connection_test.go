package sqlite3

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestOpenMemory(t *testing.T) {
	conn := openMemory(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)")
}

func TestOpenFile(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "test.db")

	conn, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", path, err)
	}
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)")
	mustExec(t, conn, "INSERT INTO t VALUES (7)")
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	conn, err = Open(path, OPEN_READONLY)
	if err != nil {
		t.Fatalf("reopen read-only failed: %v", err)
	}
	defer conn.Close()
	if got := countRows(t, conn, "t"); got != 1 {
		t.Fatalf("row count = %d, want 1", got)
	}
}

func TestOpenMissingReadOnly(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := Open(path, OPEN_READONLY)
	wantCode(t, err, CANTOPEN)
}

func TestOpenPathWithNUL(t *testing.T) {
	requireLib(t)

	_, err := Open("bad\x00path")
	wantCode(t, err, MISMATCH)
}

func TestExecuteMultipleStatements(t *testing.T) {
	conn := openMemory(t)

	mustExec(t, conn, "CREATE TABLE t (a INTEGER); INSERT INTO t VALUES (1); INSERT INTO t VALUES (2)")
	if got := countRows(t, conn, "t"); got != 2 {
		t.Fatalf("row count = %d, want 2", got)
	}
}

func TestExecuteSyntaxError(t *testing.T) {
	conn := openMemory(t)

	err := conn.Execute("NOT A STATEMENT")
	wantCode(t, err, ERROR)
	if !strings.Contains(err.Error(), "syntax error") {
		t.Fatalf("error %q does not mention the syntax error", err)
	}
}

func TestIterate(t *testing.T) {
	conn := openUsers(t)

	var rows int
	err := conn.Iterate("SELECT id, name, email FROM users", func(names []string, values []*string) bool {
		rows++
		if len(names) != 3 || names[0] != "id" || names[1] != "name" || names[2] != "email" {
			t.Fatalf("unexpected column names: %v", names)
		}
		if values[0] == nil || *values[0] != "1" {
			t.Fatalf("id cell = %v, want \"1\"", values[0])
		}
		if values[1] == nil || *values[1] != "Alice" {
			t.Fatalf("name cell = %v, want \"Alice\"", values[1])
		}
		if values[2] != nil {
			t.Fatalf("email cell = %q, want nil for NULL", *values[2])
		}
		return true
	})
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("callback ran %d times, want 1", rows)
	}
}

func TestIterateAbort(t *testing.T) {
	conn := openUsers(t)
	mustExec(t, conn, "INSERT INTO users VALUES (2, 'Bob', 7.0, NULL, 'bob@example.com')")
	mustExec(t, conn, "INSERT INTO users VALUES (3, 'Carol', 9.0, NULL, NULL)")

	var rows int
	err := conn.Iterate("SELECT id FROM users ORDER BY id", func(names []string, values []*string) bool {
		rows++
		return false
	})
	if err != nil {
		t.Fatalf("aborted Iterate returned %v, want nil", err)
	}
	if rows != 1 {
		t.Fatalf("callback ran %d times after abort, want 1", rows)
	}
}

func TestChangeCounters(t *testing.T) {
	conn := openMemory(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)")

	mustExec(t, conn, "INSERT INTO t VALUES (1)")
	mustExec(t, conn, "INSERT INTO t VALUES (2)")
	if got := conn.Changes(); got != 1 {
		t.Fatalf("Changes after INSERT = %d, want 1", got)
	}
	mustExec(t, conn, "UPDATE t SET a = a + 1")
	if got := conn.Changes(); got != 2 {
		t.Fatalf("Changes after UPDATE = %d, want 2", got)
	}
	if got := conn.TotalChanges(); got != 4 {
		t.Fatalf("TotalChanges = %d, want 4", got)
	}
}

func TestLastInsertRowID(t *testing.T) {
	conn := openMemory(t)
	mustExec(t, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY, a TEXT)")

	mustExec(t, conn, "INSERT INTO t (a) VALUES ('x')")
	mustExec(t, conn, "INSERT INTO t (a) VALUES ('y')")
	if got := conn.LastInsertRowID(); got != 2 {
		t.Fatalf("LastInsertRowID = %d, want 2", got)
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "ro.db")

	rw, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	mustExec(t, rw, "CREATE TABLE t (a INTEGER)")
	mustExec(t, rw, "INSERT INTO t VALUES (1)")
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ro, err := Open(path, OPEN_READONLY)
	if err != nil {
		t.Fatalf("read-only Open failed: %v", err)
	}
	defer ro.Close()

	err = ro.Execute("INSERT INTO t VALUES (2)")
	wantCode(t, err, READONLY)
	if got := countRows(t, ro, "t"); got != 1 {
		t.Fatalf("row count = %d, want 1", got)
	}
}

func TestBusyHandlerContention(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "contended.db")

	setup, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	mustExec(t, setup, "CREATE TABLE hits (n INTEGER)")
	if err := setup.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	const writers = 16
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		n := i
		g.Go(func() error {
			conn, err := Open(path)
			if err != nil {
				return err
			}
			defer conn.Close()
			err = conn.SetBusyHandler(func(retries int) bool {
				time.Sleep(time.Millisecond)
				return true
			})
			if err != nil {
				return err
			}
			return conn.Execute(fmt.Sprintf("INSERT INTO hits VALUES (%d)", n))
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent writer failed: %v", err)
	}

	check, err := Open(path, OPEN_READONLY)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer check.Close()
	if got := countRows(t, check, "hits"); got != writers {
		t.Fatalf("row count = %d, want %d", got, writers)
	}
}

func TestBusyTimeout(t *testing.T) {
	conn := openMemory(t)

	if err := conn.BusyTimeout(50 * time.Millisecond); err != nil {
		t.Fatalf("BusyTimeout failed: %v", err)
	}
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)")
}

func TestClearBusyHandler(t *testing.T) {
	conn := openMemory(t)

	if err := conn.SetBusyHandler(func(retries int) bool { return false }); err != nil {
		t.Fatalf("SetBusyHandler failed: %v", err)
	}
	if err := conn.SetBusyHandler(nil); err != nil {
		t.Fatalf("clearing busy handler failed: %v", err)
	}
}

func TestSetTrace(t *testing.T) {
	conn := openMemory(t)

	var got []string
	if err := conn.SetTrace(func(sql string) { got = append(got, sql) }); err != nil {
		t.Fatalf("SetTrace failed: %v", err)
	}
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)")
	if len(got) == 0 || !strings.Contains(got[0], "CREATE TABLE") {
		t.Fatalf("traced statements = %q, want the CREATE TABLE text", got)
	}

	if err := conn.SetTrace(nil); err != nil {
		t.Fatalf("clearing trace failed: %v", err)
	}
	seen := len(got)
	mustExec(t, conn, "INSERT INTO t VALUES (1)")
	if len(got) != seen {
		t.Fatalf("trace fired after being cleared: %q", got)
	}
}

func TestStatementSurvivesConnectionClose(t *testing.T) {
	requireLib(t)

	conn, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	stmt, err := conn.Prepare("SELECT 42")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	stepRow(t, stmt)
	n, err := stmt.ColumnInt64(0)
	if err != nil {
		t.Fatalf("ColumnInt64 failed: %v", err)
	}
	if n != 42 {
		t.Fatalf("column value = %d, want 42", n)
	}
	stepDone(t, stmt)
	if err := stmt.Close(); err != nil {
		t.Fatalf("Statement.Close failed: %v", err)
	}
}

func TestConnectionCloseIdempotent(t *testing.T) {
	requireLib(t)

	conn, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	wantCode(t, conn.Execute("SELECT 1"), MISUSE)
	_, err = conn.Prepare("SELECT 1")
	wantCode(t, err, MISUSE)
	if got := conn.Changes(); got != 0 {
		t.Fatalf("Changes on closed connection = %d, want 0", got)
	}
}

func TestVersion(t *testing.T) {
	requireLib(t)

	v, err := Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if !strings.HasPrefix(v, "3.") {
		t.Fatalf("Version = %q, want a 3.x release", v)
	}
	n, err := VersionNumber()
	if err != nil {
		t.Fatalf("VersionNumber failed: %v", err)
	}
	if n < 3000000 {
		t.Fatalf("VersionNumber = %d, want at least 3000000", n)
	}
}
