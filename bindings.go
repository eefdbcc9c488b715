// Package sqlite3 provides low-level bindings to the SQLite library, loaded
// at runtime from the system's shared object. No cgo is involved: symbols are
// resolved through purego, and the engine keeps full ownership of SQL
// parsing, planning, storage and locking.
//
// A Connection owns one database handle and a Statement owns one prepared
// statement handle. Neither may be driven by two goroutines at once; handing
// a value off between goroutines is fine. Closing a Connection is deferred:
// the engine frees the session only after the last Statement prepared on it
// has been finalized, so a Statement may outlive its Connection value.
package sqlite3

import "sync"

var (
	loadOnce sync.Once
	loadErr  error
)

// ensureLoaded resolves and registers the shared library exactly once. The
// result is sticky: every entry point reports the same load failure.
func ensureLoaded() error {
	loadOnce.Do(func() {
		handle, err := loadLibrary()
		if err != nil {
			loadErr = err
			return
		}
		register_sqlite3(handle)
	})
	return loadErr
}

// Version reports the release string of the loaded library, e.g. "3.45.1".
func Version() (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	return copyCString(c_sqlite3_libversion()), nil
}

// VersionNumber reports the numeric version of the loaded library in the
// engine's encoding, e.g. 3045001.
func VersionNumber() (int, error) {
	if err := ensureLoaded(); err != nil {
		return 0, err
	}
	return int(c_sqlite3_libversion_number()), nil
}
