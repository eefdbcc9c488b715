//go:build darwin || linux || freebsd

package sqlite3

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/ebitengine/purego"
)

// libraryCandidates returns the names tried in order when SQLITE3_LIBRARY is
// not set. The shared library ships with every mainstream distribution, so no
// copy is bundled here.
func libraryCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libsqlite3.dylib", "/usr/lib/libsqlite3.dylib"}
	default:
		return []string{"libsqlite3.so.0", "libsqlite3.so"}
	}
}

func loadLibrary() (uintptr, error) {
	if path := os.Getenv("SQLITE3_LIBRARY"); path != "" {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			return 0, fmt.Errorf("sqlite3: unable to load %s: %w", path, err)
		}
		return handle, nil
	}
	candidates := libraryCandidates()
	for _, name := range candidates {
		handle, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, nil
		}
	}
	return 0, fmt.Errorf("sqlite3: unable to load the sqlite3 library (tried %s); set SQLITE3_LIBRARY to its path",
		strings.Join(candidates, ", "))
}
