//go:build !(darwin || linux || freebsd)

package sqlite3

import (
	"fmt"
	"runtime"
)

func loadLibrary() (uintptr, error) {
	return 0, fmt.Errorf("sqlite3: dynamic library loading is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
}
