//go:build !cgo
// +build !cgo

package cache

import (
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"

// sqliteDSN renders driver-specific connection options. The pure-Go
// driver takes pragmas through repeated _pragma parameters.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}
