//go:build cgo
// +build cgo

package cache

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriver = "sqlite3"

// sqliteDSN renders driver-specific connection options. The cgo driver
// takes pragmas as underscore-prefixed query parameters.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000"
}
