//go:build !sqlite_cgo

package sink

// Default build: pure Go SQLite, no C compiler required.
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver used by the SQLite sink.
	DriverName = "sqlite"

	// BuildMode describes the SQLite build configuration.
	BuildMode = "purego"
)
