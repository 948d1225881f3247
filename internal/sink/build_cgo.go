//go:build sqlite_cgo

package sink

// CGO build using the system SQLite amalgamation.
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver used by the SQLite sink.
	DriverName = "sqlite3"

	// BuildMode describes the SQLite build configuration.
	BuildMode = "cgo"
)
