//go:build cgosqlite
// +build cgosqlite

package store

// This file is compiled when building with CGO and the cgosqlite tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags cgosqlite ./...
//
// The CGO build uses the C SQLite library for faster reads and writes and
// is the recommended configuration for large workspaces.
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
