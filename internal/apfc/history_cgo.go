//go:build cgo

package apfc

import (
	_ "github.com/mattn/go-sqlite3"
)

// sqlDriverName selects the CGO-backed sqlite3 driver, matching the
// teacher's primary store path (internal/store.LocalStore).
const sqlDriverName = "sqlite3"
