//go:build !cgo

package apfc

import (
	_ "modernc.org/sqlite"
)

// sqlDriverName selects the pure-Go sqlite driver when CGO is unavailable,
// so a cross-compiled or CGO_ENABLED=0 build of apfc still gets a durable
// history store instead of losing the component entirely.
const sqlDriverName = "sqlite"
