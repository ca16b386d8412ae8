// Package flatsql is the top-level facade for the flatsql engine.
package flatsql

import "github.com/tuannm99/flatsql/internal/engine"

type (
	Database = engine.Database
	Options  = engine.Options
)

var ErrDatabaseClosed = engine.ErrDatabaseClosed

// Open loads every table under dataDir and returns the process-wide handle.
func Open(dataDir string, opts Options) (*Database, error) {
	return engine.Open(dataDir, opts)
}
