// Package all registers every storage backend. Blank-import it from binaries
// that select the backend by configuration.
package all

import (
	_ "orderdwh/internal/storage/mysql"
	_ "orderdwh/internal/storage/postgres"
	_ "orderdwh/internal/storage/sqlite"
)
