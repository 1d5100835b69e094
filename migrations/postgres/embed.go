// Package migrations embebe los archivos SQL del esquema.
package migrations

import "embed"

// FS contiene las migraciones para PostgreSQL.
//
//go:embed *.sql
var FS embed.FS
