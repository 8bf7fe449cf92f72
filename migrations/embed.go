// Package migrations embeds the schema migrations and seed SQL so the
// migrate binary is self-contained.
package migrations

import "embed"

//go:embed *.sql seeds/*.sql
var FS embed.FS
