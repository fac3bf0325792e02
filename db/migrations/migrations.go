// Package migrations embeds the goose SQL migrations for the PostgreSQL
// tenant store and violation writer.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
