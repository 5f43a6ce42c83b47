// Package migrations embeds the goose migrations of the Postgres-backed
// submission collection.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
