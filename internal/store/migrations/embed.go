// Package migrations embeds the SQL schema of the entity store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
