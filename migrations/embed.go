// Package migrations embeds the SQL schema for the tenant directory, audit
// log and the row-level-security contract the storage scope relies on.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
