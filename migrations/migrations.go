// Package migrations embeds the SQL schema, managed with goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
