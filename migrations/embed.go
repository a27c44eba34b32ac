// Package migrations embeds the journal's SQL migration files into the binary.
//
// This allows graychat to create and upgrade its history database without
// the SQL files present on the filesystem.
package migrations

import "embed"

// FS holds the migration files at its root.
//
//go:embed *.sql
var FS embed.FS
