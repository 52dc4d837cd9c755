// Package migrations embeds the PostgreSQL schema so every binary (and the
// integration tests) apply exactly the same DDL.
package migrations

import "embed"

// FS holds the versioned golang-migrate files (NNNNNN_name.up.sql / .down.sql).
//
//go:embed *.sql
var FS embed.FS
