package migrations

import "embed"

// FS contains the schema for both store drivers, one directory per driver.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
