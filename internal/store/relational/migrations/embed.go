package migrations

import "embed"

// FS contains embedded migrations, one subdirectory per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
