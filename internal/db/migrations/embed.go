package migrations

import "embed"

// FS holds the goose migrations shared by the postgres and sqlite stores.
//
//go:embed *.sql
var FS embed.FS
