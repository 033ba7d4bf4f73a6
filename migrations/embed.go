// Package migrations holds the goose migrations for the users and todos
// tables and their change triggers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
