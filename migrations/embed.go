// Package migrations embeds the coordination schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
