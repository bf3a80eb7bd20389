// Package migrations embeds the versioned warehouse schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
