// Package migrations embeds the clinic-service goose migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
