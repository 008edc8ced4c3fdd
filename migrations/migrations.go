// Package migrations embeds the SQL migrations for the Postgres session store.
package migrations

import "embed"

//go:embed *.sql
var MigrationsFS embed.FS
