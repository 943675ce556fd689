// Package migrations embeds the SQL schema files into the binary so the
// access service can migrate a fresh database without files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
