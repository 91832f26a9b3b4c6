package pgstore

import "embed"

// Migrations holds the goose migrations for the tables used by this package.
// Pass it to pg.Migrate with MigrationsPath set to "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS
