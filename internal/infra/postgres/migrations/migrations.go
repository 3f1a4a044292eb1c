// Package migrations holds the Postgres schema for study definitions and submissions.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
