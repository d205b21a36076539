// Package migrations holds the schema migrations applied by `oracle-ops db migrate`.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
