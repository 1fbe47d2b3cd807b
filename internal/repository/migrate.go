package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"

	"github.com/joseph-ayodele/essaycoach/db/ent/migrate"
)

// Migrate creates or upgrades the rubric tables with ent's migrator.
// Columns and indexes are only ever added, never dropped.
func Migrate(ctx context.Context, db *DB) error {
	d := db.Dialect()
	if d != dialect.Postgres && d != dialect.SQLite {
		return fmt.Errorf("migrate: unsupported dialect %q", d)
	}
	m, err := schema.NewMigrate(db.Driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Create(ctx, migrate.Tables...); err != nil {
		db.logger.Error("db.migrate.error", "dialect", d, "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	db.logger.Info("db.migrate.ok", "dialect", d, "tables", len(migrate.Tables))
	return nil
}
