package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Dialect selects the sentinel query and DDL flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type migrationStep struct {
	Name string
	SQL  string
}

// content is TEXT on purpose: both SQL backends reject non UTF-8 bodies before insert.
var steps = []migrationStep{
	{
		Name: "create_table_pastes",
		SQL: `CREATE TABLE IF NOT EXISTS pastes (
  id      TEXT PRIMARY KEY,
  content TEXT NOT NULL,
  meta    TEXT NOT NULL
);`,
	},
}

var sentinel = map[Dialect]string{
	Postgres: "SELECT to_regclass('public.pastes') IS NOT NULL",
	SQLite:   "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'pastes')",
}

// EnsureMigrated checks if the 'pastes' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, dialect Dialect, log logrus.FieldLogger) error {
	start := time.Now()
	log = log.WithFields(logrus.Fields{
		"component": "database",
		"dialect":   string(dialect),
	})

	query, ok := sentinel[dialect]
	if !ok {
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	log.WithField("event", "db_migration_check").Info("checking schema")

	var exists bool
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Error("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_skip",
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("schema already exists, skipping migration")
		return nil
	}

	log.WithField("event", "db_migration_start").Info("migrating")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"migration_step":   step.Name,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Info("migration step applied")
	}

	log.WithFields(logrus.Fields{
		"event":       "db_migration_success",
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("migration complete")

	return nil
}
