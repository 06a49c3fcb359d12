// Package migrate applies the embedded Postgres schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"erlessed-biometric/pkg/utils"

	"go.uber.org/zap"
)

//go:embed sql/*.sql
var files embed.FS

const createVersions = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version    TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

// Files lists the embedded migration names in apply order.
func Files() ([]string, error) {
	names, err := fs.Glob(files, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs every migration not yet recorded in schema_migrations, each in its own
// transaction. It returns the names it applied.
func Apply(ctx context.Context, db *sql.DB, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, createVersions); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := Files()
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	applied := make([]string, 0, len(names))
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", name, err)
		}

		ran := false
		err = utils.WithTx(ctx, db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, name,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check %s: %w", name, err)
			}
			if exists {
				return nil
			}
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
				return fmt.Errorf("record %s: %w", name, err)
			}
			ran = true
			return nil
		})
		if err != nil {
			return applied, err
		}
		if ran {
			log.Info("migration applied", zap.String("version", name))
			applied = append(applied, name)
		} else {
			log.Debug("migration already applied", zap.String("version", name))
		}
	}
	return applied, nil
}
