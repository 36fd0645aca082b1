package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

type migration struct {
	Version int
	Name    string
	UpSQL   string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_sites_and_checks",
		UpSQL: `
CREATE TABLE IF NOT EXISTS sites (
  id               INTEGER PRIMARY KEY AUTOINCREMENT,
  url              TEXT NOT NULL UNIQUE,
  interval_seconds INTEGER NOT NULL DEFAULT 60 CHECK (interval_seconds >= 1),
  is_active        INTEGER NOT NULL DEFAULT 1,
  created_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS checks (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id        INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
  status_code    INTEGER NULL,
  response_time  REAL NULL,
  is_available   INTEGER NOT NULL,
  failure_reason TEXT NOT NULL DEFAULT '',
  checked_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_site_id ON checks (site_id, id DESC);`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	const createTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version    INTEGER PRIMARY KEY,
  name       TEXT NOT NULL,
  applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&n); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if n > 0 {
			continue
		}
		err := s.transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
				return fmt.Errorf("record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.log.Info("migration_applied", zap.Int("version", m.Version), zap.String("name", m.Name))
	}
	return nil
}
