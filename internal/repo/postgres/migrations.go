package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
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
  id               BIGSERIAL PRIMARY KEY,
  url              TEXT NOT NULL UNIQUE,
  interval_seconds INTEGER NOT NULL DEFAULT 60 CHECK (interval_seconds >= 1),
  is_active        BOOLEAN NOT NULL DEFAULT TRUE,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checks (
  id             BIGSERIAL PRIMARY KEY,
  site_id        BIGINT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
  status_code    INTEGER NULL,
  response_time  DOUBLE PRECISION NULL,
  is_available   BOOLEAN NOT NULL,
  failure_reason TEXT NOT NULL DEFAULT '',
  checked_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_site_id ON checks (site_id, id DESC);`,
	},
}

// migrate applies pending migrations, each in its own transaction. An
// advisory lock keeps concurrently starting instances from racing.
func (s *Store) migrate(ctx context.Context) error {
	const lockKey = int64(0x5173_6d6f)
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	defer func() { _, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockKey) }()

	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version    INTEGER PRIMARY KEY,
  name       TEXT NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return err
		}
		s.log.Info("migration_applied", zap.Int("version", m.Version), zap.String("name", m.Name))
	}
	return nil
}
