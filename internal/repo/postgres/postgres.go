package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const siteColumns = `id, url, interval_seconds, is_active, created_at`

func scanSite(r pgx.Row) (domain.Site, error) {
	var s domain.Site
	err := r.Scan(&s.ID, &s.URL, &s.IntervalSeconds, &s.IsActive, &s.CreatedAt)
	return s, err
}

// ---- SiteStore ----

func (s *Store) CreateSite(ctx context.Context, url string, interval int) (domain.Site, bool, error) {
	site, err := scanSite(s.pool.QueryRow(ctx,
		`INSERT INTO sites (url, interval_seconds, is_active, created_at)
		 VALUES ($1, $2, TRUE, $3)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING `+siteColumns,
		url, interval, time.Now().UTC(),
	))
	if err == nil {
		return site, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Site{}, false, fmt.Errorf("insert site: %w", err)
	}
	site, err = scanSite(s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = $1`, url))
	if err != nil {
		return domain.Site{}, false, fmt.Errorf("select site by url: %w", err)
	}
	return site, false, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []domain.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) GetSite(ctx context.Context, id int64) (domain.Site, error) {
	site, err := scanSite(s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Site{}, fmt.Errorf("site %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Site{}, fmt.Errorf("get site %d: %w", id, err)
	}
	return site, nil
}

func (s *Store) UpdateSite(ctx context.Context, id int64, upd domain.SiteUpdate) (domain.Site, error) {
	site, err := scanSite(s.pool.QueryRow(ctx,
		`UPDATE sites
		    SET interval_seconds = COALESCE($2, interval_seconds),
		        is_active        = COALESCE($3, is_active)
		  WHERE id = $1
		  RETURNING `+siteColumns,
		id, upd.IntervalSeconds, upd.IsActive,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Site{}, fmt.Errorf("site %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Site{}, fmt.Errorf("update site %d: %w", id, err)
	}
	return site, nil
}

func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM checks WHERE site_id = $1`, id); err != nil {
			return fmt.Errorf("delete checks of site %d: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete site %d: %w", id, err)
		}
		return nil
	})
}

// ---- CheckStore ----

func (s *Store) CreateCheck(ctx context.Context, c *domain.Check) error {
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO checks
		   (site_id, status_code, response_time, is_available, failure_reason, checked_at)
		 SELECT $1::bigint, $2::integer, $3::double precision, $4::boolean, $5::text, $6::timestamptz
		  WHERE EXISTS (SELECT 1 FROM sites WHERE id = $1)
		 RETURNING id`,
		c.SiteID, c.StatusCode, c.ResponseTime, c.IsAvailable, c.FailureReason, c.CheckedAt,
	).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("site %d: %w", c.SiteID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) RecentChecks(ctx context.Context, siteID int64, limit int) ([]domain.Check, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, site_id, status_code, response_time, is_available, failure_reason, checked_at
		   FROM checks
		  WHERE site_id = $1
		  ORDER BY id DESC
		  LIMIT $2`,
		siteID, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("recent checks: %w", err)
	}
	defer rows.Close()

	var out []domain.Check
	for rows.Next() {
		var c domain.Check
		if err := rows.Scan(&c.ID, &c.SiteID, &c.StatusCode, &c.ResponseTime, &c.IsAvailable, &c.FailureReason, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context, siteID int64) (domain.Stats, error) {
	st := domain.Stats{SiteID: siteID}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE is_available),
		        AVG(response_time)
		   FROM (SELECT is_available, response_time
		           FROM checks
		          WHERE site_id = $1
		          ORDER BY id DESC
		          LIMIT $2) w`,
		siteID, domain.StatsWindow,
	).Scan(&st.Total, &st.Available, &st.AverageResponse)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats for site %d: %w", siteID, err)
	}
	st.UptimePercent = domain.UptimePercent(st.Available, st.Total)
	return st, nil
}
