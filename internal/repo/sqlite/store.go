package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const siteColumns = `id, url, interval_seconds, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(r rowScanner) (domain.Site, error) {
	var s domain.Site
	err := r.Scan(&s.ID, &s.URL, &s.IntervalSeconds, &s.IsActive, &s.CreatedAt)
	return s, err
}

// ---- SiteStore ----

func (s *Store) CreateSite(ctx context.Context, url string, interval int) (domain.Site, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (url, interval_seconds, is_active, created_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (url) DO NOTHING`,
		url, interval, time.Now().UTC(),
	)
	if err != nil {
		return domain.Site{}, false, fmt.Errorf("insert site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Site{}, false, fmt.Errorf("insert site: %w", err)
	}
	site, err := scanSite(s.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE url = ?`, url))
	if err != nil {
		return domain.Site{}, false, fmt.Errorf("select site by url: %w", err)
	}
	return site, n == 1, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id`)
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
	return getSite(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSite(ctx context.Context, q queryRower, id int64) (domain.Site, error) {
	site, err := scanSite(q.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Site{}, fmt.Errorf("site %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Site{}, fmt.Errorf("get site %d: %w", id, err)
	}
	return site, nil
}

func (s *Store) UpdateSite(ctx context.Context, id int64, upd domain.SiteUpdate) (domain.Site, error) {
	var out domain.Site
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		if _, err := getSite(ctx, tx, id); err != nil {
			return err
		}
		var interval, active any
		if upd.IntervalSeconds != nil {
			interval = *upd.IntervalSeconds
		}
		if upd.IsActive != nil {
			active = *upd.IsActive
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sites
			    SET interval_seconds = COALESCE(?, interval_seconds),
			        is_active        = COALESCE(?, is_active)
			  WHERE id = ?`,
			interval, active, id,
		); err != nil {
			return fmt.Errorf("update site %d: %w", id, err)
		}
		site, err := getSite(ctx, tx, id)
		out = site
		return err
	})
	return out, err
}

// DeleteSite removes checks explicitly as well as relying on the cascade so
// databases opened without foreign_keys still end up consistent.
func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM checks WHERE site_id = ?`, id); err != nil {
			return fmt.Errorf("delete checks of site %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id); err != nil {
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO checks
		   (site_id, status_code, response_time, is_available, failure_reason, checked_at)
		 SELECT ?, ?, ?, ?, ?, ?
		  WHERE EXISTS (SELECT 1 FROM sites WHERE id = ?)`,
		c.SiteID, c.StatusCode, c.ResponseTime, c.IsAvailable, c.FailureReason, c.CheckedAt, c.SiteID,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("site %d: %w", c.SiteID, domain.ErrNotFound)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("check id: %w", err)
	}
	c.ID = id
	return nil
}

func (s *Store) RecentChecks(ctx context.Context, siteID int64, limit int) ([]domain.Check, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site_id, status_code, response_time, is_available, failure_reason, checked_at
		   FROM checks
		  WHERE site_id = ?
		  ORDER BY id DESC
		  LIMIT ?`,
		siteID, limit,
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
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_available), 0), AVG(response_time)
		   FROM (SELECT is_available, response_time
		           FROM checks
		          WHERE site_id = ?
		          ORDER BY id DESC
		          LIMIT ?)`,
		siteID, domain.StatsWindow,
	).Scan(&st.Total, &st.Available, &st.AverageResponse)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats for site %d: %w", siteID, err)
	}
	st.UptimePercent = domain.UptimePercent(st.Available, st.Total)
	return st, nil
}
