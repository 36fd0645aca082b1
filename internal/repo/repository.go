package repo

import (
	"context"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// Ports (interfaces). The memory, sqlite and postgres adapters implement both.

// SiteStore is the registry of monitored sites.
type SiteStore interface {
	// CreateSite is idempotent by URL: when the URL is already registered the
	// existing site is returned with created=false.
	CreateSite(ctx context.Context, url string, intervalSeconds int) (site domain.Site, created bool, err error)
	ListSites(ctx context.Context) ([]domain.Site, error)
	// GetSite returns domain.ErrNotFound for unknown ids.
	GetSite(ctx context.Context, id int64) (domain.Site, error)
	UpdateSite(ctx context.Context, id int64, upd domain.SiteUpdate) (domain.Site, error)
	// DeleteSite removes the site and all its checks atomically. Unknown ids
	// are a no-op.
	DeleteSite(ctx context.Context, id int64) error
}

// CheckStore is the append-only log of probe results.
type CheckStore interface {
	// CreateCheck assigns ID (and CheckedAt when zero). It returns
	// domain.ErrNotFound when the owning site no longer exists.
	CreateCheck(ctx context.Context, c *domain.Check) error
	// RecentChecks returns at most limit checks, newest first.
	RecentChecks(ctx context.Context, siteID int64, limit int) ([]domain.Check, error)
	// Stats summarises the last domain.StatsWindow checks.
	Stats(ctx context.Context, siteID int64) (domain.Stats, error)
}

// Store bundles both ports; every adapter satisfies it.
type Store interface {
	SiteStore
	CheckStore
	Close() error
}
