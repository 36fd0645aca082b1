package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// Store keeps sites and checks in process memory. It is the default for
// tests and for DATABASE_URL=memory://.
type Store struct {
	mu        sync.RWMutex
	nextSite  int64
	nextCheck int64
	sites     map[int64]*domain.Site
	byURL     map[string]int64
	checks    map[int64][]domain.Check // per site, insertion order
}

func New() *Store {
	return &Store{
		sites:  make(map[int64]*domain.Site),
		byURL:  make(map[string]int64),
		checks: make(map[int64][]domain.Check),
	}
}

func (m *Store) Close() error { return nil }

// ---- SiteStore ----

func (m *Store) CreateSite(ctx context.Context, url string, interval int) (domain.Site, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byURL[url]; ok {
		return *m.sites[id], false, nil
	}
	m.nextSite++
	s := &domain.Site{
		ID:              m.nextSite,
		URL:             url,
		IntervalSeconds: interval,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}
	m.sites[s.ID] = s
	m.byURL[url] = s.ID
	return *s, true, nil
}

func (m *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Site, 0, len(m.sites))
	for _, s := range m.sites {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetSite(ctx context.Context, id int64) (domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return domain.Site{}, fmt.Errorf("site %d: %w", id, domain.ErrNotFound)
	}
	return *s, nil
}

func (m *Store) UpdateSite(ctx context.Context, id int64, upd domain.SiteUpdate) (domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return domain.Site{}, fmt.Errorf("site %d: %w", id, domain.ErrNotFound)
	}
	if upd.IntervalSeconds != nil {
		s.IntervalSeconds = *upd.IntervalSeconds
	}
	if upd.IsActive != nil {
		s.IsActive = *upd.IsActive
	}
	return *s, nil
}

func (m *Store) DeleteSite(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return nil
	}
	delete(m.byURL, s.URL)
	delete(m.sites, id)
	delete(m.checks, id)
	return nil
}

// ---- CheckStore ----

func (m *Store) CreateCheck(ctx context.Context, c *domain.Check) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[c.SiteID]; !ok {
		return fmt.Errorf("site %d: %w", c.SiteID, domain.ErrNotFound)
	}
	m.nextCheck++
	c.ID = m.nextCheck
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now().UTC()
	}
	m.checks[c.SiteID] = append(m.checks[c.SiteID], *c)
	return nil
}

func (m *Store) RecentChecks(ctx context.Context, siteID int64, limit int) ([]domain.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentLocked(siteID, limit), nil
}

func (m *Store) Stats(ctx context.Context, siteID int64) (domain.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.ComputeStats(siteID, m.recentLocked(siteID, domain.StatsWindow)), nil
}

func (m *Store) recentLocked(siteID int64, limit int) []domain.Check {
	all := m.checks[siteID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]domain.Check, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out
}
