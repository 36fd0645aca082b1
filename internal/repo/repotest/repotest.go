// Package repotest holds the behaviour every repo.Store adapter must share.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

// Run exercises an adapter. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) repo.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s repo.Store)
	}{
		{"CreateSiteIsIdempotentByURL", createSiteIdempotent},
		{"GetSiteNotFound", getSiteNotFound},
		{"ListSitesIncludesInactive", listSitesIncludesInactive},
		{"UpdateSite", updateSite},
		{"DeleteCascadesChecks", deleteCascades},
		{"DeleteUnknownIsNoop", deleteUnknown},
		{"CreateCheckForMissingSite", createCheckMissingSite},
		{"RecentChecksNewestFirst", recentNewestFirst},
		{"StatsOverPresentValues", statsOverPresentValues},
		{"StatsBoundedWindow", statsBoundedWindow},
		{"ConcurrentCreateSite", concurrentCreateSite},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func createSiteIdempotent(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a, created, err := s.CreateSite(ctx, "http://x.com", 30)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, a.ID)
	assert.True(t, a.IsActive)
	assert.Equal(t, 30, a.IntervalSeconds)

	b, created, err := s.CreateSite(ctx, "http://x.com", 99)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 30, b.IntervalSeconds, "duplicate registration leaves the site unchanged")

	all, err := s.ListSites(ctx)
	require.NoError(t, err)
	n := 0
	for _, site := range all {
		if site.URL == "http://x.com" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func getSiteNotFound(t *testing.T, s repo.Store) {
	_, err := s.GetSite(context.Background(), 424242)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func listSitesIncludesInactive(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := mustSite(t, s, "http://a.example.com", 10)
	b := mustSite(t, s, "http://b.example.com", 20)
	off := false
	_, err := s.UpdateSite(ctx, b.ID, domain.SiteUpdate{IsActive: &off})
	require.NoError(t, err)

	all, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.False(t, all[1].IsActive)
}

func updateSite(t *testing.T, s repo.Store) {
	ctx := context.Background()
	site := mustSite(t, s, "http://upd.example.com", 10)
	iv := 45
	got, err := s.UpdateSite(ctx, site.ID, domain.SiteUpdate{IntervalSeconds: &iv})
	require.NoError(t, err)
	assert.Equal(t, 45, got.IntervalSeconds)
	assert.True(t, got.IsActive)

	again, err := s.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, again.IntervalSeconds)

	_, err = s.UpdateSite(ctx, 999999, domain.SiteUpdate{IntervalSeconds: &iv})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func deleteCascades(t *testing.T, s repo.Store) {
	ctx := context.Background()
	site := mustSite(t, s, "http://del.example.com", 10)
	keep := mustSite(t, s, "http://keep.example.com", 10)
	for i := 0; i < 5; i++ {
		mustCheck(t, s, site.ID, true, 200, 0.1)
	}
	mustCheck(t, s, keep.ID, true, 200, 0.1)

	require.NoError(t, s.DeleteSite(ctx, site.ID))

	_, err := s.GetSite(ctx, site.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	recent, err := s.RecentChecks(ctx, site.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	other, err := s.RecentChecks(ctx, keep.ID, 10)
	require.NoError(t, err)
	assert.Len(t, other, 1, "other sites keep their checks")

	// the url is free again
	_, created, err := s.CreateSite(ctx, "http://del.example.com", 10)
	require.NoError(t, err)
	assert.True(t, created)
}

func deleteUnknown(t *testing.T, s repo.Store) {
	assert.NoError(t, s.DeleteSite(context.Background(), 987654))
}

func createCheckMissingSite(t *testing.T, s repo.Store) {
	c := &domain.Check{SiteID: 31337, IsAvailable: false}
	err := s.CreateCheck(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func recentNewestFirst(t *testing.T, s repo.Store) {
	ctx := context.Background()
	site := mustSite(t, s, "http://recent.example.com", 10)

	empty, err := s.RecentChecks(ctx, site.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	var ids []int64
	for i := 0; i < 4; i++ {
		c := mustCheck(t, s, site.ID, true, 200+i, float64(i))
		ids = append(ids, c.ID)
	}
	failed := &domain.Check{SiteID: site.ID, FailureReason: "timeout"}
	require.NoError(t, s.CreateCheck(ctx, failed))
	assert.False(t, failed.CheckedAt.IsZero(), "checked_at assigned")

	got, err := s.RecentChecks(ctx, site.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, failed.ID, got[0].ID)
	assert.False(t, got[0].StatusCode.Valid)
	assert.False(t, got[0].ResponseTime.Valid)
	assert.Equal(t, "timeout", got[0].FailureReason)
	assert.Equal(t, ids[3], got[1].ID)
	assert.Equal(t, int64(203), got[1].StatusCode.Int64)
	assert.Equal(t, ids[2], got[2].ID)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i-1].ID, got[i].ID, "ids are monotonic by insertion")
	}
}

func statsOverPresentValues(t *testing.T, s repo.Store) {
	ctx := context.Background()
	site := mustSite(t, s, "http://stats.example.com", 10)

	st, err := s.Stats(ctx, site.ID)
	require.NoError(t, err)
	assert.False(t, st.UptimePercent.Valid)
	assert.False(t, st.AverageResponse.Valid)

	mustCheck(t, s, site.ID, true, 200, 1.0)
	mustCheck(t, s, site.ID, true, 200, 2.0)
	require.NoError(t, s.CreateCheck(ctx, &domain.Check{SiteID: site.ID}))
	mustCheck(t, s, site.ID, true, 200, 3.0)

	st, err = s.Stats(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	require.True(t, st.UptimePercent.Valid)
	assert.InDelta(t, 75.0, st.UptimePercent.Float64, 1e-9)
	require.True(t, st.AverageResponse.Valid)
	assert.InDelta(t, 2.0, st.AverageResponse.Float64, 1e-9)
}

func statsBoundedWindow(t *testing.T, s repo.Store) {
	ctx := context.Background()
	site := mustSite(t, s, "http://window.example.com", 10)
	// 10 old failures fall out of the window once StatsWindow successes follow.
	for i := 0; i < 10; i++ {
		require.NoError(t, s.CreateCheck(ctx, &domain.Check{SiteID: site.ID}))
	}
	for i := 0; i < domain.StatsWindow; i++ {
		mustCheck(t, s, site.ID, true, 200, 0.5)
	}
	st, err := s.Stats(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatsWindow, st.Total)
	assert.InDelta(t, 100.0, st.UptimePercent.Float64, 1e-9)
}

func concurrentCreateSite(t *testing.T, s repo.Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make([]int64, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			site, _, err := s.CreateSite(ctx, "http://race.example.com", 5)
			ids[i], errs[i] = site.ID, err
		}(i)
	}
	wg.Wait()
	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func mustSite(t *testing.T, s repo.Store, url string, interval int) domain.Site {
	t.Helper()
	site, _, err := s.CreateSite(context.Background(), url, interval)
	require.NoError(t, err)
	return site
}

func mustCheck(t *testing.T, s repo.Store, siteID int64, up bool, code int, secs float64) domain.Check {
	t.Helper()
	c := &domain.Check{
		SiteID:       siteID,
		StatusCode:   null.IntFrom(int64(code)),
		ResponseTime: null.FloatFrom(secs),
		IsAvailable:  up,
		CheckedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateCheck(context.Background(), c), fmt.Sprintf("site %d", siteID))
	return *c
}
