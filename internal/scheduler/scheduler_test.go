package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

const unit = 20 * time.Millisecond

func site(id int64, interval int) domain.Site {
	return domain.Site{ID: id, URL: "http://s.example.com", IntervalSeconds: interval, IsActive: true}
}

// recorder counts runs per site and the peak number of concurrent runs of
// the same site.
type recorder struct {
	mu         sync.Mutex
	runs       map[int64]int
	active     map[int64]int
	peakActive map[int64]int
	hold       map[int64]time.Duration
}

func newRecorder() *recorder {
	return &recorder{
		runs:       map[int64]int{},
		active:     map[int64]int{},
		peakActive: map[int64]int{},
		hold:       map[int64]time.Duration{},
	}
}

func (r *recorder) job(ctx context.Context, s domain.Site) {
	r.mu.Lock()
	r.runs[s.ID]++
	r.active[s.ID]++
	if r.active[s.ID] > r.peakActive[s.ID] {
		r.peakActive[s.ID] = r.active[s.ID]
	}
	d := r.hold[s.ID]
	r.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	r.active[s.ID]--
	r.mu.Unlock()
}

func (r *recorder) count(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func (r *recorder) peak(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peakActive[id]
}

func TestIndependentPeriods(t *testing.T) {
	rec := newRecorder()
	s := New(rec.job, WithIntervalUnit(unit))
	defer s.Stop(time.Second)

	s.Schedule(site(1, 1))   // every 20ms
	s.Schedule(site(2, 100)) // every 2s

	time.Sleep(300 * time.Millisecond)
	assert.GreaterOrEqual(t, rec.count(1), 5)
	assert.Equal(t, 0, rec.count(2))
}

func TestWaitsOneIntervalBeforeFirstRun(t *testing.T) {
	rec := newRecorder()
	s := New(rec.job, WithIntervalUnit(100*time.Millisecond))
	defer s.Stop(time.Second)

	s.Schedule(site(1, 1))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, rec.count(1))

	assert.Eventually(t, func() bool { return rec.count(1) >= 1 }, time.Second, 10*time.Millisecond)
}

func TestImmediateFirstRun(t *testing.T) {
	rec := newRecorder()
	s := New(rec.job, WithIntervalUnit(time.Hour/100), WithImmediateFirstRun())
	defer s.Stop(time.Second)

	s.Schedule(site(1, 100))
	assert.Eventually(t, func() bool { return rec.count(1) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSlowProbeDoesNotDelayOtherSites(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := newRecorder()
	rec.hold[1] = 2 * time.Second

	s := New(rec.job, WithIntervalUnit(unit), WithImmediateFirstRun(), WithLogger(zap.New(core)))
	defer s.Stop(10 * time.Millisecond)

	s.Schedule(site(1, 1))
	s.Schedule(site(2, 1))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.count(1), "slow site runs once, its ticks are skipped")
	assert.GreaterOrEqual(t, rec.count(2), 5, "fast site keeps its cadence")
	assert.Equal(t, 1, rec.peak(1))

	skipped := logs.FilterMessage("scheduler_tick_skipped").FilterField(zap.Int64("site_id", 1))
	assert.GreaterOrEqual(t, skipped.Len(), 3)
	assert.Zero(t, logs.FilterMessage("scheduler_tick_skipped").FilterField(zap.Int64("site_id", 2)).Len())
}

func TestRearmKeepsInflightMarker(t *testing.T) {
	release := make(chan struct{})
	var runs, active, peak atomic.Int32
	job := func(ctx context.Context, s domain.Site) {
		runs.Add(1)
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
	}

	s := New(job, WithIntervalUnit(unit), WithImmediateFirstRun())
	defer s.Stop(time.Second)

	s.Schedule(site(1, 5))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// interval change while the probe is still running
	s.Schedule(site(1, 1))
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, StatusRunning, snap[0].Status)
	assert.Equal(t, unit, snap[0].Interval)

	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, runs.Load(), "re-armed timer must not start a second probe")

	close(release)
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, peak.Load())
}

func TestUnchangedRescheduleKeepsTimer(t *testing.T) {
	rec := newRecorder()
	s := New(rec.job, WithIntervalUnit(unit))
	defer s.Stop(time.Second)

	for i := 0; i < 20; i++ {
		s.Schedule(site(1, 3))
		time.Sleep(5 * time.Millisecond)
	}
	// 100ms of repeated Schedule calls with a 60ms period: a reset timer would
	// never have fired.
	assert.GreaterOrEqual(t, rec.count(1), 1)
}

func TestCancelStopsFutureRuns(t *testing.T) {
	rec := newRecorder()
	s := New(rec.job, WithIntervalUnit(unit))
	defer s.Stop(time.Second)

	s.Schedule(site(1, 1))
	require.Eventually(t, func() bool { return rec.count(1) >= 2 }, time.Second, 5*time.Millisecond)

	s.Cancel(1)
	time.Sleep(20 * time.Millisecond)
	n := rec.count(1)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, n, rec.count(1))
	assert.Empty(t, s.Snapshot())

	s.Cancel(1) // unknown is fine
}

func TestCancelledRunningJobIsReported(t *testing.T) {
	release := make(chan struct{})
	s := New(func(ctx context.Context, _ domain.Site) { <-release }, WithIntervalUnit(unit), WithImmediateFirstRun())
	defer s.Stop(time.Second)

	s.Schedule(site(7, 1))
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return len(snap) == 1 && snap[0].Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	s.Cancel(7)
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, StatusCancelled, snap[0].Status)

	close(release)
	assert.Eventually(t, func() bool { return len(s.Snapshot()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestInactiveSiteIsNotScheduled(t *testing.T) {
	rec := newRecorder()
	s := New(rec.job, WithIntervalUnit(unit), WithImmediateFirstRun())
	defer s.Stop(time.Second)

	off := site(1, 1)
	off.IsActive = false
	s.Schedule(off)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, rec.count(1))
	assert.Empty(t, s.Snapshot())
}

func TestSyncReconciles(t *testing.T) {
	rec := newRecorder()
	s := New(rec.job, WithIntervalUnit(time.Hour))
	defer s.Stop(time.Second)

	s.Schedule(site(1, 1))
	s.Schedule(site(2, 1))

	off := site(2, 1)
	off.IsActive = false
	s.Sync([]domain.Site{off, site(3, 1), site(4, 2)})

	var ids []int64
	for _, e := range s.Snapshot() {
		ids = append(ids, e.SiteID)
	}
	assert.Equal(t, []int64{3, 4}, ids)
}

func TestStopWaitsForRunningJobs(t *testing.T) {
	var finished atomic.Bool
	job := func(ctx context.Context, _ domain.Site) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}
	s := New(job, WithIntervalUnit(unit), WithImmediateFirstRun())
	s.Schedule(site(1, 1))
	time.Sleep(10 * time.Millisecond)

	s.Stop(time.Second)
	assert.True(t, finished.Load())
}

func TestStopCancelsAfterGrace(t *testing.T) {
	cancelled := make(chan struct{})
	job := func(ctx context.Context, _ domain.Site) {
		<-ctx.Done()
		close(cancelled)
	}
	s := New(job, WithIntervalUnit(unit), WithImmediateFirstRun())
	s.Schedule(site(1, 1))
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	s.Stop(50 * time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context not cancelled after grace")
	}

	// no scheduling after stop
	s.Schedule(site(2, 1))
	assert.Empty(t, s.Snapshot())
	s.Stop(time.Second)
}

func TestJobPanicIsContained(t *testing.T) {
	var runs atomic.Int32
	job := func(ctx context.Context, _ domain.Site) {
		runs.Add(1)
		panic("boom")
	}
	s := New(job, WithIntervalUnit(unit), WithImmediateFirstRun())
	defer s.Stop(time.Second)

	s.Schedule(site(1, 1))
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRejectsOverflowingInterval(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := newRecorder()
	s := New(rec.job, WithLogger(zap.New(core)))
	defer s.Stop(time.Second)

	s.Schedule(site(1, 30))
	require.Len(t, s.Snapshot(), 1)

	// 18446744074s wraps time.Duration to roughly 290ms
	s.Schedule(site(1, 18446744074))
	assert.Empty(t, s.Snapshot(), "an unrepresentable period drops the old timer too")
	assert.Equal(t, 1, logs.FilterMessage("scheduler_invalid_interval").Len())

	s.Schedule(site(2, 0))
	assert.Empty(t, s.Snapshot())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count(1))
}

func TestClaimExcludesScheduledRun(t *testing.T) {
	gate := make(chan struct{})
	var runs atomic.Int32
	job := func(ctx context.Context, _ domain.Site) {
		if runs.Add(1) == 1 {
			<-gate
		}
	}
	s := New(job, WithIntervalUnit(unit), WithImmediateFirstRun())
	defer s.Stop(time.Second)

	s.Schedule(site(1, 1))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := s.Claim(1)
	assert.ErrorIs(t, err, domain.ErrBusy, "scheduled probe in flight")

	s.Cancel(1)
	_, err = s.Claim(1)
	assert.ErrorIs(t, err, domain.ErrBusy, "cancelled site still draining")

	close(gate)
	var release func()
	require.Eventually(t, func() bool {
		release, err = s.Claim(1)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	// re-arming with an immediate first run must skip while the claim is held
	s.Schedule(site(1, 1))
	time.Sleep(5 * unit)
	assert.EqualValues(t, 1, runs.Load())

	release()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestClaimSiteWithoutTimer(t *testing.T) {
	rec := newRecorder()
	s := New(rec.job, WithIntervalUnit(unit), WithImmediateFirstRun())

	release, err := s.Claim(7)
	require.NoError(t, err)
	_, err = s.Claim(7)
	assert.ErrorIs(t, err, domain.ErrBusy)

	// arming while the manual run is held adopts its marker
	s.Schedule(site(7, 1))
	time.Sleep(5 * unit)
	assert.Zero(t, rec.count(7))

	release()
	release()
	assert.Eventually(t, func() bool { return rec.count(7) >= 1 }, time.Second, 5*time.Millisecond)

	s.Stop(time.Second)
	_, err = s.Claim(7)
	assert.ErrorIs(t, err, ErrStopped)
}
