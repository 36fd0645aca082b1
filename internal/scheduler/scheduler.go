// Package scheduler drives one independent periodic timer per active site.
package scheduler

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// JobFunc runs one probe cycle for site. ctx is cancelled only when Stop's
// grace period runs out.
type JobFunc func(ctx context.Context, site domain.Site)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	// StatusCancelled marks a removed site whose last job is still finishing.
	StatusCancelled Status = "cancelled"
)

// ErrStopped is returned by Claim once Stop has been called.
var ErrStopped = errors.New("scheduler stopped")

type EntryStatus struct {
	SiteID   int64         `json:"site_id"`
	URL      string        `json:"url"`
	Interval time.Duration `json:"interval"`
	Status   Status        `json:"status"`
}

// flight is the in-flight marker of a site. It survives a re-arm so a probe
// that is running while the interval changes is neither lost nor duplicated.
type flight struct {
	running   bool
	cancelled bool
}

type entry struct {
	site   domain.Site
	period time.Duration
	stop   context.CancelFunc
	flight *flight
}

type Scheduler struct {
	job       JobFunc
	log       *zap.Logger
	unit      time.Duration
	immediate bool

	jobCtx    context.Context
	jobCancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	entries  map[int64]*entry
	draining map[*flight]domain.Site
	adhoc    map[int64]*flight // manual runs of sites without a timer
	jobs     sync.WaitGroup
	loops    sync.WaitGroup
}

type Option func(*Scheduler)

// WithImmediateFirstRun fires once as soon as a site is first armed instead
// of waiting one full interval.
func WithImmediateFirstRun() Option {
	return func(s *Scheduler) { s.immediate = true }
}

// WithIntervalUnit scales Site.IntervalSeconds. Production uses time.Second.
func WithIntervalUnit(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.unit = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func New(job JobFunc, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		job:       job,
		log:       zap.NewNop(),
		unit:      time.Second,
		jobCtx:    ctx,
		jobCancel: cancel,
		entries:   make(map[int64]*entry),
		draining:  make(map[*flight]domain.Site),
		adhoc:     make(map[int64]*flight),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule arms site, re-arms it when its interval changed, and cancels it
// when it is inactive.
func (s *Scheduler) Schedule(site domain.Site) {
	if !site.IsActive {
		s.Cancel(site.ID)
		return
	}
	if site.IntervalSeconds < domain.MinIntervalSeconds || int64(site.IntervalSeconds) > math.MaxInt64/int64(s.unit) {
		s.log.Warn("scheduler_invalid_interval", zap.Int64("site_id", site.ID), zap.Int("interval", site.IntervalSeconds))
		s.Cancel(site.ID)
		return
	}
	period := time.Duration(site.IntervalSeconds) * s.unit

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	fl := &flight{}
	old, ok := s.entries[site.ID]
	if ok {
		if old.period == period {
			old.site = site
			return
		}
		old.stop()
		fl = old.flight
	} else if f := s.looseFlight(site.ID); f != nil {
		f.cancelled = false
		delete(s.draining, f)
		delete(s.adhoc, site.ID)
		fl = f
	}

	ctx, stop := context.WithCancel(context.Background())
	e := &entry{site: site, period: period, stop: stop, flight: fl}
	s.entries[site.ID] = e
	s.loops.Add(1)
	go s.loop(ctx, e, s.immediate && !ok)

	if ok {
		s.log.Info("scheduler_rearmed", zap.Int64("site_id", site.ID), zap.Duration("period", period))
	} else {
		s.log.Info("scheduler_armed", zap.Int64("site_id", site.ID), zap.String("url", site.URL), zap.Duration("period", period))
	}
}

// Cancel stops the timer of siteID. A job already running is left to finish.
func (s *Scheduler) Cancel(siteID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[siteID]
	if !ok {
		return
	}
	e.stop()
	delete(s.entries, siteID)
	if e.flight.running {
		e.flight.cancelled = true
		s.draining[e.flight] = e.site
	}
	s.log.Info("scheduler_cancelled", zap.Int64("site_id", siteID))
}

// Claim marks siteID as running outside its timer, so a manual probe and a
// scheduled one never overlap. Ticks that land while the claim is held are
// skipped. It returns domain.ErrBusy when a probe of the site is in flight;
// otherwise the caller must call release when done.
func (s *Scheduler) Claim(siteID int64) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	var fl *flight
	if e, ok := s.entries[siteID]; ok {
		fl = e.flight
	} else if fl = s.looseFlight(siteID); fl == nil {
		fl = &flight{}
		s.adhoc[siteID] = fl
	}
	if fl.running {
		return nil, domain.ErrBusy
	}
	fl.running = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.land(siteID, fl)
			s.mu.Unlock()
		})
	}, nil
}

// looseFlight finds the marker of a site that has no timer: a cancelled
// site still finishing, or a manual run. s.mu must be held.
func (s *Scheduler) looseFlight(siteID int64) *flight {
	if f, ok := s.adhoc[siteID]; ok {
		return f
	}
	for f, ds := range s.draining {
		if ds.ID == siteID {
			return f
		}
	}
	return nil
}

// land clears the marker after a run. s.mu must be held.
func (s *Scheduler) land(siteID int64, fl *flight) {
	fl.running = false
	if fl.cancelled {
		delete(s.draining, fl)
	}
	if s.adhoc[siteID] == fl {
		delete(s.adhoc, siteID)
	}
}

// Sync reconciles the timers with the full list of sites.
func (s *Scheduler) Sync(sites []domain.Site) {
	want := make(map[int64]bool, len(sites))
	for _, site := range sites {
		if site.IsActive {
			want[site.ID] = true
		}
	}

	s.mu.Lock()
	var gone []int64
	for id := range s.entries {
		if !want[id] {
			gone = append(gone, id)
		}
	}
	s.mu.Unlock()

	for _, id := range gone {
		s.Cancel(id)
	}
	for _, site := range sites {
		if site.IsActive {
			s.Schedule(site)
		}
	}
}

// Stop halts every timer and waits up to grace for running jobs, then
// cancels their context. Stop is idempotent.
func (s *Scheduler) Stop(grace time.Duration) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, e := range s.entries {
		e.stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.loops.Wait()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler_stopped")
	case <-time.After(grace):
		s.log.Warn("scheduler_stop_grace_exceeded", zap.Duration("grace", grace))
	}
	s.jobCancel()
}

// Snapshot lists every timer and every cancelled site still finishing a job.
func (s *Scheduler) Snapshot() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryStatus, 0, len(s.entries)+len(s.draining))
	for _, e := range s.entries {
		st := StatusScheduled
		if e.flight.running {
			st = StatusRunning
		}
		out = append(out, EntryStatus{SiteID: e.site.ID, URL: e.site.URL, Interval: e.period, Status: st})
	}
	for _, site := range s.draining {
		out = append(out, EntryStatus{SiteID: site.ID, URL: site.URL, Interval: site.Interval(), Status: StatusCancelled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}

// loop owns one ticker. The ticker is anchored at arm time, so fire times do
// not drift with job duration; ticks that land on a running job are dropped.
func (s *Scheduler) loop(ctx context.Context, e *entry, immediate bool) {
	defer s.loops.Done()
	t := time.NewTicker(e.period)
	defer t.Stop()

	if immediate {
		s.fire(e)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			s.fire(e)
		}
	}
}

func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	if s.stopped || s.entries[e.site.ID] != e {
		s.mu.Unlock()
		return
	}
	if e.flight.running {
		s.mu.Unlock()
		s.log.Info("scheduler_tick_skipped", zap.Int64("site_id", e.site.ID), zap.String("reason", "previous probe still running"))
		return
	}
	e.flight.running = true
	site, fl := e.site, e.flight
	s.jobs.Add(1)
	s.mu.Unlock()

	go s.run(site, fl)
}

func (s *Scheduler) run(site domain.Site, fl *flight) {
	defer s.jobs.Done()
	defer func() {
		s.mu.Lock()
		s.land(site.ID, fl)
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler_job_panic", zap.Int64("site_id", site.ID), zap.Any("panic", r))
		}
	}()
	s.job(s.jobCtx, site)
}
