// Package monitor wires the registry, scheduler, probe, check log and alert
// dispatcher together and keeps the scheduler in step with registry changes.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/guregu/null/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/alert"
	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/events"
	"github.com/hamed0406/sitemonitor/internal/probe"
	"github.com/hamed0406/sitemonitor/internal/repo"
	"github.com/hamed0406/sitemonitor/internal/scheduler"
)

type Config struct {
	DefaultInterval int           // seconds, used when AddSite gets 0
	ResyncInterval  time.Duration // 0 disables the registry poll
	ShutdownGrace   time.Duration
}

type Service struct {
	store   repo.Store
	checker probe.Checker
	alerts  *alert.Dispatcher
	hub     *events.Hub
	outbox  *alert.Outbox
	sched   *scheduler.Scheduler
	cfg     Config
	log     *zap.Logger

	// regMu orders registry writes with the scheduler calls that follow
	// them, and with Resync's list-then-sync.
	regMu sync.Mutex

	mu         sync.Mutex
	started    bool
	stopResync context.CancelFunc
	resyncDone chan struct{}
}

// New builds a Service. hub may be nil. opts are passed to the scheduler.
func New(store repo.Store, checker probe.Checker, alerts *alert.Dispatcher, hub *events.Hub, cfg Config, log *zap.Logger, opts ...scheduler.Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 60
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	s := &Service{
		store:   store,
		checker: checker,
		alerts:  alerts,
		hub:     hub,
		cfg:     cfg,
		log:     log,
	}
	if alerts != nil {
		s.outbox = alert.NewOutbox(alerts, alert.DefaultOutboxSize, alert.DefaultSendTimeout)
	}
	opts = append([]scheduler.Option{scheduler.WithLogger(log)}, opts...)
	s.sched = scheduler.New(s.runCheck, opts...)
	return s
}

// Start primes alert state from the latest stored checks, arms a timer per
// active site and starts the registry re-sync loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("monitor already started")
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()
	sites, err := s.store.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	for _, site := range sites {
		last, err := s.store.RecentChecks(ctx, site.ID, 1)
		if err != nil {
			s.log.Warn("alert_prime_failed", zap.Int64("site_id", site.ID), zap.Error(err))
			continue
		}
		if len(last) == 1 && s.alerts != nil {
			s.alerts.Prime(site.ID, last[0].IsAvailable)
		}
	}
	s.sched.Sync(sites)

	rctx, cancel := context.WithCancel(ctx)
	s.stopResync = cancel
	s.resyncDone = make(chan struct{})
	go s.resyncLoop(rctx, s.resyncDone)

	s.started = true
	s.log.Info("monitor_started", zap.Int("sites", len(sites)), zap.Int("scheduled", len(s.sched.Snapshot())))
	return nil
}

// Stop ends the re-sync loop and stops the scheduler, giving running probes
// up to the configured grace period.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopResync != nil {
		s.stopResync()
		<-s.resyncDone
		s.stopResync = nil
	}
	s.mu.Unlock()
	s.sched.Stop(s.cfg.ShutdownGrace)
	if s.outbox != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		if err := s.outbox.Close(ctx); err != nil {
			s.log.Warn("alert_outbox_not_drained", zap.Error(err))
		}
		cancel()
	}
	s.log.Info("monitor_stopped")
}

func (s *Service) resyncLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if s.cfg.ResyncInterval <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(s.cfg.ResyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Resync(ctx)
		}
	}
}

// Resync reloads the registry and reconciles the scheduler with it. It
// picks up edits made to the store behind the service's back.
func (s *Service) Resync(ctx context.Context) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	sites, err := s.store.ListSites(ctx)
	if err != nil {
		s.log.Warn("registry_resync_failed", zap.Error(err))
		return
	}
	s.sched.Sync(sites)
	s.log.Debug("registry_resynced", zap.Int("sites", len(sites)))
}

// ---- registry changes ----

// AddSite normalizes and registers rawURL. Registering a known URL returns
// the existing site unchanged with created=false.
func (s *Service) AddSite(ctx context.Context, rawURL string, intervalSeconds int) (domain.Site, bool, error) {
	u, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return domain.Site{}, false, err
	}
	if intervalSeconds == 0 {
		intervalSeconds = s.cfg.DefaultInterval
	}
	if err := domain.ValidateInterval(intervalSeconds); err != nil {
		return domain.Site{}, false, err
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()
	site, created, err := s.store.CreateSite(ctx, u, intervalSeconds)
	if err != nil {
		return domain.Site{}, false, err
	}
	if created {
		s.sched.Schedule(site)
		s.log.Info("site_added", zap.Int64("site_id", site.ID), zap.String("url", site.URL), zap.Int("interval", site.IntervalSeconds))
	}
	return site, created, nil
}

func (s *Service) UpdateSite(ctx context.Context, id int64, upd domain.SiteUpdate) (domain.Site, error) {
	if upd.IntervalSeconds != nil {
		if err := domain.ValidateInterval(*upd.IntervalSeconds); err != nil {
			return domain.Site{}, err
		}
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	site, err := s.store.UpdateSite(ctx, id, upd)
	if err != nil {
		return domain.Site{}, err
	}
	s.sched.Schedule(site)
	s.log.Info("site_updated", zap.Int64("site_id", site.ID), zap.Int("interval", site.IntervalSeconds), zap.Bool("active", site.IsActive))
	return site, nil
}

// RemoveSite deletes the site with its checks and cancels its timer. A probe
// already running finishes; its result is dropped.
func (s *Service) RemoveSite(ctx context.Context, id int64) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if err := s.store.DeleteSite(ctx, id); err != nil {
		return err
	}
	s.sched.Cancel(id)
	if s.alerts != nil {
		s.alerts.Forget(id)
	}
	s.log.Info("site_removed", zap.Int64("site_id", id))
	return nil
}

// ---- queries ----

func (s *Service) Sites(ctx context.Context) ([]domain.Site, error) {
	return s.store.ListSites(ctx)
}

func (s *Service) Site(ctx context.Context, id int64) (domain.Site, error) {
	return s.store.GetSite(ctx, id)
}

// RecentChecks returns ErrNotFound for unknown sites rather than an empty list.
func (s *Service) RecentChecks(ctx context.Context, id int64, limit int) ([]domain.Check, error) {
	if _, err := s.store.GetSite(ctx, id); err != nil {
		return nil, err
	}
	out, err := s.store.RecentChecks(ctx, id, limit)
	if out == nil && err == nil {
		out = []domain.Check{}
	}
	return out, err
}

func (s *Service) Stats(ctx context.Context, id int64) (domain.Stats, error) {
	if _, err := s.store.GetSite(ctx, id); err != nil {
		return domain.Stats{}, err
	}
	return s.store.Stats(ctx, id)
}

type SiteReport struct {
	Site  domain.Site  `json:"site"`
	Stats domain.Stats `json:"stats"`
}

// Report returns stats for every registered site.
func (s *Service) Report(ctx context.Context) ([]SiteReport, error) {
	sites, err := s.store.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SiteReport, 0, len(sites))
	for _, site := range sites {
		st, err := s.store.Stats(ctx, site.ID)
		if err != nil {
			return nil, fmt.Errorf("stats for site %d: %w", site.ID, err)
		}
		out = append(out, SiteReport{Site: site, Stats: st})
	}
	return out, nil
}

func (s *Service) Schedule() []scheduler.EntryStatus {
	return s.sched.Snapshot()
}

// CheckNow probes a site outside its schedule and records the result. It
// returns domain.ErrBusy while a probe of the same site is running.
func (s *Service) CheckNow(ctx context.Context, id int64) (domain.Check, error) {
	site, err := s.store.GetSite(ctx, id)
	if err != nil {
		return domain.Check{}, err
	}
	release, err := s.sched.Claim(site.ID)
	if err != nil {
		return domain.Check{}, err
	}
	defer release()
	return s.probeAndRecord(ctx, site)
}

// ---- the job ----

func (s *Service) runCheck(ctx context.Context, site domain.Site) {
	_, _ = s.probeAndRecord(ctx, site)
}

func (s *Service) probeAndRecord(ctx context.Context, site domain.Site) (domain.Check, error) {
	res := s.checker.Check(ctx, site.URL)
	c := NewCheck(site.ID, res, time.Now().UTC())

	if err := s.store.CreateCheck(ctx, &c); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("check_dropped_site_gone", zap.Int64("site_id", site.ID), zap.String("url", site.URL))
			return c, err
		}
		s.log.Error("check_store_failed", zap.Int64("site_id", site.ID), zap.String("url", site.URL), zap.Error(err))
		s.alert(site, c)
		return c, err
	}

	s.log.Debug("site_checked",
		zap.Int64("site_id", site.ID),
		zap.String("url", site.URL),
		zap.Bool("available", c.IsAvailable),
		zap.Int("status", res.StatusCode),
		zap.Duration("latency", res.Latency),
		zap.String("reason", c.FailureReason),
	)
	s.alert(site, c)
	if s.hub != nil {
		s.hub.Publish(events.Event{Site: site, Check: c})
	}
	return c, nil
}

// alert evaluates on the caller's goroutine so transitions follow check
// order, and hands delivery to the outbox.
func (s *Service) alert(site domain.Site, c domain.Check) {
	if s.alerts == nil {
		return
	}
	if n := s.alerts.Evaluate(site, c); n != nil {
		s.outbox.Send(n)
	}
}

// NewCheck converts a probe result into a Check row. Status and response time
// stay null when no response was received.
func NewCheck(siteID int64, res probe.Result, at time.Time) domain.Check {
	c := domain.Check{
		SiteID:        siteID,
		IsAvailable:   res.Available,
		FailureReason: string(res.Reason),
		CheckedAt:     at,
	}
	if res.Responded() {
		c.StatusCode = null.IntFrom(int64(res.StatusCode))
		c.ResponseTime = null.FloatFrom(res.Latency.Seconds())
	}
	return c
}
