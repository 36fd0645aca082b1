// Package alert turns a stream of checks into at most one notification per
// availability transition.
package alert

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/notify"
)

type Kind string

const (
	KindDown     Kind = "down"
	KindRecovery Kind = "recovery"
)

type Notification struct {
	Kind  Kind
	Site  domain.Site
	Check domain.Check
	Text  string
}

type Config struct {
	// Recipient is handed to the notifier as is (Telegram chat id).
	Recipient       string
	AlertOnRecovery bool
}

// Dispatcher keeps the last known availability per site in memory.
type Dispatcher struct {
	notifier notify.Notifier
	cfg      Config
	log      *zap.Logger

	mu   sync.Mutex
	last map[int64]bool
}

func NewDispatcher(n notify.Notifier, cfg Config, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		notifier: n,
		cfg:      cfg,
		log:      log,
		last:     make(map[int64]bool),
	}
}

// Prime records a known state without alerting. Used at startup with each
// site's latest stored check so a restart does not re-alert a site that was
// already down.
func (d *Dispatcher) Prime(siteID int64, available bool) {
	d.mu.Lock()
	d.last[siteID] = available
	d.mu.Unlock()
}

func (d *Dispatcher) Forget(siteID int64) {
	d.mu.Lock()
	delete(d.last, siteID)
	d.mu.Unlock()
}

// Evaluate updates the state for check.SiteID and returns the notification
// due for this transition, or nil. Unknown previous state counts as up.
func (d *Dispatcher) Evaluate(site domain.Site, check domain.Check) *Notification {
	d.mu.Lock()
	prev, known := d.last[check.SiteID]
	d.last[check.SiteID] = check.IsAvailable
	d.mu.Unlock()

	wasUp := !known || prev
	switch {
	case wasUp && !check.IsAvailable:
		return &Notification{Kind: KindDown, Site: site, Check: check, Text: format(KindDown, site, check)}
	case known && !prev && check.IsAvailable && d.cfg.AlertOnRecovery:
		return &Notification{Kind: KindRecovery, Site: site, Check: check, Text: format(KindRecovery, site, check)}
	}
	return nil
}

// Dispatch sends n. Delivery errors are logged and dropped; there is no retry.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) {
	if n == nil || d.notifier == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("site_id", n.Site.ID),
		zap.String("url", n.Site.URL),
		zap.String("kind", string(n.Kind)),
	}
	if err := d.notifier.Notify(ctx, d.cfg.Recipient, n.Text); err != nil {
		d.log.Warn("alert_send_failed", append(fields, zap.Error(err))...)
		return
	}
	d.log.Info("alert_sent", fields...)
}

func format(kind Kind, site domain.Site, c domain.Check) string {
	title := fmt.Sprintf("[ALERT] %s is down", site.URL)
	if kind == KindRecovery {
		title = fmt.Sprintf("[RECOVERED] %s is up", site.URL)
	}

	httpTxt := "n/a"
	if c.StatusCode.Valid {
		httpTxt = strconv.FormatInt(c.StatusCode.Int64, 10)
	}
	latencyTxt := "n/a"
	if c.ResponseTime.Valid {
		latencyTxt = fmt.Sprintf("%.0f ms", c.ResponseTime.Float64*1000)
	}
	text := fmt.Sprintf("%s\nHTTP: %s\nLatency: %s", title, httpTxt, latencyTxt)
	if c.FailureReason != "" {
		text += "\nReason: " + c.FailureReason
	}
	return text + "\nChecked: " + c.CheckedAt.Format(time.RFC3339)
}
