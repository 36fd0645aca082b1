package domain

import (
	"time"

	"github.com/guregu/null/v5"
)

const (
	// MinIntervalSeconds is the smallest probe interval a site may use.
	MinIntervalSeconds = 1
	// MaxIntervalSeconds is the largest probe interval a site may use (7 days).
	MaxIntervalSeconds = 7 * 24 * 60 * 60
	// StatsWindow bounds how many recent checks feed Stats.
	StatsWindow = 1000
)

type Site struct {
	ID              int64     `json:"id"`
	URL             string    `json:"url"`
	IntervalSeconds int       `json:"interval"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Interval returns the configured period as a duration.
func (s Site) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// SiteUpdate carries the mutable fields of a Site; nil fields are left as is.
type SiteUpdate struct {
	IntervalSeconds *int  `json:"interval,omitempty"`
	IsActive        *bool `json:"is_active,omitempty"`
}

// Check is one immutable probe outcome.
// StatusCode and ResponseTime are null when no response was received.
type Check struct {
	ID            int64      `json:"id"`
	SiteID        int64      `json:"site_id"`
	StatusCode    null.Int   `json:"status_code"`
	ResponseTime  null.Float `json:"response_time"` // seconds
	IsAvailable   bool       `json:"is_available"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CheckedAt     time.Time  `json:"checked_at"`
}

// Stats summarises the most recent StatsWindow checks of a site.
type Stats struct {
	SiteID          int64      `json:"site_id"`
	Total           int        `json:"total"`
	Available       int        `json:"available"`
	UptimePercent   null.Float `json:"uptime_percent"`
	AverageResponse null.Float `json:"average_response"`
}

// IsAvailableStatus reports whether an HTTP status counts as "up".
func IsAvailableStatus(code int) bool {
	return code >= 200 && code < 400
}

// ComputeStats folds checks (any order) into Stats. Average response is the
// mean over checks that carry a response time; failures do not count as 0.
func ComputeStats(siteID int64, checks []Check) Stats {
	st := Stats{SiteID: siteID, Total: len(checks)}
	if len(checks) == 0 {
		return st
	}
	var sum float64
	var timed int
	for _, c := range checks {
		if c.IsAvailable {
			st.Available++
		}
		if c.ResponseTime.Valid {
			sum += c.ResponseTime.Float64
			timed++
		}
	}
	st.UptimePercent = UptimePercent(st.Available, st.Total)
	if timed > 0 {
		st.AverageResponse = null.FloatFrom(sum / float64(timed))
	}
	return st
}

// UptimePercent is available/total*100, null when total is zero.
func UptimePercent(available, total int) null.Float {
	if total == 0 {
		return null.Float{}
	}
	return null.FloatFrom(float64(available) / float64(total) * 100)
}
