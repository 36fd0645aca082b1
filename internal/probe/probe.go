package probe

import (
	"context"
	"time"
)

// FailureReason is a coarse tag for why a probe got no response.
// It is kept for observability only; it never changes availability.
type FailureReason string

const (
	ReasonNone    FailureReason = ""
	ReasonTimeout FailureReason = "timeout"
	ReasonDNS     FailureReason = "dns"
	ReasonRefused FailureReason = "refused"
	ReasonTLS     FailureReason = "tls"
	ReasonOther   FailureReason = "other"
)

// Result is the outcome of a single probe.
//
// StatusCode and Latency are zero when no response was received; Err then
// holds the transport error that was classified into Reason.
type Result struct {
	Available  bool
	StatusCode int
	Latency    time.Duration
	Reason     FailureReason
	Err        error
}

// Responded reports whether the endpoint produced an HTTP response.
func (r Result) Responded() bool { return r.StatusCode != 0 }

// Checker performs a single probe against a target URL. Implementations
// must not panic or return errors; every failure is folded into Result.
type Checker interface {
	Check(ctx context.Context, target string) Result
}
