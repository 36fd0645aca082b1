package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// HTTPChecker probes a URL with one GET bounded by Timeout.
// Redirects are not followed: a 3xx answer is itself recorded as available.
type HTTPChecker struct {
	Client *http.Client
	Logger *zap.Logger

	// DiagnoseDNS runs a DNS diagnosis on DNS failures; nil disables it.
	DiagnoseDNS func(ctx context.Context, host string) DNSDiagnosis
}

func NewHTTPChecker(timeout time.Duration, logger *zap.Logger) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPChecker{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Logger:      logger,
		DiagnoseDNS: DiagnoseDNS,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) Result {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		h.Logger.Warn("probe_bad_request", zap.String("url", target), zap.Error(err))
		return Result{Reason: ReasonOther, Err: err}
	}
	req.Header.Set("User-Agent", "sitemonitor/1.0")

	resp, err := h.Client.Do(req)
	// Do returns once response headers are in.
	latency := time.Since(start)
	if err != nil {
		reason := ClassifyError(err)
		fields := []zap.Field{
			zap.String("url", target),
			zap.String("reason", string(reason)),
			zap.Duration("elapsed", latency),
			zap.Error(err),
		}
		if reason == ReasonDNS && h.DiagnoseDNS != nil {
			dctx, cancel := h.budget(ctx, start)
			d := h.DiagnoseDNS(dctx, req.URL.Hostname())
			cancel()
			fields = append(fields, zap.String("dns_class", string(d.Class)), zap.Strings("nameservers", d.Nameservers))
		}
		h.Logger.Info("probe_failed", fields...)
		return Result{Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	return Result{
		Available:  domain.IsAvailableStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}
}

// budget bounds follow-up work to what is left of the probe timeout.
func (h *HTTPChecker) budget(ctx context.Context, start time.Time) (context.Context, context.CancelFunc) {
	if h.Client.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, start.Add(h.Client.Timeout))
}

// ClassifyError maps a transport error onto a coarse FailureReason.
func ClassifyError(err error) FailureReason {
	if err == nil {
		return ReasonNone
	}
	var (
		dnsErr  *net.DNSError
		netErr  net.Error
		hdrErr  tls.RecordHeaderError
		verErr  *tls.CertificateVerificationError
		authErr x509.UnknownAuthorityError
		hostErr x509.HostnameError
		certErr x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &dnsErr):
		return ReasonDNS
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonRefused
	case errors.As(err, &hdrErr), errors.As(err, &verErr), errors.As(err, &authErr),
		errors.As(err, &hostErr), errors.As(err, &certErr):
		return ReasonTLS
	}
	return ReasonOther
}
