package domain

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NormalizeURL turns user input into the canonical form stored for a Site.
// A missing scheme defaults to http. Anything that is not an absolute
// http(s) URL with a host is rejected with ErrInvalidURL.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(s, "://") {
			return "", fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURL, raw)
		}
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !validHost(u.Hostname()) {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

// ValidateInterval enforces the probe interval bounds.
func ValidateInterval(seconds int) error {
	if seconds < MinIntervalSeconds {
		return fmt.Errorf("%w: %d < %d", ErrInvalidInterval, seconds, MinIntervalSeconds)
	}
	if seconds > MaxIntervalSeconds {
		return fmt.Errorf("%w: %d > %d", ErrInvalidInterval, seconds, MaxIntervalSeconds)
	}
	return nil
}

// validHost accepts dotted names, IP literals and localhost.
func validHost(host string) bool {
	switch {
	case host == "":
		return false
	case host == "localhost", net.ParseIP(host) != nil:
		return true
	default:
		return strings.Contains(host, ".") && !strings.HasPrefix(host, ".") && !strings.HasSuffix(host, ".")
	}
}
