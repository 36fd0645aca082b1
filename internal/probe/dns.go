package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

type DNSClass string

const (
	DNSResolves    DNSClass = "RESOLVES"
	DNSNXDomain    DNSClass = "NXDOMAIN"
	DNSNoARecord   DNSClass = "NO_A_RECORD"
	DNSServFail    DNSClass = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName DNSClass = "INVALID_NAME"
)

// DNSDiagnosis explains a DNS probe failure in the probe log.
type DNSDiagnosis struct {
	Host          string
	Class         DNSClass
	IPs           []net.IP
	CNAME         string
	Nameservers   []string
	ResolverError string
}

var dnsTimeout = 3 * time.Second

// Resolver is the subset of *net.Resolver used for diagnosis.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// DiagnoseDNS classifies host with the system resolver.
func DiagnoseDNS(ctx context.Context, host string) DNSDiagnosis {
	return diagnoseWith(ctx, net.DefaultResolver, host)
}

func diagnoseWith(ctx context.Context, r Resolver, host string) DNSDiagnosis {
	d := DNSDiagnosis{Host: strings.TrimSpace(host)}
	if d.Host == "" || strings.Contains(d.Host, "://") {
		d.Class = DNSInvalidName
		return d
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", d.Host)
	switch {
	case err == nil && len(ips) > 0:
		d.IPs = ips
		d.Class = DNSResolves
	case err != nil:
		d.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				d.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				d.Class = DNSServFail
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, d.Host); err == nil && !strings.EqualFold(cname, d.Host+".") {
		d.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := r.LookupNS(ctx, d.Host); err == nil && len(ns) > 0 {
		for _, n := range ns {
			d.Nameservers = append(d.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if d.Class == DNSNXDomain || d.Class == "" && len(d.IPs) == 0 {
			d.Class = DNSNoARecord
		}
	}

	if d.Class == "" {
		if d.ResolverError != "" {
			d.Class = DNSServFail
		} else {
			d.Class = DNSNXDomain
		}
	}
	return d
}
