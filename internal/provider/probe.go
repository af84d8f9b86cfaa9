// File: backend/internal/provider/probe.go
package provider

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/miekg/dns"
)

// Probe answers one question: can the provider host still be reached at all?
// The engine consults it after a streak of transport-level dispatch failures
// to tell a systemic outage (abort the run) apart from a run of bad
// per-user conditions (keep going).
type Probe struct {
	host      string
	resolvers []string
	timeout   time.Duration
}

// NewProbe derives the probe target from the provider base URL. System
// resolvers from /etc/resolv.conf are used when available, with well-known
// public resolvers as a fallback.
func NewProbe(baseURL string, timeout time.Duration) (*Probe, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid provider base URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var resolvers []string
	if sysConfig, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, serverIP := range sysConfig.Servers {
			resolvers = append(resolvers, net.JoinHostPort(serverIP, sysConfig.Port))
		}
	}
	if len(resolvers) == 0 {
		resolvers = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}

	return &Probe{host: u.Hostname(), resolvers: resolvers, timeout: timeout}, nil
}

// Check resolves the provider host. Any resolver producing an answer means
// connectivity is intact; an NXDOMAIN also counts as reachable name service,
// so only total resolution failure reports an outage.
func (p *Probe) Check(ctx context.Context) error {
	// Literal IPs (common in tests against a local stub) need no resolution.
	if net.ParseIP(p.host) != nil {
		return nil
	}

	client := &dns.Client{Timeout: p.timeout}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(p.host), dns.TypeA)

	var lastErr error
	for _, resolver := range p.resolvers {
		reply, _, err := client.ExchangeContext(ctx, msg, resolver)
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Rcode == dns.RcodeSuccess || reply.Rcode == dns.RcodeNameError {
			return nil
		}
		lastErr = fmt.Errorf("resolver %s returned RCODE %s for %s", resolver, dns.RcodeToString[reply.Rcode], p.host)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no resolvers available")
	}
	return fmt.Errorf("connectivity probe for %s failed: %w", p.host, lastErr)
}
