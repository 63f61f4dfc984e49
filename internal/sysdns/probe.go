package sysdns

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// probeA sends a real A query for name to server (host:port) and
// requires a response within timeout. Used both to confirm the local
// proxy is actually answering before Configure proceeds, and by the
// startup integrity check to detect a proxy that is already answering.
func probeA(server, name string, timeout time.Duration) error {
	c := &dns.Client{Timeout: timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)

	resp, _, err := c.Exchange(m, server)
	if err != nil {
		return fmt.Errorf("probe %s via %s: %w", name, server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("probe %s via %s: rcode %s", name, server, dns.RcodeToString[resp.Rcode])
	}
	return nil
}

// externalLookup resolves name through the system resolver (whatever
// it has just been restored to), rather than dialing a fixed server
// directly, so a successful result actually certifies that the
// restored configuration works end to end.
func externalLookup(name string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, name)
	if err != nil {
		return fmt.Errorf("external lookup of %s failed: %w", name, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("external lookup of %s returned no addresses", name)
	}
	return nil
}
