// Package dns provides the gateway's DNS lookups over miekg/dns, plus a
// DNSBL-backed reputation feed.
package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"go.uber.org/zap"
)

// defaultServers are tried in order when no resolvers are configured.
var defaultServers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// Resolver performs TXT/A/MX lookups against a list of upstream servers,
// falling through to the next server on error.
type Resolver struct {
	servers []string
	client  *mdns.Client
	logger  *zap.Logger
}

// NewResolver creates a resolver. Servers default to public resolvers
// when empty; entries without a port get :53 appended.
func NewResolver(servers []string, timeout time.Duration, logger *zap.Logger) *Resolver {
	if len(servers) == 0 {
		servers = defaultServers
	}
	normalized := make([]string, len(servers))
	for i, s := range servers {
		if !strings.Contains(s, ":") {
			s = net.JoinHostPort(s, "53")
		}
		normalized[i] = s
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		servers: normalized,
		client:  &mdns.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no resolvers configured")
	}
	return nil, fmt.Errorf("dns query %s failed: %w", name, lastErr)
}

// LookupTXT returns the TXT records for a name, each record's character
// strings joined.
func (r *Resolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := r.exchange(ctx, name, mdns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ans := range resp.Answer {
		if txt, ok := ans.(*mdns.TXT); ok {
			out = append(out, strings.Join(txt.Txt, ""))
		}
	}
	return out, nil
}

// LookupA returns the IPv4 addresses for a name.
func (r *Resolver) LookupA(ctx context.Context, name string) ([]net.IP, error) {
	resp, err := r.exchange(ctx, name, mdns.TypeA)
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, ans := range resp.Answer {
		if a, ok := ans.(*mdns.A); ok {
			out = append(out, a.A)
		}
	}
	return out, nil
}

// LookupMX returns the mail exchanger hostnames for a name, in the
// order the server returned them.
func (r *Resolver) LookupMX(ctx context.Context, name string) ([]string, error) {
	resp, err := r.exchange(ctx, name, mdns.TypeMX)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ans := range resp.Answer {
		if mx, ok := ans.(*mdns.MX); ok {
			out = append(out, strings.TrimSuffix(mx.Mx, "."))
		}
	}
	return out, nil
}
