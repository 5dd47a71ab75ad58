package auth

import (
	"context"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// maxSPFLookups bounds include/redirect recursion, per RFC 7208 §4.6.4.
const maxSPFLookups = 10

// checkSPF fetches the sender domain's SPF record and walks its
// mechanisms in order. The first matching mechanism determines the
// result; an unmatched -all fails the check; absence of a record is
// "none".
func (c *Checker) checkSPF(ctx context.Context, domain, sourceIP string) core.SPFResult {
	if domain == "" {
		return core.SPFResult{Result: core.AuthPermError}
	}
	ip := net.ParseIP(sourceIP)
	if ip == nil {
		return core.SPFResult{Result: core.AuthPermError}
	}

	lookups := 0
	return c.evalSPF(ctx, domain, ip, &lookups)
}

func (c *Checker) evalSPF(ctx context.Context, domain string, ip net.IP, lookups *int) core.SPFResult {
	record, result := c.fetchSPFRecord(ctx, domain)
	if result != "" {
		return core.SPFResult{Result: result}
	}

	terms := strings.Fields(record)[1:] // skip v=spf1
	var redirect string

	for _, term := range terms {
		if after, ok := strings.CutPrefix(term, "redirect="); ok {
			redirect = after
			continue
		}

		qualifier, mech := splitQualifier(term)
		matched, res := c.matchMechanism(ctx, mech, domain, ip, lookups)
		if res != "" {
			return core.SPFResult{Result: res, Record: record}
		}
		if matched {
			return core.SPFResult{
				Result:    qualifierResult(qualifier),
				Mechanism: term,
				Record:    record,
			}
		}
	}

	// The redirect modifier only applies when no mechanism matched.
	if redirect != "" {
		*lookups++
		if *lookups > maxSPFLookups {
			return core.SPFResult{Result: core.AuthPermError, Record: record}
		}
		return c.evalSPF(ctx, redirect, ip, lookups)
	}

	return core.SPFResult{Result: core.AuthNeutral, Record: record}
}

// fetchSPFRecord returns the record, or a non-empty result when the
// lookup itself settles the check.
func (c *Checker) fetchSPFRecord(ctx context.Context, domain string) (string, core.AuthResult) {
	txts, err := c.resolver.LookupTXT(ctx, domain)
	if err != nil {
		c.logger.Debug("SPF TXT lookup failed", zap.String("domain", domain), zap.Error(err))
		return "", core.AuthTempError
	}

	var record string
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=spf1") {
			if record != "" {
				// Multiple SPF records are a permanent error per RFC 7208.
				return "", core.AuthPermError
			}
			record = txt
		}
	}
	if record == "" {
		return "", core.AuthNone
	}
	return record, ""
}

func splitQualifier(term string) (byte, string) {
	if len(term) > 0 {
		switch term[0] {
		case '+', '-', '~', '?':
			return term[0], term[1:]
		}
	}
	return '+', term
}

func qualifierResult(q byte) core.AuthResult {
	switch q {
	case '-':
		return core.AuthFail
	case '~', '?':
		return core.AuthNeutral
	default:
		return core.AuthPass
	}
}

// matchMechanism reports whether the mechanism matches the source IP.
// A non-empty result short-circuits the walk (errors, includes that
// resolve to pass).
func (c *Checker) matchMechanism(ctx context.Context, mech, domain string, ip net.IP, lookups *int) (bool, core.AuthResult) {
	name, arg, _ := strings.Cut(mech, ":")
	name = strings.ToLower(name)

	switch name {
	case "all":
		return true, ""

	case "ip4", "ip6":
		return ipMatches(arg, ip), ""

	case "a":
		target := domain
		if arg != "" {
			target = arg
		}
		*lookups++
		if *lookups > maxSPFLookups {
			return false, core.AuthPermError
		}
		addrs, err := c.resolver.LookupA(ctx, target)
		if err != nil {
			return false, core.AuthTempError
		}
		for _, addr := range addrs {
			if addr.Equal(ip) {
				return true, ""
			}
		}
		return false, ""

	case "mx":
		target := domain
		if arg != "" {
			target = arg
		}
		*lookups++
		if *lookups > maxSPFLookups {
			return false, core.AuthPermError
		}
		hosts, err := c.resolver.LookupMX(ctx, target)
		if err != nil {
			return false, core.AuthTempError
		}
		for _, host := range hosts {
			addrs, err := c.resolver.LookupA(ctx, host)
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				if addr.Equal(ip) {
					return true, ""
				}
			}
		}
		return false, ""

	case "include":
		if arg == "" {
			return false, core.AuthPermError
		}
		*lookups++
		if *lookups > maxSPFLookups {
			return false, core.AuthPermError
		}
		sub := c.evalSPF(ctx, arg, ip, lookups)
		switch sub.Result {
		case core.AuthPass:
			return true, ""
		case core.AuthTempError, core.AuthPermError:
			return false, sub.Result
		default:
			return false, ""
		}

	case "exists", "ptr":
		// Rarely used; treated as non-matching rather than an error.
		return false, ""

	default:
		return false, core.AuthPermError
	}
}

// ipMatches checks an ip4/ip6 argument, with or without CIDR suffix.
func ipMatches(arg string, ip net.IP) bool {
	if arg == "" {
		return false
	}
	if strings.Contains(arg, "/") {
		_, cidr, err := net.ParseCIDR(arg)
		if err != nil {
			return false
		}
		return cidr.Contains(ip)
	}
	target := net.ParseIP(arg)
	return target != nil && target.Equal(ip)
}
