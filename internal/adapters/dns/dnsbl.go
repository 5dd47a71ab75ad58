package dns

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// defaultZones are the DNS blacklists consulted when none are configured.
var defaultZones = []string{
	"zen.spamhaus.org",
	"bl.spamcop.net",
	"b.barracudacentral.org",
}

// BlacklistFeed is a reputation feed backed by DNSBL zones. An IP listed
// on any zone scores low; domains and unlisted IPs score the neutral
// midpoint. Lookup errors degrade to neutral rather than failing.
type BlacklistFeed struct {
	resolver *Resolver
	zones    []string
	logger   *zap.Logger
}

// NewBlacklistFeed creates a DNSBL reputation feed.
func NewBlacklistFeed(resolver *Resolver, zones []string, logger *zap.Logger) *BlacklistFeed {
	if len(zones) == 0 {
		zones = defaultZones
	}
	return &BlacklistFeed{
		resolver: resolver,
		zones:    zones,
		logger:   logger,
	}
}

// Lookup checks the entity against every configured zone. Listing
// responses are 127.0.0.x A records per DNSBL convention.
func (f *BlacklistFeed) Lookup(ctx context.Context, entity string) (float64, error) {
	ip := net.ParseIP(entity)
	if ip == nil || ip.To4() == nil {
		// Only IPv4 sources have DNSBL coverage here.
		return 0.5, nil
	}

	query := reverseIPv4(ip)
	listedOn := 0
	for _, zone := range f.zones {
		addrs, err := f.resolver.LookupA(ctx, query+"."+zone)
		if err != nil {
			// NXDOMAIN means not listed; transport errors mean unknown.
			continue
		}
		for _, addr := range addrs {
			if strings.HasPrefix(addr.String(), "127.0.0.") {
				listedOn++
				break
			}
		}
	}

	if listedOn == 0 {
		return 0.5, nil
	}

	f.logger.Info("Source IP listed on DNSBL",
		zap.String("ip", entity),
		zap.Int("zones", listedOn))

	// Each additional listing drops the score further.
	score := 0.2 - 0.05*float64(listedOn-1)
	if score < 0 {
		score = 0
	}
	return score, nil
}

func reverseIPv4(ip net.IP) string {
	v4 := ip.To4()
	return fmt.Sprintf("%d.%d.%d.%d", v4[3], v4[2], v4[1], v4[0])
}
