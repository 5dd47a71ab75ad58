package auth

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// checkDMARC fetches and parses the domain's published DMARC policy.
// A published policy counts as pass for scoring purposes; enforcement
// strength (p=reject) earns its bonus in the combined score.
func (c *Checker) checkDMARC(ctx context.Context, domain string) core.DMARCResult {
	if domain == "" {
		return core.DMARCResult{Result: core.AuthPermError}
	}

	txts, err := c.resolver.LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		c.logger.Debug("DMARC TXT lookup failed", zap.String("domain", domain), zap.Error(err))
		return core.DMARCResult{Result: core.AuthTempError}
	}

	var record string
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=DMARC1") {
			record = txt
			break
		}
	}
	if record == "" {
		return core.DMARCResult{Result: core.AuthNone}
	}

	res := core.DMARCResult{Result: core.AuthPass, Percent: 100}
	for _, part := range strings.Split(record, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		switch k {
		case "p":
			res.Policy = v
		case "sp":
			res.SubdomainPolicy = v
		case "pct":
			pct, err := strconv.Atoi(v)
			if err != nil || pct < 0 || pct > 100 {
				return core.DMARCResult{Result: core.AuthPermError}
			}
			res.Percent = pct
		case "rua":
			res.ReportURI = v
		}
	}

	if res.Policy == "" {
		// p= is mandatory in a DMARC record.
		return core.DMARCResult{Result: core.AuthPermError}
	}
	return res
}
