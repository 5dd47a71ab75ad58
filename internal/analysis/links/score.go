package links

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/mikey/email-gateway/internal/core"
)

var linkPattern = regexp.MustCompile(`(?i)\b(?:https?://[^\s<>"']+|mailto:[^\s<>"']+|tel:[+\d][-\d().\s]{3,}\d|file://[^\s<>"']+)`)

// extractLinks pulls unique links in first-appearance order, capped at
// max. Links beyond the cap are silently dropped, never rejected.
func extractLinks(content string, max int) ([]string, bool) {
	matches := linkPattern.FindAllString(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var urls []string
	truncated := false
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)")
		if _, dup := seen[m]; dup {
			continue
		}
		if len(urls) >= max {
			truncated = true
			break
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls, truncated
}

// urlShorteners hide the destination behind a redirect.
var urlShorteners = map[string]struct{}{
	"bit.ly": {}, "tinyurl.com": {}, "goo.gl": {}, "t.co": {},
	"ow.ly": {}, "is.gd": {}, "buff.ly": {}, "rebrand.ly": {},
	"cutt.ly": {}, "shorturl.at": {}, "rb.gy": {}, "tiny.cc": {},
}

var suspiciousLinkTLDs = map[string]struct{}{
	"tk": {}, "ml": {}, "ga": {}, "cf": {}, "gq": {}, "top": {},
	"xyz": {}, "click": {}, "link": {}, "zip": {}, "icu": {},
}

var consonantRun = regexp.MustCompile(`[bcdfghjklmnpqrstvwxz]{5,}`)

// scoreLink runs the suspicious-pattern scan and maps the number of
// high-risk hits to a risk level: three or more is critical, two high,
// one medium; low-grade flags alone rate low.
func (r *Rewriter) scoreLink(original string) core.LinkVerdict {
	verdict := core.LinkVerdict{OriginalURL: original, Risk: core.RiskSafe}

	lower := strings.ToLower(original)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		// Contact links carry no navigable destination to score.
		return verdict
	}

	var highRisk, lowGrade []string

	if strings.HasPrefix(lower, "file://") {
		highRisk = append(highRisk, "file_scheme_link")
	}

	parsed, err := url.Parse(original)
	if err != nil || parsed.Hostname() == "" {
		verdict.Risk = core.RiskMedium
		verdict.Indicators = []string{"unparseable_link"}
		return verdict
	}
	domain := strings.ToLower(parsed.Hostname())
	verdict.Domain = domain

	if _, safe := r.safeDomains[domain]; safe {
		verdict.Indicators = []string{"safe_listed_domain"}
		return verdict
	}

	if _, ok := urlShorteners[domain]; ok {
		highRisk = append(highRisk, "url_shortener")
	}
	if net.ParseIP(domain) != nil {
		highRisk = append(highRisk, "ip_literal_link")
	}
	if idx := strings.LastIndex(domain, "."); idx >= 0 {
		if _, ok := suspiciousLinkTLDs[domain[idx+1:]]; ok {
			highRisk = append(highRisk, "suspicious_link_tld")
		}
	}
	if strings.Contains(domain, "xn--") {
		highRisk = append(highRisk, "punycode_domain")
	}
	if parsed.User != nil {
		highRisk = append(highRisk, "credentials_in_link")
	}
	if consonantRun.MatchString(domain) {
		highRisk = append(highRisk, "random_looking_domain")
	}

	if len(domain) > 40 {
		lowGrade = append(lowGrade, "oversized_domain")
	}
	if strings.Count(domain, ".") > 4 {
		lowGrade = append(lowGrade, "deep_subdomain_chain")
	}

	verdict.Indicators = append(highRisk, lowGrade...)
	switch {
	case len(highRisk) >= 3:
		verdict.Risk = core.RiskCritical
	case len(highRisk) == 2:
		verdict.Risk = core.RiskHigh
	case len(highRisk) == 1:
		verdict.Risk = core.RiskMedium
	case len(lowGrade) > 0:
		verdict.Risk = core.RiskLow
	}
	return verdict
}
