package reputation

import (
	"regexp"
	"strings"
)

// disposableDomains is a static extract of well-known throwaway mail
// providers. A real deployment would sync this from a feed.
var disposableDomains = map[string]struct{}{
	"mailinator.com":     {},
	"guerrillamail.com":  {},
	"10minutemail.com":   {},
	"tempmail.com":       {},
	"temp-mail.org":      {},
	"throwaway.email":    {},
	"yopmail.com":        {},
	"sharklasers.com":    {},
	"getairmail.com":     {},
	"maildrop.cc":        {},
	"trashmail.com":      {},
	"fakeinbox.com":      {},
	"dispostable.com":    {},
	"mintemail.com":      {},
	"mytemp.email":       {},
	"mohmal.com":         {},
	"emailondeck.com":    {},
	"tempinbox.com":      {},
	"spamgourmet.com":    {},
	"33mail.com":         {},
	"burnermail.io":      {},
	"anonaddy.me":        {},
	"mail-temporaire.fr": {},
}

// knownBrands are frequent typosquatting targets.
var knownBrands = []string{
	"paypal", "amazon", "google", "microsoft", "apple", "netflix",
	"facebook", "instagram", "linkedin", "dropbox", "adobe", "chase",
	"wellsfargo", "bankofamerica", "docusign", "outlook", "office365",
}

var suspiciousTLDs = map[string]struct{}{
	"tk": {}, "ml": {}, "ga": {}, "cf": {}, "gq": {}, "top": {},
	"xyz": {}, "club": {}, "work": {}, "click": {}, "loan": {},
	"zip": {}, "icu": {}, "rest": {},
}

var (
	digitRunPattern  = regexp.MustCompile(`\d{4,}`)
	hyphenRunPattern = regexp.MustCompile(`-.*-.*-`)
	phishingKeywords = regexp.MustCompile(`(?i)(secure|verify|account|update|confirm|signin|login|support)[-.]`)
)

func isDisposableDomain(domain string) bool {
	_, ok := disposableDomains[strings.ToLower(domain)]
	return ok
}

// typosquatTarget reports which known brand a domain appears to imitate,
// or "" when none does. It flags brand substrings inside a longer
// registrable name and single-edit variations of the brand itself.
func typosquatTarget(domain string) string {
	base := registrableLabel(domain)
	for _, brand := range knownBrands {
		if base == brand {
			// The legitimate domain itself (or a non-TLD lookalike such
			// as paypal.tk, handled by the TLD scan instead).
			continue
		}
		if strings.Contains(base, brand) {
			return brand
		}
		if editDistanceOne(base, brand) {
			return brand
		}
	}
	return ""
}

// registrableLabel pulls the label left of the public suffix, e.g.
// "paypa1" from "paypa1.secure.example.tk".
func registrableLabel(domain string) string {
	labels := strings.Split(strings.ToLower(domain), ".")
	if len(labels) < 2 {
		return strings.ToLower(domain)
	}
	return labels[len(labels)-2]
}

// editDistanceOne reports whether b can be reached from a by a single
// substitution, insertion or deletion.
func editDistanceOne(a, b string) bool {
	if a == b {
		return false
	}
	la, lb := len(a), len(b)
	if la-lb > 1 || lb-la > 1 {
		return false
	}
	if la == lb {
		diff := 0
		for i := range a {
			if a[i] != b[i] {
				diff++
				if diff > 1 {
					return false
				}
			}
		}
		return diff == 1
	}
	// One insertion/deletion: align the shorter against the longer.
	long, short := a, b
	if la < lb {
		long, short = b, a
	}
	for i := 0; i <= len(short); i++ {
		if long[:i] == short[:i] && long[i+1:] == short[i:] {
			return true
		}
	}
	return false
}

// suspiciousPatternScore scans the domain for lexical red flags and
// returns a score in [0,1] plus indicators for every hit.
func suspiciousPatternScore(domain string) (float64, []string) {
	domain = strings.ToLower(domain)
	score := 0.8
	var indicators []string

	if idx := strings.LastIndex(domain, "."); idx >= 0 {
		if _, ok := suspiciousTLDs[domain[idx+1:]]; ok {
			score -= 0.3
			indicators = append(indicators, "suspicious_tld")
		}
	}
	if digitRunPattern.MatchString(domain) {
		score -= 0.2
		indicators = append(indicators, "digit_run_domain")
	}
	if hyphenRunPattern.MatchString(domain) {
		score -= 0.2
		indicators = append(indicators, "hyphenated_domain")
	}
	if phishingKeywords.MatchString(domain) {
		score -= 0.3
		indicators = append(indicators, "phishing_keyword_domain")
	}

	if score < 0 {
		score = 0
	}
	return score, indicators
}

// domainAgeScore is a lexical stand-in for a registration-age lookup:
// long, random-looking names are characteristic of freshly registered
// throwaway domains.
func domainAgeScore(domain string) float64 {
	base := registrableLabel(domain)
	switch {
	case len(base) > 25:
		return 0.2
	case len(base) > 15 && digitRunPattern.MatchString(base):
		return 0.3
	default:
		return 0.6
	}
}
