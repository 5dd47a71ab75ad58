package headers

import (
	"net"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/mikey/email-gateway/internal/core"
)

const (
	// maxDateStaleness is how old a Date header may be before the timing
	// looks anomalous; maxDateSkew bounds clock drift into the future.
	maxDateStaleness = 7 * 24 * time.Hour
	maxDateSkew      = time.Hour

	maxSubjectLength = 200
	maxTokenLength   = 100
)

var messageIDPattern = regexp.MustCompile(`^\s*<[^<>@\s]+@[^<>@\s]+>\s*$`)

// validateHeader dispatches to the per-name validator when one exists,
// falling back to the generic character-set checks.
func (a *Analyzer) validateHeader(name, value string) core.HeaderFinding {
	switch strings.ToLower(name) {
	case "from", "to", "return-path", "reply-to":
		return validateAddressHeader(name, value)
	case "subject":
		return validateSubject(name, value)
	case "date":
		return a.validateDate(name, value)
	case "message-id":
		return validateMessageID(name, value)
	case "received":
		return validateReceived(name, value)
	case "x-originating-ip":
		return validateOriginatingIP(name, value)
	default:
		return validateGeneric(name, value)
	}
}

func validFinding(name string) core.HeaderFinding {
	return core.HeaderFinding{Name: name, Valid: true, Risk: core.RiskSafe}
}

func invalidFinding(name string, risk core.RiskLevel, anomaly core.HeaderAnomaly, detail string) core.HeaderFinding {
	return core.HeaderFinding{
		Name:      name,
		Valid:     false,
		Risk:      risk,
		Anomalies: []core.HeaderAnomaly{anomaly},
		Detail:    detail,
	}
}

// validateAddressHeader checks mailbox syntax. Malformed addresses mark
// the header critical but never abort the pipeline.
func validateAddressHeader(name, value string) core.HeaderFinding {
	if strings.TrimSpace(value) == "" {
		return invalidFinding(name, core.RiskMedium, core.AnomalyInvalidFormat, "empty address")
	}
	// Return-Path may legitimately be "<>" for bounces.
	if strings.ToLower(name) == "return-path" && strings.TrimSpace(value) == "<>" {
		return validFinding(name)
	}
	if _, err := mail.ParseAddressList(value); err != nil {
		if _, err := mail.ParseAddress(value); err != nil {
			return invalidFinding(name, core.RiskCritical, core.AnomalyInvalidFormat, "unparseable address")
		}
	}
	return validateGeneric(name, value)
}

func validateSubject(name, value string) core.HeaderFinding {
	if len(value) > maxSubjectLength {
		return invalidFinding(name, core.RiskMedium, core.AnomalySuspiciousValues, "oversized subject")
	}
	letters := 0
	uppers := 0
	for _, r := range value {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	if letters > 10 && uppers == letters {
		return core.HeaderFinding{
			Name:      name,
			Valid:     true,
			Risk:      core.RiskLow,
			Anomalies: []core.HeaderAnomaly{core.AnomalySuspiciousValues},
			Detail:    "all-caps subject",
		}
	}
	return validateGeneric(name, value)
}

// validateDate parses the Date header and checks it against the
// analyzer's clock for staleness and future skew.
func (a *Analyzer) validateDate(name, value string) core.HeaderFinding {
	sent, err := mail.ParseDate(value)
	if err != nil {
		return invalidFinding(name, core.RiskHigh, core.AnomalyInvalidFormat, "unparseable date")
	}
	now := a.clock()
	if sent.After(now.Add(maxDateSkew)) {
		return invalidFinding(name, core.RiskHigh, core.AnomalyTimingAnomaly, "date in the future")
	}
	if now.Sub(sent) > maxDateStaleness {
		return core.HeaderFinding{
			Name:      name,
			Valid:     true,
			Risk:      core.RiskMedium,
			Anomalies: []core.HeaderAnomaly{core.AnomalyTimingAnomaly},
			Detail:    "stale date",
		}
	}
	return validFinding(name)
}

func validateMessageID(name, value string) core.HeaderFinding {
	if !messageIDPattern.MatchString(value) {
		return invalidFinding(name, core.RiskMedium, core.AnomalyInvalidFormat, "malformed message id")
	}
	return validFinding(name)
}

func validateReceived(name, value string) core.HeaderFinding {
	lower := strings.ToLower(value)
	if !strings.Contains(lower, "from") && !strings.Contains(lower, "by") {
		return invalidFinding(name, core.RiskMedium, core.AnomalyRoutingAnomaly, "malformed received line")
	}
	return validateGeneric(name, value)
}

func validateOriginatingIP(name, value string) core.HeaderFinding {
	trimmed := strings.Trim(strings.TrimSpace(value), "[]")
	if net.ParseIP(trimmed) == nil {
		return invalidFinding(name, core.RiskMedium, core.AnomalyInvalidFormat, "invalid originating ip")
	}
	return validFinding(name)
}

// validateGeneric applies the character-set and long-token checks every
// header must pass.
func validateGeneric(name, value string) core.HeaderFinding {
	for _, r := range value {
		if r < 0x20 && r != '\t' {
			return invalidFinding(name, core.RiskHigh, core.AnomalyEncodingAnomaly, "control characters in value")
		}
		if r == unicode.ReplacementChar {
			return invalidFinding(name, core.RiskMedium, core.AnomalyEncodingAnomaly, "invalid utf-8 in value")
		}
	}
	for _, token := range strings.Fields(value) {
		if len(token) > maxTokenLength && !strings.Contains(token, "://") {
			return core.HeaderFinding{
				Name:      name,
				Valid:     true,
				Risk:      core.RiskLow,
				Anomalies: []core.HeaderAnomaly{core.AnomalySuspiciousValues},
				Detail:    "suspicious long token",
			}
		}
	}
	return validFinding(name)
}

// addressDomain extracts the lowercased domain from an address header
// value, or "" when none can be parsed.
func addressDomain(value string) string {
	addr := strings.Trim(strings.TrimSpace(value), "<>")
	if parsed, err := mail.ParseAddress(value); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndexByte(addr, '@')
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}
