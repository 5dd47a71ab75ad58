package core

// Signal weights for the combined threat score. Illustrative defaults,
// not calibrated security parameters.
const (
	weightAuth       = 0.2
	weightReputation = 0.2
	weightHeaders    = 0.2
	weightAttachment = 0.2
	weightDetector   = 0.2

	// neutralScore is used when no signal at all could be computed. Total
	// absence of evidence must never allow or block on its own.
	neutralScore = 0.5
)

// Combiner merges the five independent signals into one threat score.
// A signal that could not be computed is omitted from both numerator and
// denominator: the weighted average is renormalized over the signals
// actually present, so a missing signal is neither zero risk nor full risk.
type Combiner struct{}

// NewCombiner creates a new threat score combiner.
func NewCombiner() *Combiner {
	return &Combiner{}
}

// Combine builds the final assessment for an email. Nil inputs mark the
// corresponding signal as absent. Attachment verdicts with zero entries
// also count as absent (an email without attachments carries no
// attachment evidence either way).
func (c *Combiner) Combine(
	emailID string,
	auth *AuthenticationVerdict,
	reputation *ReputationVerdict,
	headers *HeaderAnalysisResult,
	attachments []AttachmentVerdict,
	links *LinkRewriteResult,
	detection *ThreatDetection,
) *CombinedThreatAssessment {
	var weightedSum, totalWeight float64
	var indicators []string

	if auth != nil {
		// Authentication score is goodness; invert it for risk.
		weightedSum += weightAuth * (1.0 - auth.Score)
		totalWeight += weightAuth
		if auth.SPF.Result == AuthFail {
			indicators = append(indicators, "spf_fail")
		}
		if auth.DKIM.Result == AuthFail {
			indicators = append(indicators, "dkim_fail")
		}
		if auth.DMARC.Result == AuthFail {
			indicators = append(indicators, "dmarc_fail")
		}
	}

	if reputation != nil {
		weightedSum += weightReputation * (1.0 - reputation.Score)
		totalWeight += weightReputation
		indicators = append(indicators, reputation.Indicators...)
	}

	if headers != nil {
		weightedSum += weightHeaders * headers.RiskScore
		totalWeight += weightHeaders
		indicators = append(indicators, headers.Indicators...)
	}

	if len(attachments) > 0 {
		worst := WorstAttachmentRisk(attachments)
		weightedSum += weightAttachment * worst.Score()
		totalWeight += weightAttachment
		for _, v := range attachments {
			indicators = append(indicators, v.Indicators...)
		}
	}

	var confidence float64
	var threatType string
	if detection != nil {
		weightedSum += weightDetector * detection.ThreatScore
		totalWeight += weightDetector
		indicators = append(indicators, detection.Indicators...)
		confidence = detection.Confidence
		threatType = detection.ThreatType
	}

	// Link risk rides along as indicators; the link signal feeds the
	// header-independent rewriting path, not the weighted average.
	if links != nil {
		for _, l := range links.Links {
			if l.Risk == RiskHigh || l.Risk == RiskCritical {
				indicators = append(indicators, "suspicious_link:"+l.Domain)
			}
		}
	}

	score := neutralScore
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return &CombinedThreatAssessment{
		EmailID:     emailID,
		ThreatScore: score,
		ThreatType:  threatType,
		Confidence:  confidence,
		Indicators:  indicators,
		Auth:        auth,
		Reputation:  reputation,
		Headers:     headers,
		Attachments: attachments,
		Links:       links,
		Detection:   detection,
	}
}
