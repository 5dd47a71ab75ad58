// Package headers validates structural and semantic anomalies in raw
// email headers.
package headers

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// requiredHeaders must be present on every email; each missing one is
// flagged individually at high risk.
var requiredHeaders = []string{"From", "To", "Subject", "Date", "Message-ID"}

// maxReceivedHops is the Received-chain length beyond which routing
// looks anomalous.
const maxReceivedHops = 15

// Analyzer validates headers one by one and then checks cross-header
// relationships. It holds no mutable state: identical input yields
// identical output. Time-based checks use the injected clock.
type Analyzer struct {
	clock  func() time.Time
	logger *zap.Logger
}

// NewAnalyzer creates a header analyzer using the wall clock.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return NewAnalyzerWithClock(logger, time.Now)
}

// NewAnalyzerWithClock creates a header analyzer with a fixed or fake
// clock, used by the Date staleness checks.
func NewAnalyzerWithClock(logger *zap.Logger, clock func() time.Time) *Analyzer {
	return &Analyzer{clock: clock, logger: logger}
}

// Analyze validates every header and aggregates the findings into one
// overall risk score for the email.
func (a *Analyzer) Analyze(email *core.InboundEmail) *core.HeaderAnalysisResult {
	var findings []core.HeaderFinding
	var indicators []string

	for _, name := range requiredHeaders {
		if email.Header(name) == "" {
			findings = append(findings, core.HeaderFinding{
				Name:      name,
				Valid:     false,
				Risk:      core.RiskHigh,
				Anomalies: []core.HeaderAnomaly{core.AnomalyMissingHeaders},
				Detail:    "required header missing",
			})
			indicators = append(indicators, "missing_header:"+strings.ToLower(name))
		}
	}

	for _, h := range email.Headers {
		finding := a.validateHeader(h.Name, h.Value)
		findings = append(findings, finding)
		if !finding.Valid {
			indicators = append(indicators, "invalid_header:"+strings.ToLower(h.Name))
		}
	}

	penalty, relIndicators := a.relationshipChecks(email)
	indicators = append(indicators, relIndicators...)

	score := aggregateScore(findings, penalty)

	result := &core.HeaderAnalysisResult{
		Findings:   findings,
		RiskScore:  score,
		RiskLevel:  core.RiskLevelForScore(score),
		Indicators: indicators,
	}

	a.logger.Debug("Headers analyzed",
		zap.String("email_id", email.ID),
		zap.Int("headers", len(email.Headers)),
		zap.Float64("risk_score", score))

	return result
}

// aggregateScore averages per-header risk and adds relationship
// penalties, clamped to [0,1].
func aggregateScore(findings []core.HeaderFinding, penalty float64) float64 {
	if len(findings) == 0 {
		return penalty
	}
	var sum float64
	for _, f := range findings {
		sum += f.Risk.Score()
	}
	score := sum/float64(len(findings)) + penalty
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// relationshipChecks validates constraints spanning several headers.
func (a *Analyzer) relationshipChecks(email *core.InboundEmail) (float64, []string) {
	var penalty float64
	var indicators []string

	from := email.Header("From")
	returnPath := email.Header("Return-Path")
	replyTo := email.Header("Reply-To")

	if from != "" && returnPath != "" {
		if d1, d2 := addressDomain(from), addressDomain(returnPath); d1 != "" && d2 != "" && d1 != d2 {
			penalty += 0.15
			indicators = append(indicators, "from_return_path_mismatch")
		}
	}
	if from != "" && replyTo != "" {
		if d1, d2 := addressDomain(from), addressDomain(replyTo); d1 != "" && d2 != "" && d1 != d2 {
			penalty += 0.1
			indicators = append(indicators, "reply_to_mismatch")
		}
	}
	if hops := len(email.HeaderValues("Received")); hops > maxReceivedHops {
		penalty += 0.1
		indicators = append(indicators, fmt.Sprintf("excessive_received_hops:%d", hops))
	}
	if prio := strings.TrimSpace(email.Header("X-Priority")); prio == "1" || strings.HasPrefix(prio, "1 ") {
		penalty += 0.05
		indicators = append(indicators, "high_urgency_priority")
	}

	return penalty, indicators
}
