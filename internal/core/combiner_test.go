package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombineAllSignalsAbsentIsNeutral(t *testing.T) {
	c := NewCombiner()
	assessment := c.Combine("email-1", nil, nil, nil, nil, nil, nil)
	assert.Equal(t, neutralScore, assessment.ThreatScore)
	assert.Equal(t, "email-1", assessment.EmailID)
}

func TestCombineRenormalizesOverPresentSignals(t *testing.T) {
	c := NewCombiner()

	// Only the detector present: its score must carry through at full
	// weight rather than being averaged against absent signals.
	assessment := c.Combine("email-1", nil, nil, nil, nil, nil, &ThreatDetection{
		ThreatScore: 0.9,
		ThreatType:  "phishing",
		Confidence:  0.8,
	})
	assert.InDelta(t, 0.9, assessment.ThreatScore, 1e-9)
	assert.Equal(t, "phishing", assessment.ThreatType)
	assert.Equal(t, 0.8, assessment.Confidence)
}

func TestCombineAveragesEqualWeights(t *testing.T) {
	c := NewCombiner()

	// Auth fully passing (risk 0) and detector at 1.0 average to 0.5.
	assessment := c.Combine("email-1",
		&AuthenticationVerdict{Score: 1.0},
		nil, nil, nil, nil,
		&ThreatDetection{ThreatScore: 1.0})
	assert.InDelta(t, 0.5, assessment.ThreatScore, 1e-9)
}

func TestCombineInvertsTrustScores(t *testing.T) {
	c := NewCombiner()

	// Bad reputation (trust 0.1) alone translates to high risk.
	assessment := c.Combine("email-1", nil,
		&ReputationVerdict{Score: 0.1, Level: ReputationMalicious},
		nil, nil, nil, nil)
	assert.InDelta(t, 0.9, assessment.ThreatScore, 1e-9)
}

func TestCombineAttachmentsUseWorstRisk(t *testing.T) {
	c := NewCombiner()

	verdicts := []AttachmentVerdict{
		{Filename: "notes.txt", Risk: RiskSafe, IsSafe: true},
		{Filename: "invoice.exe", Risk: RiskCritical, Threats: []AttachmentThreat{ThreatMalware}},
		{Filename: "photo.jpg", Risk: RiskSafe, IsSafe: true},
	}
	assessment := c.Combine("email-1", nil, nil, nil, verdicts, nil, nil)

	// One critical attachment dominates regardless of how many clean
	// ones surround it.
	assert.InDelta(t, RiskCritical.Score(), assessment.ThreatScore, 1e-9)
}

func TestCombineEmptyAttachmentsCountAsAbsent(t *testing.T) {
	c := NewCombiner()

	withEmpty := c.Combine("email-1", nil, nil, nil, []AttachmentVerdict{}, nil,
		&ThreatDetection{ThreatScore: 0.6})
	withNil := c.Combine("email-1", nil, nil, nil, nil, nil,
		&ThreatDetection{ThreatScore: 0.6})
	assert.Equal(t, withNil.ThreatScore, withEmpty.ThreatScore)
}

func TestCombineCollectsIndicators(t *testing.T) {
	c := NewCombiner()

	assessment := c.Combine("email-1",
		&AuthenticationVerdict{
			Score: 0.2,
			SPF:   SPFResult{Result: AuthFail},
			DKIM:  DKIMResult{Result: AuthFail},
			DMARC: DMARCResult{Result: AuthPass},
		},
		&ReputationVerdict{Score: 0.3, Indicators: []string{"disposable_domain"}},
		&HeaderAnalysisResult{RiskScore: 0.4, Indicators: []string{"missing_header:Date"}},
		nil,
		&LinkRewriteResult{Links: []LinkVerdict{
			{Domain: "evil.zip", Risk: RiskHigh},
			{Domain: "fine.example.com", Risk: RiskSafe},
		}},
		nil)

	assert.Contains(t, assessment.Indicators, "spf_fail")
	assert.Contains(t, assessment.Indicators, "dkim_fail")
	assert.NotContains(t, assessment.Indicators, "dmarc_fail")
	assert.Contains(t, assessment.Indicators, "disposable_domain")
	assert.Contains(t, assessment.Indicators, "missing_header:Date")
	assert.Contains(t, assessment.Indicators, "suspicious_link:evil.zip")
	assert.NotContains(t, assessment.Indicators, "suspicious_link:fine.example.com")
}

func TestCombineScoreStaysInRange(t *testing.T) {
	c := NewCombiner()

	tests := []struct {
		name      string
		detection *ThreatDetection
	}{
		{"score above one", &ThreatDetection{ThreatScore: 3.5}},
		{"negative score", &ThreatDetection{ThreatScore: -2.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessment := c.Combine("email-1", nil, nil, nil, nil, nil, tt.detection)
			assert.GreaterOrEqual(t, assessment.ThreatScore, 0.0)
			assert.LessOrEqual(t, assessment.ThreatScore, 1.0)
		})
	}
}

type combineInputs struct {
	auth        *AuthenticationVerdict
	reputation  *ReputationVerdict
	headers     *HeaderAnalysisResult
	attachments []AttachmentVerdict
	detection   *ThreatDetection
}

func moderateInputs() combineInputs {
	return combineInputs{
		auth:        &AuthenticationVerdict{Score: 0.6},
		reputation:  &ReputationVerdict{Score: 0.6, Level: ReputationGood},
		headers:     &HeaderAnalysisResult{RiskScore: 0.4, RiskLevel: RiskMedium},
		attachments: []AttachmentVerdict{{Filename: "report.pdf", Risk: RiskMedium}},
		detection:   &ThreatDetection{ThreatScore: 0.4},
	}
}

func (in combineInputs) combine(c *Combiner) float64 {
	return c.Combine("email-1", in.auth, in.reputation, in.headers,
		in.attachments, nil, in.detection).ThreatScore
}

func TestCombineIsMonotonicPerSignal(t *testing.T) {
	tests := []struct {
		name  string
		worse func(in *combineInputs)
	}{
		{
			name:  "weaker authentication",
			worse: func(in *combineInputs) { in.auth.Score = 0.1 },
		},
		{
			name:  "worse reputation",
			worse: func(in *combineInputs) { in.reputation.Score = 0.1 },
		},
		{
			name:  "riskier headers",
			worse: func(in *combineInputs) { in.headers.RiskScore = 0.9 },
		},
		{
			name: "worse attachment risk",
			worse: func(in *combineInputs) {
				in.attachments[0].Risk = RiskCritical
			},
		},
		{
			name: "additional risky attachment",
			worse: func(in *combineInputs) {
				in.attachments = append(in.attachments, AttachmentVerdict{
					Filename: "invoice.exe",
					Risk:     RiskCritical,
				})
			},
		},
		{
			name:  "higher detector score",
			worse: func(in *combineInputs) { in.detection.ThreatScore = 0.95 },
		},
	}

	c := NewCombiner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := moderateInputs()
			before := baseline.combine(c)

			perturbed := moderateInputs()
			tt.worse(&perturbed)
			after := perturbed.combine(c)

			// Raising any single risk input must never lower the
			// combined score.
			assert.GreaterOrEqual(t, after, before)
		})
	}
}
