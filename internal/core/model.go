package core

import (
	"strings"
	"time"
)

// Header is a single raw email header. Headers are kept as a slice rather
// than a map so insertion order survives parsing.
type Header struct {
	Name  string
	Value string
}

// Attachment represents a single email attachment.
type Attachment struct {
	Filename string
	MimeType string
	Size     int64
	Content  []byte
}

// InboundEmail is the authoritative input to the gateway pipeline. It is
// immutable once received; every verdict references it by ID.
type InboundEmail struct {
	ID          string
	MessageID   string
	Sender      string
	Recipients  []string
	Subject     string
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
	Headers     []Header
	SourceIP    string
	ReceivedAt  time.Time

	// Raw is the message as received on the wire. DKIM verification
	// needs the untouched bytes; a reconstructed message would break
	// body canonicalization.
	Raw []byte
}

// Header returns the first value of the named header, case-insensitively.
func (e *InboundEmail) Header(name string) string {
	for _, h := range e.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns all values of the named header in order.
func (e *InboundEmail) HeaderValues(name string) []string {
	var values []string
	for _, h := range e.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// SenderDomain extracts the domain part of the envelope sender.
func (e *InboundEmail) SenderDomain() string {
	parts := strings.Split(e.Sender, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// AuthResult is the outcome of a single SPF, DKIM or DMARC check.
type AuthResult string

const (
	AuthPass      AuthResult = "pass"
	AuthFail      AuthResult = "fail"
	AuthNeutral   AuthResult = "neutral"
	AuthNone      AuthResult = "none"
	AuthTempError AuthResult = "temperror"
	AuthPermError AuthResult = "permerror"
)

// SPFResult holds the SPF evaluation for a sender domain.
type SPFResult struct {
	Result    AuthResult
	Mechanism string
	Record    string
}

// DKIMResult holds the DKIM verification outcome for a message.
type DKIMResult struct {
	Result   AuthResult
	Domain   string
	Selector string
}

// DMARCResult holds the published DMARC policy for a sender domain.
type DMARCResult struct {
	Result          AuthResult
	Policy          string
	SubdomainPolicy string
	Percent         int
	ReportURI       string
}

// AuthenticationVerdict is the combined SPF/DKIM/DMARC verdict for one
// email. Score is in [0,1] where 1 means fully authenticated.
type AuthenticationVerdict struct {
	SPF   SPFResult
	DKIM  DKIMResult
	DMARC DMARCResult
	Score float64
}

// ReputationLevel is the discrete reputation classification of a domain
// or source IP.
type ReputationLevel string

const (
	ReputationTrusted    ReputationLevel = "trusted"
	ReputationGood       ReputationLevel = "good"
	ReputationNeutral    ReputationLevel = "neutral"
	ReputationSuspicious ReputationLevel = "suspicious"
	ReputationMalicious  ReputationLevel = "malicious"
	ReputationUnknown    ReputationLevel = "unknown"
)

// ReputationScoreLevel maps a reputation score in [0,1] to its discrete level.
func ReputationScoreLevel(score float64) ReputationLevel {
	switch {
	case score >= 0.8:
		return ReputationTrusted
	case score >= 0.6:
		return ReputationGood
	case score >= 0.4:
		return ReputationNeutral
	case score >= 0.2:
		return ReputationSuspicious
	default:
		return ReputationMalicious
	}
}

// ReputationVerdict scores a checked entity (domain or IP). Score is in
// [0,1] where 1 means fully trusted.
type ReputationVerdict struct {
	Entity     string
	Score      float64
	Level      ReputationLevel
	Indicators []string
	CheckedAt  time.Time
}

// RiskLevel is the shared five-step risk scale used by the header,
// attachment and link analyzers.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Score maps a risk level to its numeric value.
func (r RiskLevel) Score() float64 {
	switch r {
	case RiskLow:
		return 0.2
	case RiskMedium:
		return 0.5
	case RiskHigh:
		return 0.8
	case RiskCritical:
		return 1.0
	default:
		return 0.0
	}
}

// MaxRiskLevel returns the higher of two risk levels.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if b.Score() > a.Score() {
		return b
	}
	return a
}

// RiskLevelForScore maps a numeric risk back to the discrete scale.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.9:
		return RiskCritical
	case score >= 0.65:
		return RiskHigh
	case score >= 0.35:
		return RiskMedium
	case score > 0.1:
		return RiskLow
	default:
		return RiskSafe
	}
}

// HeaderAnomaly tags the kind of header problem a validator found.
type HeaderAnomaly string

const (
	AnomalyMissingHeaders   HeaderAnomaly = "missing_headers"
	AnomalyInvalidFormat    HeaderAnomaly = "invalid_format"
	AnomalySuspiciousValues HeaderAnomaly = "suspicious_values"
	AnomalySpoofingAttempt  HeaderAnomaly = "spoofing_attempt"
	AnomalyRoutingAnomaly   HeaderAnomaly = "routing_anomaly"
	AnomalyTimingAnomaly    HeaderAnomaly = "timing_anomaly"
	AnomalyEncodingAnomaly  HeaderAnomaly = "encoding_anomaly"
)

// HeaderFinding is the validation outcome for a single header.
type HeaderFinding struct {
	Name      string
	Valid     bool
	Risk      RiskLevel
	Anomalies []HeaderAnomaly
	Detail    string
}

// HeaderAnalysisResult aggregates per-header findings into one overall
// risk for the email.
type HeaderAnalysisResult struct {
	Findings   []HeaderFinding
	RiskScore  float64
	RiskLevel  RiskLevel
	Indicators []string
}

// AttachmentThreat tags the kind of threat an attachment check found.
type AttachmentThreat string

const (
	ThreatMalware           AttachmentThreat = "malware"
	ThreatMacroVirus        AttachmentThreat = "macro_virus"
	ThreatArchiveBomb       AttachmentThreat = "archive_bomb"
	ThreatDoubleExtension   AttachmentThreat = "double_extension"
	ThreatEncrypted         AttachmentThreat = "encrypted"
	ThreatSuspiciousContent AttachmentThreat = "suspicious_content"
	ThreatOversized         AttachmentThreat = "oversized"
)

// AttachmentVerdict is the risk classification of a single attachment.
type AttachmentVerdict struct {
	Filename     string
	DetectedMime string
	Category     string
	Risk         RiskLevel
	Threats      []AttachmentThreat
	IsSafe       bool
	Indicators   []string
}

// LinkVerdict is the risk classification of a single extracted link.
type LinkVerdict struct {
	LinkID      string
	OriginalURL string
	TrackingURL string
	Domain      string
	Risk        RiskLevel
	Indicators  []string
}

// LinkRewriteResult holds all link verdicts for an email plus the body
// content with every original URL substituted by its tracking URL.
type LinkRewriteResult struct {
	Links            []LinkVerdict
	RewrittenText    string
	RewrittenHTML    string
	HighestRisk      RiskLevel
	TruncatedAtLimit bool
}

// TrackedLink is the server-side mapping from a rewritten link back to
// its original URL, retained for click-time resolution.
type TrackedLink struct {
	LinkID      string
	EmailID     string
	OriginalURL string
	Risk        RiskLevel
	Indicators  []string
	CreatedAt   time.Time
}

// ThreatDetection is the AI detector's independent assessment of the
// whole email.
type ThreatDetection struct {
	ThreatScore float64
	ThreatType  string
	Confidence  float64
	Indicators  []string
	ModelUsed   string
	DetectedAt  time.Time
}

// EmailAction is the terminal zero-trust decision for an email.
type EmailAction string

const (
	ActionAllow      EmailAction = "allow"
	ActionQuarantine EmailAction = "quarantine"
	ActionBlock      EmailAction = "block"
	ActionSandbox    EmailAction = "sandbox"
)

// CombinedThreatAssessment merges every signal into the final threat
// score for an email. Created once per email and never mutated.
type CombinedThreatAssessment struct {
	EmailID     string
	ThreatScore float64
	ThreatType  string
	Confidence  float64
	Indicators  []string
	Auth        *AuthenticationVerdict
	Reputation  *ReputationVerdict
	Headers     *HeaderAnalysisResult
	Attachments []AttachmentVerdict
	Links       *LinkRewriteResult
	Detection   *ThreatDetection
	ProcessedAt time.Time
}

// WorstAttachmentRisk returns the maximum risk across all attachment
// verdicts, or RiskSafe when there are none.
func WorstAttachmentRisk(verdicts []AttachmentVerdict) RiskLevel {
	risk := RiskSafe
	for _, v := range verdicts {
		risk = MaxRiskLevel(risk, v.Risk)
	}
	return risk
}

// DecisionRecord is one immutable entry in the audit trail for an email.
// Human review (release, whitelist, blacklist) appends new records, it
// never rewrites old ones.
type DecisionRecord struct {
	ID        string
	EmailID   string
	Action    EmailAction
	Reason    string
	Actor     string
	CreatedAt time.Time
}

// GatewayResponse is what the gateway returns to its caller for one
// processed email.
type GatewayResponse struct {
	EmailID        string
	Action         EmailAction
	ThreatScore    float64
	ThreatType     string
	Confidence     float64
	Indicators     []string
	ProcessingTime time.Duration
}
