package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a store or cache has no entry for a key.
	ErrNotFound = errors.New("entry not found")
	// ErrExpired is returned when an entry exists but its retention window
	// has passed.
	ErrExpired = errors.New("entry expired")
)

// AuthenticationChecker validates SPF/DKIM/DMARC signals for an email.
type AuthenticationChecker interface {
	Check(ctx context.Context, email *InboundEmail) (*AuthenticationVerdict, error)
}

// ReputationChecker scores the sender domain and source IP of an email.
type ReputationChecker interface {
	Check(ctx context.Context, domain, sourceIP string) (*ReputationVerdict, error)
}

// HeaderAnalyzer validates structural and semantic anomalies in raw
// email headers. It is pure: identical input yields identical output.
type HeaderAnalyzer interface {
	Analyze(email *InboundEmail) *HeaderAnalysisResult
}

// AttachmentValidator classifies the risk of each attachment.
type AttachmentValidator interface {
	Validate(ctx context.Context, attachments []Attachment) ([]AttachmentVerdict, error)
}

// LinkRewriter extracts and scores links, rewriting each occurrence in
// the email body to a tracked redirect URL.
type LinkRewriter interface {
	Rewrite(ctx context.Context, email *InboundEmail) (*LinkRewriteResult, error)

	// Resolve maps a tracking-link id back to the original URL and its
	// analysis. Returns ErrNotFound for unknown ids and ErrExpired for
	// ids past their retention window.
	Resolve(ctx context.Context, linkID string) (*TrackedLink, error)
}

// ThreatDetector is the AI-backed assessment of a whole email. It is the
// only signal with no deterministic algorithm behind it.
type ThreatDetector interface {
	DetectThreats(ctx context.Context, email *InboundEmail) (*ThreatDetection, error)
}

// SandboxAnalyzer accepts attachments for detonation. Submission is
// fire-and-forget; a verdict may arrive much later via the callback
// registered with OnResult.
type SandboxAnalyzer interface {
	Submit(ctx context.Context, emailID string, attachment Attachment) error
	OnResult(fn func(emailID string, verdict AttachmentVerdict))
}

// EmailStore is the durable record of inbound emails, assessments and
// decisions. Failing to save the inbound email is fatal for the
// pipeline: no verdict can exist without an identity to attach it to.
type EmailStore interface {
	SaveEmail(ctx context.Context, email *InboundEmail) error
	SaveAssessment(ctx context.Context, assessment *CombinedThreatAssessment) error
	SaveDecision(ctx context.Context, decision *DecisionRecord) error
	GetAssessment(ctx context.Context, emailID string) (*CombinedThreatAssessment, error)
	ListQuarantined(ctx context.Context, limit int) ([]DecisionRecord, error)
}

// LinkStore retains the link-id to original-URL mapping for a bounded
// TTL so clicks on rewritten links can be resolved later. It must be
// safe for concurrent use by in-flight emails and click lookups.
type LinkStore interface {
	Put(ctx context.Context, link *TrackedLink, ttl time.Duration) error
	Get(ctx context.Context, linkID string) (*TrackedLink, error)
}

// ReputationCache is a read-mostly TTL cache of reputation verdicts
// keyed by entity (domain or IP).
type ReputationCache interface {
	Get(ctx context.Context, entity string) (*ReputationVerdict, error)
	Set(ctx context.Context, verdict *ReputationVerdict, ttl time.Duration) error
}
