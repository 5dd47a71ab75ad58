package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/metrics"
)

type fakeAuth struct {
	verdict *AuthenticationVerdict
	err     error
}

func (f *fakeAuth) Check(_ context.Context, _ *InboundEmail) (*AuthenticationVerdict, error) {
	return f.verdict, f.err
}

type fakeReputation struct {
	verdict *ReputationVerdict
	err     error
}

func (f *fakeReputation) Check(_ context.Context, _, _ string) (*ReputationVerdict, error) {
	return f.verdict, f.err
}

type fakeHeaders struct {
	result *HeaderAnalysisResult
}

func (f *fakeHeaders) Analyze(_ *InboundEmail) *HeaderAnalysisResult {
	return f.result
}

type fakeAttachments struct {
	verdicts []AttachmentVerdict
	err      error
}

func (f *fakeAttachments) Validate(_ context.Context, _ []Attachment) ([]AttachmentVerdict, error) {
	return f.verdicts, f.err
}

type fakeLinks struct {
	result *LinkRewriteResult
	err    error
}

func (f *fakeLinks) Rewrite(_ context.Context, _ *InboundEmail) (*LinkRewriteResult, error) {
	return f.result, f.err
}

func (f *fakeLinks) Resolve(_ context.Context, _ string) (*TrackedLink, error) {
	return nil, ErrNotFound
}

type fakeDetector struct {
	detection *ThreatDetection
	err       error
	delay     time.Duration
}

func (f *fakeDetector) DetectThreats(ctx context.Context, _ *InboundEmail) (*ThreatDetection, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.detection, f.err
}

type memStore struct {
	mu          sync.Mutex
	emails      map[string]*InboundEmail
	assessments map[string]*CombinedThreatAssessment
	decisions   []DecisionRecord
}

func newMemStore() *memStore {
	return &memStore{
		emails:      make(map[string]*InboundEmail),
		assessments: make(map[string]*CombinedThreatAssessment),
	}
}

func (s *memStore) SaveEmail(_ context.Context, email *InboundEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[email.ID] = email
	return nil
}

func (s *memStore) SaveAssessment(_ context.Context, assessment *CombinedThreatAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[assessment.EmailID] = assessment
	return nil
}

func (s *memStore) SaveDecision(_ context.Context, decision *DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, *decision)
	return nil
}

func (s *memStore) GetAssessment(_ context.Context, emailID string) (*CombinedThreatAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assessments[emailID]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (s *memStore) ListQuarantined(_ context.Context, limit int) ([]DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DecisionRecord
	for _, d := range s.decisions {
		if d.Action == ActionQuarantine {
			out = append(out, d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) decisionsFor(emailID string) []DecisionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DecisionRecord
	for _, d := range s.decisions {
		if d.EmailID == emailID {
			out = append(out, d)
		}
	}
	return out
}

type serviceFixture struct {
	service *GatewayService
	store   *memStore
	policy  *PolicyEngine
}

func newFixture(t *testing.T, opts ...func(*serviceOptions)) *serviceFixture {
	t.Helper()

	o := &serviceOptions{
		auth:        &fakeAuth{verdict: &AuthenticationVerdict{Score: 1.0, SPF: SPFResult{Result: AuthPass}}},
		reputation:  &fakeReputation{verdict: &ReputationVerdict{Score: 0.9, Level: ReputationTrusted}},
		headers:     &fakeHeaders{result: &HeaderAnalysisResult{RiskScore: 0.0, RiskLevel: RiskSafe}},
		attachments: &fakeAttachments{},
		links:       &fakeLinks{result: &LinkRewriteResult{}},
		detector:    &fakeDetector{detection: &ThreatDetection{ThreatScore: 0.0, ThreatType: "none"}},
		timeout:     time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	policy, err := NewPolicyEngine(PolicyThresholds{Block: 0.85, Quarantine: 0.65, Sandbox: 0.45}, nil, o.denyDomains)
	require.NoError(t, err)

	store := newMemStore()
	service := NewGatewayService(
		o.auth, o.reputation, o.headers, o.attachments, o.links, o.detector,
		nil, store, policy, metrics.New(), zap.NewNop(), o.timeout)

	return &serviceFixture{service: service, store: store, policy: policy}
}

type serviceOptions struct {
	auth        AuthenticationChecker
	reputation  ReputationChecker
	headers     HeaderAnalyzer
	attachments AttachmentValidator
	links       LinkRewriter
	detector    ThreatDetector
	denyDomains []string
	timeout     time.Duration
}

func cleanEmail() *InboundEmail {
	return &InboundEmail{
		Sender:     "alice@example.com",
		Recipients: []string{"bob@corp.example"},
		Subject:    "Quarterly numbers",
		BodyText:   "See you Monday.",
	}
}

func TestProcessEmailCleanMessageAllowed(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.ProcessEmail(context.Background(), cleanEmail())
	require.NoError(t, err)

	assert.Equal(t, ActionAllow, resp.Action)
	assert.NotEmpty(t, resp.EmailID)
	assert.Less(t, resp.ThreatScore, 0.45)

	decisions := f.store.decisionsFor(resp.EmailID)
	require.Len(t, decisions, 1)
	assert.Equal(t, ActionAllow, decisions[0].Action)
	assert.Equal(t, "gateway", decisions[0].Actor)
}

func TestProcessEmailDeniedDomainBlocked(t *testing.T) {
	f := newFixture(t, func(o *serviceOptions) {
		o.denyDomains = []string{"example.com"}
	})

	resp, err := f.service.ProcessEmail(context.Background(), cleanEmail())
	require.NoError(t, err)

	// Deny list wins even for a message every signal considers clean.
	assert.Equal(t, ActionBlock, resp.Action)
}

func TestProcessEmailMalwareAttachmentNeverAllowed(t *testing.T) {
	f := newFixture(t, func(o *serviceOptions) {
		o.attachments = &fakeAttachments{verdicts: []AttachmentVerdict{{
			Filename: "invoice.exe",
			Risk:     RiskCritical,
			Threats:  []AttachmentThreat{ThreatMalware},
			IsSafe:   false,
		}}}
	})

	email := cleanEmail()
	email.Attachments = []Attachment{{Filename: "invoice.exe", MimeType: "application/octet-stream", Size: 1024}}

	resp, err := f.service.ProcessEmail(context.Background(), email)
	require.NoError(t, err)

	// All other signals are clean, so the weighted average alone would
	// land below every threshold. The critical attachment must still
	// keep the message from being delivered.
	assert.NotEqual(t, ActionAllow, resp.Action)
	assert.Equal(t, ActionQuarantine, resp.Action)
	assert.Contains(t, resp.Indicators, "critical_attachment_hold")
}

func TestProcessEmailSignalFailureDoesNotBlockPipeline(t *testing.T) {
	f := newFixture(t, func(o *serviceOptions) {
		o.detector = &fakeDetector{err: context.DeadlineExceeded}
	})

	resp, err := f.service.ProcessEmail(context.Background(), cleanEmail())
	require.NoError(t, err)

	// Detector down, everything else clean: still a decision, still allow.
	assert.Equal(t, ActionAllow, resp.Action)
}

func TestProcessEmailTimeoutQuarantinesFailSafe(t *testing.T) {
	f := newFixture(t, func(o *serviceOptions) {
		o.timeout = 20 * time.Millisecond
		o.detector = &fakeDetector{delay: time.Second, detection: &ThreatDetection{ThreatScore: 0.0}}
	})

	resp, err := f.service.ProcessEmail(context.Background(), cleanEmail())
	require.NoError(t, err)

	assert.Equal(t, ActionQuarantine, resp.Action)
	assert.Contains(t, resp.Indicators, "pipeline_timeout")

	decisions := f.store.decisionsFor(resp.EmailID)
	require.Len(t, decisions, 1)
	assert.Equal(t, ActionQuarantine, decisions[0].Action)
}

func TestReleaseEmailAppendsDecision(t *testing.T) {
	f := newFixture(t, func(o *serviceOptions) {
		o.detector = &fakeDetector{detection: &ThreatDetection{ThreatScore: 1.0, ThreatType: "phishing"}}
		o.auth = &fakeAuth{verdict: &AuthenticationVerdict{Score: 0.0}}
		o.reputation = &fakeReputation{verdict: &ReputationVerdict{Score: 0.0, Level: ReputationMalicious}}
		o.headers = &fakeHeaders{result: &HeaderAnalysisResult{RiskScore: 1.0, RiskLevel: RiskCritical}}
	})

	resp, err := f.service.ProcessEmail(context.Background(), cleanEmail())
	require.NoError(t, err)
	require.Equal(t, ActionBlock, resp.Action)

	require.NoError(t, f.service.ReleaseEmail(context.Background(), resp.EmailID, "analyst@corp.example"))

	decisions := f.store.decisionsFor(resp.EmailID)
	require.Len(t, decisions, 2)
	// The original decision is untouched; review appends.
	assert.Equal(t, ActionBlock, decisions[0].Action)
	assert.Equal(t, ActionAllow, decisions[1].Action)
	assert.Equal(t, "analyst@corp.example", decisions[1].Actor)
}

func TestReleaseEmailUnknownIDFails(t *testing.T) {
	f := newFixture(t)
	err := f.service.ReleaseEmail(context.Background(), "no-such-email", "analyst")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWhitelistSenderAffectsFutureTraffic(t *testing.T) {
	f := newFixture(t, func(o *serviceOptions) {
		o.detector = &fakeDetector{detection: &ThreatDetection{ThreatScore: 1.0}}
		o.auth = &fakeAuth{verdict: &AuthenticationVerdict{Score: 0.0}}
		o.reputation = &fakeReputation{verdict: &ReputationVerdict{Score: 0.0}}
		o.headers = &fakeHeaders{result: &HeaderAnalysisResult{RiskScore: 1.0}}
	})

	resp, err := f.service.ProcessEmail(context.Background(), cleanEmail())
	require.NoError(t, err)
	require.Equal(t, ActionBlock, resp.Action)

	f.service.WhitelistSender("example.com", "analyst")

	resp, err = f.service.ProcessEmail(context.Background(), cleanEmail())
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, resp.Action)
}
