package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/email-gateway/internal/metrics"
)

// GatewayService orchestrates the zero-trust pipeline for one email:
// persist the inbound message, fan out the independent signal collectors,
// combine their verdicts, decide an action and execute it. Every signal
// collector fails soft; only losing the persistence store is fatal.
type GatewayService struct {
	auth        AuthenticationChecker
	reputation  ReputationChecker
	headers     HeaderAnalyzer
	attachments AttachmentValidator
	links       LinkRewriter
	detector    ThreatDetector
	sandbox     SandboxAnalyzer
	store       EmailStore
	policy      *PolicyEngine
	combiner    *Combiner
	metrics     *metrics.Metrics
	logger      *zap.Logger
	timeout     time.Duration
}

// NewGatewayService creates the orchestrator and registers the sandbox
// completion hook.
func NewGatewayService(
	auth AuthenticationChecker,
	reputation ReputationChecker,
	headers HeaderAnalyzer,
	attachments AttachmentValidator,
	links LinkRewriter,
	detector ThreatDetector,
	sandbox SandboxAnalyzer,
	store EmailStore,
	policy *PolicyEngine,
	mtr *metrics.Metrics,
	logger *zap.Logger,
	timeout time.Duration,
) *GatewayService {
	s := &GatewayService{
		auth:        auth,
		reputation:  reputation,
		headers:     headers,
		attachments: attachments,
		links:       links,
		detector:    detector,
		sandbox:     sandbox,
		store:       store,
		policy:      policy,
		combiner:    NewCombiner(),
		metrics:     mtr,
		logger:      logger,
		timeout:     timeout,
	}

	if sandbox != nil {
		sandbox.OnResult(s.onSandboxResult)
	}
	return s
}

// ProcessEmail runs the full pipeline for one inbound email. The email
// always receives exactly one action; when the pipeline is cancelled or
// times out the fail-safe action is QUARANTINE, never ALLOW.
func (s *GatewayService) ProcessEmail(ctx context.Context, email *InboundEmail) (*GatewayResponse, error) {
	start := time.Now()

	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = start
	}

	// The inbound record must exist before any verdict can reference it.
	if err := s.store.SaveEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to persist inbound email: %w", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		authVerdict *AuthenticationVerdict
		repVerdict  *ReputationVerdict
		headerRes   *HeaderAnalysisResult
		attVerdicts []AttachmentVerdict
		linkResult  *LinkRewriteResult
		detection   *ThreatDetection
	)

	// The collectors are mutually independent: fan out, fail soft each,
	// and join at the combiner. Errors mark the signal absent.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := s.auth.Check(gctx, email)
		if err != nil {
			s.signalFailed("authentication", email.ID, err)
			return nil
		}
		authVerdict = v
		return nil
	})

	g.Go(func() error {
		v, err := s.reputation.Check(gctx, email.SenderDomain(), email.SourceIP)
		if err != nil {
			s.signalFailed("reputation", email.ID, err)
			return nil
		}
		repVerdict = v
		return nil
	})

	g.Go(func() error {
		headerRes = s.headers.Analyze(email)
		return nil
	})

	g.Go(func() error {
		if len(email.Attachments) == 0 {
			return nil
		}
		v, err := s.attachments.Validate(gctx, email.Attachments)
		if err != nil {
			s.signalFailed("attachment", email.ID, err)
			return nil
		}
		attVerdicts = v
		return nil
	})

	g.Go(func() error {
		v, err := s.links.Rewrite(gctx, email)
		if err != nil {
			s.signalFailed("links", email.ID, err)
			return nil
		}
		linkResult = v
		return nil
	})

	g.Go(func() error {
		v, err := s.detector.DetectThreats(gctx, email)
		if err != nil {
			s.signalFailed("detector", email.ID, err)
			return nil
		}
		detection = v
		return nil
	})

	_ = g.Wait()

	// A cancelled pipeline must not treat partial results as a final
	// verdict. Quarantine is the fail-safe, not allow.
	if err := ctx.Err(); err != nil {
		return s.failSafe(email, start, err)
	}

	assessment := s.combiner.Combine(email.ID, authVerdict, repVerdict, headerRes, attVerdicts, linkResult, detection)
	assessment.ProcessedAt = time.Now()

	action := s.policy.Decide(assessment.ThreatScore, email.SenderDomain())
	if escalated := s.policy.EscalateCriticalAttachment(action, WorstAttachmentRisk(attVerdicts)); escalated != action {
		action = escalated
		assessment.Indicators = append(assessment.Indicators, "critical_attachment_hold")
		s.logger.Warn("Critical attachment held despite low combined score",
			zap.String("email_id", email.ID),
			zap.Float64("threat_score", assessment.ThreatScore))
	}

	if action == ActionSandbox {
		s.dispatchToSandbox(email)
	}

	if err := s.store.SaveAssessment(ctx, assessment); err != nil {
		return nil, fmt.Errorf("failed to persist assessment: %w", err)
	}
	decision := &DecisionRecord{
		ID:        uuid.NewString(),
		EmailID:   email.ID,
		Action:    action,
		Reason:    fmt.Sprintf("threat score %.3f", assessment.ThreatScore),
		Actor:     "gateway",
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("failed to persist decision: %w", err)
	}

	elapsed := time.Since(start)
	s.metrics.EmailsProcessed.WithLabelValues(string(action)).Inc()
	s.metrics.ProcessingSeconds.Observe(elapsed.Seconds())
	if linkResult != nil {
		s.metrics.LinksRewritten.Add(float64(len(linkResult.Links)))
	}

	s.logger.Info("Email processed",
		zap.String("email_id", email.ID),
		zap.String("sender", email.Sender),
		zap.String("action", string(action)),
		zap.Float64("threat_score", assessment.ThreatScore),
		zap.Duration("processing_time", elapsed))

	return &GatewayResponse{
		EmailID:        email.ID,
		Action:         action,
		ThreatScore:    assessment.ThreatScore,
		ThreatType:     assessment.ThreatType,
		Confidence:     assessment.Confidence,
		Indicators:     assessment.Indicators,
		ProcessingTime: elapsed,
	}, nil
}

// failSafe records a quarantine decision for an email whose pipeline was
// cancelled before all signals completed.
func (s *GatewayService) failSafe(email *InboundEmail, start time.Time, cause error) (*GatewayResponse, error) {
	// Detached context: the per-email context is already dead.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assessment := &CombinedThreatAssessment{
		EmailID:     email.ID,
		ThreatScore: neutralScore,
		Indicators:  []string{"pipeline_timeout"},
		ProcessedAt: time.Now(),
	}
	if err := s.store.SaveAssessment(ctx, assessment); err != nil {
		return nil, fmt.Errorf("failed to persist fail-safe assessment: %w", err)
	}
	decision := &DecisionRecord{
		ID:        uuid.NewString(),
		EmailID:   email.ID,
		Action:    ActionQuarantine,
		Reason:    fmt.Sprintf("pipeline cancelled: %v", cause),
		Actor:     "gateway",
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("failed to persist fail-safe decision: %w", err)
	}

	elapsed := time.Since(start)
	s.metrics.EmailsProcessed.WithLabelValues(string(ActionQuarantine)).Inc()
	s.metrics.ProcessingSeconds.Observe(elapsed.Seconds())

	s.logger.Warn("Pipeline cancelled, quarantining email",
		zap.String("email_id", email.ID),
		zap.Error(cause))

	return &GatewayResponse{
		EmailID:        email.ID,
		Action:         ActionQuarantine,
		ThreatScore:    neutralScore,
		Indicators:     assessment.Indicators,
		ProcessingTime: elapsed,
	}, nil
}

func (s *GatewayService) signalFailed(signal, emailID string, err error) {
	s.metrics.SignalFailures.WithLabelValues(signal).Inc()
	s.logger.Warn("Signal collection failed, continuing without it",
		zap.String("signal", signal),
		zap.String("email_id", emailID),
		zap.Error(err))
}

// dispatchToSandbox submits attachments fire-and-forget. Submission
// failures are soft: the email is already held by the sandbox action.
func (s *GatewayService) dispatchToSandbox(email *InboundEmail) {
	if s.sandbox == nil {
		return
	}
	for _, att := range email.Attachments {
		att := att
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.sandbox.Submit(ctx, email.ID, att); err != nil {
				s.logger.Warn("Sandbox submission failed",
					zap.String("email_id", email.ID),
					zap.String("filename", att.Filename),
					zap.Error(err))
			}
		}()
	}
}

// onSandboxResult records the asynchronous sandbox verdict as a new
// decision on the email's audit trail. The original decision record is
// never mutated.
func (s *GatewayService) onSandboxResult(emailID string, verdict AttachmentVerdict) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	action := ActionAllow
	reason := "sandbox verdict clean"
	if !verdict.IsSafe {
		action = ActionBlock
		reason = fmt.Sprintf("sandbox verdict %s for %s", verdict.Risk, verdict.Filename)
	}

	decision := &DecisionRecord{
		ID:        uuid.NewString(),
		EmailID:   emailID,
		Action:    action,
		Reason:    reason,
		Actor:     "sandbox",
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveDecision(ctx, decision); err != nil {
		s.logger.Error("Failed to record sandbox verdict",
			zap.String("email_id", emailID),
			zap.Error(err))
		return
	}
	s.logger.Info("Sandbox verdict recorded",
		zap.String("email_id", emailID),
		zap.String("action", string(action)))
}

// ResolveLink maps a tracking-link id back to the original URL.
func (s *GatewayService) ResolveLink(ctx context.Context, linkID string) (*TrackedLink, error) {
	return s.links.Resolve(ctx, linkID)
}

// ReleaseEmail appends an allow decision for a quarantined email after
// analyst review.
func (s *GatewayService) ReleaseEmail(ctx context.Context, emailID, actor string) error {
	if _, err := s.store.GetAssessment(ctx, emailID); err != nil {
		return fmt.Errorf("cannot release %s: %w", emailID, err)
	}
	decision := &DecisionRecord{
		ID:        uuid.NewString(),
		EmailID:   emailID,
		Action:    ActionAllow,
		Reason:    "released from quarantine",
		Actor:     actor,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveDecision(ctx, decision); err != nil {
		return fmt.Errorf("failed to record release: %w", err)
	}
	s.logger.Info("Email released",
		zap.String("email_id", emailID),
		zap.String("actor", actor))
	return nil
}

// WhitelistSender adds the sender domain to the allow list for future
// traffic. Past decisions are untouched.
func (s *GatewayService) WhitelistSender(domain, actor string) {
	s.policy.AllowDomain(domain)
	s.logger.Info("Sender domain whitelisted",
		zap.String("domain", domain),
		zap.String("actor", actor))
}

// BlacklistSender adds the sender domain to the deny list for future
// traffic.
func (s *GatewayService) BlacklistSender(domain, actor string) {
	s.policy.DenyDomain(domain)
	s.logger.Info("Sender domain blacklisted",
		zap.String("domain", domain),
		zap.String("actor", actor))
}
