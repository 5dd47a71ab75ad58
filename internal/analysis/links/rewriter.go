// Package links extracts and scores URLs from email bodies and rewrites
// each occurrence to a tracked redirect URL.
package links

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// Config bounds link processing for one email.
type Config struct {
	MaxLinks        int
	TrackingBaseURL string
	RetentionTTL    time.Duration
	SafeDomains     []string
}

// DefaultConfig returns the shipped link-processing limits.
func DefaultConfig() Config {
	return Config{
		MaxLinks:        100,
		TrackingBaseURL: "https://gateway.local",
		RetentionTTL:    30 * 24 * time.Hour,
	}
}

// Rewriter extracts links, scores each one and substitutes tracking
// URLs into the body. The link-id to original-URL mapping is retained in
// the store for click-time resolution.
type Rewriter struct {
	cfg         Config
	store       core.LinkStore
	logger      *zap.Logger
	safeDomains map[string]struct{}
}

// NewRewriter creates a link rewriter backed by the given store.
func NewRewriter(cfg Config, store core.LinkStore, logger *zap.Logger) *Rewriter {
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = DefaultConfig().MaxLinks
	}
	if cfg.RetentionTTL <= 0 {
		cfg.RetentionTTL = DefaultConfig().RetentionTTL
	}
	if cfg.TrackingBaseURL == "" {
		cfg.TrackingBaseURL = DefaultConfig().TrackingBaseURL
	}
	safe := make(map[string]struct{}, len(cfg.SafeDomains))
	for _, d := range cfg.SafeDomains {
		safe[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Rewriter{
		cfg:         cfg,
		store:       store,
		logger:      logger,
		safeDomains: safe,
	}
}

// Rewrite extracts up to MaxLinks unique links from the email and
// replaces every occurrence of each original URL with its tracking URL.
// The substitution is keyed by the original string, so repeated URLs
// rewrite identically.
func (r *Rewriter) Rewrite(ctx context.Context, email *core.InboundEmail) (*core.LinkRewriteResult, error) {
	urls, truncated := extractLinks(email.BodyText+"\n"+email.BodyHTML, r.cfg.MaxLinks)

	result := &core.LinkRewriteResult{
		RewrittenText:    email.BodyText,
		RewrittenHTML:    email.BodyHTML,
		HighestRisk:      core.RiskSafe,
		TruncatedAtLimit: truncated,
	}

	replacements := make(map[string]string, len(urls))
	for _, original := range urls {
		verdict := r.scoreLink(original)
		verdict.LinkID = uuid.NewString()
		verdict.TrackingURL = r.trackingURL(verdict.LinkID, email.ID, original)

		tracked := &core.TrackedLink{
			LinkID:      verdict.LinkID,
			EmailID:     email.ID,
			OriginalURL: original,
			Risk:        verdict.Risk,
			Indicators:  verdict.Indicators,
			CreatedAt:   time.Now(),
		}
		if err := r.store.Put(ctx, tracked, r.cfg.RetentionTTL); err != nil {
			// Without the mapping a click could not be resolved, so the
			// link stays unrewritten rather than pointing nowhere.
			r.logger.Warn("Failed to store tracked link, leaving original",
				zap.String("email_id", email.ID),
				zap.Error(err))
			verdict.TrackingURL = original
		} else {
			replacements[original] = verdict.TrackingURL
		}

		result.Links = append(result.Links, verdict)
		result.HighestRisk = core.MaxRiskLevel(result.HighestRisk, verdict.Risk)
	}

	// Substitute longest originals first so a URL that is a prefix of
	// another never rewrites inside the longer one's occurrence.
	ordered := make([]string, 0, len(replacements))
	for original := range replacements {
		ordered = append(ordered, original)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, original := range ordered {
		result.RewrittenText = strings.ReplaceAll(result.RewrittenText, original, replacements[original])
		result.RewrittenHTML = strings.ReplaceAll(result.RewrittenHTML, original, replacements[original])
	}

	r.logger.Debug("Links rewritten",
		zap.String("email_id", email.ID),
		zap.Int("links", len(result.Links)),
		zap.Bool("truncated", truncated))

	return result, nil
}

// Resolve maps a tracking-link id back to its original URL. ErrNotFound
// and ErrExpired pass through from the store so callers can distinguish
// an unknown link from a dead one.
func (r *Rewriter) Resolve(ctx context.Context, linkID string) (*core.TrackedLink, error) {
	return r.store.Get(ctx, linkID)
}

// trackingURL encodes the original URL, the email id and the link id
// into a redirect the click responder can unpack.
func (r *Rewriter) trackingURL(linkID, emailID, original string) string {
	encoded := base64.URLEncoding.EncodeToString([]byte(original))
	return fmt.Sprintf("%s/t/%s?e=%s&u=%s",
		strings.TrimRight(r.cfg.TrackingBaseURL, "/"),
		linkID,
		url.QueryEscape(emailID),
		encoded)
}
