// Package reputation scores sender domains and source IPs from lexical
// heuristics, static lists and a pluggable external feed.
package reputation

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/email-gateway/internal/core"
)

// Feed is an external reputation source queried by entity value. It must
// tolerate partial results; an unreachable feed is a soft failure.
type Feed interface {
	Lookup(ctx context.Context, entity string) (float64, error)
}

// Checker computes reputation verdicts. Results are cached per entity
// for a bounded TTL and recomputed when stale.
type Checker struct {
	feed     Feed
	cache    core.ReputationCache
	logger   *zap.Logger
	cacheTTL time.Duration
	limiter  *rate.Limiter
}

// NewChecker creates a reputation checker. Both feed and cache may be
// nil; the checker then runs on local heuristics alone.
func NewChecker(feed Feed, cache core.ReputationCache, logger *zap.Logger, cacheTTL time.Duration, feedQPS float64) *Checker {
	if feedQPS <= 0 {
		feedQPS = 10
	}
	return &Checker{
		feed:     feed,
		cache:    cache,
		logger:   logger,
		cacheTTL: cacheTTL,
		limiter:  rate.NewLimiter(rate.Limit(feedQPS), int(feedQPS)),
	}
}

// Check scores the sender domain and source IP independently and merges
// them into one verdict. It never returns an error for feed or cache
// trouble; those degrade to neutral contributions.
func (c *Checker) Check(ctx context.Context, domain, sourceIP string) (*core.ReputationVerdict, error) {
	var scores []float64
	var indicators []string

	if domain != "" {
		score, ind := c.checkDomain(ctx, domain)
		scores = append(scores, score)
		indicators = append(indicators, ind...)
	}
	if sourceIP != "" {
		score, ind := c.checkIP(ctx, sourceIP)
		scores = append(scores, score)
		indicators = append(indicators, ind...)
	}

	verdict := &core.ReputationVerdict{
		Entity:     domain,
		Indicators: indicators,
		CheckedAt:  time.Now(),
	}
	if len(scores) == 0 {
		verdict.Score = 0.5
		verdict.Level = core.ReputationUnknown
		return verdict, nil
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	verdict.Score = sum / float64(len(scores))
	verdict.Level = core.ReputationScoreLevel(verdict.Score)

	c.logger.Debug("Reputation checked",
		zap.String("domain", domain),
		zap.String("source_ip", sourceIP),
		zap.Float64("score", verdict.Score),
		zap.String("level", string(verdict.Level)))

	return verdict, nil
}

func (c *Checker) checkDomain(ctx context.Context, domain string) (float64, []string) {
	if cached := c.cachedScore(ctx, "domain:"+domain); cached != nil {
		return cached.Score, cached.Indicators
	}

	var indicators []string
	scores := []float64{domainAgeScore(domain)}

	if isDisposableDomain(domain) {
		scores = append(scores, 0.0)
		indicators = append(indicators, "disposable_domain")
	} else {
		scores = append(scores, 0.8)
	}

	if brand := typosquatTarget(domain); brand != "" {
		scores = append(scores, 0.0)
		indicators = append(indicators, "typosquat:"+brand)
	} else {
		scores = append(scores, 0.8)
	}

	patternScore, patternIndicators := suspiciousPatternScore(domain)
	scores = append(scores, patternScore)
	indicators = append(indicators, patternIndicators...)

	scores = append(scores, c.feedScore(ctx, domain))

	score := average(scores)
	c.storeScore(ctx, "domain:"+domain, score, indicators)
	return score, indicators
}

func (c *Checker) checkIP(ctx context.Context, sourceIP string) (float64, []string) {
	ip := net.ParseIP(sourceIP)
	if ip == nil {
		return 0.3, []string{"invalid_source_ip"}
	}
	// Private and loopback sources are internal relays, not internet
	// reputation subjects.
	if ip.IsPrivate() || ip.IsLoopback() {
		return 0.5, nil
	}

	if cached := c.cachedScore(ctx, "ip:"+sourceIP); cached != nil {
		return cached.Score, cached.Indicators
	}

	var indicators []string
	feedScore := c.feedScore(ctx, sourceIP)
	if feedScore < 0.3 {
		indicators = append(indicators, "ip_blacklisted")
	}

	c.storeScore(ctx, "ip:"+sourceIP, feedScore, indicators)
	return feedScore, indicators
}

// feedScore queries the external feed, returning the neutral midpoint
// when the feed is absent, throttled or unreachable.
func (c *Checker) feedScore(ctx context.Context, entity string) float64 {
	if c.feed == nil {
		return 0.5
	}
	if !c.limiter.Allow() {
		c.logger.Debug("Reputation feed throttled", zap.String("entity", entity))
		return 0.5
	}
	score, err := c.feed.Lookup(ctx, entity)
	if err != nil {
		c.logger.Debug("Reputation feed lookup failed",
			zap.String("entity", entity),
			zap.Error(err))
		return 0.5
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func (c *Checker) cachedScore(ctx context.Context, key string) *core.ReputationVerdict {
	if c.cache == nil {
		return nil
	}
	verdict, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	return verdict
}

func (c *Checker) storeScore(ctx context.Context, key string, score float64, indicators []string) {
	if c.cache == nil {
		return
	}
	verdict := &core.ReputationVerdict{
		Entity:     key,
		Score:      score,
		Level:      core.ReputationScoreLevel(score),
		Indicators: indicators,
		CheckedAt:  time.Now(),
	}
	if err := c.cache.Set(ctx, verdict, c.cacheTTL); err != nil {
		c.logger.Debug("Failed to cache reputation verdict", zap.String("entity", key), zap.Error(err))
	}
}

func average(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
