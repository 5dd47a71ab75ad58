package reputation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/adapters/cache"
	"github.com/mikey/email-gateway/internal/core"
)

type fakeFeed struct {
	scores  map[string]float64
	err     error
	lookups int
}

func (f *fakeFeed) Lookup(_ context.Context, entity string) (float64, error) {
	f.lookups++
	if f.err != nil {
		return 0, f.err
	}
	if s, ok := f.scores[entity]; ok {
		return s, nil
	}
	return 0.5, nil
}

func newTestChecker(t *testing.T, feed Feed) *Checker {
	t.Helper()
	c := cache.NewMemoryReputationCache(zap.NewNop(), time.Hour)
	t.Cleanup(c.Stop)
	return NewChecker(feed, c, zap.NewNop(), time.Hour, 100)
}

func TestCheckDisposableDomain(t *testing.T) {
	c := newTestChecker(t, &fakeFeed{})

	verdict, err := c.Check(context.Background(), "mailinator.com", "")
	require.NoError(t, err)

	assert.Contains(t, verdict.Indicators, "disposable_domain")
	assert.Less(t, verdict.Score, 0.6)
}

func TestCheckTyposquatDomain(t *testing.T) {
	c := newTestChecker(t, &fakeFeed{})

	verdict, err := c.Check(context.Background(), "paypa1.com", "")
	require.NoError(t, err)

	assert.Contains(t, verdict.Indicators, "typosquat:paypal")
	assert.Less(t, verdict.Score, 0.6)
}

func TestCheckLegitimateBrandNotFlagged(t *testing.T) {
	c := newTestChecker(t, &fakeFeed{})

	verdict, err := c.Check(context.Background(), "paypal.com", "")
	require.NoError(t, err)

	for _, ind := range verdict.Indicators {
		assert.NotContains(t, ind, "typosquat")
	}
}

func TestCheckNoEntitiesIsUnknown(t *testing.T) {
	c := newTestChecker(t, &fakeFeed{})

	verdict, err := c.Check(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, core.ReputationUnknown, verdict.Level)
	assert.Equal(t, 0.5, verdict.Score)
}

func TestCheckPrivateIPIsNeutral(t *testing.T) {
	feed := &fakeFeed{}
	c := newTestChecker(t, feed)

	verdict, err := c.Check(context.Background(), "", "192.168.1.20")
	require.NoError(t, err)

	assert.Equal(t, 0.5, verdict.Score)
	assert.Zero(t, feed.lookups)
}

func TestCheckBlacklistedIP(t *testing.T) {
	feed := &fakeFeed{scores: map[string]float64{"203.0.113.66": 0.05}}
	c := newTestChecker(t, feed)

	verdict, err := c.Check(context.Background(), "", "203.0.113.66")
	require.NoError(t, err)

	assert.Contains(t, verdict.Indicators, "ip_blacklisted")
	assert.InDelta(t, 0.05, verdict.Score, 1e-9)
}

func TestCheckFeedErrorDegradesToNeutral(t *testing.T) {
	feed := &fakeFeed{err: errors.New("feed unavailable")}
	c := newTestChecker(t, feed)

	verdict, err := c.Check(context.Background(), "", "203.0.113.1")
	require.NoError(t, err)

	assert.Equal(t, 0.5, verdict.Score)
	assert.NotContains(t, verdict.Indicators, "ip_blacklisted")
}

func TestCheckCachesPerEntity(t *testing.T) {
	feed := &fakeFeed{scores: map[string]float64{"example.com": 0.9}}
	c := newTestChecker(t, feed)

	_, err := c.Check(context.Background(), "example.com", "")
	require.NoError(t, err)
	first := feed.lookups

	_, err = c.Check(context.Background(), "example.com", "")
	require.NoError(t, err)

	assert.Equal(t, first, feed.lookups)
}

func TestCheckWithoutFeedOrCache(t *testing.T) {
	c := NewChecker(nil, nil, zap.NewNop(), time.Hour, 10)

	verdict, err := c.Check(context.Background(), "example.com", "203.0.113.1")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, verdict.Score, 0.0)
	assert.LessOrEqual(t, verdict.Score, 1.0)
}

func TestEditDistanceOne(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"paypa1", "paypal", true},
		{"amazn", "amazon", true},
		{"gooogle", "google", true},
		{"paypal", "paypal", false},
		{"microsoft", "apple", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, editDistanceOne(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestSuspiciousPatternScore(t *testing.T) {
	tests := []struct {
		domain     string
		wantScore  float64
		indicators []string
	}{
		{"example.com", 0.8, nil},
		{"prizes.tk", 0.5, []string{"suspicious_tld"}},
		{"win12345.com", 0.6, []string{"digit_run_domain"}},
		{"secure-login-update-now.xyz", 0.0, []string{"suspicious_tld", "hyphenated_domain", "phishing_keyword_domain"}},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			score, indicators := suspiciousPatternScore(tt.domain)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
			for _, want := range tt.indicators {
				assert.Contains(t, indicators, want)
			}
		})
	}
}

func TestReputationScoreLevels(t *testing.T) {
	tests := []struct {
		score float64
		want  core.ReputationLevel
	}{
		{0.95, core.ReputationTrusted},
		{0.7, core.ReputationGood},
		{0.5, core.ReputationNeutral},
		{0.35, core.ReputationSuspicious},
		{0.05, core.ReputationMalicious},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, core.ReputationScoreLevel(tt.score), "score %.2f", tt.score)
	}
}
