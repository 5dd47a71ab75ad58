package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

func TestMemoryLinkStoreRoundTrip(t *testing.T) {
	s := NewMemoryLinkStore(zap.NewNop(), time.Hour)
	defer s.Stop()

	link := &core.TrackedLink{
		LinkID:      "link-1",
		EmailID:     "msg-1",
		OriginalURL: "https://example.com/a",
		Risk:        core.RiskSafe,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.Put(context.Background(), link, time.Minute))

	got, err := s.Get(context.Background(), "link-1")
	require.NoError(t, err)
	assert.Equal(t, link, got)
}

func TestMemoryLinkStoreNotFound(t *testing.T) {
	s := NewMemoryLinkStore(zap.NewNop(), time.Hour)
	defer s.Stop()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryLinkStoreExpiry(t *testing.T) {
	s := NewMemoryLinkStore(zap.NewNop(), time.Hour)
	defer s.Stop()

	link := &core.TrackedLink{LinkID: "link-2", OriginalURL: "https://example.com/b"}
	require.NoError(t, s.Put(context.Background(), link, time.Nanosecond))

	time.Sleep(5 * time.Millisecond)
	_, err := s.Get(context.Background(), "link-2")
	assert.ErrorIs(t, err, core.ErrExpired)
}

func TestMemoryLinkStoreCleanupRemovesExpired(t *testing.T) {
	s := NewMemoryLinkStore(zap.NewNop(), time.Hour)
	defer s.Stop()

	require.NoError(t, s.Put(context.Background(), &core.TrackedLink{LinkID: "stale"}, time.Nanosecond))
	require.NoError(t, s.Put(context.Background(), &core.TrackedLink{LinkID: "fresh"}, time.Hour))

	time.Sleep(5 * time.Millisecond)
	s.cleanup()

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.NotContains(t, s.entries, "stale")
	assert.Contains(t, s.entries, "fresh")
}

func TestMemoryReputationCacheRoundTrip(t *testing.T) {
	c := NewMemoryReputationCache(zap.NewNop(), time.Hour)
	defer c.Stop()

	verdict := &core.ReputationVerdict{
		Entity: "example.com",
		Level:  core.ReputationTrusted,
		Score:  0.9,
	}
	require.NoError(t, c.Set(context.Background(), verdict, time.Minute))

	got, err := c.Get(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, verdict, got)
}

func TestMemoryReputationCacheMisses(t *testing.T) {
	c := NewMemoryReputationCache(zap.NewNop(), time.Hour)
	defer c.Stop()

	_, err := c.Get(context.Background(), "unknown.example")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, c.Set(context.Background(), &core.ReputationVerdict{Entity: "stale.example"}, time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	_, err = c.Get(context.Background(), "stale.example")
	assert.ErrorIs(t, err, core.ErrExpired)
}

func TestMemoryLinkStoreStopIsIdempotent(t *testing.T) {
	s := NewMemoryLinkStore(zap.NewNop(), time.Hour)
	s.Stop()
	s.Stop()
}
