// Package cache provides the gateway's TTL caches: the link-id to
// original-URL mapping and the entity reputation cache, each with an
// in-memory and a redis implementation.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

type linkEntry struct {
	link      *core.TrackedLink
	expiresAt time.Time
}

// MemoryLinkStore is an in-memory implementation of core.LinkStore. It
// supports concurrent inserts from in-flight emails and lookups from
// click events.
type MemoryLinkStore struct {
	entries     map[string]linkEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryLinkStore creates an in-memory link store with background
// expiry.
func NewMemoryLinkStore(logger *zap.Logger, cleanupFreq time.Duration) *MemoryLinkStore {
	if cleanupFreq <= 0 {
		cleanupFreq = time.Hour
	}
	s := &MemoryLinkStore{
		entries:     make(map[string]linkEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}
	go s.startCleanupTask()
	return s
}

// Put stores a tracked link for the retention window.
func (s *MemoryLinkStore) Put(_ context.Context, link *core.TrackedLink, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[link.LinkID] = linkEntry{link: link, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Get resolves a link id. Expired entries return ErrExpired so the
// caller can tell a dead link from one that never existed.
func (s *MemoryLinkStore) Get(_ context.Context, linkID string) (*core.TrackedLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[linkID]
	if !ok {
		return nil, core.ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		return nil, core.ErrExpired
	}
	return entry.link, nil
}

func (s *MemoryLinkStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryLinkStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expired := 0
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
			expired++
		}
	}
	s.logger.Debug("Cleaned up expired tracked links", zap.Int("expired_count", expired))
}

// Stop stops the background cleanup task.
func (s *MemoryLinkStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

type reputationEntry struct {
	verdict   *core.ReputationVerdict
	expiresAt time.Time
}

// MemoryReputationCache is an in-memory, read-mostly implementation of
// core.ReputationCache.
type MemoryReputationCache struct {
	entries     map[string]reputationEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryReputationCache creates an in-memory reputation cache with
// background expiry.
func NewMemoryReputationCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryReputationCache {
	if cleanupFreq <= 0 {
		cleanupFreq = time.Hour
	}
	c := &MemoryReputationCache{
		entries:     make(map[string]reputationEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}
	go c.startCleanupTask()
	return c
}

// Get retrieves a cached verdict. Stale entries are reported as
// ErrExpired and must be recomputed by the caller.
func (c *MemoryReputationCache) Get(_ context.Context, entity string) (*core.ReputationVerdict, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[entity]
	if !ok {
		return nil, core.ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		return nil, core.ErrExpired
	}
	return entry.verdict, nil
}

// Set stores a verdict for the TTL.
func (c *MemoryReputationCache) Set(_ context.Context, verdict *core.ReputationVerdict, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[verdict.Entity] = reputationEntry{verdict: verdict, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryReputationCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryReputationCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			expired++
		}
	}
	c.logger.Debug("Cleaned up expired reputation entries", zap.Int("expired_count", expired))
}

// Stop stops the background cleanup task.
func (c *MemoryReputationCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
