package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mikey/email-gateway/internal/core"
)

// MemoryStore is an in-memory core.EmailStore for the CLI scanner and
// tests. Everything is lost on process exit.
type MemoryStore struct {
	mu          sync.RWMutex
	emails      map[string]*core.InboundEmail
	assessments map[string]*core.CombinedThreatAssessment
	decisions   []core.DecisionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		emails:      make(map[string]*core.InboundEmail),
		assessments: make(map[string]*core.CombinedThreatAssessment),
	}
}

// SaveEmail stores the inbound email.
func (s *MemoryStore) SaveEmail(_ context.Context, email *core.InboundEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[email.ID] = email
	return nil
}

// SaveAssessment stores the assessment.
func (s *MemoryStore) SaveAssessment(_ context.Context, assessment *core.CombinedThreatAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[assessment.EmailID] = assessment
	return nil
}

// SaveDecision appends a decision record.
func (s *MemoryStore) SaveDecision(_ context.Context, decision *core.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, *decision)
	return nil
}

// GetAssessment fetches an assessment by email id.
func (s *MemoryStore) GetAssessment(_ context.Context, emailID string) (*core.CombinedThreatAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assessment, ok := s.assessments[emailID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return assessment, nil
}

// ListQuarantined returns the most recent quarantine decisions.
func (s *MemoryStore) ListQuarantined(_ context.Context, limit int) ([]core.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var quarantined []core.DecisionRecord
	for _, d := range s.decisions {
		if d.Action == core.ActionQuarantine {
			quarantined = append(quarantined, d)
		}
	}
	sort.Slice(quarantined, func(i, j int) bool {
		return quarantined[i].CreatedAt.After(quarantined[j].CreatedAt)
	})
	if limit > 0 && len(quarantined) > limit {
		quarantined = quarantined[:limit]
	}
	return quarantined, nil
}

// Decisions returns a copy of every decision for an email, oldest first.
func (s *MemoryStore) Decisions(emailID string) []core.DecisionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.DecisionRecord
	for _, d := range s.decisions {
		if d.EmailID == emailID {
			out = append(out, d)
		}
	}
	return out
}
