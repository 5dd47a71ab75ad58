package core

import (
	"fmt"
	"strings"
	"sync"
)

// PolicyThresholds are the score cut-offs for each restrictive action.
// A score equal to a threshold crosses it.
type PolicyThresholds struct {
	Block      float64
	Quarantine float64
	Sandbox    float64
}

// Validate enforces block >= quarantine >= sandbox >= 0. Violations are
// configuration errors and must fail at startup, never per email.
func (t PolicyThresholds) Validate() error {
	if t.Sandbox < 0 {
		return fmt.Errorf("sandbox threshold must be non-negative, got %v", t.Sandbox)
	}
	if t.Quarantine < t.Sandbox {
		return fmt.Errorf("quarantine threshold %v below sandbox threshold %v", t.Quarantine, t.Sandbox)
	}
	if t.Block < t.Quarantine {
		return fmt.Errorf("block threshold %v below quarantine threshold %v", t.Block, t.Quarantine)
	}
	return nil
}

// PolicyEngine maps a combined threat score plus the domain allow/deny
// lists to a terminal action. The deny list wins unconditionally; the
// allow list is consulted only for senders not denied.
type PolicyEngine struct {
	thresholds PolicyThresholds

	mu        sync.RWMutex
	allowList map[string]struct{}
	denyList  map[string]struct{}
}

// NewPolicyEngine creates a policy engine. Thresholds must already have
// been validated by the configuration layer.
func NewPolicyEngine(thresholds PolicyThresholds, allowDomains, denyDomains []string) (*PolicyEngine, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy thresholds: %w", err)
	}

	e := &PolicyEngine{
		thresholds: thresholds,
		allowList:  make(map[string]struct{}),
		denyList:   make(map[string]struct{}),
	}
	for _, d := range allowDomains {
		e.allowList[normalizeDomain(d)] = struct{}{}
	}
	for _, d := range denyDomains {
		e.denyList[normalizeDomain(d)] = struct{}{}
	}
	return e, nil
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// Decide returns the action for a threat score and sender domain.
func (e *PolicyEngine) Decide(threatScore float64, senderDomain string) EmailAction {
	domain := normalizeDomain(senderDomain)

	e.mu.RLock()
	_, denied := e.denyList[domain]
	_, allowed := e.allowList[domain]
	e.mu.RUnlock()

	if denied {
		return ActionBlock
	}
	if allowed {
		return ActionAllow
	}

	switch {
	case threatScore >= e.thresholds.Block:
		return ActionBlock
	case threatScore >= e.thresholds.Quarantine:
		return ActionQuarantine
	case threatScore >= e.thresholds.Sandbox:
		return ActionSandbox
	default:
		return ActionAllow
	}
}

// EscalateCriticalAttachment raises an allow decision to quarantine when
// the worst attachment risk is critical. The weighted average can dilute
// a single-signal maximum below every threshold; a confirmed dangerous
// attachment must never ride a low combined score out of the gateway.
func (e *PolicyEngine) EscalateCriticalAttachment(action EmailAction, worst RiskLevel) EmailAction {
	if worst == RiskCritical && action == ActionAllow {
		return ActionQuarantine
	}
	return action
}

// AllowDomain adds a domain to the allow list.
func (e *PolicyEngine) AllowDomain(domain string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowList[normalizeDomain(domain)] = struct{}{}
}

// DenyDomain adds a domain to the deny list.
func (e *PolicyEngine) DenyDomain(domain string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.denyList[normalizeDomain(domain)] = struct{}{}
}

// Thresholds returns the configured thresholds.
func (e *PolicyEngine) Thresholds() PolicyThresholds {
	return e.thresholds
}
