// Package auth validates SPF, DKIM and DMARC signals for inbound email.
package auth

import (
	"context"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/email-gateway/internal/core"
)

// Resolver is the DNS surface the authentication checks need.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupA(ctx context.Context, name string) ([]net.IP, error)
	LookupMX(ctx context.Context, name string) ([]string, error)
}

// Sub-check weights for the combined authentication score. DKIM weighs
// heaviest because it is the only cryptographic signal.
const (
	spfWeight   = 0.3
	dkimWeight  = 0.4
	dmarcWeight = 0.3

	// rejectBonus rewards domains publishing a strict DMARC policy.
	rejectBonus = 0.1
)

// Checker runs the three authentication sub-checks concurrently. They
// are independent and share no mutable state.
type Checker struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewChecker creates an authentication checker.
func NewChecker(resolver Resolver, logger *zap.Logger) *Checker {
	return &Checker{
		resolver: resolver,
		logger:   logger,
	}
}

// Check evaluates SPF, DKIM and DMARC for the email and combines them
// into a single score in [0,1]. Sub-check failures degrade to temperror
// or permerror results; Check itself does not fail on them.
func (c *Checker) Check(ctx context.Context, email *core.InboundEmail) (*core.AuthenticationVerdict, error) {
	domain := email.SenderDomain()

	verdict := &core.AuthenticationVerdict{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		verdict.SPF = c.checkSPF(gctx, domain, email.SourceIP)
		return nil
	})
	g.Go(func() error {
		verdict.DKIM = c.checkDKIM(gctx, email)
		return nil
	})
	g.Go(func() error {
		verdict.DMARC = c.checkDMARC(gctx, domain)
		return nil
	})
	_ = g.Wait()

	verdict.Score = c.score(verdict)

	c.logger.Debug("Authentication checked",
		zap.String("domain", domain),
		zap.String("spf", string(verdict.SPF.Result)),
		zap.String("dkim", string(verdict.DKIM.Result)),
		zap.String("dmarc", string(verdict.DMARC.Result)),
		zap.Float64("score", verdict.Score))

	return verdict, nil
}

// resultScore maps an authentication result to its contribution. A
// temperror tells us nothing, so it sits at the neutral midpoint; a
// permerror is the domain owner's misconfiguration and scores lower.
func resultScore(r core.AuthResult) float64 {
	switch r {
	case core.AuthPass:
		return 1.0
	case core.AuthNeutral, core.AuthTempError:
		return 0.5
	case core.AuthNone, core.AuthPermError:
		return 0.25
	default: // fail
		return 0.0
	}
}

func (c *Checker) score(v *core.AuthenticationVerdict) float64 {
	score := spfWeight*resultScore(v.SPF.Result) +
		dkimWeight*resultScore(v.DKIM.Result) +
		dmarcWeight*resultScore(v.DMARC.Result)

	if v.DMARC.Policy == "reject" {
		score += rejectBonus
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}
