package auth

import (
	"bytes"
	"context"
	"strings"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// checkDKIM verifies the message's DKIM signature cryptographically per
// RFC 6376. Verification runs against the raw wire bytes; without them
// only the signing domain's published key can be checked, which caps the
// result at neutral.
func (c *Checker) checkDKIM(ctx context.Context, email *core.InboundEmail) core.DKIMResult {
	sig := email.Header("DKIM-Signature")
	if sig == "" {
		return core.DKIMResult{Result: core.AuthNone}
	}

	domain := dkimTag(sig, "d")
	selector := dkimTag(sig, "s")
	if domain == "" || selector == "" {
		return core.DKIMResult{Result: core.AuthPermError}
	}

	res := core.DKIMResult{Domain: domain, Selector: selector}

	if len(email.Raw) == 0 {
		// No raw bytes to canonicalize. Confirm the key exists so a
		// broken selector still surfaces, but never claim a pass.
		_, err := c.resolver.LookupTXT(ctx, selector+"._domainkey."+domain)
		if err != nil {
			res.Result = core.AuthTempError
			return res
		}
		res.Result = core.AuthNeutral
		return res
	}

	verifications, err := msgauthdkim.VerifyWithOptions(bytes.NewReader(email.Raw), &msgauthdkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			return c.resolver.LookupTXT(ctx, domain)
		},
	})
	if err != nil {
		c.logger.Debug("DKIM verification errored", zap.String("domain", domain), zap.Error(err))
		res.Result = core.AuthTempError
		return res
	}
	if len(verifications) == 0 {
		res.Result = core.AuthNone
		return res
	}

	// Prefer the verification for the signing domain from the header;
	// fall back to the first one.
	v := verifications[0]
	for _, cand := range verifications {
		if strings.EqualFold(cand.Domain, domain) {
			v = cand
			break
		}
	}

	if v.Err != nil {
		if msgauthdkim.IsTempFail(v.Err) {
			res.Result = core.AuthTempError
		} else if msgauthdkim.IsPermFail(v.Err) {
			res.Result = core.AuthPermError
		} else {
			res.Result = core.AuthFail
		}
		return res
	}

	res.Result = core.AuthPass
	return res
}

// dkimTag extracts a single tag value from a DKIM-Signature header.
func dkimTag(sig, tag string) string {
	for _, part := range strings.Split(sig, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == tag {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
