package auth

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// fakeResolver answers from fixed maps; missing entries fail the lookup.
type fakeResolver struct {
	txt map[string][]string
	a   map[string][]net.IP
	mx  map[string][]string
}

var errNXDomain = errors.New("no such host")

func (r *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	if v, ok := r.txt[name]; ok {
		return v, nil
	}
	return nil, errNXDomain
}

func (r *fakeResolver) LookupA(_ context.Context, name string) ([]net.IP, error) {
	if v, ok := r.a[name]; ok {
		return v, nil
	}
	return nil, errNXDomain
}

func (r *fakeResolver) LookupMX(_ context.Context, name string) ([]string, error) {
	if v, ok := r.mx[name]; ok {
		return v, nil
	}
	return nil, errNXDomain
}

func testEmail(sender, sourceIP string, headers ...core.Header) *core.InboundEmail {
	return &core.InboundEmail{
		Sender:   sender,
		SourceIP: sourceIP,
		Headers:  headers,
	}
}

func TestCheckSPF(t *testing.T) {
	tests := []struct {
		name     string
		txt      map[string][]string
		a        map[string][]net.IP
		sourceIP string
		want     core.AuthResult
	}{
		{
			name:     "ip4 match passes",
			txt:      map[string][]string{"example.com": {"v=spf1 ip4:192.0.2.10 -all"}},
			sourceIP: "192.0.2.10",
			want:     core.AuthPass,
		},
		{
			name:     "cidr match passes",
			txt:      map[string][]string{"example.com": {"v=spf1 ip4:192.0.2.0/24 -all"}},
			sourceIP: "192.0.2.200",
			want:     core.AuthPass,
		},
		{
			name:     "unmatched hard all fails",
			txt:      map[string][]string{"example.com": {"v=spf1 ip4:192.0.2.10 -all"}},
			sourceIP: "198.51.100.1",
			want:     core.AuthFail,
		},
		{
			name:     "unmatched soft all is neutral",
			txt:      map[string][]string{"example.com": {"v=spf1 ip4:192.0.2.10 ~all"}},
			sourceIP: "198.51.100.1",
			want:     core.AuthNeutral,
		},
		{
			name: "a mechanism matches host address",
			txt:  map[string][]string{"example.com": {"v=spf1 a -all"}},
			a:    map[string][]net.IP{"example.com": {net.ParseIP("192.0.2.33")}},
			sourceIP: "192.0.2.33",
			want:     core.AuthPass,
		},
		{
			name: "include resolves through second domain",
			txt: map[string][]string{
				"example.com":      {"v=spf1 include:spf.mailer.test -all"},
				"spf.mailer.test":  {"v=spf1 ip4:203.0.113.0/24 -all"},
			},
			sourceIP: "203.0.113.9",
			want:     core.AuthPass,
		},
		{
			name:     "no record is none",
			txt:      map[string][]string{"example.com": {"some unrelated txt"}},
			sourceIP: "192.0.2.10",
			want:     core.AuthNone,
		},
		{
			name: "multiple records are a permerror",
			txt: map[string][]string{
				"example.com": {"v=spf1 -all", "v=spf1 +all"},
			},
			sourceIP: "192.0.2.10",
			want:     core.AuthPermError,
		},
		{
			name:     "lookup failure is a temperror",
			txt:      map[string][]string{},
			sourceIP: "192.0.2.10",
			want:     core.AuthTempError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(&fakeResolver{txt: tt.txt, a: tt.a}, zap.NewNop())
			got := c.checkSPF(context.Background(), "example.com", tt.sourceIP)
			assert.Equal(t, tt.want, got.Result)
		})
	}
}

func TestCheckSPFRedirect(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"example.com":     {"v=spf1 redirect=spf.example.net"},
		"spf.example.net": {"v=spf1 ip4:192.0.2.0/24 -all"},
	}}
	c := NewChecker(r, zap.NewNop())

	got := c.checkSPF(context.Background(), "example.com", "192.0.2.77")
	assert.Equal(t, core.AuthPass, got.Result)
}

func TestCheckSPFLookupBudget(t *testing.T) {
	// Self-including record must hit the RFC 7208 lookup cap instead of
	// recursing forever.
	r := &fakeResolver{txt: map[string][]string{
		"loop.example.com": {"v=spf1 include:loop.example.com -all"},
	}}
	c := NewChecker(r, zap.NewNop())

	got := c.checkSPF(context.Background(), "loop.example.com", "192.0.2.1")
	assert.Equal(t, core.AuthPermError, got.Result)
}

func TestCheckDMARC(t *testing.T) {
	tests := []struct {
		name       string
		record     []string
		wantResult core.AuthResult
		wantPolicy string
		wantPct    int
	}{
		{
			name:       "reject policy",
			record:     []string{"v=DMARC1; p=reject; rua=mailto:dmarc@example.com"},
			wantResult: core.AuthPass,
			wantPolicy: "reject",
			wantPct:    100,
		},
		{
			name:       "quarantine with pct",
			record:     []string{"v=DMARC1; p=quarantine; pct=50"},
			wantResult: core.AuthPass,
			wantPolicy: "quarantine",
			wantPct:    50,
		},
		{
			name:       "missing p tag is a permerror",
			record:     []string{"v=DMARC1; sp=none"},
			wantResult: core.AuthPermError,
		},
		{
			name:       "invalid pct is a permerror",
			record:     []string{"v=DMARC1; p=none; pct=150"},
			wantResult: core.AuthPermError,
		},
		{
			name:       "no record is none",
			record:     []string{"unrelated"},
			wantResult: core.AuthNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeResolver{txt: map[string][]string{"_dmarc.example.com": tt.record}}
			c := NewChecker(r, zap.NewNop())

			got := c.checkDMARC(context.Background(), "example.com")
			assert.Equal(t, tt.wantResult, got.Result)
			if tt.wantPolicy != "" {
				assert.Equal(t, tt.wantPolicy, got.Policy)
				assert.Equal(t, tt.wantPct, got.Percent)
			}
		})
	}
}

func TestCheckDKIMWithoutSignature(t *testing.T) {
	c := NewChecker(&fakeResolver{}, zap.NewNop())
	got := c.checkDKIM(context.Background(), testEmail("a@example.com", "192.0.2.1"))
	assert.Equal(t, core.AuthNone, got.Result)
}

func TestCheckDKIMWithoutRawBytesCapsAtNeutral(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"sel1._domainkey.example.com": {"v=DKIM1; k=rsa; p=MIGf..."},
	}}
	c := NewChecker(r, zap.NewNop())

	email := testEmail("a@example.com", "192.0.2.1",
		core.Header{Name: "DKIM-Signature", Value: "v=1; a=rsa-sha256; d=example.com; s=sel1; bh=...; b=..."})
	got := c.checkDKIM(context.Background(), email)

	assert.Equal(t, core.AuthNeutral, got.Result)
	assert.Equal(t, "example.com", got.Domain)
	assert.Equal(t, "sel1", got.Selector)
}

func TestCheckDKIMMalformedSignature(t *testing.T) {
	c := NewChecker(&fakeResolver{}, zap.NewNop())
	email := testEmail("a@example.com", "192.0.2.1",
		core.Header{Name: "DKIM-Signature", Value: "v=1; a=rsa-sha256"})
	got := c.checkDKIM(context.Background(), email)
	assert.Equal(t, core.AuthPermError, got.Result)
}

func TestCheckCombinedScore(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"example.com":        {"v=spf1 ip4:192.0.2.0/24 -all"},
		"_dmarc.example.com": {"v=DMARC1; p=reject"},
	}}
	c := NewChecker(r, zap.NewNop())

	verdict, err := c.Check(context.Background(), testEmail("a@example.com", "192.0.2.5"))
	require.NoError(t, err)

	assert.Equal(t, core.AuthPass, verdict.SPF.Result)
	assert.Equal(t, core.AuthNone, verdict.DKIM.Result)
	assert.Equal(t, core.AuthPass, verdict.DMARC.Result)

	// spf pass (0.3) + dkim none (0.4*0.25) + dmarc pass (0.3) + reject bonus.
	assert.InDelta(t, 0.3+0.1+0.3+0.1, verdict.Score, 1e-9)
	assert.GreaterOrEqual(t, verdict.Score, 0.0)
	assert.LessOrEqual(t, verdict.Score, 1.0)
}
