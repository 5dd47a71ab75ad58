package headers

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer() *Analyzer {
	return NewAnalyzerWithClock(zap.NewNop(), func() time.Time { return fixedNow })
}

func wellFormedEmail() *core.InboundEmail {
	return &core.InboundEmail{
		ID:     "hdr-test",
		Sender: "alice@example.com",
		Headers: []core.Header{
			{Name: "From", Value: "Alice <alice@example.com>"},
			{Name: "To", Value: "bob@example.net"},
			{Name: "Subject", Value: "Quarterly report"},
			{Name: "Date", Value: fixedNow.Add(-2 * time.Hour).Format(time.RFC1123Z)},
			{Name: "Message-ID", Value: "<abc123@example.com>"},
		},
	}
}

func TestAnalyzeWellFormedHeaders(t *testing.T) {
	result := newTestAnalyzer().Analyze(wellFormedEmail())

	assert.Empty(t, result.Indicators)
	assert.Equal(t, core.RiskSafe, result.RiskLevel)
	for _, f := range result.Findings {
		assert.True(t, f.Valid, "finding for %s", f.Name)
	}
}

func TestAnalyzeMissingRequiredHeaders(t *testing.T) {
	email := &core.InboundEmail{
		ID:     "hdr-missing",
		Sender: "alice@example.com",
		Headers: []core.Header{
			{Name: "From", Value: "alice@example.com"},
		},
	}

	result := newTestAnalyzer().Analyze(email)

	assert.Contains(t, result.Indicators, "missing_header:to")
	assert.Contains(t, result.Indicators, "missing_header:subject")
	assert.Contains(t, result.Indicators, "missing_header:date")
	assert.Contains(t, result.Indicators, "missing_header:message-id")
	assert.Greater(t, result.RiskScore, 0.5)
}

func TestAnalyzeIsPure(t *testing.T) {
	a := newTestAnalyzer()
	email := wellFormedEmail()

	first := a.Analyze(email)
	second := a.Analyze(email)

	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, first.Findings, second.Findings)
	assert.Equal(t, first.Indicators, second.Indicators)
}

func TestValidateDate(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantValid bool
		wantRisk  core.RiskLevel
	}{
		{
			name:      "recent date is clean",
			value:     fixedNow.Add(-time.Hour).Format(time.RFC1123Z),
			wantValid: true,
			wantRisk:  core.RiskSafe,
		},
		{
			name:      "future date flagged",
			value:     fixedNow.Add(3 * time.Hour).Format(time.RFC1123Z),
			wantValid: false,
			wantRisk:  core.RiskHigh,
		},
		{
			name:      "stale date flagged low severity",
			value:     fixedNow.Add(-10 * 24 * time.Hour).Format(time.RFC1123Z),
			wantValid: true,
			wantRisk:  core.RiskMedium,
		},
		{
			name:      "unparseable date",
			value:     "not a date",
			wantValid: false,
			wantRisk:  core.RiskHigh,
		},
	}

	a := newTestAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := a.validateDate("Date", tt.value)
			assert.Equal(t, tt.wantValid, f.Valid)
			assert.Equal(t, tt.wantRisk, f.Risk)
		})
	}
}

func TestValidateHeaderFindings(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		value     string
		wantValid bool
	}{
		{"parseable from", "From", "Alice <alice@example.com>", true},
		{"unparseable from", "From", "<<not an address", false},
		{"bounce return path", "Return-Path", "<>", true},
		{"well formed message id", "Message-ID", "<id-1@example.com>", true},
		{"message id without brackets", "Message-ID", "id-1@example.com", false},
		{"received with from and by", "Received", "from mx.example.com by mail.example.net; Tue, 10 Mar 2026 11:00:00 +0000", true},
		{"received without routing info", "Received", "something unrelated", false},
		{"valid originating ip", "X-Originating-IP", "[203.0.113.5]", true},
		{"bogus originating ip", "X-Originating-IP", "not-an-ip", false},
		{"control characters", "X-Mailer", "evil\x01mailer", false},
	}

	a := newTestAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := a.validateHeader(tt.header, tt.value)
			assert.Equal(t, tt.wantValid, f.Valid)
		})
	}
}

func TestRelationshipChecks(t *testing.T) {
	email := wellFormedEmail()
	email.Headers = append(email.Headers,
		core.Header{Name: "Return-Path", Value: "<bounce@elsewhere.test>"},
		core.Header{Name: "Reply-To", Value: "scammer@another.test"},
		core.Header{Name: "X-Priority", Value: "1 (Highest)"},
	)
	for i := 0; i < maxReceivedHops+1; i++ {
		email.Headers = append(email.Headers, core.Header{
			Name:  "Received",
			Value: fmt.Sprintf("from hop%d.example.com by hop%d.example.net", i, i+1),
		})
	}

	result := newTestAnalyzer().Analyze(email)

	assert.Contains(t, result.Indicators, "from_return_path_mismatch")
	assert.Contains(t, result.Indicators, "reply_to_mismatch")
	assert.Contains(t, result.Indicators, "high_urgency_priority")
	assert.Contains(t, result.Indicators, fmt.Sprintf("excessive_received_hops:%d", maxReceivedHops+1))
}

func TestRelationshipChecksMatchingDomains(t *testing.T) {
	email := wellFormedEmail()
	email.Headers = append(email.Headers,
		core.Header{Name: "Return-Path", Value: "<alice@example.com>"},
		core.Header{Name: "Reply-To", Value: "Alice <alice@example.com>"},
	)

	result := newTestAnalyzer().Analyze(email)

	assert.NotContains(t, result.Indicators, "from_return_path_mismatch")
	assert.NotContains(t, result.Indicators, "reply_to_mismatch")
}

func TestAddressDomain(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"Alice <alice@Example.COM>", "example.com"},
		{"<bounce@mailer.test>", "mailer.test"},
		{"bob@example.net", "example.net"},
		{"<>", ""},
		{"no-at-sign", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, addressDomain(tt.value), "value %q", tt.value)
	}
}
