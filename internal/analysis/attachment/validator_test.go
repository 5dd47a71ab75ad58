package attachment

import (
	"archive/zip"
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

func newTestValidator(t *testing.T, cfg Config) *Validator {
	t.Helper()
	return NewValidator(cfg, zap.NewNop())
}

func validateOne(t *testing.T, v *Validator, att core.Attachment) core.AttachmentVerdict {
	t.Helper()
	verdicts, err := v.Validate(context.Background(), []core.Attachment{att})
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	return verdicts[0]
}

// buildZip writes a zip with the given member names, each holding content.
func buildZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestValidateExecutableIsCritical(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	verdict := validateOne(t, v, core.Attachment{
		Filename: "update.exe",
		Content:  append([]byte("MZ"), make([]byte, 64)...),
	})

	assert.Equal(t, core.RiskCritical, verdict.Risk)
	assert.False(t, verdict.IsSafe)
	assert.Equal(t, "application/x-msdownload", verdict.DetectedMime)
	assert.Contains(t, verdict.Threats, core.ThreatMalware)
	assert.Contains(t, verdict.Indicators, "dangerous_type:update.exe")
}

func TestValidateSignatureBeatsExtension(t *testing.T) {
	// An executable renamed to .pdf is still detected by its MZ header.
	v := newTestValidator(t, DefaultConfig())
	verdict := validateOne(t, v, core.Attachment{
		Filename: "invoice.pdf",
		MimeType: "application/pdf",
		Content:  append([]byte("MZ"), make([]byte, 64)...),
	})

	assert.Equal(t, "application/x-msdownload", verdict.DetectedMime)
	assert.Equal(t, core.RiskCritical, verdict.Risk)
}

func TestValidateDoubleExtension(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	verdict := validateOne(t, v, core.Attachment{Filename: "invoice.pdf.exe"})

	assert.Equal(t, core.RiskCritical, verdict.Risk)
	assert.Contains(t, verdict.Threats, core.ThreatDoubleExtension)
}

func TestValidateCleanDocument(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	verdict := validateOne(t, v, core.Attachment{
		Filename: "report.pdf",
		Content:  []byte("%PDF-1.7 hello world, ordinary text content"),
	})

	assert.Equal(t, core.RiskSafe, verdict.Risk)
	assert.True(t, verdict.IsSafe)
	assert.Empty(t, verdict.Threats)
}

func TestValidateOversized(t *testing.T) {
	v := newTestValidator(t, Config{MaxSize: 100})
	verdict := validateOne(t, v, core.Attachment{
		Filename: "big.txt",
		Size:     200,
	})

	assert.Equal(t, core.RiskHigh, verdict.Risk)
	assert.False(t, verdict.IsSafe)
	assert.Contains(t, verdict.Threats, core.ThreatOversized)
}

func TestValidateSuspiciousContent(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	verdict := validateOne(t, v, core.Attachment{
		Filename: "notes.txt",
		Content:  []byte("please run powershell -enc SQBFAFgA to view this file"),
	})

	assert.Equal(t, core.RiskHigh, verdict.Risk)
	assert.Contains(t, verdict.Threats, core.ThreatSuspiciousContent)
	assert.Contains(t, verdict.Indicators, "suspicious_content:powershell")
}

func TestValidateMacroDocument(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	content := append([]byte{0xD0, 0xCF, 0x11, 0xE0}, []byte("...vbaProject.bin...AutoOpen...")...)
	verdict := validateOne(t, v, core.Attachment{
		Filename: "budget.doc",
		Content:  content,
	})

	assert.Equal(t, core.RiskHigh, verdict.Risk)
	assert.Contains(t, verdict.Threats, core.ThreatMacroVirus)
}

func TestValidateHighEntropyPayload(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	content := make([]byte, 64*1024)
	rng.Read(content)

	v := newTestValidator(t, DefaultConfig())
	verdict := validateOne(t, v, core.Attachment{
		Filename: "data.bin",
		Content:  content,
	})

	assert.Contains(t, verdict.Threats, core.ThreatEncrypted)
}

func TestValidateArchiveWithDangerousMember(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	payload := buildZip(t, map[string]string{
		"readme.txt":  "all good",
		"install.exe": "not really an exe",
	})
	verdict := validateOne(t, v, core.Attachment{
		Filename: "bundle.zip",
		Content:  payload,
	})

	assert.Equal(t, core.RiskCritical, verdict.Risk)
	assert.Contains(t, verdict.Threats, core.ThreatMalware)
	assert.Contains(t, verdict.Indicators, "dangerous_archive_member:install.exe")
}

func TestValidateArchiveBombByExpansion(t *testing.T) {
	// Highly repetitive content compresses far past the bomb ratio.
	v := newTestValidator(t, DefaultConfig())
	payload := buildZip(t, map[string]string{
		"zeros.txt": strings.Repeat("0", 4*1024*1024),
	})
	verdict := validateOne(t, v, core.Attachment{
		Filename: "tiny.zip",
		Content:  payload,
	})

	assert.Equal(t, core.RiskCritical, verdict.Risk)
	assert.Contains(t, verdict.Threats, core.ThreatArchiveBomb)
}

func TestValidateTooManyArchiveMembers(t *testing.T) {
	members := make(map[string]string, 12)
	for i := 0; i < 12; i++ {
		members[string(rune('a'+i))+".txt"] = "x"
	}
	v := newTestValidator(t, Config{MaxArchiveMembers: 10})
	verdict := validateOne(t, v, core.Attachment{
		Filename: "many.zip",
		Content:  buildZip(t, members),
	})

	assert.Contains(t, verdict.Threats, core.ThreatArchiveBomb)
	assert.Contains(t, verdict.Indicators, "archive_member_count:12")
}

func TestValidateOpaqueArchive(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	verdict := validateOne(t, v, core.Attachment{
		Filename: "secret.rar",
		Content:  append([]byte("Rar!\x1a\x07"), make([]byte, 32)...),
	})

	assert.Equal(t, core.RiskLow, verdict.Risk)
	assert.True(t, verdict.IsSafe)
	assert.Contains(t, verdict.Indicators, "opaque_archive_format")
}

func TestValidateBatchContinuesPastBadAttachment(t *testing.T) {
	v := newTestValidator(t, DefaultConfig())
	verdicts, err := v.Validate(context.Background(), []core.Attachment{
		{Filename: "evil.exe", Content: append([]byte("MZ"), make([]byte, 16)...)},
		{Filename: "fine.txt", Content: []byte("hello")},
	})
	require.NoError(t, err)
	require.Len(t, verdicts, 2)

	assert.False(t, verdicts[0].IsSafe)
	assert.True(t, verdicts[1].IsSafe)
}

func TestValidateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := newTestValidator(t, DefaultConfig())
	_, err := v.Validate(ctx, []core.Attachment{{Filename: "a.txt"}})
	assert.Error(t, err)
}

func TestHasDoubleExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"invoice.pdf.exe", true},
		{"photo.jpg.scr", true},
		{"archive.zip", false},
		{"program.exe", false},
		{"report.docx", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hasDoubleExtension(tt.filename), tt.filename)
	}
}
