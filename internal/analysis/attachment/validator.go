// Package attachment classifies the risk of email attachments from
// extension, MIME signature, content pattern, macro and archive checks.
package attachment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// Config bounds attachment processing.
type Config struct {
	MaxSize           int64
	MaxArchiveMembers int
	MaxArchiveDepth   int
}

// DefaultConfig returns the shipped attachment limits.
func DefaultConfig() Config {
	return Config{
		MaxSize:           25 * 1024 * 1024,
		MaxArchiveMembers: 1000,
		MaxArchiveDepth:   10,
	}
}

// Validator runs a fixed sequence of checks per attachment. Each check
// can only escalate risk: one critical finding makes the whole
// attachment critical, findings are never averaged.
type Validator struct {
	cfg    Config
	logger *zap.Logger
}

// NewValidator creates an attachment validator.
func NewValidator(cfg Config, logger *zap.Logger) *Validator {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.MaxArchiveMembers <= 0 {
		cfg.MaxArchiveMembers = DefaultConfig().MaxArchiveMembers
	}
	if cfg.MaxArchiveDepth <= 0 {
		cfg.MaxArchiveDepth = DefaultConfig().MaxArchiveDepth
	}
	return &Validator{cfg: cfg, logger: logger}
}

// Validate classifies every attachment. Individual attachments never
// abort the batch.
func (v *Validator) Validate(ctx context.Context, attachments []core.Attachment) ([]core.AttachmentVerdict, error) {
	verdicts := make([]core.AttachmentVerdict, 0, len(attachments))
	for _, att := range attachments {
		if err := ctx.Err(); err != nil {
			return verdicts, err
		}
		verdicts = append(verdicts, v.validateOne(att))
	}
	return verdicts, nil
}

func (v *Validator) validateOne(att core.Attachment) core.AttachmentVerdict {
	detectedMime := detectMimeType(att)
	category := classify(att.Filename, detectedMime)

	verdict := core.AttachmentVerdict{
		Filename:     att.Filename,
		DetectedMime: detectedMime,
		Category:     category,
		Risk:         core.RiskSafe,
	}

	escalate := func(risk core.RiskLevel, threat core.AttachmentThreat, indicator string) {
		verdict.Risk = core.MaxRiskLevel(verdict.Risk, risk)
		verdict.Threats = append(verdict.Threats, threat)
		verdict.Indicators = append(verdict.Indicators, indicator)
	}

	size := att.Size
	if size == 0 {
		size = int64(len(att.Content))
	}
	if size > v.cfg.MaxSize {
		escalate(core.RiskHigh, core.ThreatOversized,
			fmt.Sprintf("attachment_oversized:%d", size))
	}

	if isDangerousExtension(att.Filename) || isDangerousMime(detectedMime) {
		escalate(core.RiskCritical, core.ThreatMalware,
			"dangerous_type:"+att.Filename)
	}

	if hasDoubleExtension(att.Filename) {
		escalate(core.RiskCritical, core.ThreatDoubleExtension,
			"double_extension:"+att.Filename)
	}

	if len(att.Content) > 0 {
		if hit := scanSuspiciousBytes(att.Content); hit != "" {
			escalate(core.RiskHigh, core.ThreatSuspiciousContent,
				"suspicious_content:"+hit)
		}
		// Archives and media are high entropy by nature; only flag the
		// rest as looking encrypted or packed.
		if category != categoryArchive && category != categoryImage {
			if e := shannonEntropy(att.Content); e > entropyThreshold {
				escalate(core.RiskMedium, core.ThreatEncrypted,
					fmt.Sprintf("high_entropy:%.2f", e))
			}
		}
	}

	if category == categoryDocument && len(att.Content) > 0 {
		if sig := scanMacroSignatures(att.Content); sig != "" {
			escalate(core.RiskHigh, core.ThreatMacroVirus,
				"macro_signature:"+sig)
		}
	}

	if category == categoryArchive && len(att.Content) > 0 {
		for _, finding := range v.inspectArchive(att) {
			escalate(finding.risk, finding.threat, finding.indicator)
		}
	}

	verdict.IsSafe = verdict.Risk == core.RiskSafe || verdict.Risk == core.RiskLow

	v.logger.Debug("Attachment validated",
		zap.String("filename", att.Filename),
		zap.String("detected_mime", detectedMime),
		zap.String("category", category),
		zap.String("risk", string(verdict.Risk)))

	return verdict
}
