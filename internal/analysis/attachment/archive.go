package attachment

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/mikey/email-gateway/internal/core"
)

// bombRatio is the uncompressed-to-compressed size ratio beyond which a
// small archive is treated as a decompression bomb.
const bombRatio = 100

type archiveFinding struct {
	risk      core.RiskLevel
	threat    core.AttachmentThreat
	indicator string
}

// inspectArchive opens a zip attachment and checks member count, path
// depth, expansion ratio and member names. Non-zip archives (rar, 7z)
// are flagged for member-level opacity rather than unpacked.
func (v *Validator) inspectArchive(att core.Attachment) []archiveFinding {
	if !bytes.HasPrefix(att.Content, []byte("PK\x03\x04")) {
		// Other archive formats cannot be inspected member by member
		// here; the opaque container itself is a mild signal.
		return []archiveFinding{{
			risk:      core.RiskLow,
			threat:    core.ThreatSuspiciousContent,
			indicator: "opaque_archive_format",
		}}
	}

	reader, err := zip.NewReader(bytes.NewReader(att.Content), int64(len(att.Content)))
	if err != nil {
		return []archiveFinding{{
			risk:      core.RiskMedium,
			threat:    core.ThreatSuspiciousContent,
			indicator: "corrupt_archive",
		}}
	}

	var findings []archiveFinding

	if n := len(reader.File); n > v.cfg.MaxArchiveMembers {
		findings = append(findings, archiveFinding{
			risk:      core.RiskHigh,
			threat:    core.ThreatArchiveBomb,
			indicator: fmt.Sprintf("archive_member_count:%d", n),
		})
	}

	var totalUncompressed uint64
	encrypted := false
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64

		if depth := strings.Count(f.Name, "/"); depth > v.cfg.MaxArchiveDepth {
			findings = append(findings, archiveFinding{
				risk:      core.RiskHigh,
				threat:    core.ThreatArchiveBomb,
				indicator: fmt.Sprintf("archive_nesting:%s", f.Name),
			})
		}
		if isDangerousExtension(f.Name) || hasDoubleExtension(f.Name) {
			findings = append(findings, archiveFinding{
				risk:      core.RiskCritical,
				threat:    core.ThreatMalware,
				indicator: "dangerous_archive_member:" + f.Name,
			})
		}
		if f.Flags&0x1 != 0 { // bit 0 of the general purpose flag marks encryption
			encrypted = true
		}
	}

	if encrypted {
		findings = append(findings, archiveFinding{
			risk:      core.RiskMedium,
			threat:    core.ThreatEncrypted,
			indicator: "encrypted_archive_member",
		})
	}

	// A tiny archive expanding a hundredfold is a bomb regardless of
	// member count.
	compressed := uint64(len(att.Content))
	if compressed > 0 && totalUncompressed/compressed > bombRatio {
		findings = append(findings, archiveFinding{
			risk:      core.RiskCritical,
			threat:    core.ThreatArchiveBomb,
			indicator: fmt.Sprintf("archive_expansion_ratio:%d", totalUncompressed/compressed),
		})
	}

	return findings
}
