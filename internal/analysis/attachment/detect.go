package attachment

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"

	"github.com/mikey/email-gateway/internal/core"
)

// Attachment categories.
const (
	categoryDocument   = "document"
	categoryImage      = "image"
	categoryArchive    = "archive"
	categoryExecutable = "executable"
	categoryScript     = "script"
	categoryUnknown    = "unknown"
)

// entropyThreshold is the Shannon entropy (bits per byte) above which a
// payload looks encrypted or packed.
const entropyThreshold = 7.5

// magicSignature maps leading bytes to the true MIME type. Signature
// detection wins over the declared type and the extension.
type magicSignature struct {
	prefix []byte
	mime   string
}

var magicSignatures = []magicSignature{
	{[]byte("MZ"), "application/x-msdownload"},
	{[]byte{0x7F, 'E', 'L', 'F'}, "application/x-executable"},
	{[]byte("PK\x03\x04"), "application/zip"},
	{[]byte("Rar!\x1a\x07"), "application/x-rar-compressed"},
	{[]byte{0x1F, 0x8B}, "application/gzip"},
	{[]byte("7z\xbc\xaf\x27\x1c"), "application/x-7z-compressed"},
	{[]byte("%PDF"), "application/pdf"},
	{[]byte{0xD0, 0xCF, 0x11, 0xE0}, "application/vnd.ms-office"},
	{[]byte("{\\rtf"), "application/rtf"},
	{[]byte{0x89, 'P', 'N', 'G'}, "image/png"},
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{[]byte("GIF8"), "image/gif"},
}

var extensionMimes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".rtf":  "application/rtf",
	".txt":  "text/plain",
	".html": "text/html",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".zip":  "application/zip",
	".rar":  "application/x-rar-compressed",
	".gz":   "application/gzip",
	".7z":   "application/x-7z-compressed",
	".exe":  "application/x-msdownload",
	".dll":  "application/x-msdownload",
	".js":   "text/javascript",
	".vbs":  "text/vbscript",
	".ps1":  "text/x-powershell",
	".sh":   "application/x-sh",
	".bat":  "application/x-bat",
}

// detectMimeType sniffs the true MIME type from leading bytes, falling
// back to the extension guess and finally the declared type.
func detectMimeType(att core.Attachment) string {
	for _, sig := range magicSignatures {
		if bytes.HasPrefix(att.Content, sig.prefix) {
			return sig.mime
		}
	}
	if mime, ok := extensionMimes[strings.ToLower(filepath.Ext(att.Filename))]; ok {
		return mime
	}
	if att.MimeType != "" {
		return att.MimeType
	}
	return "application/octet-stream"
}

var dangerousExtensions = map[string]struct{}{
	".exe": {}, ".scr": {}, ".pif": {}, ".com": {}, ".bat": {},
	".cmd": {}, ".msi": {}, ".dll": {}, ".cpl": {}, ".hta": {},
	".jar": {}, ".js": {}, ".jse": {}, ".vbs": {}, ".vbe": {},
	".wsf": {}, ".wsh": {}, ".ps1": {}, ".psm1": {}, ".reg": {},
	".lnk": {}, ".iso": {}, ".img": {},
}

var dangerousMimes = map[string]struct{}{
	"application/x-msdownload":   {},
	"application/x-executable":   {},
	"application/x-dosexec":      {},
	"application/x-ms-shortcut":  {},
	"application/hta":            {},
	"application/x-sh":           {},
	"application/x-bat":          {},
	"text/javascript":            {},
	"text/vbscript":              {},
	"text/x-powershell":          {},
	"application/java-archive":   {},
	"application/x-iso9660-image": {},
}

func isDangerousExtension(filename string) bool {
	_, ok := dangerousExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func isDangerousMime(mime string) bool {
	_, ok := dangerousMimes[mime]
	return ok
}

// hasDoubleExtension detects names like invoice.pdf.exe: a benign-looking
// inner extension hiding a dangerous outer one.
func hasDoubleExtension(filename string) bool {
	outer := strings.ToLower(filepath.Ext(filename))
	if _, dangerous := dangerousExtensions[outer]; !dangerous {
		return false
	}
	inner := strings.ToLower(filepath.Ext(strings.TrimSuffix(filename, outer)))
	switch inner {
	case ".pdf", ".doc", ".docx", ".xls", ".xlsx", ".txt", ".jpg", ".jpeg", ".png", ".gif", ".html", ".zip":
		return true
	}
	return false
}

// classify buckets an attachment by detected MIME and extension.
func classify(filename, mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return categoryImage
	case mime == "application/zip" || mime == "application/x-rar-compressed" ||
		mime == "application/gzip" || mime == "application/x-7z-compressed":
		return categoryArchive
	case mime == "application/x-msdownload" || mime == "application/x-executable" ||
		mime == "application/x-dosexec":
		return categoryExecutable
	case mime == "text/javascript" || mime == "text/vbscript" ||
		mime == "text/x-powershell" || mime == "application/x-sh" || mime == "application/x-bat":
		return categoryScript
	case mime == "application/pdf" || mime == "application/msword" ||
		mime == "application/rtf" || mime == "application/vnd.ms-office" ||
		strings.HasPrefix(mime, "application/vnd.openxmlformats-officedocument") ||
		strings.HasPrefix(mime, "application/vnd.ms-") ||
		strings.HasPrefix(mime, "text/"):
		return categoryDocument
	default:
		_ = filename
		return categoryUnknown
	}
}

// suspiciousBytePatterns are command-execution strings that have no
// business inside a mail attachment.
var suspiciousBytePatterns = []string{
	"cmd.exe", "powershell", "WScript.Shell", "CreateObject(",
	"/bin/sh", "/bin/bash", "eval(base64", "FromBase64String",
	"rundll32", "regsvr32", "certutil -decode", "mshta",
}

func scanSuspiciousBytes(content []byte) string {
	// Cap the scan window; payloads hide their loaders up front.
	window := content
	if len(window) > 1<<20 {
		window = window[:1<<20]
	}
	for _, p := range suspiciousBytePatterns {
		if bytes.Contains(window, []byte(p)) {
			return p
		}
	}
	return ""
}

// macroSignatures mark embedded VBA projects and auto-executing macros
// in office documents.
var macroSignatures = []string{
	"vbaProject.bin", "VBA/ThisDocument", "Auto_Open", "AutoOpen",
	"AutoExec", "Document_Open", "Workbook_Open", "Shell(",
}

func scanMacroSignatures(content []byte) string {
	for _, sig := range macroSignatures {
		if bytes.Contains(content, []byte(sig)) {
			return sig
		}
	}
	return ""
}

// shannonEntropy computes bits of entropy per byte.
func shannonEntropy(content []byte) float64 {
	if len(content) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range content {
		counts[b]++
	}
	total := float64(len(content))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
