// Package utils holds helpers for preparing email bodies before they
// are embedded into detector prompts.
package utils

import (
	"unicode/utf8"

	"go.uber.org/zap"
)

const truncationMarker = "\n[... Content truncated due to size limits ...]"

// TextProcessor bounds and cleans body text destined for an AI
// detector prompt. Model inputs have token budgets and reject broken
// UTF-8, while inbound mail respects neither.
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a text processor.
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{logger: logger}
}

// TruncateText cuts text down to maxSize bytes without splitting a
// multi-byte rune. A marker is appended so the model knows the body
// was cut rather than short. maxSize <= 0 means unlimited.
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	// The cut may have landed inside a rune; back off to the last
	// complete one.
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Body truncated for prompt",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + truncationMarker
}

// SanitizeUTF8 drops invalid byte sequences, returning a string safe
// to place in a JSON request body.
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(text[i:]); size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	tp.logger.Debug("Body sanitized for prompt",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(string(result))))

	return string(result)
}

// ProcessText applies truncation then sanitization, the order the
// detector adapters expect.
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(text, maxSize))
}
