package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxTextLen caps embeddable text. The provider rejects longer inputs,
// so catching it here keeps the failure out of the embed stage.
const MaxTextLen = 8192

// preview truncates s for log output, backing off to a rune boundary
// so multi-byte text stays valid UTF-8.
func preview(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ValidateQA checks a QARecord before ingestion.
func ValidateQA(r QARecord) error {
	if strings.TrimSpace(r.Question) == "" {
		return NewValidationError("question", r.Question, ErrEmptyQuestion)
	}
	if strings.TrimSpace(r.Answer) == "" {
		return NewValidationError("answer", preview(r.Question), ErrEmptyAnswer)
	}
	if len(r.Question) > MaxTextLen {
		return NewValidationError("question", preview(r.Question), ErrTextTooLong)
	}
	return nil
}

// ValidateMoment checks a MomentRecord before ingestion.
func ValidateMoment(r MomentRecord) error {
	if strings.TrimSpace(r.Content) == "" {
		return NewValidationError("content", r.Content, ErrEmptyContent)
	}
	if len(r.Content) > MaxTextLen {
		return NewValidationError("content", preview(r.Content), ErrTextTooLong)
	}
	if r.CreatedAt.IsZero() {
		return NewValidationError("created_at", preview(r.Content), ErrZeroTimestamp)
	}
	return nil
}
