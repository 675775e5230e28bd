package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func validQA() QARecord {
	return QARecord{
		Question: "What is your favorite film?",
		Answer:   "Anything by Lynch, Twin Peaks above all.",
		Category: "taste",
	}
}

func validMoment() MomentRecord {
	return MomentRecord{
		Content:   "Re-read the first chapter of Solaris on the train.",
		CreatedAt: time.Date(2021, 3, 14, 9, 0, 0, 0, time.UTC),
		Likes:     3,
	}
}

func TestValidateQA(t *testing.T) {
	if err := ValidateQA(validQA()); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	r := validQA()
	r.Question = "  "
	if err := ValidateQA(r); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("blank question: %v", err)
	}

	r = validQA()
	r.Answer = ""
	if err := ValidateQA(r); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("empty answer: %v", err)
	}

	r = validQA()
	r.Question = strings.Repeat("q", MaxTextLen+1)
	if err := ValidateQA(r); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("oversize question: %v", err)
	}
}

func TestValidateMoment(t *testing.T) {
	if err := ValidateMoment(validMoment()); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	m := validMoment()
	m.Content = ""
	if err := ValidateMoment(m); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("empty content: %v", err)
	}

	m = validMoment()
	m.CreatedAt = time.Time{}
	if err := ValidateMoment(m); !errors.Is(err, ErrZeroTimestamp) {
		t.Errorf("zero timestamp: %v", err)
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	err := NewValidationError("question", "x", ErrEmptyQuestion)
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Fatal("Unwrap chain broken")
	}
	if !strings.Contains(err.Error(), "question") {
		t.Fatalf("error text: %s", err)
	}
}

func TestPreviewRuneBoundary(t *testing.T) {
	long := strings.Repeat("问", 30)
	got := preview(long)
	if !utf8.ValidString(got) {
		t.Fatalf("preview produced invalid UTF-8: %q", got)
	}
	if len(got) > 40 {
		t.Fatalf("preview kept %d bytes", len(got))
	}

	short := "short"
	if preview(short) != short {
		t.Fatal("short input should pass through unchanged")
	}
}
