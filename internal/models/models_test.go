package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseEnhancementType(t *testing.T) {
	testCases := map[string]EnhancementType{
		"beautify":  EnhancementTypeBeautify,
		" OCR ":     EnhancementTypeOCR,
		"Shape":     EnhancementTypeShape,
		"formula\n": EnhancementTypeFormula,
	}
	for raw, want := range testCases {
		got, err := ParseEnhancementType(raw)
		if err != nil {
			t.Fatalf("ParseEnhancementType(%q) returned %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseEnhancementType(%q) = %q, want %q", raw, got, want)
		}
	}
	for _, raw := range []string{"", "sharpen", "ocr2"} {
		if _, err := ParseEnhancementType(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected invalid argument for %q, got %v", raw, err)
		}
	}
}

func TestEnhancementStatusTerminal(t *testing.T) {
	if EnhancementStatusPending.Terminal() || EnhancementStatusProcessing.Terminal() {
		t.Fatalf("expected pending and processing to allow transitions")
	}
	if !EnhancementStatusCompleted.Terminal() || !EnhancementStatusFailed.Terminal() {
		t.Fatalf("expected completed and failed to be terminal")
	}
}

func TestServiceErrorExposesKindCodeAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewServiceError("enhancements.begin_processing", "update_failed", ErrStorageUnavailable, cause)

	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected kind to unwrap")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	if CodeOf(err) != "enhancements.begin_processing.update_failed" {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if KindOf(err) != ErrStorageUnavailable {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}
	if err.Error() != "enhancements.begin_processing.update_failed: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if CodeOf(wrapped) != "enhancements.begin_processing.update_failed" || KindOf(wrapped) != ErrStorageUnavailable {
		t.Fatalf("expected code and kind through wrapping")
	}
	if CodeOf(errors.New("plain")) != "" || KindOf(errors.New("plain")) != nil || KindOf(nil) != nil {
		t.Fatalf("expected empty code and nil kind for foreign errors")
	}
}

func TestRetryable(t *testing.T) {
	testCases := []struct {
		kind error
		want bool
	}{
		{kind: ErrNotFound, want: false},
		{kind: ErrInvalidArgument, want: false},
		{kind: ErrInvalidStateTransition, want: false},
		{kind: ErrConstraintViolation, want: true},
		{kind: ErrStorageUnavailable, want: true},
	}
	for _, testCase := range testCases {
		err := NewServiceError("op", "reason", testCase.kind, nil)
		if Retryable(err) != testCase.want {
			t.Fatalf("Retryable(%v) = %v, want %v", testCase.kind, !testCase.want, testCase.want)
		}
	}
	if NewServiceError("op", "reason", ErrNotFound, nil).Error() != "op.reason: not found" {
		t.Fatalf("unexpected message without cause")
	}
}
