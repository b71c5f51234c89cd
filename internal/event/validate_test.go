package event

import (
	"errors"
	"strings"
	"testing"

	"github.com/rkrmr33/bukber/internal/apperrors"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		hasError bool
	}{
		{"Alya", "Alya", false},
		{"  Budi Santoso ", "Budi Santoso", false},
		{"Ñu", "Ñu", false},
		{"", "", true},
		{"   ", "", true},
		{"A", "", true},
		{strings.Repeat("x", MaxNameLength+1), "", true},
	}

	for _, tt := range tests {
		result, err := ValidateName(tt.input)
		if tt.hasError {
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("Expected validation error for input '%s', got %v", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for input '%s': %v", tt.input, err)
		}
		if result != tt.expected {
			t.Errorf("For input '%s', expected '%s', got '%s'", tt.input, tt.expected, result)
		}
	}
}

func TestValidateAccessCode(t *testing.T) {
	tests := []struct {
		input    string
		hasError bool
	}{
		{"482913", false},
		{" 482913\n", false},
		{"48291", true},
		{"4829130", true},
		{"48a913", true},
		{"", true},
	}

	for _, tt := range tests {
		_, err := ValidateAccessCode(tt.input)
		if tt.hasError != (err != nil) {
			t.Errorf("For input %q, expected error=%v, got %v", tt.input, tt.hasError, err)
		}
	}
}

func TestGenerateAccessCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateAccessCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, err := ValidateAccessCode(code); err != nil {
			t.Fatalf("Generated invalid code %q: %v", code, err)
		}
		if code[0] == '0' {
			t.Fatalf("Expected code >= 100000, got %s", code)
		}
	}
}

func TestValidateMessageLength(t *testing.T) {
	if _, err := ValidateMessage(strings.Repeat("é", MaxMessageLength)); err != nil {
		t.Errorf("Expected %d runes to be accepted, got %v", MaxMessageLength, err)
	}
	if _, err := ValidateMessage(strings.Repeat("é", MaxMessageLength+1)); err == nil {
		t.Error("Expected oversized message to be rejected")
	}
}
